package models

import (
	"errors"
	"fmt"
	"strings"
)

// FieldType is a destination (BigQuery) column type.
type FieldType string

const (
	TypeInteger    FieldType = "INTEGER"
	TypeFloat      FieldType = "FLOAT"
	TypeNumeric    FieldType = "NUMERIC"
	TypeBigNumeric FieldType = "BIGNUMERIC"
	TypeBoolean    FieldType = "BOOLEAN"
	TypeString     FieldType = "STRING"
	TypeBytes      FieldType = "BYTES"
	TypeDate       FieldType = "DATE"
	TypeDateTime   FieldType = "DATETIME"
	TypeTime       FieldType = "TIME"
	TypeTimestamp  FieldType = "TIMESTAMP"
	TypeJSON       FieldType = "JSON"
)

var (
	// ErrUnsupportedType marks warehouse types that newline-delimited JSON loads cannot carry.
	ErrUnsupportedType = errors.New("type not representable in load format")
	ErrUnknownType     = errors.New("unknown type")
)

var fieldTypeAliases = map[string]FieldType{
	"INTEGER":    TypeInteger,
	"INT64":      TypeInteger,
	"FLOAT":      TypeFloat,
	"FLOAT64":    TypeFloat,
	"NUMERIC":    TypeNumeric,
	"DECIMAL":    TypeNumeric,
	"BIGNUMERIC": TypeBigNumeric,
	"BIGDECIMAL": TypeBigNumeric,
	"BOOLEAN":    TypeBoolean,
	"BOOL":       TypeBoolean,
	"STRING":     TypeString,
	"BYTES":      TypeBytes,
	"DATE":       TypeDate,
	"DATETIME":   TypeDateTime,
	"TIME":       TypeTime,
	"TIMESTAMP":  TypeTimestamp,
	"JSON":       TypeJSON,
}

var unsupportedTypes = map[string]bool{
	"RECORD":    true,
	"STRUCT":    true,
	"GEOGRAPHY": true,
	"INTERVAL":  true,
	"RANGE":     true,
}

// ParseFieldType normalises a type tag from configuration.
func ParseFieldType(tag string) (FieldType, error) {
	norm := strings.ToUpper(strings.TrimSpace(tag))
	if ft, ok := fieldTypeAliases[norm]; ok {
		return ft, nil
	}
	if unsupportedTypes[norm] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, norm)
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, tag)
}

// IsTemporal reports whether the type can drive day partitioning.
func (t FieldType) IsTemporal() bool {
	return t == TypeDate || t == TypeDateTime || t == TypeTimestamp
}
