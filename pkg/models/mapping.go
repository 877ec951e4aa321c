package models

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// Mode selects how a table is synchronised into the warehouse.
type Mode string

const (
	// ModeFull replaces the destination table's contents on every run.
	ModeFull Mode = "full"
	// ModeIncremental appends only rows changed since the last successful run.
	ModeIncremental Mode = "incremental"
)

// TableConfig represents the root of the table schema file.
type TableConfig struct {
	Tables []TableSpec `json:"tables"`
}

// TableSpec describes one source table and how it lands in the warehouse.
type TableSpec struct {
	SourceTable      string       `json:"source_table"`
	DestinationTable string       `json:"destination_table,omitempty"`
	Columns          []ColumnSpec `json:"columns"`
	Mode             Mode         `json:"mode,omitempty"`
	WindowColumn     string       `json:"window_column,omitempty"`
	PartitionField   string       `json:"partition_field,omitempty"`
}

// ColumnSpec maps a single source column onto a destination field.
type ColumnSpec struct {
	Source   string `json:"source"`
	Name     string `json:"name,omitempty"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// FileSafeName is the destination table name as used in dump and load file
// names. Distinct tables can map to the same name; table validation rejects that.
func FileSafeName(table string) string {
	return unsafeFileChars.ReplaceAllString(table, "_")
}

// DestName returns the destination field name, defaulting to the source column.
func (c ColumnSpec) DestName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Source
}

// ColumnMap returns source column -> destination type tag.
func (t TableSpec) ColumnMap() map[string]string {
	m := make(map[string]string, len(t.Columns))
	for _, c := range t.Columns {
		m[c.Source] = strings.ToUpper(strings.TrimSpace(c.Type))
	}
	return m
}

// EffectiveMode resolves the mode for one invocation. Only daily runs extract
// incrementally, and only for tables configured as incremental.
func (t TableSpec) EffectiveMode(daily bool) Mode {
	if daily && t.Mode == ModeIncremental {
		return ModeIncremental
	}
	return ModeFull
}

// ParseTables decodes a table schema document. Unknown fields are rejected.
func ParseTables(data []byte) (*TableConfig, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg TableConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
