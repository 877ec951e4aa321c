package utils

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/BartekS5/sql2bq/pkg/models"
)

// Canonical text layouts accepted by BigQuery newline-delimited JSON loads.
const (
	DateLayout      = "2006-01-02"
	DateTimeLayout  = "2006-01-02 15:04:05.999999"
	TimeLayout      = "15:04:05.999999"
	TimestampLayout = "2006-01-02T15:04:05.999999Z07:00"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var clockLayouts = []string{
	"15:04:05.999999999",
	"15:04:05",
	"15:04",
}

// ConvertToBigQuery converts a raw extracted value into the representation the
// destination type expects in a load file. nil always stays nil.
func ConvertToBigQuery(val any, ft models.FieldType) (any, error) {
	if val == nil {
		return nil, nil
	}
	switch ft {
	case models.TypeInteger:
		return ConvertToInt64(val)
	case models.TypeFloat:
		return ConvertToFloat64(val)
	case models.TypeNumeric, models.TypeBigNumeric:
		return ConvertToDecimalString(val)
	case models.TypeBoolean:
		return ConvertToBool(val)
	case models.TypeString:
		return ConvertToString(val), nil
	case models.TypeBytes:
		return ConvertToBase64(val)
	case models.TypeDate:
		t, err := ParseTime(val)
		if err != nil {
			return nil, err
		}
		return t.Format(DateLayout), nil
	case models.TypeDateTime:
		t, err := ParseTime(val)
		if err != nil {
			return nil, err
		}
		return t.Format(DateTimeLayout), nil
	case models.TypeTime:
		return ConvertToClock(val)
	case models.TypeTimestamp:
		t, err := ParseTime(val)
		if err != nil {
			return nil, err
		}
		return t.UTC().Format(TimestampLayout), nil
	case models.TypeJSON:
		return ConvertToJSON(val)
	default:
		return nil, fmt.Errorf("no conversion for type %q", ft)
	}
}

// ParseTime accepts time.Time values and the textual forms produced by
// common SQL drivers.
func ParseTime(val any) (time.Time, error) {
	switch v := val.(type) {
	case time.Time:
		return v, nil
	case []byte:
		return ParseTime(string(v))
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unable to parse datetime: %q", v)
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to datetime", val)
	}
}

func ConvertToClock(val any) (any, error) {
	switch v := val.(type) {
	case time.Time:
		return v.Format(TimeLayout), nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range clockLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format(TimeLayout), nil
			}
		}
		return nil, fmt.Errorf("unable to parse time of day: %q", v)
	case []byte:
		return ConvertToClock(string(v))
	default:
		return nil, fmt.Errorf("cannot convert %T to time of day", val)
	}
}

func ConvertToInt64(val any) (int64, error) {
	switch v := val.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows INTEGER", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%v is not integral", v)
		}
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return ConvertToInt64(string(v))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to INTEGER", v)
		}
		return n, nil
	case []byte:
		return ConvertToInt64(string(v))
	default:
		return 0, fmt.Errorf("cannot convert %T to INTEGER", val)
	}
}

func ConvertToFloat64(val any) (float64, error) {
	switch v := val.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case json.Number:
		return ConvertToFloat64(string(v))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to FLOAT", v)
		}
		return f, nil
	case []byte:
		return ConvertToFloat64(string(v))
	default:
		n, err := ConvertToInt64(val)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %T to FLOAT", val)
		}
		return float64(n), nil
	}
}

// ConvertToDecimalString keeps NUMERIC values as text so no precision is lost.
func ConvertToDecimalString(val any) (string, error) {
	var s string
	switch v := val.(type) {
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		s = string(v)
	case string:
		s = strings.TrimSpace(v)
	case []byte:
		s = strings.TrimSpace(string(v))
	default:
		n, err := ConvertToInt64(val)
		if err != nil {
			return "", fmt.Errorf("cannot convert %T to NUMERIC", val)
		}
		return strconv.FormatInt(n, 10), nil
	}
	if _, ok := new(big.Rat).SetString(s); !ok {
		return "", fmt.Errorf("cannot convert %q to NUMERIC", s)
	}
	return s, nil
}

// ConvertToBool accepts native booleans and the 0/1 flags MySQL stores in TINYINT columns.
func ConvertToBool(val any) (bool, error) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "t", "yes", "y":
			return true, nil
		case "0", "false", "f", "no", "n":
			return false, nil
		}
		return false, fmt.Errorf("cannot convert %q to BOOLEAN", v)
	case []byte:
		return ConvertToBool(string(v))
	default:
		n, err := ConvertToInt64(val)
		if err != nil {
			return false, fmt.Errorf("cannot convert %T to BOOLEAN", val)
		}
		return n != 0, nil
	}
}

// ConvertToBase64 returns the base64 text BigQuery expects for BYTES. Raw
// []byte is encoded; a string is taken as already encoded, which is how dump
// files carry binary columns.
func ConvertToBase64(val any) (string, error) {
	switch v := val.(type) {
	case []byte:
		return base64.StdEncoding.EncodeToString(v), nil
	case string:
		if _, err := base64.StdEncoding.DecodeString(v); err != nil {
			return "", fmt.Errorf("BYTES value is not base64: %w", err)
		}
		return v, nil
	default:
		return "", fmt.Errorf("cannot convert %T to BYTES", val)
	}
}

func ConvertToString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case json.Number:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ConvertToJSON embeds valid JSON text as a raw message.
func ConvertToJSON(val any) (any, error) {
	var raw []byte
	switch v := val.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %T to JSON: %w", val, err)
		}
		return json.RawMessage(b), nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("value is not valid JSON")
	}
	return json.RawMessage(raw), nil
}
