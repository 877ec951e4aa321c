package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldType(t *testing.T) {
	tests := []struct {
		tag     string
		want    FieldType
		wantErr error
	}{
		{tag: "INTEGER", want: TypeInteger},
		{tag: "int64", want: TypeInteger},
		{tag: " Float64 ", want: TypeFloat},
		{tag: "DECIMAL", want: TypeNumeric},
		{tag: "BIGDECIMAL", want: TypeBigNumeric},
		{tag: "bool", want: TypeBoolean},
		{tag: "TIMESTAMP", want: TypeTimestamp},
		{tag: "JSON", want: TypeJSON},
		{tag: "RECORD", wantErr: ErrUnsupportedType},
		{tag: "geography", wantErr: ErrUnsupportedType},
		{tag: "VARCHAR", wantErr: ErrUnknownType},
		{tag: "", wantErr: ErrUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, err := ParseFieldType(tt.tag)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFieldTypeIsTemporal(t *testing.T) {
	assert.True(t, TypeDate.IsTemporal())
	assert.True(t, TypeTimestamp.IsTemporal())
	assert.True(t, TypeDateTime.IsTemporal())
	assert.False(t, TypeTime.IsTemporal())
	assert.False(t, TypeString.IsTemporal())
}

func TestEffectiveMode(t *testing.T) {
	full := TableSpec{Mode: ModeFull}
	incr := TableSpec{Mode: ModeIncremental}

	assert.Equal(t, ModeFull, full.EffectiveMode(false))
	assert.Equal(t, ModeFull, full.EffectiveMode(true))
	assert.Equal(t, ModeFull, incr.EffectiveMode(false))
	assert.Equal(t, ModeIncremental, incr.EffectiveMode(true))
}

func TestParseTables(t *testing.T) {
	cfg, err := ParseTables([]byte(`{"tables":[{"source_table":"users","mode":"incremental","window_column":"updated_at",
		"columns":[{"source":"id","type":"INTEGER","required":true},{"source":"mail","name":"email","type":"STRING"}]}]}`))
	require.NoError(t, err)
	require.Len(t, cfg.Tables, 1)

	spec := cfg.Tables[0]
	assert.Equal(t, "users", spec.SourceTable)
	assert.Equal(t, ModeIncremental, spec.Mode)
	assert.Equal(t, "email", spec.Columns[1].DestName())
	assert.Equal(t, "id", spec.Columns[0].DestName())
	assert.Equal(t, map[string]string{"id": "INTEGER", "mail": "STRING"}, spec.ColumnMap())
}

func TestParseTablesRejectsUnknownFields(t *testing.T) {
	_, err := ParseTables([]byte(`{"tables":[{"source_table":"users","colums":[]}]}`))
	assert.Error(t, err)
}

func TestRunStateWithCopies(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(24 * time.Hour)

	s0 := NewRunState().With("users", TableState{LastSuccess: t0})
	s1 := s0.With("users", TableState{LastSuccess: t1})

	assert.Equal(t, t0, *s0.LastSuccess("users"))
	assert.Equal(t, t1, *s1.LastSuccess("users"))
	assert.Nil(t, s1.LastSuccess("orders"))
}

func TestExtractionWindowString(t *testing.T) {
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	start := end.Add(-24 * time.Hour)

	assert.Equal(t, "(-inf, 2024-01-02T00:00:00Z]", ExtractionWindow{End: end}.String())
	assert.Equal(t, "(2024-01-01T00:00:00Z, 2024-01-02T00:00:00Z]", ExtractionWindow{Start: &start, End: end}.String())
	assert.False(t, ExtractionWindow{End: end}.Bounded())
}

func TestRowRecordGet(t *testing.T) {
	rec := RowRecord{Columns: []string{"id", "name"}, Values: []any{int64(1), nil}}

	v, ok := rec.Get("name")
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = rec.Get("missing")
	assert.False(t, ok)
}

func TestFileSafeName(t *testing.T) {
	assert.Equal(t, "raw.users", FileSafeName("raw.users"))
	assert.Equal(t, "ds_users", FileSafeName("ds users"))
	assert.Equal(t, "a_b-c", FileSafeName("a/\\b-c"))
}
