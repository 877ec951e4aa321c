package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BartekS5/sql2bq/pkg/models"
)

// LoadTables reads the table schema file, applies defaults and validates it.
func LoadTables(filePath string) (*models.TableConfig, error) {
	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read tables file '%s': %w", ErrConfig, filePath, err)
	}

	cfg, err := models.ParseTables(bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse tables file '%s': %w", ErrConfig, filePath, err)
	}

	ApplyTableDefaults(cfg)
	if err := ValidateTables(cfg); err != nil {
		return nil, fmt.Errorf("%w: tables file '%s': %w", ErrConfig, filePath, err)
	}
	return cfg, nil
}

// ApplyTableDefaults fills destination names and modes left empty.
func ApplyTableDefaults(cfg *models.TableConfig) {
	for i := range cfg.Tables {
		t := &cfg.Tables[i]
		if t.DestinationTable == "" {
			t.DestinationTable = t.SourceTable
		}
		if t.Mode == "" {
			t.Mode = models.ModeFull
		}
	}
}

// ValidateTables checks structure only. Type tags the load format cannot
// carry are left for the transformer so they fail one table, not the run.
func ValidateTables(cfg *models.TableConfig) error {
	var errs []error
	if len(cfg.Tables) == 0 {
		errs = append(errs, errors.New("at least one table is required"))
	}

	destinations := map[string]int{}
	// File names are compared case-insensitively for case-insensitive filesystems.
	fileNames := map[string]int{}
	for i, t := range cfg.Tables {
		where := fmt.Sprintf("tables[%d]", i)
		if t.SourceTable != "" {
			where = fmt.Sprintf("tables[%d] (%s)", i, t.SourceTable)
		}
		fail := func(format string, args ...any) {
			errs = append(errs, fmt.Errorf("%s: %s", where, fmt.Sprintf(format, args...)))
		}

		if t.SourceTable == "" {
			fail("source_table is required")
		}
		if prev, dup := destinations[t.DestinationTable]; dup && t.DestinationTable != "" {
			fail("destination_table %q already used by tables[%d]", t.DestinationTable, prev)
		} else {
			destinations[t.DestinationTable] = i
			key := strings.ToLower(models.FileSafeName(t.DestinationTable))
			if prev, clash := fileNames[key]; clash && t.DestinationTable != "" {
				fail("destination_table %q clashes with tables[%d] (%s) in dump file names",
					t.DestinationTable, prev, cfg.Tables[prev].DestinationTable)
			} else {
				fileNames[key] = i
			}
		}

		switch t.Mode {
		case models.ModeFull:
		case models.ModeIncremental:
			if t.WindowColumn == "" {
				fail("window_column is required for incremental mode")
			}
		default:
			fail("mode must be %q or %q, got %q", models.ModeFull, models.ModeIncremental, t.Mode)
		}

		if len(t.Columns) == 0 {
			fail("columns must not be empty")
		}
		sources := map[string]models.ColumnSpec{}
		names := map[string]models.ColumnSpec{}
		for j, c := range t.Columns {
			if c.Source == "" {
				fail("columns[%d]: source is required", j)
				continue
			}
			if strings.TrimSpace(c.Type) == "" {
				fail("columns[%d] (%s): type is required", j, c.Source)
			}
			if _, dup := sources[c.Source]; dup {
				fail("column %q mapped twice", c.Source)
			}
			sources[c.Source] = c
			if _, dup := names[c.DestName()]; dup {
				fail("destination field %q defined twice", c.DestName())
			}
			names[c.DestName()] = c
		}

		if t.PartitionField != "" {
			// Either the destination name or the source column may be given.
			c, ok := names[t.PartitionField]
			if !ok {
				c, ok = sources[t.PartitionField]
			}
			if !ok {
				fail("partition_field %q is not a configured column", t.PartitionField)
			} else if ft, err := models.ParseFieldType(c.Type); err == nil && !ft.IsTemporal() {
				fail("partition_field %q must be DATE, DATETIME or TIMESTAMP, got %s", t.PartitionField, ft)
			}
		}
	}
	return errors.Join(errs...)
}
