package etl

import (
	"fmt"
	"strings"

	"github.com/BartekS5/sql2bq/pkg/models"
)

type Validator struct {
	required []string
}

func NewValidator(schema []models.Field) *Validator {
	v := &Validator{}
	for _, f := range schema {
		if f.Required {
			v.required = append(v.required, f.Name)
		}
	}
	return v
}

// ValidateRow rejects rows that would violate a REQUIRED destination field.
func (v *Validator) ValidateRow(row map[string]any) error {
	var missing []string
	for _, name := range v.required {
		if row[name] == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: NULL in required field(s) %s", ErrSchemaMismatch, strings.Join(missing, ", "))
	}
	return nil
}
