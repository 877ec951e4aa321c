// Package janitor removes aged dump and load files.
package janitor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BartekS5/sql2bq/pkg/logger"
)

// Patterns swept from the dumps directory. *.tmp covers files left behind by
// an interrupted write.
var Patterns = []string{"*.json", "*.tmp"}

// Sweep deletes files in dir whose modification time is more than maxAge
// before now. It keeps going past individual failures and returns them joined.
func Sweep(dir string, maxAge time.Duration, now time.Time) ([]string, error) {
	var (
		removed []string
		errs    []error
	)
	for _, pattern := range Patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return removed, err
		}
		for _, path := range matches {
			info, err := os.Stat(path)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if info.IsDir() || now.Sub(info.ModTime()) <= maxAge {
				continue
			}
			if err := os.Remove(path); err != nil {
				errs = append(errs, fmt.Errorf("delete old file: %w", err))
				continue
			}
			logger.Infof("Deleted old file: %s", path)
			removed = append(removed, path)
		}
	}
	return removed, errors.Join(errs...)
}
