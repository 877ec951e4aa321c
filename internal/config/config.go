// Package config loads the runtime settings, the credentials file and the
// table schema file. Every loader validates eagerly and reports all problems
// it finds in one error wrapping ErrConfig.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrConfig marks configuration problems. They are fatal before any table is touched.
var ErrConfig = errors.New("configuration error")

// DefaultRetention is how long dump files are kept.
const DefaultRetention = 7 * 24 * time.Hour

// Config holds runtime settings, typically loaded from environment variables
// (populated by the .env file in main.go) and overridden by CLI flags.
type Config struct {
	Home            string
	CredentialsPath string
	TablesPath      string
	DumpsDir        string
	LogsDir         string
	StateURI        string
	LogPrefix       string
	LogLevel        string
	Retention       time.Duration
}

// LoadConfig reads settings from the environment. Paths left empty are
// derived from Home by Resolve.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Home:            envOr("ETL_HOME", "."),
		CredentialsPath: os.Getenv("CREDENTIALS_PATH"),
		TablesPath:      os.Getenv("TABLES_PATH"),
		DumpsDir:        os.Getenv("DUMPS_DIR"),
		LogsDir:         os.Getenv("LOGS_DIR"),
		StateURI:        os.Getenv("STATE_URI"),
		LogPrefix:       envOr("LOG_PREFIX", "MYSQL_to_BQ"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		Retention:       DefaultRetention,
	}

	retention, err := envDuration("DUMP_RETENTION", DefaultRetention)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("%w: DUMP_RETENTION must be positive", ErrConfig)
	}
	cfg.Retention = retention
	return cfg, nil
}

// Resolve fills every derived path from Home.
func (c *Config) Resolve() {
	if c.Home == "" {
		c.Home = "."
	}
	if c.CredentialsPath == "" {
		c.CredentialsPath = filepath.Join(c.Home, "configs", "db_credentials.json")
	}
	if c.TablesPath == "" {
		c.TablesPath = filepath.Join(c.Home, "configs", "MYSQL_to_BigQuery_tables.json")
	}
	if c.DumpsDir == "" {
		c.DumpsDir = filepath.Join(c.Home, "dumps")
	}
	if c.LogsDir == "" {
		c.LogsDir = filepath.Join(c.Home, "logs")
	}
	if c.StateURI == "" {
		c.StateURI = filepath.Join(c.Home, "state", "run_state.json")
	}
	if c.Retention == 0 {
		c.Retention = DefaultRetention
	}
}

// EnsureDirs creates the dumps and logs directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DumpsDir, c.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create %s: %w", ErrConfig, dir, err)
		}
	}
	return nil
}
