package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/BartekS5/sql2bq/pkg/database"
)

// Credentials is the parsed credentials file. Every key can be overridden
// by an environment variable of the same (upper-case) name.
type Credentials struct {
	DBDriver   string `mapstructure:"db_driver"`
	DBHost     string `mapstructure:"db_host"`
	DBPort     int    `mapstructure:"db_port"`
	DBUser     string `mapstructure:"db_usr"`
	DBPassword string `mapstructure:"db_pwd"`
	DBName     string `mapstructure:"db_name"`

	ProjectID         string `mapstructure:"bq_project_id"`
	DatasetID         string `mapstructure:"bq_dataset_id"`
	Location          string `mapstructure:"bq_location"`
	GoogleCredentials string `mapstructure:"google_application_credentials"`
	GCSBucket         string `mapstructure:"gcs_bucket"`
	GCSPrefix         string `mapstructure:"gcs_prefix"`

	// Warehouse is bigquery, sqlite or duckdb. The local kinds write to WarehousePath.
	Warehouse     string `mapstructure:"warehouse"`
	WarehousePath string `mapstructure:"warehouse_path"`
}

var credentialKeys = []string{
	"db_driver", "db_host", "db_port", "db_usr", "db_pwd", "db_name",
	"bq_project_id", "bq_dataset_id", "bq_location", "google_application_credentials",
	"gcs_bucket", "gcs_prefix", "warehouse", "warehouse_path",
}

// LoadCredentials reads the JSON credentials file at path.
func LoadCredentials(path string) (*Credentials, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetDefault("db_driver", "mysql")
	v.SetDefault("warehouse", "bigquery")
	for _, key := range credentialKeys {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("%w: bind %s: %w", ErrConfig, key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: failed to read credentials file '%s': %w", ErrConfig, path, err)
	}

	var creds Credentials
	if err := v.Unmarshal(&creds); err != nil {
		return nil, fmt.Errorf("%w: failed to parse credentials file '%s': %w", ErrConfig, path, err)
	}
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("%w: credentials file '%s': %w", ErrConfig, path, err)
	}
	return &creds, nil
}

// Validate reports every missing or inconsistent field at once.
func (c *Credentials) Validate() error {
	var errs []error
	driver := strings.ToLower(c.DBDriver)
	if _, err := database.GetDialect(driver); err != nil {
		errs = append(errs, err)
	}
	isSQLite := driver == "sqlite" || driver == "sqlite3"
	if !isSQLite && c.DBHost == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if !isSQLite && c.DBUser == "" {
		errs = append(errs, errors.New("DB_USR is required"))
	}
	if c.DBName == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DBPort < 0 || c.DBPort > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT %d out of range", c.DBPort))
	}

	switch strings.ToLower(c.Warehouse) {
	case "bigquery":
		if c.ProjectID == "" {
			errs = append(errs, errors.New("BQ_PROJECT_ID is required"))
		}
		if c.DatasetID == "" {
			errs = append(errs, errors.New("BQ_DATASET_ID is required"))
		}
		if c.GoogleCredentials != "" {
			if _, err := os.Stat(c.GoogleCredentials); err != nil {
				errs = append(errs, fmt.Errorf("GOOGLE_APPLICATION_CREDENTIALS: %w", err))
			}
		}
	case "sqlite", "duckdb":
		if c.WarehousePath == "" {
			errs = append(errs, fmt.Errorf("WAREHOUSE_PATH is required for warehouse %q", c.Warehouse))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported WAREHOUSE %q", c.Warehouse))
	}
	return errors.Join(errs...)
}

// Source returns the connection parameters of the source database.
func (c *Credentials) Source() database.SourceParams {
	return database.SourceParams{
		Driver:   strings.ToLower(c.DBDriver),
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		Database: c.DBName,
	}
}
