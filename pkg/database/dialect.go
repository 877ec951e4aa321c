package database

import (
	"fmt"
	"strings"
	"time"
)

// Dialect abstracts the source-specific bits of building extraction queries.
type Dialect interface {
	// DriverName is the database/sql driver to open.
	DriverName() string
	// QuoteIdent quotes a possibly schema-qualified identifier.
	QuoteIdent(name string) string
	// Placeholder returns the bind marker for the 1-based argument index.
	Placeholder(index int) string
	// BindTime converts a window bound into a driver argument.
	BindTime(t time.Time) any
	// ListTablesQuery selects base table names of the connected schema.
	ListTablesQuery() string
}

// GetDialect returns the dialect for a configured driver name.
func GetDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "", "mysql":
		return MySQL{}, nil
	case "postgres", "postgresql":
		return Postgres{}, nil
	case "sqlserver", "mssql":
		return SQLServer{}, nil
	case "oracle":
		return Oracle{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unsupported source driver %q", driver)
	}
}

var (
	_ Dialect = MySQL{}
	_ Dialect = Postgres{}
	_ Dialect = SQLServer{}
	_ Dialect = Oracle{}
	_ Dialect = SQLite{}
)

type MySQL struct{}

func (MySQL) DriverName() string { return "mysql" }

func (MySQL) QuoteIdent(name string) string {
	return quoteParts(name, "`", "`")
}

func (MySQL) Placeholder(int) string { return "?" }

func (MySQL) BindTime(t time.Time) any { return t.UTC() }

func (MySQL) ListTablesQuery() string {
	return `SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`
}

type Postgres struct{}

func (Postgres) DriverName() string { return "postgres" }

func (Postgres) QuoteIdent(name string) string {
	return quoteParts(name, `"`, `"`)
}

func (Postgres) Placeholder(index int) string { return fmt.Sprintf("$%d", index) }

func (Postgres) BindTime(t time.Time) any { return t.UTC() }

func (Postgres) ListTablesQuery() string {
	return `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`
}

type SQLServer struct{}

func (SQLServer) DriverName() string { return "sqlserver" }

func (SQLServer) QuoteIdent(name string) string {
	return quoteParts(name, "[", "]")
}

func (SQLServer) Placeholder(index int) string { return fmt.Sprintf("@p%d", index) }

func (SQLServer) BindTime(t time.Time) any { return t.UTC() }

func (SQLServer) ListTablesQuery() string {
	return `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`
}

type Oracle struct{}

func (Oracle) DriverName() string { return "oracle" }

func (Oracle) QuoteIdent(name string) string {
	return quoteParts(name, `"`, `"`)
}

func (Oracle) Placeholder(index int) string { return fmt.Sprintf(":%d", index) }

func (Oracle) BindTime(t time.Time) any { return t.UTC() }

func (Oracle) ListTablesQuery() string {
	return `SELECT table_name FROM user_tables ORDER BY table_name`
}

// SQLite stores timestamps as text, so window bounds are bound in the same
// sortable layout the rows use.
type SQLite struct{}

func (SQLite) DriverName() string { return "sqlite" }

func (SQLite) QuoteIdent(name string) string {
	return quoteParts(name, `"`, `"`)
}

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) BindTime(t time.Time) any { return t.UTC().Format("2006-01-02 15:04:05") }

func (SQLite) ListTablesQuery() string {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
}

func quoteParts(name, open, close string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		p = strings.ReplaceAll(p, close, close+close)
		parts[i] = open + p + close
	}
	return strings.Join(parts, ".")
}
