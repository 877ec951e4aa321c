package database

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	go_ora "github.com/sijms/go-ora/v2"
)

// SourceParams is everything needed to reach the source database.
type SourceParams struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

var defaultPorts = map[string]int{
	"mysql":     3306,
	"postgres":  5432,
	"sqlserver": 1433,
	"oracle":    1521,
}

// BuildDSN renders a driver-specific connection string. Credentials are
// escaped by the driver's own formatter where one exists.
func BuildDSN(p SourceParams) (string, error) {
	d, err := GetDialect(p.Driver)
	if err != nil {
		return "", err
	}
	driver := d.DriverName()
	port := p.Port
	if port == 0 {
		port = defaultPorts[driver]
	}
	addr := net.JoinHostPort(p.Host, strconv.Itoa(port))

	switch driver {
	case "mysql":
		cfg := mysql.NewConfig()
		cfg.User = p.User
		cfg.Passwd = p.Password
		cfg.Net = "tcp"
		cfg.Addr = addr
		cfg.DBName = p.Database
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		cfg.Params = map[string]string{"charset": "utf8mb4"}
		return cfg.FormatDSN(), nil
	case "postgres":
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(p.User, p.Password),
			Host:     addr,
			Path:     "/" + p.Database,
			RawQuery: "sslmode=disable",
		}
		return u.String(), nil
	case "sqlserver":
		q := url.Values{}
		q.Set("database", p.Database)
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(p.User, p.Password),
			Host:     addr,
			RawQuery: q.Encode(),
		}
		return u.String(), nil
	case "oracle":
		return go_ora.BuildUrl(p.Host, port, p.Database, p.User, p.Password, nil), nil
	case "sqlite":
		if p.Database == "" {
			return "", fmt.Errorf("sqlite source requires a database path")
		}
		return p.Database, nil
	}
	return "", fmt.Errorf("no DSN builder for driver %q", driver)
}
