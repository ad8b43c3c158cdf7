package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// DatabaseDriver represents the type of database engine.
type DatabaseDriver string

const (
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverMongoDB  DatabaseDriver = "mongodb"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
)

// IsRelational reports whether the driver is queried with SQL.
func (d DatabaseDriver) IsRelational() bool {
	switch d {
	case DatabaseDriverMySQL, DatabaseDriverPostgres, DatabaseDriverSQLite:
		return true
	}
	return false
}

// ParseDatabaseDriver validates a driver name, ignoring case and surrounding space.
func ParseDatabaseDriver(s string) (DatabaseDriver, error) {
	switch d := DatabaseDriver(strings.ToLower(strings.TrimSpace(s))); d {
	case DatabaseDriverMySQL, DatabaseDriverPostgres, DatabaseDriverMongoDB, DatabaseDriverSQLite:
		return d, nil
	}
	return "", fmt.Errorf("unsupported driver: %q", s)
}

// DatabaseConnection holds the metadata for connecting to an external database.
// The password is resolved separately through a secret.SecretStore.
type DatabaseConnection struct {
	Name     string            `mapstructure:"name" json:"name"`
	Driver   DatabaseDriver    `mapstructure:"driver" json:"driver"`
	Host     string            `mapstructure:"host" json:"host"`         // hostname, full URI (mongodb) or file path (sqlite)
	Port     int               `mapstructure:"port" json:"port"`         // 0 selects the driver default
	Database string            `mapstructure:"database" json:"database"` // db name, empty for sqlite
	Username string            `mapstructure:"username" json:"username"`
	SSLMode  string            `mapstructure:"ssl_mode" json:"sslMode"`
	Extra    map[string]string `mapstructure:"extra" json:"extra"` // driver-specific options
}

// Endpoint returns a loggable host:port/database string without credentials.
func (c *DatabaseConnection) Endpoint() string {
	if c.Driver == DatabaseDriverSQLite {
		return c.Host
	}
	if strings.Contains(c.Host, "://") {
		if u, err := url.Parse(c.Host); err == nil {
			return u.Redacted()
		}
		return "<unparseable uri>"
	}
	if c.Port == 0 {
		return fmt.Sprintf("%s/%s", c.Host, c.Database)
	}
	return fmt.Sprintf("%s:%d/%s", c.Host, c.Port, c.Database)
}
