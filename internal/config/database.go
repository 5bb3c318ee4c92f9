package config

import (
	"fmt"
	"time"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite3"
	// DriverMemory keeps records in process. Single instance only.
	DriverMemory = "memory"
)

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// GetConnectionString returns the data source name handed to the driver
func (c *DatabaseConfig) GetConnectionString() string {
	return c.URL
}

// Validate checks the driver is supported and a URL is set
func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case DriverMemory:
		return nil
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
	if c.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	return nil
}
