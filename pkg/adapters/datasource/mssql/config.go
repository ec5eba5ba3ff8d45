package mssql

import (
	"fmt"

	"github.com/ksandersbbb5/crm-query-assistant/pkg/adapters/datasource"
)

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string

	// Connection options
	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromConfig builds an adapter config from shared connection settings,
// applying SQL Server defaults for unset fields.
func FromConfig(shared *datasource.Config) *Config {
	cfg := &Config{
		Host:                   shared.Host,
		Port:                   shared.Port,
		Database:               shared.Database,
		Username:               shared.Username,
		Password:               shared.Password,
		Encrypt:                shared.Encrypt,
		TrustServerCertificate: shared.TrustServerCertificate,
		ConnectionTimeout:      shared.ConnectionTimeout,
	}

	if cfg.Port == 0 {
		cfg.Port = DefaultPort()
	}
	if cfg.ConnectionTimeout == 0 {
		cfg.ConnectionTimeout = DefaultConnectionTimeout()
	}

	return cfg
}

// Validate checks if the config has all required fields.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	return nil
}
