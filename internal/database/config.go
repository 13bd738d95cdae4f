package database

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// DatabaseConfig holds the configuration parameters for a SQL Server
// connection.
type DatabaseConfig struct {
	Host     string        `mapstructure:"host" yaml:"host"`
	Port     int           `mapstructure:"port" yaml:"port"`
	Username string        `mapstructure:"username" yaml:"username"`
	Password string        `mapstructure:"password" yaml:"password"`
	Database string        `mapstructure:"database" yaml:"database"`
	Instance string        `mapstructure:"instance" yaml:"instance"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// CLIConfig holds the complete CLI configuration.
type CLIConfig struct {
	DB            DatabaseConfig `mapstructure:"database" yaml:"database"`
	ScratchDB     DatabaseConfig `mapstructure:"scratch_database" yaml:"scratch_database"`
	MigrationsDir string         `mapstructure:"migrations_dir" yaml:"migrations_dir"`
	DryRun        bool           `mapstructure:"dry_run" yaml:"dry_run"`
	Verbose       bool           `mapstructure:"verbose" yaml:"verbose"`
	AutoApprove   bool           `mapstructure:"auto_approve" yaml:"auto_approve"`
}

// Validate checks if the database configuration has all required parameters.
func (dc *DatabaseConfig) Validate() error {
	var errs []error

	if dc.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}

	if dc.Port <= 0 || dc.Port > 65535 {
		errs = append(errs, errors.New("port must be between 1 and 65535"))
	}

	if dc.Username == "" {
		errs = append(errs, errors.New("username is required"))
	}

	if dc.Database == "" {
		errs = append(errs, errors.New("database name is required"))
	}

	if dc.Timeout <= 0 {
		dc.Timeout = 30 * time.Second // Set default timeout
	}

	if len(errs) > 0 {
		return fmt.Errorf("database configuration validation failed: %v", errs)
	}

	return nil
}

// DSN returns the sqlserver:// connection URL for the go-mssqldb driver.
func (dc *DatabaseConfig) DSN() string {
	query := url.Values{}
	query.Set("database", dc.Database)
	query.Set("dial timeout", fmt.Sprintf("%d", int(dc.Timeout.Seconds())))

	host := fmt.Sprintf("%s:%d", dc.Host, dc.Port)
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(dc.Username, dc.Password),
		Host:     host,
		RawQuery: query.Encode(),
	}
	if dc.Instance != "" {
		u.Path = dc.Instance
	}
	return u.String()
}

// Validate checks if the CLI configuration is valid.
func (cc *CLIConfig) Validate() error {
	if err := cc.DB.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if cc.MigrationsDir == "" {
		return errors.New("migrations directory is required")
	}
	return nil
}

// SetDefaults sets default values for the configuration.
func (cc *CLIConfig) SetDefaults() {
	if cc.DB.Port == 0 {
		cc.DB.Port = 1433
	}
	if cc.ScratchDB.Port == 0 {
		cc.ScratchDB.Port = 1433
	}
	if cc.DB.Timeout == 0 {
		cc.DB.Timeout = 30 * time.Second
	}
	if cc.ScratchDB.Timeout == 0 {
		cc.ScratchDB.Timeout = 30 * time.Second
	}
	if cc.MigrationsDir == "" {
		cc.MigrationsDir = "migrations"
	}
}
