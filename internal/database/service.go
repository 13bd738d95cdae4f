package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	"github.com/lofcz/minfold/internal/errors"
	"github.com/lofcz/minfold/internal/logging"
)

// DatabaseService defines the interface for database operations
type DatabaseService interface {
	Connect(config DatabaseConfig) (*sql.DB, error)
	TestConnection(db *sql.DB) error
	Close(db *sql.DB) error
	GetVersion(db *sql.DB) (string, error)
}

// Service implements the DatabaseService interface
type Service struct {
	connectionTimeout time.Duration
	logger            *logging.Logger
	retryHandler      *errors.RetryHandler
}

// NewService creates a new database service with default settings
func NewService() *Service {
	return &Service{
		connectionTimeout: 30 * time.Second,
		logger:            logging.NewDefaultLogger(),
		retryHandler:      errors.NewDefaultRetryHandler(),
	}
}

// NewServiceWithLogger creates a new database service with a custom logger
func NewServiceWithLogger(logger *logging.Logger) *Service {
	return &Service{
		connectionTimeout: 30 * time.Second,
		logger:            logger,
		retryHandler:      errors.NewDefaultRetryHandler(),
	}
}

// Connect establishes a connection to the configured SQL Server database
func (s *Service) Connect(config DatabaseConfig) (*sql.DB, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeValidation,
			"invalid database configuration", err)
	}

	db, err := sql.Open("sqlserver", config.DSN())
	if err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeConnection,
			fmt.Sprintf("failed to open connection to %s:%d", config.Host, config.Port), err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), s.connectionTimeout)
	defer cancel()

	err = s.retryHandler.Retry(ctx, func() error {
		return db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		return nil, errors.WrapError(err,
			fmt.Sprintf("cannot reach %s:%d", config.Host, config.Port))
	}

	s.logger.WithFields(map[string]interface{}{
		"host":     config.Host,
		"port":     config.Port,
		"database": config.Database,
	}).Debug("Database connection established")

	return db, nil
}

// TestConnection verifies that the connection is alive
func (s *Service) TestConnection(db *sql.DB) error {
	if db == nil {
		return errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return errors.WrapError(err, "connection test failed")
	}
	return nil
}

// Close closes the database connection
func (s *Service) Close(db *sql.DB) error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return errors.WrapError(err, "failed to close database connection")
	}
	return nil
}

// GetVersion returns the SQL Server version string
func (s *Service) GetVersion(db *sql.DB) (string, error) {
	if db == nil {
		return "", errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.connectionTimeout)
	defer cancel()

	var version string
	if err := db.QueryRowContext(ctx, "SELECT @@VERSION").Scan(&version); err != nil {
		return "", errors.WrapError(err, "failed to query server version")
	}
	return version, nil
}
