package application

import (
	"testing"
	"time"

	"github.com/lofcz/minfold/internal/database"
	"github.com/lofcz/minfold/internal/logging"
	"github.com/lofcz/minfold/internal/schema"
	"github.com/lofcz/minfold/internal/storage"
)

func validAppConfig() Config {
	return Config{
		DB: database.DatabaseConfig{
			Host:     "localhost",
			Port:     1433,
			Username: "sa",
			Password: "pass",
			Database: "shop",
			Timeout:  30 * time.Second,
		},
		MigrationsDir: "migrations",
		DryRun:        true,
		LogLevel:      logging.LogLevelQuiet,
	}
}

func TestNew(t *testing.T) {
	app, err := New(validAppConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if app == nil {
		t.Fatal("New() returned nil")
	}
	if app.logger == nil {
		t.Error("Expected logger to be initialized")
	}
	if app.dbService == nil {
		t.Error("Expected database service to be initialized")
	}
	if app.loader == nil {
		t.Error("Expected loader to be initialized")
	}
	if app.generator == nil {
		t.Error("Expected generator to be initialized")
	}
	if app.writer == nil {
		t.Error("Expected writer to be initialized")
	}
	if app.executor == nil {
		t.Error("Expected executor to be initialized")
	}
	if app.display == nil {
		t.Error("Expected display service to be initialized")
	}
	if app.confirmer == nil {
		t.Error("Expected confirmer to be initialized")
	}
	if app.archive != nil {
		t.Error("Expected no archive manager without archive configuration")
	}
}

func TestNew_LogLevels(t *testing.T) {
	tests := []struct {
		name     string
		level    logging.LogLevel
		expected logging.LogLevel
	}{
		{"normal level", logging.LogLevelNormal, logging.LogLevelNormal},
		{"verbose level", logging.LogLevelVerbose, logging.LogLevelVerbose},
		{"quiet level", logging.LogLevelQuiet, logging.LogLevelQuiet},
		{"debug level", logging.LogLevelDebug, logging.LogLevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validAppConfig()
			config.LogLevel = tt.level

			app, err := New(config)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			if app.logger.GetLevel() != tt.expected {
				t.Errorf("Expected log level %v, got %v", tt.expected, app.logger.GetLevel())
			}
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	missingHost := validAppConfig()
	missingHost.DB.Host = ""
	if app, err := New(missingHost); err == nil || app != nil {
		t.Error("Expected nil application and an error for a config without a host")
	}

	missingDir := validAppConfig()
	missingDir.MigrationsDir = ""
	if app, err := New(missingDir); err == nil || app != nil {
		t.Error("Expected nil application and an error without a migrations directory")
	}
}

func TestNew_ArchiveManager(t *testing.T) {
	config := validAppConfig()
	config.Archive = &storage.Config{
		Provider: storage.ProviderLocal,
		Path:     t.TempDir(),
	}

	app, err := New(config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if app.archive == nil {
		t.Error("Expected archive manager when archive storage is configured")
	}
}

func TestNew_InvalidArchiveConfig(t *testing.T) {
	config := validAppConfig()
	config.Archive = &storage.Config{Provider: "ftp"}

	if app, err := New(config); err == nil || app != nil {
		t.Error("Expected nil application and an error for an unsupported archive provider")
	}
}

func TestDiffFor(t *testing.T) {
	app, err := New(validAppConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	current := schema.NewDatabase("shop")
	target := schema.NewDatabase("shop")
	users := schema.NewTable("users")
	users.Columns[schema.Key("id")] = &schema.Column{
		Name: "id", OrdinalPosition: 1, Type: schema.NewSqlType(schema.TypeInt), IsPrimaryKey: true,
	}
	target.Tables[schema.Key("users")] = users

	diff := app.diffFor(current, target)
	if len(diff.AddedTables) != 1 || diff.AddedTables[0].Name != "users" {
		t.Errorf("expected users to be reported as added, got %v", diff.AddedTables)
	}

	if !app.diffFor(current, current).IsEmpty() {
		t.Error("identical snapshots must produce an empty diff")
	}
}
