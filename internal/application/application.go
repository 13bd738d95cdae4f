// Package application wires the pipeline together: introspect the live
// database, reconstruct the target snapshot by replaying applied
// migrations on a scratch database, diff, generate and persist scripts,
// and drive apply/rollback through the history table.
package application

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lofcz/minfold/internal/confirmation"
	"github.com/lofcz/minfold/internal/database"
	"github.com/lofcz/minfold/internal/display"
	"github.com/lofcz/minfold/internal/errors"
	"github.com/lofcz/minfold/internal/execution"
	"github.com/lofcz/minfold/internal/history"
	"github.com/lofcz/minfold/internal/logging"
	"github.com/lofcz/minfold/internal/migration"
	"github.com/lofcz/minfold/internal/schema"
	"github.com/lofcz/minfold/internal/storage"
)

// Config holds the application configuration.
type Config struct {
	DB            database.DatabaseConfig
	ScratchDB     database.DatabaseConfig
	MigrationsDir string
	DryRun        bool
	AutoApprove   bool
	NoColor       bool
	LogLevel      logging.LogLevel
	LogFile       string
	Archive       *storage.Config
}

// Application is the wired pipeline.
type Application struct {
	config    Config
	logger    *logging.Logger
	dbService *database.Service
	loader    *schema.Loader
	generator *migration.Generator
	writer    *migration.Writer
	executor  *execution.Executor
	display   *display.Service
	confirmer *confirmation.Confirmer
	archive   *storage.Manager
}

// New creates an application from configuration.
func New(config Config) (*Application, error) {
	if err := config.DB.Validate(); err != nil {
		return nil, fmt.Errorf("database configuration: %w", err)
	}
	if config.MigrationsDir == "" {
		return nil, fmt.Errorf("migrations directory is required")
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:      config.LogLevel,
		Format:     "text",
		ShowCaller: config.LogLevel == logging.LogLevelDebug,
		LogFile:    config.LogFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &Application{
		config:    config,
		logger:    logger,
		dbService: database.NewServiceWithLogger(logger),
		loader:    schema.NewLoader(),
		generator: migration.NewGeneratorWithLogger(logger),
		writer:    migration.NewWriter(config.MigrationsDir),
		executor:  execution.NewExecutorWithLogger(logger),
		display:   display.NewService(display.Options{NoColor: config.NoColor}),
		confirmer: confirmation.NewConfirmer(config.AutoApprove),
	}

	if config.Archive != nil && config.Archive.Provider != "" {
		manager, err := storage.NewManager(*config.Archive, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to configure archive storage: %w", err)
		}
		app.archive = manager
	}

	return app, nil
}

// Generate introspects the live database, replays the applied migrations
// into the target snapshot, and writes the up/down pair for the
// difference.
func (a *Application) Generate(ctx context.Context, name string) error {
	startTime := time.Now()

	db, err := a.dbService.Connect(a.config.DB)
	if err != nil {
		return err
	}
	defer a.dbService.Close(db)

	live, err := a.loader.Load(db, a.config.DB.Database)
	if err != nil {
		return errors.NewAppError(errors.ErrorTypeLoader, "failed to introspect live database", err)
	}

	store := history.NewStore(db)
	if err := store.Ensure(ctx); err != nil {
		return err
	}
	applied, err := store.Applied(ctx)
	if err != nil {
		return err
	}

	replayed, err := a.replayTarget(ctx, applied)
	if err != nil {
		return err
	}

	m, err := a.generator.GenerateMigration(name, replayed, live)
	if errors.IsNoChanges(err) {
		a.display.Info("No changes to migrate")
		return nil
	}
	if err != nil {
		return err
	}

	a.display.DiffSummary(a.diffFor(replayed, live))

	if a.config.DryRun {
		a.display.Info("Dry run, scripts not written")
		fmt.Println(m.Up.Render())
		return nil
	}

	dir, err := a.writer.Write(m)
	if err != nil {
		return err
	}
	a.display.Success(fmt.Sprintf("Migration written to %s (%.2fs)",
		dir, time.Since(startTime).Seconds()))

	if a.archive != nil {
		id, err := a.archive.ArchiveMigration(ctx, dir)
		if err != nil {
			return err
		}
		a.display.Info(fmt.Sprintf("Migration archived as %s", id))
	}

	return nil
}

func (a *Application) diffFor(current, target *schema.Database) *schema.SchemaDiff {
	return schema.NewDifferWithLogger(a.logger).Diff(current, target)
}

// replayTarget rebuilds the target snapshot by executing the applied
// migrations, in order, against the scratch database and introspecting
// the result. With nothing applied the target is empty and no scratch
// database is needed.
func (a *Application) replayTarget(ctx context.Context, applied []history.Record) (*schema.Database, error) {
	if len(applied) == 0 {
		return schema.NewDatabase(a.config.DB.Database), nil
	}
	if a.config.ScratchDB.Host == "" {
		return nil, errors.NewAppError(errors.ErrorTypeValidation,
			"a scratch database is required to replay applied migrations", nil)
	}

	scratch, err := a.dbService.Connect(a.config.ScratchDB)
	if err != nil {
		return nil, err
	}
	defer a.dbService.Close(scratch)

	for _, record := range applied {
		path := filepath.Join(a.config.MigrationsDir, record.MigrationName, "up.sql")
		script, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.NewAppError(errors.ErrorTypeIO,
				fmt.Sprintf("cannot read applied migration %s", record.MigrationName), err)
		}
		if _, err := a.executor.Apply(ctx, scratch, string(script)); err != nil {
			return nil, errors.WrapError(err,
				fmt.Sprintf("failed to replay migration %s", record.MigrationName))
		}
	}

	replayed, err := a.loader.Load(scratch, a.config.ScratchDB.Database)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeLoader,
			"failed to introspect scratch database after replay", err)
	}
	return replayed, nil
}

// Apply runs every pending migration's up script in name order.
func (a *Application) Apply(ctx context.Context) error {
	db, err := a.dbService.Connect(a.config.DB)
	if err != nil {
		return err
	}
	defer a.dbService.Close(db)

	store := history.NewStore(db)
	if err := store.Ensure(ctx); err != nil {
		return err
	}

	pending, err := a.pendingMigrations(ctx, store)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		a.display.Success("Database is up to date")
		return nil
	}

	a.display.Info(fmt.Sprintf("%d pending migration(s)", len(pending)))
	approved, err := a.confirmer.Confirm(fmt.Sprintf("Apply %d migration(s)?", len(pending)))
	if err != nil {
		return err
	}
	if !approved {
		a.display.Warning("Aborted")
		return nil
	}

	for _, name := range pending {
		path := filepath.Join(a.config.MigrationsDir, name, "up.sql")
		script, err := os.ReadFile(path)
		if err != nil {
			return errors.NewAppError(errors.ErrorTypeIO,
				fmt.Sprintf("cannot read migration %s", name), err)
		}

		if a.config.DryRun {
			a.display.Info(fmt.Sprintf("Would apply %s", name))
			continue
		}

		startTime := time.Now()
		batches, err := a.executor.Apply(ctx, db, string(script))
		if err != nil {
			return errors.WrapError(err, fmt.Sprintf("failed to apply migration %s", name))
		}
		if err := store.MarkApplied(ctx, name); err != nil {
			return err
		}
		a.logger.LogMigrationApplied(name, batches, time.Since(startTime))
		a.display.Success(fmt.Sprintf("Applied %s", name))
	}
	return nil
}

// Rollback reverts the most recent applied migrations, newest first.
func (a *Application) Rollback(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}

	db, err := a.dbService.Connect(a.config.DB)
	if err != nil {
		return err
	}
	defer a.dbService.Close(db)

	store := history.NewStore(db)
	if err := store.Ensure(ctx); err != nil {
		return err
	}
	applied, err := store.Applied(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		a.display.Info("Nothing to roll back")
		return nil
	}
	if steps > len(applied) {
		steps = len(applied)
	}

	targets := applied[len(applied)-steps:]
	approved, err := a.confirmer.Confirm(fmt.Sprintf("Roll back %d migration(s)?", len(targets)))
	if err != nil {
		return err
	}
	if !approved {
		a.display.Warning("Aborted")
		return nil
	}

	for i := len(targets) - 1; i >= 0; i-- {
		name := targets[i].MigrationName
		path := filepath.Join(a.config.MigrationsDir, name, "down.sql")
		script, err := os.ReadFile(path)
		if err != nil {
			return errors.NewAppError(errors.ErrorTypeIO,
				fmt.Sprintf("cannot read down script for %s", name), err)
		}

		if a.config.DryRun {
			a.display.Info(fmt.Sprintf("Would roll back %s", name))
			continue
		}

		if _, err := a.executor.Apply(ctx, db, string(script)); err != nil {
			return errors.WrapError(err, fmt.Sprintf("failed to roll back migration %s", name))
		}
		if err := store.MarkReverted(ctx, name); err != nil {
			return err
		}
		a.display.Success(fmt.Sprintf("Rolled back %s", name))
	}
	return nil
}

// Status prints the applied and pending migrations.
func (a *Application) Status(ctx context.Context) error {
	db, err := a.dbService.Connect(a.config.DB)
	if err != nil {
		return err
	}
	defer a.dbService.Close(db)

	store := history.NewStore(db)
	if err := store.Ensure(ctx); err != nil {
		return err
	}
	applied, err := store.Applied(ctx)
	if err != nil {
		return err
	}
	for _, record := range applied {
		a.display.Success(fmt.Sprintf("  applied  %s (%s)",
			record.MigrationName, record.AppliedAt.Format(time.RFC3339)))
	}

	pending, err := a.pendingMigrations(ctx, store)
	if err != nil {
		return err
	}
	for _, name := range pending {
		a.display.Warning(fmt.Sprintf("  pending  %s", name))
	}
	if len(applied) == 0 && len(pending) == 0 {
		a.display.Info("No migrations found")
	}
	return nil
}

// pendingMigrations lists migration folders not yet in the history table,
// sorted by name.
func (a *Application) pendingMigrations(ctx context.Context, store *history.Store) ([]string, error) {
	entries, err := os.ReadDir(a.config.MigrationsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewAppError(errors.ErrorTypeIO,
			fmt.Sprintf("cannot list migrations directory %s", a.config.MigrationsDir), err)
	}

	var pending []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		applied, err := store.IsApplied(ctx, entry.Name())
		if err != nil {
			return nil, err
		}
		if !applied {
			pending = append(pending, entry.Name())
		}
	}
	sort.Strings(pending)
	return pending, nil
}
