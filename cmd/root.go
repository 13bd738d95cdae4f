package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lofcz/minfold/internal/application"
	"github.com/lofcz/minfold/internal/database"
	"github.com/lofcz/minfold/internal/logging"
	"github.com/lofcz/minfold/internal/storage"
)

var cfgFile string

// CLI flag variables
var (
	// Database flags
	dbHost     string
	dbPort     int
	dbUsername string
	dbPassword string
	dbName     string
	dbInstance string

	// Scratch database flags (replay target)
	scratchHost     string
	scratchPort     int
	scratchUsername string
	scratchPassword string
	scratchName     string

	// Operation flags
	migrationsDir string
	dryRun        bool
	verbose       bool
	quiet         bool
	autoApprove   bool
	timeout       time.Duration
	logFile       string
	noColor       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "minfold",
	Short: "Declarative schema migrations for SQL Server",
	Long: `Minfold compares the live database schema against the schema produced by
replaying the applied migrations, and generates idempotent, reversible SQL
scripts (up.sql and down.sql) that migrate one into the other.

Examples:
  # Generate a migration from the current schema drift
  minfold generate add_invoice_table --db-host=localhost --db-user=sa --db-name=shop

  # Apply pending migrations
  minfold apply --config=minfold.yaml

  # Roll back the last migration
  minfold rollback --steps=1 --config=minfold.yaml

  # Show applied and pending migrations
  minfold status --config=minfold.yaml`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./minfold.yaml)")

	rootCmd.PersistentFlags().StringVar(&dbHost, "db-host", "", "database host")
	rootCmd.PersistentFlags().IntVar(&dbPort, "db-port", 1433, "database port")
	rootCmd.PersistentFlags().StringVar(&dbUsername, "db-user", "", "database username")
	rootCmd.PersistentFlags().StringVar(&dbPassword, "db-password", "", "database password")
	rootCmd.PersistentFlags().StringVar(&dbName, "db-name", "", "database name")
	rootCmd.PersistentFlags().StringVar(&dbInstance, "db-instance", "", "named instance")

	rootCmd.PersistentFlags().StringVar(&scratchHost, "scratch-host", "", "scratch database host for target replay")
	rootCmd.PersistentFlags().IntVar(&scratchPort, "scratch-port", 1433, "scratch database port")
	rootCmd.PersistentFlags().StringVar(&scratchUsername, "scratch-user", "", "scratch database username")
	rootCmd.PersistentFlags().StringVar(&scratchPassword, "scratch-password", "", "scratch database password")
	rootCmd.PersistentFlags().StringVar(&scratchName, "scratch-name", "", "scratch database name")

	rootCmd.PersistentFlags().StringVar(&migrationsDir, "migrations-dir", "migrations", "migration folder root")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "show changes without writing or executing anything")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&autoApprove, "auto-approve", false, "skip interactive confirmations")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall operation timeout")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	viper.BindPFlag("database.host", rootCmd.PersistentFlags().Lookup("db-host"))
	viper.BindPFlag("database.port", rootCmd.PersistentFlags().Lookup("db-port"))
	viper.BindPFlag("database.username", rootCmd.PersistentFlags().Lookup("db-user"))
	viper.BindPFlag("database.password", rootCmd.PersistentFlags().Lookup("db-password"))
	viper.BindPFlag("database.database", rootCmd.PersistentFlags().Lookup("db-name"))
	viper.BindPFlag("database.instance", rootCmd.PersistentFlags().Lookup("db-instance"))
	viper.BindPFlag("scratch_database.host", rootCmd.PersistentFlags().Lookup("scratch-host"))
	viper.BindPFlag("scratch_database.port", rootCmd.PersistentFlags().Lookup("scratch-port"))
	viper.BindPFlag("scratch_database.username", rootCmd.PersistentFlags().Lookup("scratch-user"))
	viper.BindPFlag("scratch_database.password", rootCmd.PersistentFlags().Lookup("scratch-password"))
	viper.BindPFlag("scratch_database.database", rootCmd.PersistentFlags().Lookup("scratch-name"))
	viper.BindPFlag("migrations_dir", rootCmd.PersistentFlags().Lookup("migrations-dir"))
	viper.BindPFlag("dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))
	viper.BindPFlag("auto_approve", rootCmd.PersistentFlags().Lookup("auto-approve"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("minfold")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MINFOLD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// buildApplication assembles the application config from flags, config
// file and environment.
func buildApplication() (*application.Application, error) {
	logLevel := logging.LogLevelNormal
	if verbose {
		logLevel = logging.LogLevelVerbose
	}
	if quiet {
		logLevel = logging.LogLevelQuiet
	}

	config := application.Config{
		DB: database.DatabaseConfig{
			Host:     viper.GetString("database.host"),
			Port:     viper.GetInt("database.port"),
			Username: viper.GetString("database.username"),
			Password: viper.GetString("database.password"),
			Database: viper.GetString("database.database"),
			Instance: viper.GetString("database.instance"),
			Timeout:  timeout,
		},
		ScratchDB: database.DatabaseConfig{
			Host:     viper.GetString("scratch_database.host"),
			Port:     viper.GetInt("scratch_database.port"),
			Username: viper.GetString("scratch_database.username"),
			Password: viper.GetString("scratch_database.password"),
			Database: viper.GetString("scratch_database.database"),
			Timeout:  timeout,
		},
		MigrationsDir: viper.GetString("migrations_dir"),
		DryRun:        viper.GetBool("dry_run"),
		AutoApprove:   viper.GetBool("auto_approve"),
		NoColor:       noColor,
		LogLevel:      logLevel,
		LogFile:       logFile,
	}

	if viper.IsSet("archive.provider") {
		archive := &storage.Config{}
		if err := viper.UnmarshalKey("archive", archive); err != nil {
			return nil, fmt.Errorf("invalid archive configuration: %w", err)
		}
		config.Archive = archive
	}

	return application.New(config)
}
