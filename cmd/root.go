package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"relstore/internal/logging"
	"relstore/internal/schema"
	"relstore/internal/store"
)

// Version is set at build time with -ldflags "-X relstore/cmd.Version=...".
var Version = "dev"

var (
	cfgFile    string
	dsn        string
	driverName string

	// Set by RootCmd.PersistentPreRunE for the subcommands.
	Store   *store.Store
	Catalog *schema.Catalog
	Logger  *slog.Logger
	Target  *DBConfig
)

var RootCmd = &cobra.Command{
	Use:   "relstore",
	Short: "Relational storage layer: schema migration, queries and test data",
	Long: `
relstore keeps the tables of a relational backend in line with a schema
catalog and gives scripts the same query verbs the application uses.
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var logCfg logging.Config
		if err := viper.UnmarshalKey("logging", &logCfg); err != nil {
			return fmt.Errorf("failed to parse logging config: %w", err)
		}
		Logger = logging.New(logCfg, Version)
		slog.SetDefault(Logger)

		if path := viper.GetString("settings.catalog"); path != "" {
			c, err := schema.LoadCatalog(path)
			if err != nil {
				return err
			}
			Catalog = c
		}

		cfg, err := resolveDBConfig()
		if err != nil {
			return err
		}
		Target = cfg

		opts := store.Options{Driver: cfg.Driver, DSN: cfg.DSN, Logger: Logger}
		if Catalog != nil {
			opts.Tables = Catalog.Names()
		}
		Store, err = store.Open(opts)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", cfg.Name, err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return nil
		}
		return Store.Close()
	},
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./relstore.yaml)")
	RootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Database Source Name (DSN), bypasses the databases list")
	RootCmd.PersistentFlags().StringVar(&driverName, "driver", "", "database/sql driver for --dsn (detected from the DSN if empty)")
	RootCmd.PersistentFlags().String("catalog", "", "schema catalog file")

	viper.BindPFlag("settings.catalog", RootCmd.PersistentFlags().Lookup("catalog"))
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// 1. Executable Directory (Priority 1)
		if ex, err := os.Executable(); err == nil {
			viper.AddConfigPath(filepath.Dir(ex))
		}
		// 2. Current Directory (Priority 2)
		viper.AddConfigPath(".")

		viper.SetConfigName("relstore")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// requireCatalog is for commands that walk the catalog tables.
func requireCatalog() error {
	if Catalog == nil {
		return fmt.Errorf("no schema catalog loaded (set settings.catalog or --catalog)")
	}
	return nil
}
