package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type DBConfig struct {
	Name   string `mapstructure:"name"`
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Active bool   `mapstructure:"active"`
}

// GetActiveDBConfig returns the currently active database configuration.
func GetActiveDBConfig() (*DBConfig, error) {
	var configs []DBConfig

	if err := viper.UnmarshalKey("databases", &configs); err != nil {
		return nil, fmt.Errorf("failed to parse databases config: %w", err)
	}

	var activeConfig *DBConfig
	count := 0

	for i := range configs {
		if configs[i].Active {
			activeConfig = &configs[i]
			count++
		}
	}

	if count == 0 {
		return nil, fmt.Errorf("no active database found in config (set active: true)")
	}
	if count > 1 {
		return nil, fmt.Errorf("multiple active databases found (only one can be active)")
	}
	if activeConfig.Driver == "" {
		activeConfig.Driver = detectDriver(activeConfig.DSN)
	}

	return activeConfig, nil
}

// resolveDBConfig prefers the --dsn/--driver flags over the databases list.
func resolveDBConfig() (*DBConfig, error) {
	if dsn == "" {
		return GetActiveDBConfig()
	}
	driver := driverName
	if driver == "" {
		driver = detectDriver(dsn)
	}
	return &DBConfig{Name: "command line", Driver: driver, DSN: dsn, Active: true}, nil
}

// detectDriver guesses the driver from the shape of a DSN, falling back to
// mysql.
func detectDriver(connStr string) string {
	lower := strings.ToLower(connStr)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"),
		strings.Contains(lower, "sslmode"):
		return "postgres"
	case strings.HasPrefix(lower, "sqlserver://"):
		return "sqlserver"
	case strings.HasPrefix(lower, "oracle://"):
		return "oracle"
	case strings.HasSuffix(lower, ".duckdb"):
		return "duckdb"
	case strings.HasPrefix(lower, "file:"), strings.HasSuffix(lower, ".db"),
		strings.HasSuffix(lower, ".sqlite"), lower == ":memory:":
		return "sqlite3"
	}
	return "mysql"
}
