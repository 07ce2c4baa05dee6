// Package commands assembles the entityctl cobra command tree.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/entropydb/entity/internal/config"
	"github.com/entropydb/entity/internal/xlog"
)

var (
	verbose bool
	dsn     string
)

var rootCmd = &cobra.Command{
	Use:   "entityctl",
	Short: "Schema synchronization and introspection for entity registries",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			xlog.Init(slog.LevelDebug, nil)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "database connection string (overrides config/env)")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(reflectCmd)
}

// loadConfig resolves config, letting the --dsn flag win over file/env.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dsn != "" {
		cfg.DSN = dsn
	}
	return cfg, nil
}
