package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bondline/skiptrace/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "skiptrace",
	Short: "Skip-trace enrichment engine for bail case files",
	Long:  "Runs lookup-provider searches for case subjects, tracks related parties under cooldown, and merges contact suggestions back into the case record.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
