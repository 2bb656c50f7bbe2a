package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check configuration, store connectivity, and provider wiring",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEngine(cmd.Context(), "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "store\t%s (connected, migrated)\n", cfg.Store.Driver)
		_, _ = fmt.Fprintf(w, "cache size\t%d records\n", cfg.Cache.Size)
		_, _ = fmt.Fprintf(w, "match threshold\t%.2f\n", cfg.Enrichment.MatchThreshold)
		_, _ = fmt.Fprintf(w, "party cooldown\t%s\n", cfg.Enrichment.Cooldown())
		_, _ = fmt.Fprintf(w, "provider timeout\t%s\n", cfg.Enrichment.ProviderTimeout())
		_, _ = fmt.Fprintf(w, "providers\t%d configured\n", len(env.Registry.IDs()))
		_ = w.Flush()

		fmt.Println()
		formatProviders(os.Stdout, env.Service.Providers())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
