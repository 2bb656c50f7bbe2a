package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bondline/skiptrace/internal/model"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured lookup providers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEngine(cmd.Context(), "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		formatProviders(os.Stdout, env.Service.Providers())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

// formatProviders writes a tabular provider list to w.
func formatProviders(out io.Writer, providers []model.Provider) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tLABEL\tTTL\tERROR_TTL\tFORCE\tDEFAULT")
	_, _ = fmt.Fprintln(w, "--\t-----\t---\t---------\t-----\t-------")
	for _, p := range providers {
		def := ""
		if p.Default {
			def = "*"
		}
		force := "no"
		if p.SupportsForce {
			force = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Label, p.TTL(), p.ErrorTTL(), force, def)
	}
	_ = w.Flush()
}
