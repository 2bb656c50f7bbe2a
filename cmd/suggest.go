package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bondline/skiptrace/internal/model"
	"github.com/bondline/skiptrace/internal/suggest"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Show and apply merged contact suggestions for a subject",
}

// -- suggest show --

var suggestShowCmd = &cobra.Command{
	Use:   "show <subject-id>",
	Short: "Show the merged suggestion per CRM field with provenance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		set, err := env.Service.Suggestions(ctx, args[0])
		if err != nil {
			return err
		}

		formatSuggestions(os.Stdout, set)
		return nil
	},
}

// -- suggest apply --

var suggestApplyCmd = &cobra.Command{
	Use:   "apply <subject-id> <field>",
	Short: "Write the winning suggestion into the case record",
	Long:  "Applies the suggestion for a field (phone, email, address) to the case record. Suggestions sourced from a related party describe a different person and require --confirm.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		confirm, _ := cmd.Flags().GetBool("confirm")

		sug, err := env.Service.ApplySuggestion(ctx, actorFromFlags(cmd), args[0], model.FactKind(args[1]), confirm)
		if err != nil {
			return err
		}

		fmt.Printf("Applied %s = %q (sources: %s)\n", sug.Field, sug.Value, sug.Sources)
		return nil
	},
}

func init() {
	suggestApplyCmd.Flags().Bool("confirm", false, "acknowledge applying a value sourced from a related party")
	addActorFlags(suggestApplyCmd)

	suggestCmd.AddCommand(suggestShowCmd)
	suggestCmd.AddCommand(suggestApplyCmd)
	rootCmd.AddCommand(suggestCmd)
}

// formatSuggestions writes the per-field suggestion table to w.
func formatSuggestions(out io.Writer, set suggest.Set) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FIELD\tVALUE\tSOURCES")
	for _, s := range []*model.Suggestion{set.Phone, set.Email, set.Address} {
		if s == nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", s.Field, s.Value, s.Sources)
	}
	_ = w.Flush()
}
