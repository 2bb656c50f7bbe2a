package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bondline/skiptrace/internal/enrich"
	"github.com/bondline/skiptrace/internal/model"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run and inspect provider enrichment for a subject",
}

// -- enrich run --

var enrichRunCmd = &cobra.Command{
	Use:   "run <subject-id>",
	Short: "Run a provider search for a subject (served from cache while fresh)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		providerID, _ := cmd.Flags().GetString("provider")
		force, _ := cmd.Flags().GetBool("force")

		rec, err := env.Service.RunEnrichment(ctx, actorFromFlags(cmd), args[0], providerID, enrich.RunOptions{Force: force})
		if err != nil {
			// A failed run may still carry the cached error record.
			if rec != nil {
				formatRecord(os.Stdout, rec, env.Service.State(rec))
			}
			return err
		}

		formatRecord(os.Stdout, rec, env.Service.State(rec))
		return nil
	},
}

// -- enrich get --

var enrichGetCmd = &cobra.Command{
	Use:   "get <subject-id>",
	Short: "Show the current record for a subject without triggering a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		providerID, _ := cmd.Flags().GetString("provider")
		asJSON, _ := cmd.Flags().GetBool("json")

		view, err := env.Service.GetEnrichment(ctx, args[0], providerID)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		}
		if view.Enrichment == nil {
			fmt.Printf("No enrichment record for %s yet. Run `skiptrace enrich run %s` to pull one.\n", args[0], args[0])
			return nil
		}
		formatRecord(os.Stdout, view.Enrichment, env.Service.State(view.Enrichment))
		if view.NextRefreshAt != nil {
			fmt.Printf("Cached: %t (next refresh %s)\n", view.Cached, view.NextRefreshAt.Format(time.RFC3339))
		}
		return nil
	},
}

// -- enrich select --

var enrichSelectCmd = &cobra.Command{
	Use:   "select <subject-id> <record-id>",
	Short: "Mark a candidate as the confirmed match and promote its contacts",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		providerID, _ := cmd.Flags().GetString("provider")

		rec, err := env.Service.SelectCandidate(ctx, actorFromFlags(cmd), args[0], providerID, args[1])
		if err != nil {
			return err
		}

		fmt.Printf("Selected %s (%d candidate(s) selected on record %s)\n",
			args[1], len(rec.SelectedRecords), rec.ID)
		return nil
	},
}

func init() {
	enrichRunCmd.Flags().String("provider", "", "provider id (default provider when empty)")
	enrichRunCmd.Flags().Bool("force", false, "force a refresh past a fresh record (admin + force-capable provider)")
	addActorFlags(enrichRunCmd)

	enrichGetCmd.Flags().String("provider", "", "provider id (default provider when empty)")
	enrichGetCmd.Flags().Bool("json", false, "emit the full record as JSON")

	enrichSelectCmd.Flags().String("provider", "", "provider id (default provider when empty)")
	addActorFlags(enrichSelectCmd)

	enrichCmd.AddCommand(enrichRunCmd)
	enrichCmd.AddCommand(enrichGetCmd)
	enrichCmd.AddCommand(enrichSelectCmd)
	rootCmd.AddCommand(enrichCmd)
}

// formatRecord writes a record summary and its candidate table to w.
func formatRecord(out io.Writer, rec *model.EnrichmentRecord, state enrich.RecordState) {
	fmt.Fprintf(out, "Record %s  provider=%s  status=%s  state=%s  requested=%s  expires=%s\n",
		rec.ID, rec.ProviderID, rec.Status, state,
		rec.RequestedAt.Format("2006-01-02 15:04"),
		rec.ExpiresAt.Format("2006-01-02 15:04"),
	)
	if rec.Error != nil {
		fmt.Fprintf(out, "Error: %s\n", rec.Error.Message)
		return
	}

	selected := make(map[string]bool, len(rec.SelectedRecords))
	for _, id := range rec.SelectedRecords {
		selected[id] = true
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RECORD\tNAME\tSCORE\tCONTACTS\tADDRESSES\tRELATIVES\tSELECTED")
	for _, c := range rec.Candidates {
		scoreStr := "-"
		if c.Score != nil {
			scoreStr = fmt.Sprintf("%.2f", *c.Score)
		}
		sel := ""
		if selected[c.RecordID] {
			sel = "*"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			c.RecordID, c.FullName, scoreStr, len(c.Contacts), len(c.Addresses), len(c.Relatives), sel)
	}
	_ = w.Flush()
}
