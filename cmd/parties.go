package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bondline/skiptrace/internal/enrich"
	"github.com/bondline/skiptrace/internal/model"
	"github.com/bondline/skiptrace/internal/suggest"
)

var partiesCmd = &cobra.Command{
	Use:   "parties",
	Short: "Inspect and refresh a subject's related parties",
}

// -- parties list --

var partiesListCmd = &cobra.Command{
	Use:   "list <subject-id>",
	Short: "List related parties with audit and cooldown state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		order, _ := cmd.Flags().GetString("order")

		parties, err := env.Service.Parties(ctx, args[0], suggest.Order(order))
		if err != nil {
			return err
		}
		if len(parties) == 0 {
			fmt.Fprintln(os.Stderr, "No related parties found.")
			return nil
		}

		formatParties(os.Stdout, parties, time.Now())
		return nil
	},
}

// -- parties pull --

var partiesPullCmd = &cobra.Command{
	Use:   "pull <subject-id> <party-id>",
	Short: "Run a provider pull for a related party (subject to cooldown)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		force, _ := cmd.Flags().GetBool("force")

		party, err := env.Service.PullRelatedParty(ctx, actorFromFlags(cmd), args[0], args[1], enrich.PullOptions{Force: force})
		if err != nil {
			return err
		}

		if audit := party.LastAudit; audit != nil {
			fmt.Printf("Pulled %s: +%d phones, +%d emails, +%d addresses\n",
				party.Name, audit.NetNewPhones, audit.NetNewEmails, audit.NetNewAddresses)
			if audit.CooldownUntil != nil {
				fmt.Printf("Next pull allowed after %s\n", audit.CooldownUntil.Format(time.RFC3339))
			}
		} else {
			fmt.Printf("Pulled %s\n", party.Name)
		}
		return nil
	},
}

// -- parties set-relation --

var partiesSetRelationCmd = &cobra.Command{
	Use:   "set-relation <subject-id> <party-id> <type>",
	Short: "Pin a party's relationship classification (admin)",
	Long:  "Pins the relationship type (family, associate, household, unknown). Pinned classifications are never replaced by automatic classification on later pulls.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		relType := model.RelationType(args[2])
		var label *string
		if l, _ := cmd.Flags().GetString("label"); l != "" {
			label = &l
		}

		party, err := env.Service.SetRelationship(ctx, actorFromFlags(cmd), args[0], args[1], &relType, label)
		if err != nil {
			return err
		}

		fmt.Printf("%s classified as %s (pinned)\n", party.Name, party.RelationType)
		return nil
	},
}

func init() {
	partiesListCmd.Flags().String("order", "", "ranking: score (match quality) or value (information gained)")

	partiesPullCmd.Flags().Bool("force", false, "bypass an active cooldown (admin)")
	addActorFlags(partiesPullCmd)

	partiesSetRelationCmd.Flags().String("label", "", "free-form relation label (e.g. brother, roommate)")
	addActorFlags(partiesSetRelationCmd)

	partiesCmd.AddCommand(partiesListCmd)
	partiesCmd.AddCommand(partiesPullCmd)
	partiesCmd.AddCommand(partiesSetRelationCmd)
	rootCmd.AddCommand(partiesCmd)
}

// formatParties writes a tabular party list to w.
func formatParties(out io.Writer, parties []model.RelatedParty, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tRELATION\tMATCH\tNET_NEW\tLAST_PULL\tCOOLDOWN")
	for _, p := range parties {
		match, lastPull, cooldown := "-", "never", ""
		netNew := 0
		if a := p.LastAudit; a != nil {
			if a.Match != nil {
				match = fmt.Sprintf("%.2f", *a.Match)
			}
			netNew = a.NetNewTotal()
			lastPull = a.At.Format("2006-01-02 15:04")
			if a.CooldownUntil != nil && now.Before(*a.CooldownUntil) {
				cooldown = a.CooldownUntil.Sub(now).Round(time.Second).String()
			}
		}
		relation := string(p.RelationType)
		if p.RelationOverridden {
			relation += " (pinned)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(p.ID), p.Name, relation, match, netNew, lastPull, cooldown)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
