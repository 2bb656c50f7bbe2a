package main

import (
	"github.com/spf13/cobra"

	"github.com/bondline/skiptrace/internal/auth"
	"github.com/bondline/skiptrace/internal/enrich"
)

// addActorFlags registers the flags identifying who is running a
// mutating command. The CLI trusts its caller; role enforcement is the
// engine's job.
func addActorFlags(cmd *cobra.Command) {
	cmd.Flags().String("actor", "cli", "actor id recorded on the operation")
	cmd.Flags().String("role", "agent", "actor role (agent, admin)")
}

func actorFromFlags(cmd *cobra.Command) enrich.Actor {
	id, _ := cmd.Flags().GetString("actor")
	role, _ := cmd.Flags().GetString("role")
	return enrich.Actor{ID: id, Role: auth.Role(role)}
}
