package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"proz/pkg/protocol"
)

// newStatusCmd creates the "proz status" subcommand.
func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <request-id>",
		Short: "Show the assignment state of a work request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, g)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			attempt, ok, err := a.orch.Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintf(w, "%s: not assigned\n", args[0])
				return nil
			}
			since := ""
			if row, found, err := a.orch.Settled(cmd.Context(), attempt.RequestID); err == nil && found {
				since = " since " + row.AssignedAt
			}
			switch attempt.Status {
			case protocol.AttemptConfirmed:
				fmt.Fprintf(w, "%s: assigned to %s%s\n", attempt.RequestID, attempt.CandidateID, since)
			case protocol.AttemptConflict:
				fmt.Fprintf(w, "%s: assigned (already held by the backend)%s\n", attempt.RequestID, since)
			case protocol.AttemptQueuedOffline:
				fmt.Fprintf(w, "%s: assigned to %s, pending sync since %s\n",
					attempt.RequestID, attempt.CandidateID, attempt.QueuedAt.Local().Format("2006-01-02 15:04"))
			default:
				fmt.Fprintf(w, "%s: %s\n", attempt.RequestID, attempt.Status)
			}
			return nil
		},
	}
}
