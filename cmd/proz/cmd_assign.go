package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newAssignCmd creates the "proz assign" subcommand.
func newAssignCmd(g *globalFlags) *cobra.Command {
	var details detailsFlags

	cmd := &cobra.Command{
		Use:   "assign <request-id> <proz-id>",
		Short: "Assign a professional to a work request",
		Long: "Submits an assignment. If the backend is unreachable the attempt is\n" +
			"queued and replayed by 'proz reconcile'. A request that already has an\n" +
			"assignment in flight, queued or confirmed is not submitted again.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := details.build(cmd)
			if err != nil {
				return err
			}

			a, err := openApp(cmd, g)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out, err := a.orch.Assign(cmd.Context(), args[0], args[1], d)
			if err != nil {
				return explain(err)
			}
			printOutcome(cmd.OutOrStdout(), out)
			return nil
		},
	}

	details.bind(cmd)
	return cmd
}

// newAssignTopCmd creates the "proz assign-top" subcommand.
func newAssignTopCmd(g *globalFlags) *cobra.Command {
	var details detailsFlags

	cmd := &cobra.Command{
		Use:   "assign-top <request-id>",
		Short: "Assign the highest-ranked professional to a work request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := details.build(cmd)
			if err != nil {
				return err
			}

			a, err := openApp(cmd, g)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out, err := a.orch.AssignTopMatch(cmd.Context(), args[0], d)
			if err != nil {
				return explain(err)
			}
			w := cmd.OutOrStdout()
			if out.Candidate != nil {
				fmt.Fprintf(w, "top match: %s %s (%d%%)\n", out.Candidate.ProzID, out.Candidate.Name, out.Candidate.Confidence())
			}
			printOutcome(w, out)
			return nil
		},
	}

	details.bind(cmd)
	return cmd
}
