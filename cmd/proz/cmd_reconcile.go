package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newReconcileCmd creates the "proz reconcile" subcommand.
func newReconcileCmd(g *globalFlags) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Replay queued assignments",
		Long: "Replays queued assignments in the order they were made.\n" +
			"With --watch, keeps running and replays whenever new entries appear\n" +
			"or the poll interval elapses.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, g)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if watch {
				fmt.Fprintf(cmd.OutOrStdout(), "watching %s\n", a.cfg.QueueDir())
				return explain(a.orch.Watch(cmd.Context()))
			}

			report, err := a.orch.Reconcile(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "confirmed %d, conflicts %d, still offline %d, failed %d\n",
				report.Confirmed, report.Conflicts, report.StillOffline, report.Failed)
			return explain(err)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep reconciling until interrupted")
	return cmd
}
