package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"proz/pkg/protocol"
)

// newPendingCmd creates the "proz pending" subcommand.
func newPendingCmd(g *globalFlags) *cobra.Command {
	var (
		owner  string
		failed bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List assignments waiting for connectivity",
		Long:  "Lists queued assignments in replay order.\nWith --failed, lists entries whose replay was rejected and need 'proz pending drop'.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, g)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var entries []protocol.AssignmentAttempt
			if failed {
				entries, err = a.queue.ListFailed(cmd.Context())
			} else {
				entries, err = a.queue.ListPending(cmd.Context(), owner)
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			printPending(w, entries)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "only entries for this professional")
	cmd.Flags().BoolVar(&failed, "failed", false, "list failed entries instead")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")

	cmd.AddCommand(newPendingDropCmd(g))
	return cmd
}

// newPendingDropCmd creates the "proz pending drop" subcommand.
func newPendingDropCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <seq>",
		Short: "Remove a failed queue entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid seq %q: %w", args[0], err)
			}

			a, err := openApp(cmd, g)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.orch.DropFailed(cmd.Context(), seq); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped seq %d\n", seq)
			return nil
		},
	}
}

func printPending(w io.Writer, entries []protocol.AssignmentAttempt) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no pending assignments")
		return
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.FormatInt(e.Seq, 10),
			e.RequestID,
			e.CandidateID,
			e.QueuedAt.Local().Format(time.DateTime),
			strconv.Itoa(e.Attempts),
			string(e.Status),
			e.LastError,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("SEQ", "REQUEST", "PROZ ID", "QUEUED", "TRIES", "STATUS", "LAST ERROR").
		Rows(rows...)
	fmt.Fprintln(w, t.Render())
}
