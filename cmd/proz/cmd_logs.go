package main

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"proz/pkg/eventlog"
)

// logsConfig holds configuration for the logs command.
type logsConfig struct {
	request   string
	candidate string
	evType    string
	tail      int
	summary   bool
}

// newLogsCmd creates the "proz logs" subcommand.
func newLogsCmd(g *globalFlags) *cobra.Command {
	var cfg logsConfig

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the assignment event log",
		Long:  "Displays recent orchestrator events, oldest first.\nFilter by request, professional or event type.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, g)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			reader := eventlog.FromDB(a.db)
			w := cmd.OutOrStdout()

			if cfg.summary {
				counts, err := reader.CountByType(cmd.Context())
				if err != nil {
					return err
				}
				printSummary(w, counts)
				return nil
			}

			events, err := reader.Query(cmd.Context(), eventlog.QueryOpts{
				RequestID:   cfg.request,
				CandidateID: cfg.candidate,
				EventType:   cfg.evType,
				Limit:       cfg.tail,
			})
			if err != nil {
				return err
			}
			printEvents(w, events)
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.request, "request", "", "only events for this work request")
	cmd.Flags().StringVar(&cfg.candidate, "proz", "", "only events for this professional")
	cmd.Flags().StringVar(&cfg.evType, "type", "", "only events of this type")
	cmd.Flags().IntVar(&cfg.tail, "tail", 20, "number of recent events to show")
	cmd.Flags().BoolVar(&cfg.summary, "summary", false, "show event counts per type")

	return cmd
}

// printEvents writes events oldest first; Query returns newest first.
func printEvents(w io.Writer, events []eventlog.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "no events found")
		return
	}
	for _, e := range slices.Backward(events) {
		fmt.Fprintf(w, "%s  %-15s %-12s %-10s %s\n",
			e.CreatedAt.Local().Format(time.DateTime), e.Type, e.RequestID, e.CandidateID, e.Payload)
	}
}

func printSummary(w io.Writer, counts map[string]int) {
	if len(counts) == 0 {
		fmt.Fprintln(w, "no events found")
		return
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	slices.Sort(types)
	for _, t := range types {
		fmt.Fprintf(w, "%-15s %d\n", t, counts[t])
	}
}
