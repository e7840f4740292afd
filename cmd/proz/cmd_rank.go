package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"proz/pkg/classify"
	"proz/pkg/protocol"
)

// newRankCmd creates the "proz rank" subcommand.
func newRankCmd(g *globalFlags) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "rank <request-id>",
		Short: "Show AI-ranked professionals for a work request",
		Long:  "Fetches ranked candidates for a work request in backend order.\nScores and reasons are computed by the backend.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, g)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if limit == 0 {
				limit = a.cfg.RankLimit
			}
			ranking, err := a.ranker.Rank(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if ranking.Outcome != classify.KindSuccess {
				if ranking.Outcome == classify.KindAuth {
					_ = a.tokens.Invalidate()
				}
				return explain(fmt.Errorf("rank %s: %w", ranking.RequestID, ranking.Err))
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(ranking.Candidates)
			}
			printCandidates(w, ranking.Candidates)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum candidates to fetch (default from config, max 50)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print candidates as JSON")

	return cmd
}

// printCandidates renders candidates as a table in backend order.
func printCandidates(w io.Writer, candidates []protocol.Candidate) {
	if len(candidates) == 0 {
		fmt.Fprintln(w, "no candidates found")
		return
	}

	rows := make([][]string, 0, len(candidates))
	for i, c := range candidates {
		rate := "-"
		if c.HourlyRate != nil {
			rate = c.HourlyRate.StringFixed(2)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			c.ProzID,
			c.Name,
			fmt.Sprintf("%d%%", c.Confidence()),
			fmt.Sprintf("%.1f", c.Rating),
			rate,
			strings.Join(c.Specialties, ", "),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "PROZ ID", "NAME", "MATCH", "RATING", "RATE", "SPECIALTIES").
		Rows(rows...)
	fmt.Fprintln(w, t.Render())

	for i, c := range candidates {
		if len(c.Reasons) == 0 {
			continue
		}
		fmt.Fprintf(w, "%d. %s\n", i+1, strings.Join(c.Reasons, "; "))
	}
}
