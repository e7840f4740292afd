package main

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"proz/pkg/assign"
	"proz/pkg/protocol"
)

// detailsFlags are the optional assignment fields shared by assign commands.
type detailsFlags struct {
	notes string
	hours float64
	rate  string
	due   string
}

func (f *detailsFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.notes, "notes", "", "assignment notes (max 2000 characters)")
	cmd.Flags().Float64Var(&f.hours, "hours", 0, "estimated hours")
	cmd.Flags().StringVar(&f.rate, "rate", "", "proposed hourly rate, e.g. 45.50")
	cmd.Flags().StringVar(&f.due, "due", "", "due date (YYYY-MM-DD)")
}

// build converts the flags to AssignmentDetails. Unset flags stay nil.
func (f *detailsFlags) build(cmd *cobra.Command) (protocol.AssignmentDetails, error) {
	d := protocol.AssignmentDetails{Notes: f.notes}

	if cmd.Flags().Changed("hours") {
		h := f.hours
		d.EstimatedHours = &h
	}
	if f.rate != "" {
		r, err := decimal.NewFromString(f.rate)
		if err != nil {
			return d, fmt.Errorf("%w: rate %q: %v", protocol.ErrInvalidDetails, f.rate, err)
		}
		d.ProposedRate = &r
	}
	if f.due != "" {
		t, err := time.Parse(time.DateOnly, f.due)
		if err != nil {
			return d, fmt.Errorf("%w: due date %q: want YYYY-MM-DD", protocol.ErrInvalidDetails, f.due)
		}
		d.DueDate = &t
	}
	return d, d.Validate()
}

// printOutcome writes a one-line summary of an assignment outcome.
func printOutcome(w io.Writer, out assign.Outcome) {
	switch out.State {
	case assign.StateConfirmed:
		fmt.Fprintf(w, "confirmed: %s assigned to %s\n", out.RequestID, out.Attempt.CandidateID)
	case assign.StateConflict:
		if out.Local {
			fmt.Fprintf(w, "conflict (local): %s\n", out.Message)
			return
		}
		fmt.Fprintf(w, "conflict: %s\n", out.Message)
	case assign.StateQueuedOffline:
		fmt.Fprintf(w, "queued_offline: %s -> %s (seq %d, attempt %s)\n",
			out.RequestID, out.Attempt.CandidateID, out.Attempt.Seq, out.Attempt.ID)
	default:
		fmt.Fprintf(w, "%s: %s\n", out.State, out.Message)
	}
}
