package protocol

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Priority ranks how urgently a work request needs a professional.
type Priority string

// Priority constants.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// RequestStatus is the lifecycle state of a work request.
type RequestStatus string

// Request status constants. Only the orchestrator or the remote authority
// moves a request out of pending.
const (
	RequestPending    RequestStatus = "pending"
	RequestAssigned   RequestStatus = "assigned"
	RequestInProgress RequestStatus = "in_progress"
	RequestCompleted  RequestStatus = "completed"
	RequestCancelled  RequestStatus = "cancelled"
)

// ValidRequestStatuses lists every status the backend may report.
var ValidRequestStatuses = map[RequestStatus]struct{}{ //nolint:gochecknoglobals // lookup table
	RequestPending:    {},
	RequestAssigned:   {},
	RequestInProgress: {},
	RequestCompleted:  {},
	RequestCancelled:  {},
}

// Valid reports whether s is a status the backend may report.
func (s RequestStatus) Valid() bool {
	_, ok := ValidRequestStatuses[s]
	return ok
}

// BudgetRange is the price window a requester is willing to pay.
type BudgetRange struct {
	Min decimal.Decimal `json:"budget_min"`
	Max decimal.Decimal `json:"budget_max"`
}

// WorkRequest is a service request created outside this module.
type WorkRequest struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Budget        BudgetRange   `json:"budget"`
	Category      string        `json:"category"`
	Priority      Priority      `json:"priority"`
	RemoteAllowed bool          `json:"remote_allowed"`
	Deadline      *time.Time    `json:"deadline,omitempty"`
	Status        RequestStatus `json:"status"`
}

// Validate checks a work request received from outside proz.
func (r WorkRequest) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrEmptyRequestID
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, r.Status)
	}
	if r.Budget.Max.LessThan(r.Budget.Min) {
		return fmt.Errorf("%w: budget max %s below min %s", ErrInvalidRequest, r.Budget.Max, r.Budget.Min)
	}
	return nil
}

// Candidate is a ranked professional returned by the matching collaborator.
// Candidates are recommendations, never persisted.
type Candidate struct {
	ProzID          string           `json:"proz_id"`
	Name            string           `json:"name"`
	Email           string           `json:"email,omitempty"`
	Phone           string           `json:"phone,omitempty"`
	Location        string           `json:"location,omitempty"`
	Rating          float64          `json:"rating"`
	YearsExperience *int             `json:"years_experience,omitempty"`
	HourlyRate      *decimal.Decimal `json:"hourly_rate,omitempty"`
	Specialties     []string         `json:"specialties,omitempty"`
	Score           float64          `json:"score"`
	Reasons         []string         `json:"reasons,omitempty"`
}

// Confidence returns the score as a whole percentage, as shown to operators.
func (c Candidate) Confidence() int {
	return int(math.Round(c.Score * 100))
}

// HasSpecialty reports whether the candidate lists tag (case-insensitive).
func (c Candidate) HasSpecialty(tag string) bool {
	for _, s := range c.Specialties {
		if strings.EqualFold(s, tag) {
			return true
		}
	}
	return false
}

// AttemptStatus is the lifecycle state of an assignment attempt.
type AttemptStatus string

// Attempt status constants.
//
//	submitted -> confirmed | conflict | queued_offline | failed
const (
	AttemptSubmitted     AttemptStatus = "submitted"
	AttemptConfirmed     AttemptStatus = "confirmed"
	AttemptConflict      AttemptStatus = "conflict"
	AttemptQueuedOffline AttemptStatus = "queued_offline"
	AttemptFailed        AttemptStatus = "failed"
)

// Blocking reports whether an attempt in this status prevents another
// submission for the same request.
func (s AttemptStatus) Blocking() bool {
	switch s {
	case AttemptSubmitted, AttemptQueuedOffline, AttemptConfirmed:
		return true
	default:
		return false
	}
}

// AssignmentDetails are the operator-supplied fields sent with an assignment.
type AssignmentDetails struct {
	Notes          string           `json:"assignment_notes,omitempty"`
	EstimatedHours *float64         `json:"estimated_hours,omitempty"`
	ProposedRate   *decimal.Decimal `json:"proposed_rate,omitempty"`
	DueDate        *time.Time       `json:"due_date,omitempty"`
}

// MaxNotesLength bounds the free-text assignment notes.
const MaxNotesLength = 2000

// Validate checks the operator-supplied fields.
func (d AssignmentDetails) Validate() error {
	if len(d.Notes) > MaxNotesLength {
		return fmt.Errorf("%w: notes exceed %d characters", ErrInvalidDetails, MaxNotesLength)
	}
	if d.EstimatedHours != nil && *d.EstimatedHours < 0 {
		return fmt.Errorf("%w: estimated hours must not be negative", ErrInvalidDetails)
	}
	if d.ProposedRate != nil && d.ProposedRate.IsNegative() {
		return fmt.Errorf("%w: proposed rate must not be negative", ErrInvalidDetails)
	}
	return nil
}

// AssignmentAttempt is one try at assigning a request to a candidate.
type AssignmentAttempt struct {
	ID          string            `json:"id"`
	Seq         int64             `json:"seq"`
	RequestID   string            `json:"service_request_id"`
	CandidateID string            `json:"proz_id"`
	Details     AssignmentDetails `json:"details"`
	Status      AttemptStatus     `json:"status"`
	QueuedAt    time.Time         `json:"queued_at"`
	Attempts    int               `json:"attempts"`
	LastError   string            `json:"last_error,omitempty"`
}

// AssignPayload is the wire body for the remote assignment endpoint.
type AssignPayload struct {
	ServiceRequestID string           `json:"service_request_id"`
	ProzID           string           `json:"proz_id"`
	Notes            string           `json:"assignment_notes,omitempty"`
	EstimatedHours   *float64         `json:"estimated_hours,omitempty"`
	ProposedRate     *decimal.Decimal `json:"proposed_rate,omitempty"`
	DueDate          string           `json:"due_date,omitempty"`
}

// Payload builds the wire body for this attempt. Due dates are sent as
// calendar dates.
func (a AssignmentAttempt) Payload() AssignPayload {
	p := AssignPayload{
		ServiceRequestID: a.RequestID,
		ProzID:           a.CandidateID,
		Notes:            a.Details.Notes,
		EstimatedHours:   a.Details.EstimatedHours,
		ProposedRate:     a.Details.ProposedRate,
	}
	if a.Details.DueDate != nil {
		p.DueDate = a.Details.DueDate.Format(time.DateOnly)
	}
	return p
}

// AssignmentRecord is what the backend returns for a created assignment.
type AssignmentRecord struct {
	ID               any              `json:"id,omitempty"`
	ServiceRequestID string           `json:"service_request_id"`
	ProzID           string           `json:"proz_id"`
	Status           string           `json:"status,omitempty"`
	ProposedRate     *decimal.Decimal `json:"proposed_rate,omitempty"`
	AssignedAt       string           `json:"assigned_at,omitempty"`
}
