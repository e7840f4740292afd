package ranker

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"proz/pkg/protocol"
)

// Shape recognises one way the backend packages a candidate list. Match
// returns the raw list items and true if raw has this shape.
type Shape struct {
	Name  string
	Match func(raw json.RawMessage) ([]json.RawMessage, bool)
}

// DefaultShapes are tried in order: bare array, then the items, data and
// results envelopes.
var DefaultShapes = []Shape{ //nolint:gochecknoglobals // fixed priority order
	{Name: "array", Match: bareArray},
	EnvelopeShape("items"),
	EnvelopeShape("data"),
	EnvelopeShape("results"),
}

func bareArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, false
	}
	return items, true
}

// EnvelopeShape matches an object whose key holds an array.
func EnvelopeShape(key string) Shape {
	return Shape{
		Name: key,
		Match: func(raw json.RawMessage) ([]json.RawMessage, bool) {
			var env map[string]json.RawMessage
			if err := json.Unmarshal(raw, &env); err != nil {
				return nil, false
			}
			inner, ok := env[key]
			if !ok {
				return nil, false
			}
			return bareArray(inner)
		},
	}
}

// Normalize converts raw into candidates using the first matching shape.
// It returns an empty list and "" when nothing matches.
func Normalize(raw json.RawMessage, shapes []Shape) ([]protocol.Candidate, string) {
	for _, s := range shapes {
		items, ok := s.Match(raw)
		if !ok {
			continue
		}
		out := make([]protocol.Candidate, 0, len(items))
		for _, item := range items {
			if c, ok := decodeCandidate(item); ok {
				out = append(out, c)
			}
		}
		return out, s.Name
	}
	return []protocol.Candidate{}, ""
}

// wireCandidate accepts the field spellings the ranking endpoint has used.
type wireCandidate struct {
	ProzID          string           `json:"proz_id"`
	ID              json.RawMessage  `json:"id"`
	Name            string           `json:"name"`
	FullName        string           `json:"full_name"`
	Email           string           `json:"email"`
	Phone           string           `json:"phone"`
	Location        string           `json:"location"`
	Rating          float64          `json:"rating"`
	YearsExperience *int             `json:"years_experience"`
	HourlyRate      *decimal.Decimal `json:"hourly_rate"`
	Specialties     []string         `json:"specialties"`
	SpecialtyTags   []string         `json:"specialty_tags"`
	Score           float64          `json:"score"`
	Reasons         []string         `json:"reasons"`
}

func decodeCandidate(item json.RawMessage) (protocol.Candidate, bool) {
	var w wireCandidate
	if err := json.Unmarshal(item, &w); err != nil {
		return protocol.Candidate{}, false
	}

	id := strings.TrimSpace(w.ProzID)
	if id == "" {
		id = rawID(w.ID)
	}
	if id == "" {
		return protocol.Candidate{}, false
	}

	name := w.Name
	if name == "" {
		name = w.FullName
	}

	return protocol.Candidate{
		ProzID:          id,
		Name:            name,
		Email:           w.Email,
		Phone:           w.Phone,
		Location:        w.Location,
		Rating:          clamp(w.Rating, 0, 5),
		YearsExperience: w.YearsExperience,
		HourlyRate:      w.HourlyRate,
		Specialties:     dedupe(append(w.Specialties, w.SpecialtyTags...)),
		Score:           clamp(w.Score, 0, 1),
		Reasons:         w.Reasons,
	}, true
}

// rawID renders a string or numeric id.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// dedupe keeps the first occurrence of each tag, case-insensitively.
func dedupe(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}
