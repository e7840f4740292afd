package classify

import (
	"encoding/json"
	"strings"

	"proz/pkg/protocol"
)

// Phrases holds the backend's literal error phrases, matched
// case-insensitively as substrings of the envelope detail.
type Phrases struct {
	Conflict []string
	Auth     []string
}

// DefaultPhrases are the phrases the backend is known to emit.
var DefaultPhrases = Phrases{ //nolint:gochecknoglobals // read-only phrase table
	Conflict: []string{
		protocol.PhraseAlreadyAssigned,
	},
	Auth: []string{
		protocol.PhraseInvalidToken,
		protocol.PhraseInvalidCreds,
		protocol.PhraseIncorrectPassword,
		protocol.PhraseTokenExpired,
	},
}

// With returns a copy of p extended with extra phrases.
func (p Phrases) With(conflict, auth []string) Phrases {
	return Phrases{
		Conflict: append(append([]string{}, p.Conflict...), conflict...),
		Auth:     append(append([]string{}, p.Auth...), auth...),
	}
}

// IsConflict reports whether detail carries a business-conflict phrase.
func (p Phrases) IsConflict(detail string) bool {
	return containsAny(detail, p.Conflict)
}

// IsAuth reports whether detail carries an authentication-failure phrase.
func (p Phrases) IsAuth(detail string) bool {
	return containsAny(detail, p.Auth)
}

func containsAny(s string, needles []string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, n := range needles {
		if n != "" && strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// ExtractDetail pulls a human-readable message out of an error envelope.
// Supported shapes, in order:
//
//	{"detail": "text"}
//	{"detail": [{"msg": "text", "loc": [...]}, ...]}   (validation errors)
//	{"detail": {"message": "text"}}
//	{"message": "text"} / {"error": "text"}
//
// A body that is not a JSON object is returned trimmed, so plain-text error
// bodies still reach phrase matching. An empty string means nothing usable.
func ExtractDetail(body []byte) string {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return strings.TrimSpace(string(body))
	}

	if raw, ok := env["detail"]; ok {
		if d := detailText(raw); d != "" {
			return d
		}
	}
	for _, key := range []string{"message", "error"} {
		if raw, ok := env[key]; ok {
			if d := detailText(raw); d != "" {
				return d
			}
		}
	}
	return ""
}

func detailText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if m := strings.TrimSpace(it.Msg); m != "" {
				msgs = append(msgs, m)
			}
		}
		return strings.Join(msgs, "; ")
	}

	var obj struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return strings.TrimSpace(obj.Message)
		}
		return strings.TrimSpace(obj.Detail)
	}
	return ""
}
