// Package notify delivers operator-facing toasts. Delivery is fire-and-forget:
// a Notifier never reports failure back to the caller.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Level is the severity of a notice.
type Level string

// Notice levels.
const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a single toast.
type Notice struct {
	Level     Level
	Title     string
	Message   string
	RequestID string
}

// Notifier receives notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// Discard drops every notice.
type Discard struct{}

func (Discard) Notify(context.Context, Notice) {}

// Multi fans a notice out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notice) {
	for _, x := range m {
		if x != nil {
			x.Notify(ctx, n)
		}
	}
}

// Log writes notices to a structured logger. With Level set every notice is
// logged at that level; otherwise the notice level picks it.
type Log struct {
	Logger *slog.Logger
	Level  slog.Leveler
}

func (l Log) Notify(ctx context.Context, n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch {
	case l.Level != nil:
		level = l.Level.Level()
	case n.Level == LevelWarning:
		level = slog.LevelWarn
	case n.Level == LevelError:
		level = slog.LevelError
	}
	logger.Log(ctx, level, n.Title, "message", n.Message, "request_id", n.RequestID, "notice", string(n.Level))
}

// Recorder keeps every notice it receives. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

// Notices returns a copy of the recorded notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Count returns how many notices of level were recorded.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.notices {
		if x.Level == level {
			n++
		}
	}
	return n
}
