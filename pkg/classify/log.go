package classify

import (
	"context"
	"log/slog"
)

// Logged records r on logger under op and returns it unchanged. Successes
// log at debug, everything else at warn. A nil logger uses slog.Default().
func Logged[T any](ctx context.Context, logger *slog.Logger, op string, r Result[T]) Result[T] {
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{"op", op, "kind", string(r.Kind)}
	if r.StatusCode != 0 {
		attrs = append(attrs, "status", r.StatusCode)
	}
	if r.Message != "" {
		attrs = append(attrs, "detail", r.Message)
	}
	if r.Cause != nil {
		attrs = append(attrs, "cause", r.Cause.Error())
	}

	if r.OK() {
		logger.DebugContext(ctx, "backend response classified", attrs...)
	} else {
		logger.WarnContext(ctx, "backend response classified", attrs...)
	}
	return r
}
