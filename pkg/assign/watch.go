package assign

import (
	"context"
	"errors"
	"time"

	"github.com/fsnotify/fsnotify"

	"proz/pkg/protocol"
)

// Watch reconciles in the background until ctx is cancelled. It reacts to
// changes in the queue database directory (new entries written by another
// proz process) and polls as a safety net. Without fsnotify it polls only.
// Watch returns nil on cancellation and the *protocol.AuthError that stopped
// it otherwise; the session must be renewed before replay can continue.
func (o *Orchestrator) Watch(ctx context.Context) error {
	if err := o.reconcilePass(ctx); err != nil {
		return err
	}
	if o.cfg.WatchDir == "" {
		return o.watchPoll(ctx)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Fallback to pure polling if fsnotify fails
		return o.watchPoll(ctx)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(o.cfg.WatchDir); err != nil {
		return o.watchPoll(ctx)
	}

	fallbackTicker := time.NewTicker(o.cfg.FallbackPollInterval)
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return o.watchPoll(ctx)
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			// Our own replay writes touch the same files; only new entries
			// warrant a pass.
			if !o.hasNewEntries(ctx) {
				continue
			}
			if err := o.reconcilePass(ctx); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return o.watchPoll(ctx)
			}
			if err != nil {
				_ = o.logEvent(ctx, protocol.EventWatcherError, "", "", map[string]any{"error": err.Error()})
			}
		case <-fallbackTicker.C:
			if err := o.reconcilePass(ctx); err != nil {
				return err
			}
		}
	}
}

// watchPoll is the polling loop used when fsnotify is unavailable.
func (o *Orchestrator) watchPoll(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := o.reconcilePass(ctx); err != nil {
				return err
			}
		}
	}
}

// reconcilePass runs Reconcile and swallows everything except auth failures.
func (o *Orchestrator) reconcilePass(ctx context.Context) error {
	report, err := o.Reconcile(ctx)
	var authErr *protocol.AuthError
	switch {
	case errors.As(err, &authErr):
		return err
	case err != nil && ctx.Err() != nil:
		return nil
	case err != nil:
		o.logger.WarnContext(ctx, "reconcile pass", "error", err)
		return nil
	}
	if len(report.Results) > 0 {
		o.logger.InfoContext(ctx, "reconcile pass",
			"confirmed", report.Confirmed,
			"conflicts", report.Conflicts,
			"still_offline", report.StillOffline,
			"failed", report.Failed)
	}
	return nil
}

func (o *Orchestrator) hasNewEntries(ctx context.Context) bool {
	pending, err := o.queue.ListPending(ctx, "")
	if err != nil {
		return false
	}
	o.reconcileMu.Lock()
	defer o.reconcileMu.Unlock()
	for _, a := range pending {
		if a.Seq > o.lastSeenSeq {
			return true
		}
	}
	return false
}
