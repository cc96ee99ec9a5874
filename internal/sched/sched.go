// Package sched provides the periodic refresh primitive used by the catalog
// providers: a named, self-rescheduling task with a cancellable handle.
package sched

import (
	"context"
	"log/slog"
	"time"
)

// Handle controls one running periodic task.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop cancels the task and waits for the current run, if any, to finish.
func (h *Handle) Stop() {
	h.cancel()
	<-h.done
}

// Done is closed once the task loop has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Repeat runs fn immediately and then every interval until ctx is cancelled
// or the handle is stopped. fn's error is logged and the task reschedules
// unconditionally; providers are expected to be eventually consistent, so a
// failed cycle is never fatal. There is no cancellation of a slow run beyond
// the context handed to fn; a stale result applied after a newer one is the
// documented last-write-wins behavior.
func Repeat(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)

		run := func() {
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				slog.Error("refresh failed", "task", name, "err", err)
			}
		}

		run()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()

	return h
}
