package sched

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRepeatRunsImmediatelyAndReschedules(t *testing.T) {
	var runs atomic.Int64
	h := Repeat(context.Background(), "test", 10*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	defer h.Stop()

	deadline := time.After(500 * time.Millisecond)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 runs, got %d", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRepeatSurvivesErrors(t *testing.T) {
	var runs atomic.Int64
	h := Repeat(context.Background(), "flaky", 5*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return errors.New("boom")
	})
	defer h.Stop()

	deadline := time.After(500 * time.Millisecond)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("task stopped after error, runs=%d", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStopCancelsAndWaits(t *testing.T) {
	started := make(chan struct{})
	h := Repeat(context.Background(), "stoppable", time.Hour, func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		return nil
	})

	<-started
	h.Stop()

	select {
	case <-h.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestParentContextCancelStopsTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := Repeat(ctx, "parented", time.Millisecond, func(context.Context) error { return nil })
	cancel()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not exit on parent cancel")
	}
}
