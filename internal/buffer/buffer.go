// Package buffer holds the ordered, capacity-bounded transcript store.
package buffer

import (
	"time"

	"github.com/you/streampane/internal/core"
)

// Buffer keeps transcript entries sorted by timestamp ascending at all times.
// Eviction drops the oldest entries once the count exceeds the configured
// maximum, unless the consumer has paused scrolling. Not safe for concurrent
// use; the pane serializes access.
type Buffer struct {
	maxMessages int
	paused      bool
	entries     []core.ChatMessage

	now func() time.Time
}

func New(maxMessages int) *Buffer {
	if maxMessages <= 0 {
		maxMessages = 100
	}
	return &Buffer{maxMessages: maxMessages, now: time.Now}
}

// SetMaxMessages applies a reloaded capacity. Takes effect on the next insert.
func (b *Buffer) SetMaxMessages(n int) {
	if n > 0 {
		b.maxMessages = n
	}
}

// SetPaused toggles the scroll-paused state. While paused, eviction is
// suppressed so the viewer can read scrolled-up history.
func (b *Buffer) SetPaused(paused bool) { b.paused = paused }

func (b *Buffer) Paused() bool { return b.paused }

// ResolveTimestamp turns a possibly-absent candidate (negative means absent)
// into a definite timestamp. Messages with unknown time are treated as "just
// now, right after the last one": they reuse the newest buffered timestamp so
// append order stays monotonic. An empty buffer falls back to wall-clock time,
// including for the local user's own pre-ack echo.
func (b *Buffer) ResolveTimestamp(candidate int64, isOwnEcho bool) int64 {
	if candidate >= 0 {
		return candidate
	}
	if n := len(b.entries); n > 0 {
		return b.entries[n-1].Timestamp
	}
	_ = isOwnEcho // empty buffer: wall clock either way
	return b.now().UnixMilli()
}

// Insert places msg immediately after the last entry whose timestamp is less
// than or equal to msg's. Equal timestamps keep arrival order, so the sorted
// invariant holds without a re-sort.
func (b *Buffer) Insert(msg core.ChatMessage) {
	at := 0
	for i, e := range b.entries {
		if e.Timestamp <= msg.Timestamp {
			at = i + 1
		} else {
			break
		}
	}
	b.entries = append(b.entries, core.ChatMessage{})
	copy(b.entries[at+1:], b.entries[at:])
	b.entries[at] = msg
}

// EvictIfNeeded removes exactly count-max oldest entries when over capacity.
// No-op while scroll is paused.
func (b *Buffer) EvictIfNeeded() []core.ChatMessage {
	if b.paused || len(b.entries) <= b.maxMessages {
		return nil
	}
	n := len(b.entries) - b.maxMessages
	evicted := append([]core.ChatMessage(nil), b.entries[:n]...)
	b.entries = append(b.entries[:0], b.entries[n:]...)
	return evicted
}

// Hide marks every buffered entry by username invisible without disturbing
// the ordering of the rest. When hard is set the entries are removed instead.
// Future messages by the same user are unaffected.
func (b *Buffer) Hide(username string, hard bool) int {
	if hard {
		kept := b.entries[:0]
		removed := 0
		for _, e := range b.entries {
			if e.Username == username {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		b.entries = kept
		return removed
	}

	touched := 0
	for i := range b.entries {
		if b.entries[i].Username == username {
			b.entries[i].Visible = false
			touched++
		}
	}
	return touched
}

// Unhide restores visibility for every soft-hidden entry by username.
func (b *Buffer) Unhide(username string) int {
	touched := 0
	for i := range b.entries {
		if b.entries[i].Username == username && !b.entries[i].Visible {
			b.entries[i].Visible = true
			touched++
		}
	}
	return touched
}

// Entries returns the current transcript, oldest first. The returned slice
// is a copy; mutating it does not affect the buffer.
func (b *Buffer) Entries() []core.ChatMessage {
	return append([]core.ChatMessage(nil), b.entries...)
}

func (b *Buffer) Len() int { return len(b.entries) }
