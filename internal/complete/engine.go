// Package complete implements the cyclic, prefix-based autocomplete engine
// for the message input box.
package complete

import (
	"strings"
	"unicode"
)

// CandidateSource supplies the two completion namespaces: usable emote codes
// and recently seen chatter identities.
type CandidateSource interface {
	UsableEmoteCodes() []string
	RecentChatters(prefix string) []string
}

type session struct {
	fragment     string
	candidates   []string
	cursor       int
	replaceStart int
	replaceEnd   int
	lastCaret    int
}

// Engine is a two-state machine: idle (no session) and active. A session
// binds one fragment to a fixed candidate list and cycles through it until
// the caret moves externally, a non-completion key is pressed, or the input
// empties.
type Engine struct {
	source CandidateSource
	active *session
}

func NewEngine(source CandidateSource) *Engine {
	return &Engine{source: source}
}

// Reset drops the active session. Call on any non-completion keystroke.
func (e *Engine) Reset() { e.active = nil }

// Active reports whether a completion session is in progress.
func (e *Engine) Active() bool { return e.active != nil }

// Complete applies one completion step to (text, caret) and returns the
// rewritten input plus the new caret. ok is false when the engine stayed
// idle: empty input, empty fragment, or no candidates.
func (e *Engine) Complete(text string, caret int) (newText string, newCaret int, ok bool) {
	if len(text) == 0 {
		e.Reset()
		return text, caret, false
	}
	if caret < 0 || caret > len(text) {
		caret = len(text)
	}

	// A caret that moved outside our own replacement invalidates the session.
	if e.active != nil && e.active.lastCaret != caret {
		e.Reset()
	}

	if e.active == nil {
		s, started := e.begin(text, caret)
		if !started {
			return text, caret, false
		}
		e.active = s
	}

	s := e.active
	replacement := s.candidates[s.cursor] + " "
	newText = text[:s.replaceStart] + replacement + text[s.replaceEnd:]
	newCaret = s.replaceStart + len(replacement)

	s.cursor = (s.cursor + 1) % len(s.candidates)
	s.replaceEnd = newCaret
	s.lastCaret = newCaret

	return newText, newCaret, true
}

// begin captures the fragment under the caret and builds the candidate list.
func (e *Engine) begin(text string, caret int) (*session, bool) {
	start := tokenStart(text, caret)
	fragment := strings.TrimRightFunc(text[start:caret], unicode.IsSpace)
	if fragment == "" {
		return nil, false
	}

	candidates := e.buildCandidates(fragment)
	if len(candidates) == 0 {
		return nil, false
	}

	return &session{
		fragment:     fragment,
		candidates:   candidates,
		replaceStart: start,
		replaceEnd:   caret,
		lastCaret:    caret,
	}, true
}

// buildCandidates assembles the candidate list for fragment. A leading "@"
// restricts the namespace to recent chatters; otherwise usable emote codes
// come first, then chatters, both prefix-filtered case-insensitively and kept
// in their source order.
func (e *Engine) buildCandidates(fragment string) []string {
	lower := strings.ToLower(fragment)

	if strings.HasPrefix(fragment, "@") {
		var out []string
		for _, name := range e.source.RecentChatters("") {
			if strings.HasPrefix("@"+strings.ToLower(name), lower) {
				out = append(out, "@"+name)
			}
		}
		return out
	}

	var out []string
	for _, code := range e.source.UsableEmoteCodes() {
		if strings.HasPrefix(strings.ToLower(code), lower) {
			out = append(out, code)
		}
	}
	for _, name := range e.source.RecentChatters("") {
		if strings.HasPrefix(strings.ToLower(name), lower) {
			out = append(out, name)
		}
	}
	return out
}

// tokenStart scans backward from just before the caret for whitespace and
// returns the index where the current token begins.
func tokenStart(text string, caret int) int {
	i := caret - 1
	if i >= len(text) {
		i = len(text) - 1
	}
	// Skip the character directly before the caret so a caret sitting right
	// after a completed word still finds that word.
	for i > 0 {
		if text[i-1] == ' ' || text[i-1] == '\t' {
			return i
		}
		i--
	}
	return 0
}
