// Package pane owns the rendered chat view: the message buffer, the
// annotation pipeline, the recent-chatter registry, and the input box with
// its autocomplete engine. All entry points serialize on one mutex, which is
// the Go rendition of the single event-driven thread of control.
package pane

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/you/streampane/internal/annotate"
	"github.com/you/streampane/internal/buffer"
	"github.com/you/streampane/internal/chatters"
	"github.com/you/streampane/internal/complete"
	"github.com/you/streampane/internal/config"
	"github.com/you/streampane/internal/core"
	"github.com/you/streampane/internal/emotes"
)

// SubEvent describes a subscription or resubscription notice.
type SubEvent struct {
	Resub   bool
	Months  int
	Prime   bool
	Message string
}

// Sender delivers an outbound chat line to the transport.
type Sender func(text string) error

// Pane is the rendering/interaction component. Broadcast, when set, receives
// every newly rendered entry for push delivery to stream clients.
type Pane struct {
	mu sync.Mutex

	buf       *buffer.Buffer
	annotator *annotate.Annotator
	registry  *chatters.Registry
	engine    *complete.Engine
	catalog   *emotes.Catalog

	display       config.Display
	send          Sender
	localUsername string

	inputText  string
	inputCaret int

	Broadcast func(core.RenderedMessage)

	now func() time.Time
}

func New(catalog *emotes.Catalog, annotator *annotate.Annotator, display config.Display, send Sender) *Pane {
	p := &Pane{
		buf:       buffer.New(display.MaxMessages),
		annotator: annotator,
		registry:  chatters.NewRegistry(),
		catalog:   catalog,
		display:   display,
		send:      send,
		now:       time.Now,
	}
	p.engine = complete.NewEngine(candidateSource{p})
	return p
}

// candidateSource adapts the pane's catalogs to the autocomplete engine.
type candidateSource struct{ p *Pane }

func (s candidateSource) UsableEmoteCodes() []string { return s.p.catalog.UsableCodes() }

func (s candidateSource) RecentChatters(prefix string) []string {
	return s.p.registry.Candidates(prefix)
}

// ApplyDisplay installs reloaded display options.
func (p *Pane) ApplyDisplay(display config.Display) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.display = display
	p.buf.SetMaxMessages(display.MaxMessages)
	p.annotator.SetOptions(annotate.Options{
		Username:     p.localUsername,
		DefaultColor: display.DefaultUserColor,
		MinLuminance: display.MinUserColorLuminance,
	})
}

// SetLocalUsername fixes the username used for mention detection. Display
// option reloads preserve it.
func (p *Pane) SetLocalUsername(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.localUsername = name
	p.annotator.SetOptions(annotate.Options{
		Username:     name,
		DefaultColor: p.display.DefaultUserColor,
		MinLuminance: p.display.MinUserColorLuminance,
	})
}

// AppendChatMessage renders and inserts a regular chat message.
func (p *Pane) AppendChatMessage(ts int64, user *core.User, text string, refs []core.SessionEmote) {
	p.append(ts, user, text, refs, core.KindChat)
}

// AppendActionMessage renders a "/me" style message; the body takes the
// author's color.
func (p *Pane) AppendActionMessage(ts int64, user *core.User, text string, refs []core.SessionEmote) {
	p.append(ts, user, text, refs, core.KindAction)
}

func (p *Pane) append(ts int64, user *core.User, text string, refs []core.SessionEmote, kind core.MessageKind) {
	p.mu.Lock()
	defer p.mu.Unlock()

	isOwn := user != nil && user.IsSelf
	resolved := p.buf.ResolveTimestamp(ts, isOwn)

	res := p.annotator.Annotate(text, user, refs, isOwn)

	msg := core.ChatMessage{
		Username:      username(user),
		Timestamp:     resolved,
		Kind:          kind,
		Author:        user,
		RawText:       text,
		AnnotatedText: res.Text,
		Visible:       true,
		Mention:       res.Mention,
		UserColor:     res.UserColor,
		BadgesHTML:    p.annotator.RenderBadges(user),
		AlternatingBG: p.display.AlternatingBackgrounds,
	}

	if user != nil {
		p.registry.Touch(displayName(user))
	}

	p.insertAndBroadcast(msg)
}

// AppendSystemMessage adds an authorless notice. It inherits the newest
// buffered timestamp so it sits at the end of the transcript.
func (p *Pane) AppendSystemMessage(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := core.ChatMessage{
		Username:      "system",
		Timestamp:     p.buf.ResolveTimestamp(-1, false),
		Kind:          core.KindSystem,
		RawText:       text,
		AnnotatedText: text,
		Visible:       true,
		AlternatingBG: p.display.AlternatingBackgrounds,
	}
	p.insertAndBroadcast(msg)
}

// AppendSubscriptionMessage renders a sub or resub notice, annotating any
// attached user message through the normal pipeline.
func (p *Pane) AppendSubscriptionMessage(username string, sub SubEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	b.WriteString(username)
	if sub.Resub {
		b.WriteString(" just resubscribed")
		if sub.Prime {
			b.WriteString(" with Twitch Prime")
		}
		fmt.Fprintf(&b, " for %d months in a row", sub.Months)
	} else {
		b.WriteString(" just subscribed")
		if sub.Prime {
			b.WriteString(" with Twitch Prime")
		}
	}
	if sub.Message != "" {
		b.WriteString(": ")
		b.WriteString(p.annotator.Annotate(sub.Message, nil, nil, false).Text)
	}

	msg := core.ChatMessage{
		Username:      "system",
		Timestamp:     p.buf.ResolveTimestamp(-1, false),
		Kind:          core.KindSubscription,
		RawText:       sub.Message,
		AnnotatedText: b.String(),
		Visible:       true,
		AlternatingBG: p.display.AlternatingBackgrounds,
	}
	p.insertAndBroadcast(msg)
}

// HideMessagesOfUser suppresses the user's buffered messages: greyed out by
// default, physically removed when remove_deleted_messages is set. Future
// messages are unaffected.
func (p *Pane) HideMessagesOfUser(user string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.Hide(user, p.display.RemoveDeletedMessages)
}

// SetScrollPaused toggles the scroll-paused state; while paused, eviction is
// suppressed.
func (p *Pane) SetScrollPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.SetPaused(paused)
	if !paused {
		p.buf.EvictIfNeeded()
	}
}

// SetInput records a keystroke-driven input change. Any text or caret change
// from outside the engine ends the completion session.
func (p *Pane) SetInput(text string, caret int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputText = text
	p.inputCaret = caret
	p.engine.Reset()
}

// Input returns the current input box contents.
func (p *Pane) Input() (string, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inputText, p.inputCaret
}

// DoAutoComplete applies one completion step to the input box and reports
// the rewritten contents.
func (p *Pane) DoAutoComplete() (text string, caret int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	text, caret, ok = p.engine.Complete(p.inputText, p.inputCaret)
	if ok {
		p.inputText = text
		p.inputCaret = caret
	}
	return text, caret, ok
}

// ResetAutoComplete ends the completion session without touching the input.
func (p *Pane) ResetAutoComplete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine.Reset()
}

// SendCurrentMessage delivers the input box contents to the transport and
// clears the box.
func (p *Pane) SendCurrentMessage() error {
	p.mu.Lock()
	text := p.inputText
	p.inputText = ""
	p.inputCaret = 0
	p.engine.Reset()
	send := p.send
	p.mu.Unlock()

	if strings.TrimSpace(text) == "" || send == nil {
		return nil
	}
	return send(text)
}

// Transcript returns the rendered transcript, oldest first.
func (p *Pane) Transcript() []core.RenderedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.buf.Entries()
	out := make([]core.RenderedMessage, 0, len(entries))
	for _, e := range entries {
		out = append(out, render(e))
	}
	return out
}

func (p *Pane) insertAndBroadcast(msg core.ChatMessage) {
	p.buf.Insert(msg)
	p.buf.EvictIfNeeded()
	if p.Broadcast != nil {
		p.Broadcast(render(msg))
	}
}

func render(msg core.ChatMessage) core.RenderedMessage {
	r := core.RenderedMessage{
		ID:            fmt.Sprintf("%s:%d", msg.Username, msg.Timestamp),
		Time:          time.UnixMilli(msg.Timestamp).Format("15:04"),
		Kind:          string(msg.Kind),
		Username:      msg.Username,
		UserColor:     msg.UserColor,
		BadgesHTML:    msg.BadgesHTML,
		Text:          msg.AnnotatedText,
		Mention:       msg.Mention,
		Hidden:        !msg.Visible,
		AlternatingBG: msg.AlternatingBG,
	}
	if msg.Author != nil {
		r.DisplayName = displayName(msg.Author)
	}
	return r
}

func username(user *core.User) string {
	if user == nil {
		return "system"
	}
	return user.Username
}

func displayName(user *core.User) string {
	if user.DisplayName != "" {
		return user.DisplayName
	}
	return user.Username
}
