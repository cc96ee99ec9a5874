package twitchirc

import (
	"reflect"
	"testing"

	"github.com/you/streampane/internal/core"
)

func newTestClient(events Events) *Client {
	return New(Config{Channel: "somechannel", Nick: "paneuser"}, events)
}

func TestDispatchPrivmsg(t *testing.T) {
	var got []InboundMessage
	c := newTestClient(Events{Message: func(m InboundMessage) { got = append(got, m) }})

	line := "@badges=broadcaster/1,subscriber/12;color=#1E90FF;display-name=Alice;emotes=25:0-4,12-16;mod=0;subscriber=1;tmi-sent-ts=1700000000000 " +
		":alice!alice@alice.tmi.twitch.tv PRIVMSG #somechannel :Kappa hello Kappa"

	if !c.dispatch(line) {
		t.Fatal("PRIVMSG not dispatched")
	}
	if len(got) != 1 {
		t.Fatalf("got %d messages", len(got))
	}
	m := got[0]
	if m.Text != "Kappa hello Kappa" {
		t.Errorf("text = %q", m.Text)
	}
	if m.Timestamp != 1700000000000 {
		t.Errorf("timestamp = %d", m.Timestamp)
	}
	if m.User.Username != "alice" || m.User.DisplayName != "Alice" {
		t.Errorf("user = %+v", m.User)
	}
	if m.User.Color != "#1E90FF" {
		t.Errorf("color = %q", m.User.Color)
	}
	if !m.User.IsSubscriber || m.User.IsModerator || m.User.IsSelf {
		t.Errorf("flags = %+v", m.User)
	}
	wantBadges := []core.BadgeAssignment{
		{Set: "broadcaster", Version: "1"},
		{Set: "subscriber", Version: "12"},
	}
	if !reflect.DeepEqual(m.User.Badges, wantBadges) {
		t.Errorf("badges = %+v", m.User.Badges)
	}
	wantEmotes := []core.SessionEmote{
		{ImageID: "25", Ranges: []core.EmoteRange{{Start: 0, End: 4}, {Start: 12, End: 16}}},
	}
	if !reflect.DeepEqual(m.Emotes, wantEmotes) {
		t.Errorf("emotes = %+v", m.Emotes)
	}
}

func TestDispatchPrivmsgWithoutTimestamp(t *testing.T) {
	var got []InboundMessage
	c := newTestClient(Events{Message: func(m InboundMessage) { got = append(got, m) }})
	c.dispatch(":bob!bob@bob.tmi.twitch.tv PRIVMSG #somechannel :plain text")
	if len(got) != 1 {
		t.Fatalf("got %d messages", len(got))
	}
	if got[0].Timestamp != -1 {
		t.Errorf("timestamp = %d, want -1", got[0].Timestamp)
	}
}

func TestDispatchAction(t *testing.T) {
	var got []InboundMessage
	c := newTestClient(Events{Message: func(m InboundMessage) { got = append(got, m) }})
	c.dispatch(":bob!bob@bob.tmi.twitch.tv PRIVMSG #somechannel :\x01ACTION waves at chat\x01")
	if len(got) != 1 {
		t.Fatalf("got %d messages", len(got))
	}
	if !got[0].Action {
		t.Error("action flag not set")
	}
	if got[0].Text != "waves at chat" {
		t.Errorf("text = %q", got[0].Text)
	}
}

func TestDispatchIgnoresOtherChannels(t *testing.T) {
	c := newTestClient(Events{Message: func(InboundMessage) { t.Error("unexpected message") }})
	if c.dispatch(":bob!bob@bob.tmi.twitch.tv PRIVMSG #elsewhere :hi") {
		t.Error("foreign channel dispatched")
	}
}

func TestDispatchUsernotice(t *testing.T) {
	cases := []struct {
		name string
		line string
		want SubNotice
	}{
		{
			name: "prime resub with message",
			line: "@msg-id=resub;display-name=Bob;msg-param-cumulative-months=6;msg-param-sub-plan=Prime;tmi-sent-ts=1700000000000 " +
				":tmi.twitch.tv USERNOTICE #somechannel :great stream",
			want: SubNotice{User: "Bob", Resub: true, Months: 6, Prime: true, Message: "great stream"},
		},
		{
			name: "new sub without message",
			line: "@msg-id=sub;login=carol;msg-param-sub-plan=1000 :tmi.twitch.tv USERNOTICE #somechannel",
			want: SubNotice{User: "carol"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got []SubNotice
			c := newTestClient(Events{Subscription: func(_ string, n SubNotice) { got = append(got, n) }})
			if !c.dispatch(tc.line) {
				t.Fatal("USERNOTICE not dispatched")
			}
			if len(got) != 1 || !reflect.DeepEqual(got[0], tc.want) {
				t.Errorf("notice = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestDispatchIgnoresNonSubUsernotice(t *testing.T) {
	c := newTestClient(Events{Subscription: func(string, SubNotice) { t.Error("unexpected notice") }})
	c.dispatch("@msg-id=raid;display-name=Bob :tmi.twitch.tv USERNOTICE #somechannel")
}

func TestDispatchClearchat(t *testing.T) {
	var user string
	var seconds int
	c := newTestClient(Events{ClearUser: func(_, u string, s int) { user, seconds = u, s }})
	c.dispatch("@ban-duration=600 :tmi.twitch.tv CLEARCHAT #somechannel :mallory")
	if user != "mallory" || seconds != 600 {
		t.Errorf("clear = %q/%d", user, seconds)
	}
}

func TestDispatchRoomstate(t *testing.T) {
	var roomID string
	c := newTestClient(Events{RoomState: func(_, id string) { roomID = id }})
	c.dispatch("@emote-only=0;room-id=12345678 :tmi.twitch.tv ROOMSTATE #somechannel")
	if roomID != "12345678" {
		t.Errorf("room id = %q", roomID)
	}
}

func TestDispatchEmoteSets(t *testing.T) {
	var sets []string
	c := newTestClient(Events{EmoteSets: func(ids []string) { sets = ids }})
	c.dispatch("@emote-sets=0,33,50;display-name=paneuser :tmi.twitch.tv USERSTATE #somechannel")
	if !reflect.DeepEqual(sets, []string{"0", "33", "50"}) {
		t.Errorf("sets = %v", sets)
	}
}

func TestDispatchJoinSelf(t *testing.T) {
	var joined string
	var self bool
	c := newTestClient(Events{Join: func(_, user string, s bool) { joined, self = user, s }})
	c.dispatch(":paneuser!paneuser@paneuser.tmi.twitch.tv JOIN #somechannel")
	if joined != "paneuser" || !self {
		t.Errorf("join = %q self=%v", joined, self)
	}
}

func TestUnescapeIRC(t *testing.T) {
	cases := []struct{ in, want string }{
		{`hello\sworld`, "hello world"},
		{`a\:b`, "a;b"},
		{`line\nbreak`, "line\nbreak"},
		{`back\\slash`, `back\slash`},
		{`plain`, `plain`},
	}
	for _, tc := range cases {
		if got := unescapeIRC(tc.in); got != tc.want {
			t.Errorf("unescapeIRC(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseEmotesMalformed(t *testing.T) {
	cases := []string{"", "25", "25:", "25:4-2", "25:a-b", ":0-4"}
	for _, tc := range cases {
		if got := parseEmotes(tc); got != nil {
			t.Errorf("parseEmotes(%q) = %+v, want nil", tc, got)
		}
	}
}
