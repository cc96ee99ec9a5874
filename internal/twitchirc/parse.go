package twitchirc

import (
	"sort"
	"strconv"
	"strings"

	"github.com/you/streampane/internal/core"
)

// dispatch parses one raw IRC line and routes it to the matching event
// callback. It reports whether the line carried a chat-visible event.
func (c *Client) dispatch(line string) bool {
	tags, prefix, command, params, ok := splitLine(line)
	if !ok {
		return false
	}

	switch command {
	case "PRIVMSG":
		msg, ok := c.parsePrivmsg(tags, prefix, params)
		if !ok {
			return false
		}
		messagesReceived.Add(1)
		if c.events.Message != nil {
			c.events.Message(msg)
		}
		return true

	case "USERNOTICE":
		notice, ok := c.parseUsernotice(tags, params)
		if !ok {
			return false
		}
		if c.events.Subscription != nil {
			c.events.Subscription(c.cfg.Channel, notice)
		}
		return true

	case "CLEARCHAT":
		channel, target, ok := channelAndTrailing(params)
		if !ok || target == "" {
			return false
		}
		seconds := 0
		if v := tags["ban-duration"]; v != "" {
			seconds, _ = strconv.Atoi(v)
		}
		timeoutsReceived.Add(1)
		if c.events.ClearUser != nil {
			c.events.ClearUser(channel, target, seconds)
		}
		return true

	case "ROOMSTATE":
		channel, _, ok := channelAndTrailing(params)
		if !ok {
			return false
		}
		if id := tags["room-id"]; id != "" && c.events.RoomState != nil {
			c.events.RoomState(channel, id)
		}
		return false

	case "JOIN":
		channel, _, ok := channelAndTrailing(params)
		if !ok {
			return false
		}
		user := extractUser(prefix)
		if c.events.Join != nil {
			c.events.Join(channel, user, strings.EqualFold(user, c.cfg.Nick))
		}
		return false

	case "USERSTATE", "GLOBALUSERSTATE":
		if sets := splitList(tags["emote-sets"], ","); len(sets) > 0 && c.events.EmoteSets != nil {
			c.events.EmoteSets(sets)
		}
		return false
	}

	return false
}

func (c *Client) parsePrivmsg(tags map[string]string, prefix, params string) (InboundMessage, bool) {
	channel, text, ok := channelAndTrailing(params)
	if !ok || !strings.EqualFold(channel, c.cfg.Channel) {
		return InboundMessage{}, false
	}

	action := false
	if strings.HasPrefix(text, "\x01ACTION ") && strings.HasSuffix(text, "\x01") {
		action = true
		text = strings.TrimSuffix(strings.TrimPrefix(text, "\x01ACTION "), "\x01")
	}

	username := extractUser(prefix)
	user := core.User{
		Username:     username,
		DisplayName:  tags["display-name"],
		Color:        tags["color"],
		Badges:       parseBadges(tags["badges"]),
		IsSelf:       strings.EqualFold(username, c.cfg.Nick),
		IsModerator:  tags["mod"] == "1",
		IsSubscriber: tags["subscriber"] == "1",
	}

	var ts int64 = -1
	if v := tags["tmi-sent-ts"]; v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			ts = ms
		}
	}

	return InboundMessage{
		Channel:   channel,
		Timestamp: ts,
		User:      user,
		Text:      text,
		Action:    action,
		Emotes:    parseEmotes(tags["emotes"]),
	}, true
}

func (c *Client) parseUsernotice(tags map[string]string, params string) (SubNotice, bool) {
	_, text, ok := channelAndTrailing(params)
	if !ok {
		// USERNOTICE without an attached user message is still a notice
		text = ""
	}

	msgID := tags["msg-id"]
	if msgID != "sub" && msgID != "resub" {
		return SubNotice{}, false
	}

	user := tags["display-name"]
	if user == "" {
		user = tags["login"]
	}

	months := 0
	if v := tags["msg-param-cumulative-months"]; v != "" {
		months, _ = strconv.Atoi(v)
	}

	subsReceived.Add(1)
	return SubNotice{
		User:    user,
		Resub:   msgID == "resub",
		Months:  months,
		Prime:   strings.HasPrefix(tags["msg-param-sub-plan"], "Prime"),
		Message: text,
	}, true
}

// splitLine separates an IRC line into tags, prefix, command and the rest.
func splitLine(line string) (tags map[string]string, prefix, command, params string, ok bool) {
	tags = map[string]string{}
	rest := line

	if strings.HasPrefix(rest, "@") {
		idx := strings.Index(rest, " ")
		if idx == -1 {
			return nil, "", "", "", false
		}
		for _, kv := range strings.Split(rest[1:idx], ";") {
			if kv == "" {
				continue
			}
			parts := strings.SplitN(kv, "=", 2)
			val := ""
			if len(parts) == 2 {
				val = unescapeIRC(parts[1])
			}
			tags[parts[0]] = val
		}
		rest = strings.TrimSpace(rest[idx+1:])
	}

	if strings.HasPrefix(rest, ":") {
		idx := strings.Index(rest, " ")
		if idx == -1 {
			return nil, "", "", "", false
		}
		prefix = rest[1:idx]
		rest = strings.TrimSpace(rest[idx+1:])
	}

	idx := strings.Index(rest, " ")
	if idx == -1 {
		command = strings.ToUpper(rest)
		return tags, prefix, command, "", command != ""
	}
	command = strings.ToUpper(rest[:idx])
	params = strings.TrimSpace(rest[idx+1:])
	return tags, prefix, command, params, true
}

// channelAndTrailing splits "#channel :trailing" params.
func channelAndTrailing(params string) (channel, trailing string, ok bool) {
	if !strings.HasPrefix(params, "#") {
		return "", "", false
	}
	rest := params[1:]
	idx := strings.Index(rest, " ")
	if idx == -1 {
		return rest, "", true
	}
	channel = rest[:idx]
	rest = strings.TrimSpace(rest[idx+1:])
	if strings.HasPrefix(rest, ":") {
		rest = rest[1:]
	}
	return channel, rest, true
}

// parseEmotes decodes the emotes tag, e.g. "25:0-4,12-16/1902:6-10". Ranges
// are inclusive UTF-16 code-unit offsets into the raw message text.
func parseEmotes(tag string) []core.SessionEmote {
	if tag == "" {
		return nil
	}
	var out []core.SessionEmote
	for _, group := range strings.Split(tag, "/") {
		parts := strings.SplitN(group, ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		emote := core.SessionEmote{ImageID: parts[0]}
		for _, span := range strings.Split(parts[1], ",") {
			bounds := strings.SplitN(span, "-", 2)
			if len(bounds) != 2 {
				continue
			}
			start, err1 := strconv.Atoi(bounds[0])
			end, err2 := strconv.Atoi(bounds[1])
			if err1 != nil || err2 != nil || start < 0 || end < start {
				continue
			}
			emote.Ranges = append(emote.Ranges, core.EmoteRange{Start: start, End: end})
		}
		if len(emote.Ranges) > 0 {
			sort.Slice(emote.Ranges, func(i, j int) bool {
				return emote.Ranges[i].Start < emote.Ranges[j].Start
			})
			out = append(out, emote)
		}
	}
	return out
}

// parseBadges decodes the badges tag, e.g. "broadcaster/1,subscriber/12",
// preserving assignment order.
func parseBadges(tag string) []core.BadgeAssignment {
	if tag == "" {
		return nil
	}
	var out []core.BadgeAssignment
	for _, item := range strings.Split(tag, ",") {
		parts := strings.SplitN(item, "/", 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		out = append(out, core.BadgeAssignment{Set: parts[0], Version: parts[1]})
	}
	return out
}

func extractUser(prefix string) string {
	if strings.HasPrefix(prefix, ":") {
		prefix = prefix[1:]
	}
	if idx := strings.Index(prefix, "!"); idx != -1 {
		return prefix[:idx]
	}
	return prefix
}

func unescapeIRC(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 's':
			b.WriteByte(' ')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case ':':
			b.WriteByte(';')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func splitList(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
