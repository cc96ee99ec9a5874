package core

// MessageKind classifies an entry in the transcript.
type MessageKind string

const (
	KindChat         MessageKind = "chat"
	KindAction       MessageKind = "action"
	KindSystem       MessageKind = "system"
	KindSubscription MessageKind = "subscription"
)

// EmoteSource identifies which catalog an emote reference came from.
type EmoteSource string

const (
	SourceOfficialSession EmoteSource = "official-session"
	SourceOfficialCatalog EmoteSource = "official-catalog"
	SourceThirdParty      EmoteSource = "third-party"
)

// BadgeAssignment is one (set, version) pair carried on a user's message tags.
// Order matters: badges render in assignment order.
type BadgeAssignment struct {
	Set     string
	Version string
}

// User is the per-message snapshot of the author. A user's color and badges
// may differ between two of their messages; each ChatMessage owns its copy.
type User struct {
	Username     string
	DisplayName  string
	Color        string // hex, empty when the user never picked one
	Badges       []BadgeAssignment
	IsSubscriber bool
	IsModerator  bool
	IsSelf       bool
}

// EmoteRange is an inclusive [Start, End] span in UTF-16 code units into the
// original, unmodified message text.
type EmoteRange struct {
	Start int
	End   int
}

// SessionEmote is a server-assigned emote reference delivered with a single
// message: an image id plus the ranges it covers in the raw text.
type SessionEmote struct {
	ImageID string
	Ranges  []EmoteRange
}

// EmoteDef is one usable emote: the literal code matched in text and the
// image id it resolves to.
type EmoteDef struct {
	Code    string
	ImageID string
}

// ChatMessage is one resolved transcript entry. Timestamp is epoch millis and
// is never absent once stored; Username+Timestamp form the entry's identity.
type ChatMessage struct {
	Username      string
	Timestamp     int64
	Kind          MessageKind
	Author        *User
	RawText       string
	AnnotatedText string
	Visible       bool
	Mention       bool
	UserColor     string
	BadgesHTML    string
	AlternatingBG bool
}

// RenderedMessage is the wire shape pushed to stream clients.
type RenderedMessage struct {
	ID            string `json:"id"`
	Time          string `json:"time"`
	Kind          string `json:"kind"`
	Username      string `json:"username,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	UserColor     string `json:"user_color,omitempty"`
	BadgesHTML    string `json:"badges_html,omitempty"`
	Text          string `json:"text"`
	Mention       bool   `json:"mention,omitempty"`
	Hidden        bool   `json:"hidden,omitempty"`
	AlternatingBG bool   `json:"alternating_bg,omitempty"`
}

// BadgeVersion is one displayable badge image.
type BadgeVersion struct {
	Title    string
	ImageURL string
}

// BadgeSet groups badge versions under one set id (e.g. "subscriber").
type BadgeSet struct {
	Versions map[string]BadgeVersion
}

// BadgeCatalog maps badge-set id to its known versions.
type BadgeCatalog map[string]BadgeSet
