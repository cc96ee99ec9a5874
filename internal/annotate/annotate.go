// Package annotate rewrites raw chat text into its decorated transcript form:
// escaped markup, hyperlinks, inline emote images, badges, and a legible
// user color.
package annotate

import (
	"regexp"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/you/streampane/internal/badges"
	"github.com/you/streampane/internal/colorx"
	"github.com/you/streampane/internal/core"
	"github.com/you/streampane/internal/emotes"
)

// Only the first URL in a message is linked; a second one stays plain text.
var urlPattern = regexp.MustCompile(`https?://[-a-zA-Z0-9@:%._+~#=/?&]+`)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// Options are the display knobs consumed by the annotator. They may be
// swapped at runtime by a config reload.
type Options struct {
	Username     string
	DefaultColor string
	MinLuminance float64
}

// Result carries the decorated text plus the flags derived alongside it.
type Result struct {
	Text      string
	Mention   bool
	UserColor string
}

// Annotator decorates message text using the shared emote and badge catalogs.
// Not safe for concurrent option swaps with in-flight annotations; the pane
// serializes both.
type Annotator struct {
	Catalog *emotes.Catalog
	Badges  *badges.Store

	opts Options
}

func New(catalog *emotes.Catalog, badgeStore *badges.Store, opts Options) *Annotator {
	if opts.DefaultColor == "" {
		opts.DefaultColor = "#ffffff"
	}
	return &Annotator{Catalog: catalog, Badges: badgeStore, opts: opts}
}

// SetOptions applies reloaded display options.
func (a *Annotator) SetOptions(opts Options) {
	if opts.DefaultColor == "" {
		opts.DefaultColor = "#ffffff"
	}
	a.opts = opts
}

// Annotate runs the fixed pipeline: escape, hyperlink, official emotes,
// third-party emotes. Escaping and link detection happen exactly once, before
// any substitution, so emote markup is never re-escaped and offsets into the
// original text stay meaningful.
func (a *Annotator) Annotate(raw string, author *core.User, sessionRefs []core.SessionEmote, isOwn bool) Result {
	text := htmlEscaper.Replace(raw)
	text = injectHyperlink(text)

	if isOwn {
		text = a.injectUsableEmotes(text)
	} else {
		text = a.injectSessionEmotes(text, raw, sessionRefs)
	}
	text = a.injectThirdPartyEmotes(text)

	res := Result{
		Text:      text,
		UserColor: a.finalUserColor(author),
	}
	// Literal substring check; a username that happens to be part of a common
	// word will false-positive. Kept as observed behavior.
	if a.opts.Username != "" && strings.Contains(raw, a.opts.Username) {
		res.Mention = true
	}
	return res
}

// RenderBadges emits one badge unit per assignment the catalog knows about,
// preserving assignment order. Unknown sets and versions are skipped.
func (a *Annotator) RenderBadges(user *core.User) string {
	if user == nil || a.Badges == nil {
		return ""
	}
	var b strings.Builder
	for _, assignment := range user.Badges {
		v, ok := a.Badges.Lookup(assignment.Set, assignment.Version)
		if !ok {
			continue
		}
		b.WriteString(`<img class="badge" src="`)
		b.WriteString(v.ImageURL)
		b.WriteString(`" title="`)
		b.WriteString(htmlEscaper.Replace(v.Title))
		b.WriteString(`" /> `)
	}
	return b.String()
}

// finalUserColor resolves the author's color against the configured default
// and lifts it to the minimum luminance so text stays legible on the fixed
// background.
func (a *Annotator) finalUserColor(author *core.User) string {
	color := a.opts.DefaultColor
	if author != nil && author.Color != "" {
		color = author.Color
	}
	clamped, err := colorx.ClampLuminance(color, a.opts.MinLuminance)
	if err != nil {
		clamped, err = colorx.ClampLuminance(a.opts.DefaultColor, a.opts.MinLuminance)
		if err != nil {
			return a.opts.DefaultColor
		}
	}
	return clamped
}

// injectSessionEmotes substitutes official emotes using the server-assigned
// byte ranges. Ranges are evaluated strictly against the original text; the
// covering token is then located by value in the current (already escaped and
// linked) text. A token already replaced no longer matches, so overlapping
// ranges for one code substitute at most once per occurrence.
func (a *Annotator) injectSessionEmotes(text, original string, refs []core.SessionEmote) string {
	if len(refs) == 0 {
		return text
	}
	words := strings.Fields(text)
	changed := false
	for _, ref := range refs {
		for _, r := range ref.Ranges {
			code := sliceUTF16(original, r.Start, r.End)
			if code == "" {
				continue // malformed range: leave the token unsubstituted
			}
			for i, word := range words {
				if word == code {
					words[i] = emoteImage(emotes.OfficialImageURL(ref.ImageID))
					changed = true
				}
			}
		}
	}
	if !changed {
		return text
	}
	return strings.Join(words, " ")
}

// injectUsableEmotes resolves official emotes by whole-token catalog lookup.
// Used for the local user's own echoes, which carry no ranges.
func (a *Annotator) injectUsableEmotes(text string) string {
	words := strings.Fields(text)
	changed := false
	for i, word := range words {
		if id, ok := a.Catalog.LookupUsable(word); ok {
			words[i] = emoteImage(emotes.OfficialImageURL(id))
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(words, " ")
}

func (a *Annotator) injectThirdPartyEmotes(text string) string {
	words := strings.Fields(text)
	changed := false
	for i, word := range words {
		if url, ok := a.Catalog.LookupThirdParty(word); ok {
			words[i] = emoteImage(url)
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(words, " ")
}

func injectHyperlink(text string) string {
	loc := urlPattern.FindStringIndex(text)
	if loc == nil {
		return text
	}
	url := text[loc[0]:loc[1]]
	return text[:loc[0]] + `<a href="` + url + `" target="_blank">` + url + `</a>` + text[loc[1]:]
}

func emoteImage(url string) string {
	return `<span class="emoticon-wrapper"><img class="emoticon" src="` + url + `"></span>`
}

// sliceUTF16 extracts the inclusive [start, end] span measured in UTF-16 code
// units, the unit the transport counts emote positions in. Out-of-bounds or
// inverted spans yield "".
func sliceUTF16(s string, start, end int) string {
	if start < 0 || end < start {
		return ""
	}
	units := utf16.Encode([]rune(s))
	if start >= len(units) {
		return ""
	}
	if end >= len(units) {
		end = len(units) - 1
	}
	decoded := utf16.Decode(units[start : end+1])
	if len(decoded) > 0 && decoded[len(decoded)-1] == utf8.RuneError {
		// Range split a surrogate pair; treat as malformed.
		return ""
	}
	return string(decoded)
}
