package annotate

import (
	"strings"
	"testing"

	"github.com/you/streampane/internal/badges"
	"github.com/you/streampane/internal/core"
	"github.com/you/streampane/internal/emotes"
)

func newTestAnnotator() *Annotator {
	catalog := emotes.NewCatalog()
	catalog.SetSessionSets(map[string][]core.EmoteDef{
		"0": {{Code: "Kappa", ImageID: "25"}},
	})
	catalog.SetThirdParty([]emotes.ThirdPartyEmote{{Code: "FeelsGoodMan", ImageID: "tp1"}}, "//cdn.example/{{id}}/{{image}}")

	store := badges.NewStore()
	store.Merge(core.BadgeCatalog{
		"moderator": {Versions: map[string]core.BadgeVersion{
			"1": {Title: "Moderator", ImageURL: "https://cdn/mod.png"},
		}},
		"subscriber": {Versions: map[string]core.BadgeVersion{
			"12": {Title: "Subscriber", ImageURL: "https://cdn/sub.png"},
		}},
	})

	return New(catalog, store, Options{
		Username:     "panebot",
		DefaultColor: "#ffffff",
		MinLuminance: 0.3,
	})
}

func TestEscapesMarkup(t *testing.T) {
	a := newTestAnnotator()
	res := a.Annotate(`<b>hi & "bye" 'x'</b>`, nil, nil, false)
	want := "&lt;b&gt;hi &amp; &quot;bye&quot; &#039;x&#039;&lt;/b&gt;"
	if res.Text != want {
		t.Fatalf("got %q, want %q", res.Text, want)
	}
}

func TestHyperlinksFirstURLOnly(t *testing.T) {
	a := newTestAnnotator()
	res := a.Annotate("see https://example.com/a and https://example.com/b", nil, nil, false)
	if !strings.Contains(res.Text, `<a href="https://example.com/a" target="_blank">https://example.com/a</a>`) {
		t.Fatalf("first url not linked: %q", res.Text)
	}
	if strings.Count(res.Text, "<a href=") != 1 {
		t.Fatalf("expected exactly one link: %q", res.Text)
	}
}

func TestSessionEmotesByRange(t *testing.T) {
	a := newTestAnnotator()
	// "Kappa hello Kappa" — ranges cover both occurrences of the code.
	refs := []core.SessionEmote{{
		ImageID: "25",
		Ranges:  []core.EmoteRange{{Start: 0, End: 4}, {Start: 12, End: 16}},
	}}
	res := a.Annotate("Kappa hello Kappa", &core.User{Username: "alice"}, refs, false)
	if strings.Contains(res.Text, "Kappa") {
		t.Fatalf("emote token survived: %q", res.Text)
	}
	if strings.Count(res.Text, "emoticons/v1/25/1.0") != 2 {
		t.Fatalf("expected two substitutions: %q", res.Text)
	}
	if !strings.Contains(res.Text, "hello") {
		t.Fatalf("plain word lost: %q", res.Text)
	}
}

func TestSessionEmoteRangesUseOriginalText(t *testing.T) {
	a := newTestAnnotator()
	// The link pass rewrites the text before emote substitution; the range
	// still points into the original raw text.
	raw := "https://x.io Kappa"
	refs := []core.SessionEmote{{ImageID: "25", Ranges: []core.EmoteRange{{Start: 13, End: 17}}}}
	res := a.Annotate(raw, nil, refs, false)
	if !strings.Contains(res.Text, "emoticons/v1/25/1.0") {
		t.Fatalf("emote not substituted: %q", res.Text)
	}
	if !strings.Contains(res.Text, `<a href="https://x.io"`) {
		t.Fatalf("link lost: %q", res.Text)
	}
}

func TestSessionEmoteRangesCountUTF16Units(t *testing.T) {
	a := newTestAnnotator()
	// "🎉" occupies two UTF-16 code units, so Kappa starts at unit 3.
	raw := "🎉 Kappa"
	refs := []core.SessionEmote{{ImageID: "25", Ranges: []core.EmoteRange{{Start: 3, End: 7}}}}
	res := a.Annotate(raw, nil, refs, false)
	if !strings.Contains(res.Text, "emoticons/v1/25/1.0") {
		t.Fatalf("emote not substituted: %q", res.Text)
	}
}

func TestMalformedRangeLeavesTokenAlone(t *testing.T) {
	a := newTestAnnotator()
	refs := []core.SessionEmote{{ImageID: "25", Ranges: []core.EmoteRange{{Start: 50, End: 60}}}}
	res := a.Annotate("Kappa", nil, refs, false)
	if !strings.Contains(res.Text, "Kappa") {
		t.Fatalf("token should be untouched: %q", res.Text)
	}
}

func TestOwnMessagesResolveByCatalog(t *testing.T) {
	a := newTestAnnotator()
	res := a.Annotate("Kappa hi", &core.User{Username: "panebot", IsSelf: true}, nil, true)
	if !strings.Contains(res.Text, "emoticons/v1/25/1.0") {
		t.Fatalf("own echo emote not substituted: %q", res.Text)
	}
}

func TestThirdPartyByTokenEquality(t *testing.T) {
	a := newTestAnnotator()
	res := a.Annotate("FeelsGoodMan but notFeelsGoodMan", nil, nil, false)
	if strings.Count(res.Text, "cdn.example/tp1/1x") != 1 {
		t.Fatalf("expected whole-token match only: %q", res.Text)
	}
	if !strings.Contains(res.Text, "notFeelsGoodMan") {
		t.Fatalf("partial token must survive: %q", res.Text)
	}
}

func TestAnnotateIdempotentOnNonMatchingText(t *testing.T) {
	a := newTestAnnotator()
	first := a.Annotate("hello world", nil, nil, false)
	second := a.Annotate(first.Text, nil, nil, false)
	if second.Text != first.Text {
		t.Fatalf("second pass changed text: %q vs %q", first.Text, second.Text)
	}
}

func TestMentionIsLiteralSubstring(t *testing.T) {
	a := newTestAnnotator()
	if !a.Annotate("hey panebot!", nil, nil, false).Mention {
		t.Fatal("expected mention")
	}
	// Substring match, not word-boundary aware.
	if !a.Annotate("xpanebotx", nil, nil, false).Mention {
		t.Fatal("substring occurrence still counts")
	}
	// Case-sensitive.
	if a.Annotate("hey PANEBOT", nil, nil, false).Mention {
		t.Fatal("mention detection is case-sensitive")
	}
}

func TestFinalUserColor(t *testing.T) {
	a := newTestAnnotator()

	// White at min luminance 0.3 is untouched.
	res := a.Annotate("hello world", &core.User{Color: "#ffffff"}, nil, false)
	if res.UserColor != "#ffffff" {
		t.Fatalf("white should pass through, got %s", res.UserColor)
	}
	// Missing color falls back to the default.
	res = a.Annotate("hi", &core.User{}, nil, false)
	if res.UserColor != "#ffffff" {
		t.Fatalf("default color expected, got %s", res.UserColor)
	}
	// Too-dark colors get lifted.
	res = a.Annotate("hi", &core.User{Color: "#000000"}, nil, false)
	if res.UserColor == "#000000" {
		t.Fatal("black must be clamped")
	}
	// Garbage colors resolve like missing ones.
	res = a.Annotate("hi", &core.User{Color: "chartreuse"}, nil, false)
	if res.UserColor != "#ffffff" {
		t.Fatalf("malformed color should fall back, got %s", res.UserColor)
	}
}

func TestRenderBadgesOrderAndSkips(t *testing.T) {
	a := newTestAnnotator()
	user := &core.User{
		Badges: []core.BadgeAssignment{
			{Set: "subscriber", Version: "12"},
			{Set: "vip", Version: "1"},       // unknown set: skipped
			{Set: "subscriber", Version: "99"}, // unknown version: skipped
			{Set: "moderator", Version: "1"},
		},
	}
	html := a.RenderBadges(user)
	subIdx := strings.Index(html, "cdn/sub.png")
	modIdx := strings.Index(html, "cdn/mod.png")
	if subIdx == -1 || modIdx == -1 {
		t.Fatalf("known badges missing: %q", html)
	}
	if subIdx > modIdx {
		t.Fatalf("assignment order not preserved: %q", html)
	}
	if strings.Count(html, "<img") != 2 {
		t.Fatalf("unknown badges must be skipped: %q", html)
	}
}
