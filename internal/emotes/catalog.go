// Package emotes merges the three emote namespaces (session sets, official
// catalog, third-party) behind one read-mostly store.
package emotes

import (
	"sort"
	"strings"
	"sync"

	"github.com/you/streampane/internal/core"
)

const officialImageURLTemplate = "https://static-cdn.jtvnw.net/emoticons/v1/{{id}}/1.0"

// ThirdPartyEmote is one entry of an external catalog, resolved through the
// catalog's URL template.
type ThirdPartyEmote struct {
	Code    string
	ImageID string
}

// Catalog is the process-wide emote store. Refreshes replace whole namespaces
// with last-write-wins semantics; a stale refresh overwriting newer data is an
// accepted limitation of the periodic providers.
type Catalog struct {
	mu sync.Mutex

	sessionSets map[string][]core.EmoteDef
	official    map[string]string // code -> image id
	thirdParty  map[string]ThirdPartyEmote
	tpTemplate  string
}

func NewCatalog() *Catalog {
	return &Catalog{
		sessionSets: map[string][]core.EmoteDef{},
		official:    map[string]string{},
		thirdParty:  map[string]ThirdPartyEmote{},
	}
}

// SetSessionSets replaces the emote sets the local user is subscribed to.
func (c *Catalog) SetSessionSets(sets map[string][]core.EmoteDef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sets == nil {
		sets = map[string][]core.EmoteDef{}
	}
	c.sessionSets = sets
}

// SetOfficialCatalog replaces the globally available official emotes.
func (c *Catalog) SetOfficialCatalog(defs []core.EmoteDef) {
	m := make(map[string]string, len(defs))
	for _, d := range defs {
		if d.Code != "" {
			m[d.Code] = d.ImageID
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.official = m
}

// SetThirdParty replaces the third-party catalog and its URL template.
func (c *Catalog) SetThirdParty(emotes []ThirdPartyEmote, urlTemplate string) {
	m := make(map[string]ThirdPartyEmote, len(emotes))
	for _, e := range emotes {
		if e.Code != "" {
			m[e.Code] = e
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thirdParty = m
	c.tpTemplate = urlTemplate
}

// LookupUsable resolves code against the local user's session sets, then the
// official catalog. Used for outbound echoes, which carry no byte ranges.
func (c *Catalog) LookupUsable(code string) (imageID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, defs := range c.sessionSets {
		for _, d := range defs {
			if d.Code == code {
				return d.ImageID, true
			}
		}
	}
	id, ok := c.official[code]
	return id, ok
}

// LookupThirdParty resolves code against the third-party catalog, returning
// the final image URL.
func (c *Catalog) LookupThirdParty(code string) (url string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.thirdParty[code]
	if !ok {
		return "", false
	}
	return expandTemplate(c.tpTemplate, e.ImageID), true
}

// OfficialImageURL renders the CDN URL for an official emote image id.
func OfficialImageURL(imageID string) string {
	return strings.Replace(officialImageURLTemplate, "{{id}}", imageID, 1)
}

// UsableCodes lists every code the local user can type: subscribed session
// sets plus the third-party catalog (third-party emotes render for everyone).
// The official global catalog is deliberately absent: it is a rendering
// fallback for ranges and echoes, not a send namespace. The list is sorted so
// the autocomplete engine cycles candidates in a stable order.
func (c *Catalog) UsableCodes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	seen := map[string]struct{}{}
	add := func(code string) {
		if code == "" {
			return
		}
		if _, dup := seen[code]; dup {
			return
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	for _, defs := range c.sessionSets {
		for _, d := range defs {
			add(d.Code)
		}
	}
	for code := range c.thirdParty {
		add(code)
	}
	sort.Strings(out)
	return out
}

func expandTemplate(template, id string) string {
	if template == "" {
		return ""
	}
	url := strings.Replace(template, "{{id}}", id, 1)
	url = strings.Replace(url, "{{image}}", "1x", 1)
	if strings.HasPrefix(url, "//") {
		url = "https:" + url
	}
	return url
}
