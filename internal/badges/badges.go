// Package badges maintains the badge catalog (set -> version -> image) and
// its periodic provider.
package badges

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/you/streampane/internal/core"
)

var (
	helixBaseURL     = "https://api.twitch.tv/helix"
	oauthTokenURL    = "https://id.twitch.tv/oauth2/token"
	badgeGlobalPath  = "/chat/badges/global"
	badgeChannelPath = "/chat/badges"
)

// Store is the shared badge catalog. Refreshes merge global and channel sets;
// a whole refresh replaces prior data for the same scope (last write wins).
type Store struct {
	mu      sync.Mutex
	catalog core.BadgeCatalog
}

func NewStore() *Store {
	return &Store{catalog: core.BadgeCatalog{}}
}

// Merge folds sets into the catalog, overwriting versions that reappear.
func (s *Store) Merge(sets core.BadgeCatalog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for setID, set := range sets {
		existing, ok := s.catalog[setID]
		if !ok {
			existing = core.BadgeSet{Versions: map[string]core.BadgeVersion{}}
		}
		for version, v := range set.Versions {
			existing.Versions[version] = v
		}
		s.catalog[setID] = existing
	}
}

// Lookup returns the badge for a (set, version) pair. Unknown sets or
// versions are a silent miss, never an error.
func (s *Store) Lookup(set, version string) (core.BadgeVersion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bs, ok := s.catalog[set]
	if !ok {
		return core.BadgeVersion{}, false
	}
	v, ok := bs.Versions[version]
	return v, ok
}

// Snapshot copies the current catalog.
func (s *Store) Snapshot() core.BadgeCatalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(core.BadgeCatalog, len(s.catalog))
	for setID, set := range s.catalog {
		versions := make(map[string]core.BadgeVersion, len(set.Versions))
		for version, v := range set.Versions {
			versions[version] = v
		}
		out[setID] = core.BadgeSet{Versions: versions}
	}
	return out
}

// Provider fetches badge sets with an app token, caching the token until it
// expires.
type Provider struct {
	ClientID     string
	ClientSecret string
	HTTP         *http.Client

	mu    sync.Mutex
	token string
	exp   time.Time
}

type helixBadgeResponse struct {
	Data []struct {
		SetID    string `json:"set_id"`
		Versions []struct {
			ID         string `json:"id"`
			Title      string `json:"title"`
			ImageURL1x string `json:"image_url_1x"`
		} `json:"versions"`
	} `json:"data"`
}

// FetchGlobal loads the globally defined badge sets.
func (p *Provider) FetchGlobal(ctx context.Context) (core.BadgeCatalog, error) {
	endpoint := strings.TrimSuffix(helixBaseURL, "/") + badgeGlobalPath
	return p.fetch(ctx, endpoint)
}

// FetchChannel loads the channel-specific badge sets (e.g. subscriber tiers).
func (p *Provider) FetchChannel(ctx context.Context, broadcasterID string) (core.BadgeCatalog, error) {
	if strings.TrimSpace(broadcasterID) == "" {
		return nil, errors.New("broadcaster id required")
	}
	endpoint := strings.TrimSuffix(helixBaseURL, "/") + badgeChannelPath +
		"?broadcaster_id=" + url.QueryEscape(broadcasterID)
	return p.fetch(ctx, endpoint)
}

func (p *Provider) fetch(ctx context.Context, endpoint string) (core.BadgeCatalog, error) {
	token, err := p.appToken(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "app token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Client-Id", strings.TrimSpace(p.ClientID))

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, errors.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed helixBadgeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}

	catalog := core.BadgeCatalog{}
	for _, set := range parsed.Data {
		if set.SetID == "" {
			continue
		}
		versions := map[string]core.BadgeVersion{}
		for _, v := range set.Versions {
			if v.ID == "" || v.ImageURL1x == "" {
				continue
			}
			versions[v.ID] = core.BadgeVersion{Title: v.Title, ImageURL: v.ImageURL1x}
		}
		if len(versions) > 0 {
			catalog[set.SetID] = core.BadgeSet{Versions: versions}
		}
	}
	return catalog, nil
}

func (p *Provider) appToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.token != "" && time.Now().Before(p.exp) {
		token := p.token
		p.mu.Unlock()
		return token, nil
	}
	p.mu.Unlock()

	form := url.Values{}
	form.Set("client_id", strings.TrimSpace(p.ClientID))
	form.Set("client_secret", strings.TrimSpace(p.ClientSecret))
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, oauthTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return "", errors.Wrap(err, "request token")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("token status %d", resp.StatusCode)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", errors.Wrap(err, "decode token")
	}
	token := strings.TrimSpace(parsed.AccessToken)
	if token == "" {
		return "", errors.New("empty access_token")
	}

	expiresIn := time.Duration(parsed.ExpiresIn) * time.Second
	if parsed.ExpiresIn <= 0 {
		expiresIn = time.Hour
	}

	p.mu.Lock()
	p.token = token
	p.exp = time.Now().Add(expiresIn)
	p.mu.Unlock()

	return token, nil
}

func (p *Provider) httpClient() *http.Client {
	if p.HTTP != nil {
		return p.HTTP
	}
	return http.DefaultClient
}
