package emotes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/you/streampane/internal/core"
)

var (
	helixBaseURL      = "https://api.twitch.tv/helix"
	emoteSetPath      = "/chat/emotes/set"
	emoteGlobalPath   = "/chat/emotes/global"
	thirdPartyBaseURL = "https://api.betterttv.net/2/channels"
)

// Provider fetches the official emote namespaces. Failures are returned to
// the scheduler, which logs and retries on the next cycle; nothing here is
// fatal to the renderer.
type Provider struct {
	ClientID string
	Token    string
	HTTP     *http.Client
}

type helixEmoteResponse struct {
	Data []helixEmote `json:"data"`
}

type helixEmote struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	EmoteSetID string `json:"emote_set_id"`
}

// FetchSessionSets loads the emote sets the local user is subscribed to,
// keyed by set id.
func (p *Provider) FetchSessionSets(ctx context.Context, setIDs []string) (map[string][]core.EmoteDef, error) {
	if len(setIDs) == 0 {
		return map[string][]core.EmoteDef{}, nil
	}

	q := url.Values{}
	for _, id := range setIDs {
		if strings.TrimSpace(id) != "" {
			q.Add("emote_set_id", strings.TrimSpace(id))
		}
	}
	endpoint := strings.TrimSuffix(helixBaseURL, "/") + emoteSetPath + "?" + q.Encode()

	var parsed helixEmoteResponse
	if err := p.getJSON(ctx, endpoint, &parsed); err != nil {
		return nil, errors.Wrap(err, "fetch emote sets")
	}

	sets := map[string][]core.EmoteDef{}
	for _, e := range parsed.Data {
		if e.Name == "" || e.ID == "" {
			continue
		}
		sets[e.EmoteSetID] = append(sets[e.EmoteSetID], core.EmoteDef{Code: e.Name, ImageID: e.ID})
	}
	return sets, nil
}

// FetchOfficialCatalog loads the globally available official emotes.
func (p *Provider) FetchOfficialCatalog(ctx context.Context) ([]core.EmoteDef, error) {
	endpoint := strings.TrimSuffix(helixBaseURL, "/") + emoteGlobalPath

	var parsed helixEmoteResponse
	if err := p.getJSON(ctx, endpoint, &parsed); err != nil {
		return nil, errors.Wrap(err, "fetch global emotes")
	}

	defs := make([]core.EmoteDef, 0, len(parsed.Data))
	for _, e := range parsed.Data {
		if e.Name == "" || e.ID == "" {
			continue
		}
		defs = append(defs, core.EmoteDef{Code: e.Name, ImageID: e.ID})
	}
	return defs, nil
}

func (p *Provider) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimPrefix(p.Token, "oauth:"))
	}
	if p.ClientID != "" {
		req.Header.Set("Client-Id", p.ClientID)
	}

	resp, err := p.httpClient().Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return errors.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response")
}

func (p *Provider) httpClient() *http.Client {
	if p.HTTP != nil {
		return p.HTTP
	}
	return http.DefaultClient
}

// ThirdPartyProvider fetches the independently maintained external catalog
// for one channel.
type ThirdPartyProvider struct {
	HTTP *http.Client
}

type thirdPartyResponse struct {
	URLTemplate string `json:"urlTemplate"`
	Emotes      []struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	} `json:"emotes"`
}

// Fetch loads the third-party catalog for channel, returning the emotes and
// the image URL template they resolve through.
func (p *ThirdPartyProvider) Fetch(ctx context.Context, channel string) ([]ThirdPartyEmote, string, error) {
	endpoint := strings.TrimSuffix(thirdPartyBaseURL, "/") + "/" + url.PathEscape(strings.ToLower(channel))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	client := p.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.Errorf("status %d", resp.StatusCode)
	}

	var parsed thirdPartyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, "", errors.Wrap(err, "decode response")
	}

	out := make([]ThirdPartyEmote, 0, len(parsed.Emotes))
	for _, e := range parsed.Emotes {
		if e.Code == "" || e.ID == "" {
			continue
		}
		out = append(out, ThirdPartyEmote{Code: e.Code, ImageID: e.ID})
	}
	return out, parsed.URLTemplate, nil
}
