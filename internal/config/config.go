package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
)

// Display are the presentation options the pane consumes. They can be
// reloaded at runtime from the options file.
type Display struct {
	MaxMessages            int     `json:"max_messages"`
	AlternatingBackgrounds bool    `json:"alternating_backgrounds"`
	RemoveDeletedMessages  bool    `json:"remove_deleted_messages"`
	MinUserColorLuminance  float64 `json:"min_user_color_luminance"`
	DefaultUserColor       string  `json:"default_user_color"`
}

type TwitchConfig struct {
	Channel      string
	Username     string
	Token        string
	ClientID     string
	ClientSecret string
	TLS          bool
}

type HTTPConfig struct {
	Addr        string
	CORSOrigins []string
	RateRPS     int
	RateBurst   int
}

type Config struct {
	Display     Display
	Twitch      TwitchConfig
	HTTP        HTTPConfig
	OptionsFile string
}

const (
	defaultMaxMessages  = 100
	defaultMinLuminance = 0.3
	defaultUserColor    = "#ffffff"
	defaultHTTPAddr     = ":8780"
)

func Load() Config {
	cfg := Config{}

	cfg.Display.MaxMessages = readInt("STREAMPANE_MAX_MESSAGES", defaultMaxMessages)
	cfg.Display.AlternatingBackgrounds = readBool("STREAMPANE_ALTERNATING_BACKGROUNDS", false)
	cfg.Display.RemoveDeletedMessages = readBool("STREAMPANE_REMOVE_DELETED_MESSAGES", false)
	cfg.Display.MinUserColorLuminance = readFloat("STREAMPANE_MIN_USER_COLOR_LUMINANCE", defaultMinLuminance)
	cfg.Display.DefaultUserColor = readString("STREAMPANE_DEFAULT_USER_COLOR", defaultUserColor)

	cfg.Twitch.Channel = strings.ToLower(readString("STREAMPANE_CHANNEL", ""))
	cfg.Twitch.Username = readString("STREAMPANE_USERNAME", "")
	cfg.Twitch.Token = readString("STREAMPANE_OAUTH_TOKEN", "")
	cfg.Twitch.ClientID = readString("STREAMPANE_CLIENT_ID", "")
	cfg.Twitch.ClientSecret = readString("STREAMPANE_CLIENT_SECRET", "")
	cfg.Twitch.TLS = readBool("STREAMPANE_TLS", true)

	cfg.HTTP.Addr = readString("STREAMPANE_HTTP_ADDR", defaultHTTPAddr)
	cfg.HTTP.CORSOrigins = splitList(os.Getenv("STREAMPANE_HTTP_CORS_ORIGINS"))
	cfg.HTTP.RateRPS = readInt("STREAMPANE_HTTP_RATE_RPS", 20)
	cfg.HTTP.RateBurst = readInt("STREAMPANE_HTTP_RATE_BURST", 40)

	cfg.OptionsFile = readString("STREAMPANE_OPTIONS_FILE", "")

	return cfg
}

// LoadDisplayFile reads the options file and overlays it onto base, keeping
// base values for keys the file omits.
func LoadDisplayFile(path string, base Display) (Display, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	out := base
	if err := json.Unmarshal(data, &out); err != nil {
		return base, err
	}
	out = normalizeDisplay(out)
	return out, nil
}

func normalizeDisplay(d Display) Display {
	if d.MaxMessages <= 0 {
		d.MaxMessages = defaultMaxMessages
	}
	if d.MinUserColorLuminance < 0 || d.MinUserColorLuminance > 1 {
		d.MinUserColorLuminance = defaultMinLuminance
	}
	if strings.TrimSpace(d.DefaultUserColor) == "" {
		d.DefaultUserColor = defaultUserColor
	}
	return d
}

// Validate reports the startup precondition failures. An unset channel is the
// one hard error in this system.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Twitch.Channel) == "" {
		return errNoChannel
	}
	return nil
}

type configError string

func (e configError) Error() string { return string(e) }

const errNoChannel = configError("config: no channel configured")

func (c Config) Redacted() map[string]any {
	return map[string]any{
		"display": c.Display,
		"twitch": map[string]any{
			"channel":       c.Twitch.Channel,
			"username":      c.Twitch.Username,
			"token":         redactString(c.Twitch.Token),
			"client_id":     redactString(c.Twitch.ClientID),
			"client_secret": redactString(c.Twitch.ClientSecret),
			"tls":           c.Twitch.TLS,
		},
		"http": map[string]any{
			"addr":         c.HTTP.Addr,
			"cors_origins": append([]string(nil), c.HTTP.CORSOrigins...),
			"rate_rps":     c.HTTP.RateRPS,
			"rate_burst":   c.HTTP.RateBurst,
		},
		"options_file": c.OptionsFile,
	}
}

func (c Config) RedactedJSON() []byte {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return data
}

func redactString(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return "***REDACTED*** (len=" + strconv.Itoa(len(value)) + ")"
}

func readString(name, def string) string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	return raw
}

func readInt(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func readFloat(name string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || f > 1 {
		return def
	}
	return f
}

func readBool(name string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\t', '\n':
			return true
		}
		return false
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
