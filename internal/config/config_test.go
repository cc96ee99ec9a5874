package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key := strings.SplitN(kv, "=", 2)[0]
		if strings.HasPrefix(key, "STREAMPANE_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	if cfg.Display.MaxMessages != 100 {
		t.Fatalf("max messages default: %d", cfg.Display.MaxMessages)
	}
	if cfg.Display.MinUserColorLuminance != 0.3 {
		t.Fatalf("luminance default: %f", cfg.Display.MinUserColorLuminance)
	}
	if cfg.Display.DefaultUserColor != "#ffffff" {
		t.Fatalf("color default: %s", cfg.Display.DefaultUserColor)
	}
	if !cfg.Twitch.TLS {
		t.Fatal("TLS should default on")
	}
	if cfg.HTTP.Addr != ":8780" {
		t.Fatalf("http addr default: %s", cfg.HTTP.Addr)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("STREAMPANE_CHANNEL", "SomeChannel")
	t.Setenv("STREAMPANE_USERNAME", "panebot")
	t.Setenv("STREAMPANE_MAX_MESSAGES", "42")
	t.Setenv("STREAMPANE_ALTERNATING_BACKGROUNDS", "true")
	t.Setenv("STREAMPANE_MIN_USER_COLOR_LUMINANCE", "0.5")
	t.Setenv("STREAMPANE_HTTP_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()
	if cfg.Twitch.Channel != "somechannel" {
		t.Fatalf("channel should lowercase: %s", cfg.Twitch.Channel)
	}
	if cfg.Display.MaxMessages != 42 || !cfg.Display.AlternatingBackgrounds {
		t.Fatalf("display options not read: %+v", cfg.Display)
	}
	if cfg.Display.MinUserColorLuminance != 0.5 {
		t.Fatalf("luminance not read: %f", cfg.Display.MinUserColorLuminance)
	}
	if len(cfg.HTTP.CORSOrigins) != 2 {
		t.Fatalf("cors origins: %v", cfg.HTTP.CORSOrigins)
	}
}

func TestLoadRejectsOutOfRangeValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("STREAMPANE_MAX_MESSAGES", "-5")
	t.Setenv("STREAMPANE_MIN_USER_COLOR_LUMINANCE", "1.5")

	cfg := Load()
	if cfg.Display.MaxMessages != 100 {
		t.Fatalf("negative max should fall back: %d", cfg.Display.MaxMessages)
	}
	if cfg.Display.MinUserColorLuminance != 0.3 {
		t.Fatalf("out-of-range luminance should fall back: %f", cfg.Display.MinUserColorLuminance)
	}
}

func TestValidateRequiresChannel(t *testing.T) {
	clearEnv(t)
	cfg := Load()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing channel")
	}
	cfg.Twitch.Channel = "somechannel"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRedactedHidesSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("STREAMPANE_OAUTH_TOKEN", "oauth:supersecret")
	cfg := Load()

	data := string(cfg.RedactedJSON())
	if strings.Contains(data, "supersecret") {
		t.Fatal("token leaked into redacted output")
	}
	if !strings.Contains(data, "REDACTED") {
		t.Fatal("expected redaction marker")
	}
}

func TestLoadDisplayFileOverlaysBase(t *testing.T) {
	base := Display{
		MaxMessages:           100,
		MinUserColorLuminance: 0.3,
		DefaultUserColor:      "#ffffff",
	}

	path := filepath.Join(t.TempDir(), "options.json")
	if err := os.WriteFile(path, []byte(`{"max_messages": 25, "alternating_backgrounds": true}`), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := LoadDisplayFile(path, base)
	if err != nil {
		t.Fatal(err)
	}
	if got.MaxMessages != 25 || !got.AlternatingBackgrounds {
		t.Fatalf("file values not applied: %+v", got)
	}
	if got.MinUserColorLuminance != 0.3 || got.DefaultUserColor != "#ffffff" {
		t.Fatalf("omitted keys should keep base values: %+v", got)
	}
}

func TestLoadDisplayFileBadJSONKeepsBase(t *testing.T) {
	base := Display{MaxMessages: 100, DefaultUserColor: "#ffffff"}
	path := filepath.Join(t.TempDir(), "options.json")
	if err := os.WriteFile(path, []byte(`{nope`), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := LoadDisplayFile(path, base)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if got != base {
		t.Fatalf("base should be returned on error: %+v", got)
	}
}
