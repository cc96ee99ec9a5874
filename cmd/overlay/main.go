package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/you/streampane/internal/annotate"
	"github.com/you/streampane/internal/badges"
	"github.com/you/streampane/internal/config"
	"github.com/you/streampane/internal/emotes"
	"github.com/you/streampane/internal/httpapi"
	"github.com/you/streampane/internal/pane"
	"github.com/you/streampane/internal/sched"
	"github.com/you/streampane/internal/twitchirc"
	"github.com/you/streampane/internal/version"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		versionFlag     bool
		channel         string
		username        string
		token           string
		clientID        string
		clientSecret    string
		useTLS          bool
		optionsFile     string
		maxMessages     int
		httpAddr        string
		httpCorsOrigins string
		httpRateRPS     int
		httpRateBurst   int
	)

	flag.BoolVar(&versionFlag, "version", false, "Print build version and exit")
	flag.StringVar(&channel, "channel", "", "Twitch channel to join (without #)")
	flag.StringVar(&username, "username", "", "Twitch nickname to login as")
	flag.StringVar(&token, "oauth-token", "", "Twitch OAuth token (format: oauth:xxxxx)")
	flag.StringVar(&clientID, "client-id", "", "Twitch application client ID")
	flag.StringVar(&clientSecret, "client-secret", "", "Twitch application client secret")
	flag.BoolVar(&useTLS, "tls", true, "Use TLS (port 6697) for the chat connection")
	flag.StringVar(&optionsFile, "options-file", "", "Path to the JSON display options file (watched for changes)")
	flag.IntVar(&maxMessages, "max-messages", 0, "Maximum number of buffered messages")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address (e.g., :8780)")
	flag.StringVar(&httpCorsOrigins, "http-cors-origins", "", "Comma-separated list of allowed CORS origins")
	flag.IntVar(&httpRateRPS, "http-rate-rps", 20, "Maximum HTTP requests per second per client")
	flag.IntVar(&httpRateBurst, "http-rate-burst", 40, "Burst size for HTTP rate limiter")
	flag.Parse()

	if versionFlag {
		fmt.Printf(
			"overlay version: %s (commit %s, built %s)\n",
			version.Version,
			version.Commit,
			version.BuildTime,
		)
		os.Exit(0)
	}

	overrides := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		overrides[f.Name] = true
	})

	cfg := config.Load()

	if overrides["channel"] {
		cfg.Twitch.Channel = strings.ToLower(strings.TrimSpace(channel))
	}
	if overrides["username"] {
		cfg.Twitch.Username = strings.TrimSpace(username)
	}
	if overrides["oauth-token"] {
		cfg.Twitch.Token = strings.TrimSpace(token)
	}
	if overrides["client-id"] {
		cfg.Twitch.ClientID = strings.TrimSpace(clientID)
	}
	if overrides["client-secret"] {
		cfg.Twitch.ClientSecret = strings.TrimSpace(clientSecret)
	}
	if overrides["tls"] {
		cfg.Twitch.TLS = useTLS
	}
	if overrides["options-file"] {
		cfg.OptionsFile = strings.TrimSpace(optionsFile)
	}
	if overrides["max-messages"] && maxMessages > 0 {
		cfg.Display.MaxMessages = maxMessages
	}
	if overrides["http-addr"] {
		cfg.HTTP.Addr = strings.TrimSpace(httpAddr)
	}
	if overrides["http-cors-origins"] {
		cfg.HTTP.CORSOrigins = nil
		for _, origin := range strings.Split(httpCorsOrigins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.HTTP.CORSOrigins = append(cfg.HTTP.CORSOrigins, origin)
			}
		}
	}
	if overrides["http-rate-rps"] {
		cfg.HTTP.RateRPS = httpRateRPS
	}
	if overrides["http-rate-burst"] {
		cfg.HTTP.RateBurst = httpRateBurst
	}

	if cfg.OptionsFile != "" {
		display, err := config.LoadDisplayFile(cfg.OptionsFile, cfg.Display)
		if err != nil {
			log.Printf("overlay: options file: %v", err)
		} else {
			cfg.Display = display
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("overlay: %v", err)
	}

	log.Printf("%s", cfg.RedactedJSON())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("overlay: received %s, shutting down", sig)
		cancel()
	}()

	catalog := emotes.NewCatalog()
	badgeStore := badges.NewStore()
	annotator := annotate.New(catalog, badgeStore, annotate.Options{
		Username:     cfg.Twitch.Username,
		DefaultColor: cfg.Display.DefaultUserColor,
		MinLuminance: cfg.Display.MinUserColorLuminance,
	})

	var client *twitchirc.Client
	send := func(text string) error {
		if client == nil {
			return errors.New("overlay: chat transport not started")
		}
		return client.Say(ctx, text)
	}

	view := pane.New(catalog, annotator, cfg.Display, send)
	view.SetLocalUsername(cfg.Twitch.Username)

	build := httpapi.BuildInfo{Version: version.Version, Revision: version.Commit}
	if version.BuildTime != "" && version.BuildTime != "unknown" {
		if t, err := time.Parse(time.RFC3339, version.BuildTime); err == nil {
			build.BuiltAt = t
		}
	}

	api := httpapi.New(view, httpapi.Options{
		Addr:        cfg.HTTP.Addr,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		RateRPS:     cfg.HTTP.RateRPS,
		RateBurst:   cfg.HTTP.RateBurst,
		Build:       build,
	})
	view.Broadcast = api.Broadcast

	emoteProvider := &emotes.Provider{ClientID: cfg.Twitch.ClientID, Token: cfg.Twitch.Token}
	thirdParty := &emotes.ThirdPartyProvider{}
	badgeProvider := &badges.Provider{ClientID: cfg.Twitch.ClientID, ClientSecret: cfg.Twitch.ClientSecret}
	helixEnabled := cfg.Twitch.ClientID != ""

	// The emote sets the session can use arrive on USERSTATE; keep the latest
	// ids for the periodic refresh to re-fetch.
	var sessionMu sync.Mutex
	var sessionSetIDs []string

	var broadcasterOnce sync.Once

	events := twitchirc.Events{
		Message: func(m twitchirc.InboundMessage) {
			user := m.User
			if m.Action {
				view.AppendActionMessage(m.Timestamp, &user, m.Text, m.Emotes)
			} else {
				view.AppendChatMessage(m.Timestamp, &user, m.Text, m.Emotes)
			}
		},
		Join: func(joined, user string, self bool) {
			if self {
				view.AppendSystemMessage("joined #" + joined)
			}
		},
		ClearUser: func(_, user string, seconds int) {
			view.HideMessagesOfUser(user)
		},
		Subscription: func(_ string, notice twitchirc.SubNotice) {
			view.AppendSubscriptionMessage(notice.User, pane.SubEvent{
				Resub:   notice.Resub,
				Months:  notice.Months,
				Prime:   notice.Prime,
				Message: notice.Message,
			})
		},
		RoomState: func(_, roomID string) {
			if !helixEnabled || cfg.Twitch.ClientSecret == "" {
				return
			}
			broadcasterOnce.Do(func() {
				sched.Repeat(ctx, "channel badges", time.Hour, func(tctx context.Context) error {
					sets, err := badgeProvider.FetchChannel(tctx, roomID)
					if err != nil {
						return err
					}
					badgeStore.Merge(sets)
					return nil
				})
			})
		},
		EmoteSets: func(setIDs []string) {
			sessionMu.Lock()
			sessionSetIDs = setIDs
			sessionMu.Unlock()
			if !helixEnabled {
				return
			}
			go func() {
				fctx, fcancel := context.WithTimeout(ctx, 30*time.Second)
				defer fcancel()
				sets, err := emoteProvider.FetchSessionSets(fctx, setIDs)
				if err != nil {
					slog.Error("overlay: fetch session emote sets", "err", err)
					return
				}
				catalog.SetSessionSets(sets)
			}()
		},
	}

	client = twitchirc.New(twitchirc.Config{
		Channel: cfg.Twitch.Channel,
		Nick:    cfg.Twitch.Username,
		Token:   cfg.Twitch.Token,
		UseTLS:  cfg.Twitch.TLS,
	}, events)

	if helixEnabled {
		sched.Repeat(ctx, "official emote catalog", time.Hour, func(tctx context.Context) error {
			defs, err := emoteProvider.FetchOfficialCatalog(tctx)
			if err != nil {
				return err
			}
			catalog.SetOfficialCatalog(defs)
			return nil
		})
		sched.Repeat(ctx, "session emote sets", time.Hour, func(tctx context.Context) error {
			sessionMu.Lock()
			ids := sessionSetIDs
			sessionMu.Unlock()
			if len(ids) == 0 {
				return nil
			}
			sets, err := emoteProvider.FetchSessionSets(tctx, ids)
			if err != nil {
				return err
			}
			catalog.SetSessionSets(sets)
			return nil
		})
		if cfg.Twitch.ClientSecret != "" {
			sched.Repeat(ctx, "global badges", time.Hour, func(tctx context.Context) error {
				sets, err := badgeProvider.FetchGlobal(tctx)
				if err != nil {
					return err
				}
				badgeStore.Merge(sets)
				return nil
			})
		}
	} else {
		log.Printf("overlay: no client id configured; official emote and badge catalogs disabled")
	}

	sched.Repeat(ctx, "third-party emotes", time.Hour, func(tctx context.Context) error {
		defs, template, err := thirdParty.Fetch(tctx, cfg.Twitch.Channel)
		if err != nil {
			return err
		}
		catalog.SetThirdParty(defs, template)
		return nil
	})

	if cfg.OptionsFile != "" {
		err := config.WatchDisplayFile(cfg.OptionsFile, cfg.Display, func(d config.Display) {
			view.ApplyDisplay(d)
			log.Printf("overlay: display options reloaded from %s", cfg.OptionsFile)
		})
		if err != nil {
			slog.Error("overlay: watch options file", "err", err)
		}
	}

	go func() {
		if err := api.Start(); err != nil {
			log.Fatalf("overlay: http api: %v", err)
		}
	}()
	log.Printf("overlay: http api ready on %s", cfg.HTTP.Addr)

	go func() {
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("overlay: chat client exited: %v", err)
			cancel()
		}
	}()
	log.Printf("overlay: chat client started for #%s", cfg.Twitch.Channel)

	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Printf("overlay: http api shutdown: %v", err)
	}
	cancelShutdown()

	// allow receiver goroutines to finish cleanly
	time.Sleep(100 * time.Millisecond)
	log.Printf("overlay: shutdown complete")
}
