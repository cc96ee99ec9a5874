// Package twitchirc maintains the IRC connection to chat: reconnecting reads,
// tag parsing into typed events, and rate-limited outbound messages.
package twitchirc

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/you/streampane/internal/core"
)

type Config struct {
	Channel string
	Nick    string
	Token   string
	UseTLS  bool
	Addr    string
}

// Events receives parsed chat traffic. Nil callbacks are skipped.
type Events struct {
	Message      func(InboundMessage)
	Join         func(channel, user string, self bool)
	RoomState    func(channel, roomID string)
	ClearUser    func(channel, user string, seconds int)
	Subscription func(channel string, notice SubNotice)
	EmoteSets    func(setIDs []string)
}

// InboundMessage is one PRIVMSG after tag parsing. Timestamp is epoch millis,
// -1 when the server supplied none.
type InboundMessage struct {
	Channel   string
	Timestamp int64
	User      core.User
	Text      string
	Action    bool
	Emotes    []core.SessionEmote
}

// SubNotice is a USERNOTICE subscription or resubscription. Notices carry no
// timestamp; the view slots them after the newest buffered message.
type SubNotice struct {
	User    string
	Resub   bool
	Months  int
	Prime   bool
	Message string
}

var errAuthFailed = errors.New("twitchirc: authentication failed")

var errNotConnected = errors.New("twitchirc: not connected")

type Client struct {
	cfg     Config
	events  Events
	limiter *rate.Limiter

	mu       sync.Mutex
	sendLine func(string) error // nil while disconnected
}

func New(cfg Config, events Events) *Client {
	return &Client{
		cfg:    cfg,
		events: events,
		// chat allows 20 messages per 30 seconds for regular users
		limiter: rate.NewLimiter(rate.Every(1500*time.Millisecond), 1),
	}
}

func (c *Client) Run(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.Channel) == "" || strings.TrimSpace(c.cfg.Nick) == "" {
		return errors.New("twitchirc: channel and nick are required")
	}

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := c.runOnce(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}

			if errors.Is(err, errAuthFailed) {
				log.Printf("twitchirc: authentication failed; retrying in %s", backoff)
			} else {
				log.Printf("twitchirc: disconnected: %v; reconnecting in %s", err, backoff)
			}

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}

			if backoff < 60*time.Second {
				backoff *= 2
				if backoff > 60*time.Second {
					backoff = 60 * time.Second
				}
			}
			continue
		}

		backoff = time.Second
	}
}

// Say delivers an outbound chat line, blocking on the send rate limit, and
// synthesizes the local echo the server will not repeat back.
func (c *Client) Say(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	send := c.sendLine
	c.mu.Unlock()
	if send == nil {
		return errNotConnected
	}

	action := false
	body := text
	if strings.HasPrefix(text, "/me ") {
		action = true
		body = strings.TrimPrefix(text, "/me ")
		text = "\x01ACTION " + body + "\x01"
	}

	if err := send("PRIVMSG #" + c.cfg.Channel + " :" + text); err != nil {
		return fmt.Errorf("send PRIVMSG: %w", err)
	}
	messagesSent.Add(1)

	if c.events.Message != nil {
		c.events.Message(InboundMessage{
			Channel:   c.cfg.Channel,
			Timestamp: -1,
			User:      core.User{Username: c.cfg.Nick, IsSelf: true},
			Text:      body,
			Action:    action,
		})
	}
	return nil
}

func (c *Client) runOnce(ctx context.Context) error {
	token := strings.TrimSpace(c.cfg.Token)
	if token == "" {
		return errors.New("twitchirc: token is required")
	}
	if !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}

	host := "irc.chat.twitch.tv"
	addr := host + ":6667"
	if c.cfg.UseTLS {
		addr = host + ":6697"
	}
	if strings.TrimSpace(c.cfg.Addr) != "" {
		addr = strings.TrimSpace(c.cfg.Addr)
	}

	log.Printf("twitchirc: connecting to %s (tls=%v)", addr, c.cfg.UseTLS)

	d := &net.Dialer{Timeout: 10 * time.Second}
	var conn net.Conn
	var err error
	if c.cfg.UseTLS {
		conn, err = tls.DialWithDialer(d, "tcp", addr, &tls.Config{ServerName: host})
	} else {
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	var writeMu sync.Mutex
	send := func(s string) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if _, err := rw.WriteString(s + "\r\n"); err != nil {
			return err
		}
		return rw.Flush()
	}

	c.mu.Lock()
	c.sendLine = send
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.sendLine = nil
		c.mu.Unlock()
	}()

	// ensure the per-connection closer goroutine exits when this runOnce returns
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close() // unblock reader
		case <-done:
		}
	}()

	if err := send("PASS " + token); err != nil {
		return fmt.Errorf("send PASS: %w", err)
	}
	if err := send("NICK " + c.cfg.Nick); err != nil {
		return fmt.Errorf("send NICK: %w", err)
	}
	if err := send("CAP REQ :twitch.tv/tags twitch.tv/commands twitch.tv/membership"); err != nil {
		return fmt.Errorf("send CAP REQ: %w", err)
	}
	if err := send("JOIN #" + c.cfg.Channel); err != nil {
		return fmt.Errorf("send JOIN: %w", err)
	}
	log.Printf("twitchirc: joined #%s as %s", c.cfg.Channel, c.cfg.Nick)

	reader := rw.Reader
	var (
		total        int
		window       int
		nextTick     = time.Now().Add(10 * time.Second)
		readDeadline = 2 * time.Minute
		nextPing     = time.Now().Add(4 * time.Minute)
	)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			return fmt.Errorf("set deadline: %w", err)
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				now := time.Now()
				if !now.Before(nextPing) {
					if err := send("PING :keepalive"); err != nil {
						return fmt.Errorf("send PING: %w", err)
					}
					nextPing = now.Add(4 * time.Minute)
				}
				if !now.Before(nextTick) {
					log.Printf("twitchirc: recv %d msgs (total %d)", window, total)
					window = 0
					nextTick = now.Add(10 * time.Second)
				}
				continue
			}
			return fmt.Errorf("read: %w", err)
		}

		now := time.Now()
		if !now.Before(nextTick) {
			log.Printf("twitchirc: recv %d msgs (total %d)", window, total)
			window = 0
			nextTick = now.Add(10 * time.Second)
		}
		nextPing = now.Add(4 * time.Minute)

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		if authFailure(line) {
			log.Printf("twitchirc: authentication failed per server NOTICE")
			return errAuthFailed
		}

		if strings.HasPrefix(line, "PING ") {
			if err := send("PONG " + strings.TrimPrefix(line, "PING ")); err != nil {
				return fmt.Errorf("send PONG: %w", err)
			}
			nextPing = time.Now().Add(4 * time.Minute)
			continue
		}

		if strings.Contains(line, " RECONNECT") {
			return fmt.Errorf("server requested reconnect")
		}

		if c.dispatch(line) {
			total++
			window++
		}
	}
}

func authFailure(line string) bool {
	lower := strings.ToLower(line)
	if strings.Contains(lower, "login authentication failed") {
		return true
	}
	if strings.Contains(lower, "improperly formatted auth") {
		return true
	}
	if strings.Contains(lower, "authentication failed") {
		return true
	}
	return false
}
