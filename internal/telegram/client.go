// Package telegram connects agent bots to the Telegram Bot API over HTTP long
// polling. Inbound updates are handed to a Dispatcher together with the
// agent's tenant context.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"resellhub/internal/supervisor"

	"golang.org/x/time/rate"
)

// ErrUnauthorized means the bot token was rejected. Sessions stop on it so
// the supervisor can pick up a rotated credential on restart.
var ErrUnauthorized = errors.New("telegram: bot token rejected")

// Update is one inbound update. Raw holds the full update object.
type Update struct {
	UpdateID int64           `json:"update_id"`
	Raw      json.RawMessage `json:"-"`
}

// Bot identifies the agent bot an update arrived on.
type Bot struct {
	AgentID  string
	Tenant   string
	Username string
}

// Dispatcher handles inbound updates for one agent bot.
type Dispatcher interface {
	Dispatch(ctx context.Context, bot Bot, u Update) error
}

// LogDispatcher logs updates and does nothing else.
type LogDispatcher struct{}

// Dispatch logs the update.
func (LogDispatcher) Dispatch(ctx context.Context, bot Bot, u Update) error {
	log.Printf("[Telegram] agent=%s tenant=%s update=%d", bot.AgentID, bot.Tenant, u.UpdateID)
	return nil
}

// Config holds Bot API settings.
type Config struct {
	BaseURL     string
	PollTimeout time.Duration

	// ErrorRate and ErrorBurst throttle retries after failed polls.
	ErrorRate  rate.Limit
	ErrorBurst int

	// MaxConsecutiveErrors ends the session after that many failed polls in
	// a row. Zero means never.
	MaxConsecutiveErrors int
}

// Connector opens long-poll sessions. It implements supervisor.Connector.
type Connector struct {
	config     Config
	client     *http.Client
	dispatcher Dispatcher
}

var _ supervisor.Connector = (*Connector)(nil)

// NewConnector creates a connector. A nil dispatcher logs updates.
func NewConnector(config Config, dispatcher Dispatcher) *Connector {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.telegram.org"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.PollTimeout <= 0 {
		config.PollTimeout = 50 * time.Second
	}
	if config.ErrorRate == 0 {
		config.ErrorRate = rate.Every(2 * time.Second)
	}
	if config.ErrorBurst <= 0 {
		config.ErrorBurst = 3
	}
	if config.MaxConsecutiveErrors == 0 {
		config.MaxConsecutiveErrors = 30
	}
	if dispatcher == nil {
		dispatcher = LogDispatcher{}
	}
	return &Connector{
		config: config,
		// Long polls hold the request open for PollTimeout.
		client:     &http.Client{Timeout: config.PollTimeout + 15*time.Second},
		dispatcher: dispatcher,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

type botUser struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot"`
	Username string `json:"username"`
}

// Connect validates the token with getMe and returns a session for it.
func (c *Connector) Connect(ctx context.Context, id supervisor.Identity) (supervisor.Session, error) {
	if id.BotToken == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	var me botUser
	if err := c.call(ctx, id.BotToken, "getMe", nil, &me); err != nil {
		return nil, fmt.Errorf("getMe: %w", err)
	}

	return &Session{
		connector: c,
		token:     id.BotToken,
		bot:       Bot{AgentID: id.AgentID, Tenant: id.Tenant, Username: me.Username},
		limiter:   rate.NewLimiter(c.config.ErrorRate, c.config.ErrorBurst),
	}, nil
}

func (c *Connector) call(ctx context.Context, token, method string, params url.Values, out interface{}) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.config.BaseURL, token, method)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		// Drop the URL from the error; it embeds the token.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("%s request failed: %w", method, uerr.Err)
		}
		return err
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode %s response (HTTP %d): %w", method, resp.StatusCode, err)
	}
	if !body.OK {
		if body.ErrorCode == http.StatusUnauthorized || resp.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return fmt.Errorf("%s failed: %d %s", method, body.ErrorCode, body.Description)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body.Result, out)
}

// Session is one agent bot's long-poll loop.
type Session struct {
	connector *Connector
	token     string
	bot       Bot
	limiter   *rate.Limiter
	offset    int64
}

// Username returns the bot's username from getMe.
func (s *Session) Username() string { return s.bot.Username }

// Run polls getUpdates until ctx is cancelled, the token is rejected, or too
// many polls fail in a row.
func (s *Session) Run(ctx context.Context) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, err := s.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrUnauthorized) {
				return err
			}
			failures++
			if limit := s.connector.config.MaxConsecutiveErrors; limit > 0 && failures >= limit {
				return fmt.Errorf("giving up after %d failed polls: %w", failures, err)
			}
			log.Printf("[Telegram] agent=%s poll error (%d): %v", s.bot.AgentID, failures, err)
			if werr := s.limiter.Wait(ctx); werr != nil {
				return ctx.Err()
			}
			continue
		}
		failures = 0

		for _, u := range updates {
			if err := s.connector.dispatcher.Dispatch(ctx, s.bot, u); err != nil {
				log.Printf("[Telegram] agent=%s dispatch update=%d: %v", s.bot.AgentID, u.UpdateID, err)
			}
			if u.UpdateID >= s.offset {
				s.offset = u.UpdateID + 1
			}
		}
	}
}

func (s *Session) poll(ctx context.Context) ([]Update, error) {
	params := url.Values{}
	params.Set("timeout", strconv.Itoa(int(s.connector.config.PollTimeout/time.Second)))
	if s.offset > 0 {
		params.Set("offset", strconv.FormatInt(s.offset, 10))
	}

	var raw []json.RawMessage
	if err := s.connector.call(ctx, s.token, "getUpdates", params, &raw); err != nil {
		return nil, err
	}

	updates := make([]Update, 0, len(raw))
	for _, r := range raw {
		var u Update
		if err := json.Unmarshal(r, &u); err != nil {
			return nil, fmt.Errorf("failed to decode update: %w", err)
		}
		u.Raw = r
		updates = append(updates, u)
	}
	return updates, nil
}
