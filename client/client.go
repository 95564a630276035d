// CLAUDE:SUMMARY Single-lock facade over session, auth, scrape and action: one browser session, fresh or reuse policy, bounded close, lifecycle hooks.
// Package client owns the one browser session of the process and serialises
// every operation on it behind a single lock.
//
// Under PolicyFresh each operation closes the previous browser (bounded by
// CloseTimeout) and starts a new one, restoring the login from the session
// artifact when possible. Under PolicyReuse the browser is kept between
// operations and reset after any failure.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/discordweb/action"
	"github.com/hazyhaar/discordweb/auth"
	"github.com/hazyhaar/discordweb/browser"
	"github.com/hazyhaar/discordweb/discovery"
	"github.com/hazyhaar/discordweb/entity"
	"github.com/hazyhaar/discordweb/scrape"
	"github.com/hazyhaar/discordweb/session"
)

// ErrStopped is returned by operations after Stop.
var ErrStopped = errors.New("client: stopped")

// Policy decides the lifetime of the browser session.
type Policy string

const (
	PolicyFresh Policy = "fresh"
	PolicyReuse Policy = "reuse"
)

// ParsePolicy accepts "fresh" and "reuse". Empty means fresh.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFresh:
		return PolicyFresh, nil
	case PolicyReuse:
		return PolicyReuse, nil
	}
	return "", fmt.Errorf("client: unknown session policy %q", s)
}

// Config of a Client. Zero values take the defaults.
type Config struct {
	Credentials  session.Credentials
	Headless     bool
	ArtifactPath string
	// Policy defaults to PolicyFresh.
	Policy Policy
	// CloseTimeout bounds a browser teardown. Default: 10s.
	CloseTimeout time.Duration
	// DefaultGuildIDs scope Discover when the call names no guild.
	DefaultGuildIDs []string

	Auth   auth.Config
	Scrape scrape.Config
	Action action.Config

	// Now is the clock of ReadRecent. Default: time.Now.
	Now func() time.Time
}

func (c *Config) defaults() {
	if c.Policy == "" {
		c.Policy = PolicyFresh
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 10 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Client is safe for concurrent use; operations run one at a time.
type Client struct {
	cfg      Config
	logger   *slog.Logger
	sessions *session.Manager
	auth     *auth.Authenticator
	nav      *scrape.Navigator
	exec     *action.Executor

	mu      chan struct{} // one-slot semaphore so waiting honours ctx
	st      session.State
	stopped bool
}

// New creates a Client launching browsers through driver.
func New(driver browser.Driver, cfg Config, logger *slog.Logger) *Client {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	sessions := session.NewManager(driver, logger)
	return &Client{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
		auth:     auth.New(sessions, cfg.Auth, logger),
		nav:      scrape.NewNavigator(cfg.Scrape, logger),
		exec:     action.NewExecutor(cfg.Action, logger),
		mu:       make(chan struct{}, 1),
		st:       session.New(cfg.Credentials, cfg.Headless, cfg.ArtifactPath),
	}
}

// Config returns the resolved configuration.
func (c *Client) Config() Config { return c.cfg }

func (c *Client) lock(ctx context.Context) error {
	select {
	case c.mu <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) unlock() { <-c.mu }

// Start validates the configuration. It does not open a browser: the first
// operation does.
func (c *Client) Start(ctx context.Context) error {
	if err := c.lock(ctx); err != nil {
		return err
	}
	defer c.unlock()
	if c.stopped {
		return ErrStopped
	}
	if !c.cfg.Credentials.Complete() {
		return errors.New("client: email and password are required")
	}
	c.logger.Info("client: started", "policy", string(c.cfg.Policy), "headless", c.cfg.Headless, "credentials", c.cfg.Credentials.String())
	return nil
}

// Stop releases the browser, bounded by CloseTimeout. Later operations
// fail with ErrStopped. Stop is idempotent.
func (c *Client) Stop(ctx context.Context) error {
	if err := c.lock(ctx); err != nil {
		return err
	}
	defer c.unlock()
	if c.stopped {
		return nil
	}
	c.stopped = true
	c.closeLocked(ctx)
	c.logger.Info("client: stopped")
	return nil
}

// closeLocked tears the session down and waits at most CloseTimeout. A
// teardown still running after the deadline is abandoned; the state is
// fresh either way.
func (c *Client) closeLocked(ctx context.Context) {
	old := c.st
	c.st = old.Fresh()
	if old.Instance() == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.sessions.Release(old)
	}()

	timer := time.NewTimer(c.cfg.CloseTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		c.logger.Warn("client: browser close timed out", "timeout", c.cfg.CloseTimeout)
	case <-ctx.Done():
		c.logger.Warn("client: browser close abandoned", "error", ctx.Err())
	}
}

// run executes fn on a logged-in page under the lock.
func (c *Client) run(ctx context.Context, op string, fn func(ctx context.Context, page browser.Page) error) error {
	_, err := c.runAuth(ctx, op, fn)
	return err
}

func (c *Client) runAuth(ctx context.Context, op string, fn func(ctx context.Context, page browser.Page) error) (auth.Result, error) {
	if err := c.lock(ctx); err != nil {
		return auth.Result{Status: auth.StatusUnknown}, err
	}
	defer c.unlock()
	if c.stopped {
		return auth.Result{Status: auth.StatusUnknown}, ErrStopped
	}

	if c.cfg.Policy == PolicyFresh {
		c.closeLocked(ctx)
	}

	start := time.Now()
	st, res, err := c.auth.Login(ctx, c.st)
	c.st = st
	if err != nil {
		c.logger.Warn("client: login failed", "op", op, "status", res.Status.String(), "error", err)
		c.closeLocked(ctx)
		return res, err
	}
	if fn == nil {
		return res, nil
	}

	if err := fn(ctx, c.st.Page()); err != nil {
		c.logger.Warn("client: operation failed", "op", op, "error", err, "duration", time.Since(start))
		if c.cfg.Policy == PolicyReuse {
			c.closeLocked(ctx)
		}
		return res, err
	}
	c.logger.Debug("client: operation done", "op", op, "duration", time.Since(start))
	return res, nil
}

// Login logs in, restoring the artifact when possible, and persists the
// session. It backs the interactive first-run command. A verification step
// that times out reports StatusVerificationRequired.
func (c *Client) Login(ctx context.Context) (auth.Result, error) {
	res, err := c.runAuth(ctx, "login", nil)
	var ae *auth.Error
	if errors.As(err, &ae) && ae.Stage == auth.StageVerification {
		res.Status = auth.StatusVerificationRequired
	}
	return res, err
}

// ListGuilds returns the guilds of the logged-in user.
func (c *Client) ListGuilds(ctx context.Context) ([]entity.Guild, error) {
	var out []entity.Guild
	err := c.run(ctx, "list_guilds", func(ctx context.Context, page browser.Page) error {
		var err error
		out, err = c.nav.ListGuilds(ctx, page)
		return err
	})
	return out, err
}

// ListChannels returns the channels of a guild.
func (c *Client) ListChannels(ctx context.Context, guildID string) ([]entity.Channel, error) {
	var out []entity.Channel
	err := c.run(ctx, "list_channels", func(ctx context.Context, page browser.Page) error {
		var err error
		out, err = c.nav.ListChannels(ctx, page, guildID)
		return err
	})
	return out, err
}

// ListMessages returns at most q.Limit messages, newest first.
func (c *Client) ListMessages(ctx context.Context, q scrape.MessageQuery) ([]entity.Message, error) {
	var out []entity.Message
	err := c.run(ctx, "list_messages", func(ctx context.Context, page browser.Page) error {
		var err error
		out, err = c.nav.ListMessages(ctx, page, q)
		return err
	})
	return out, err
}

// SendMessage posts content to a channel.
func (c *Client) SendMessage(ctx context.Context, guildID, channelID, content string) (entity.SendResult, error) {
	var out entity.SendResult
	err := c.run(ctx, "send_message", func(ctx context.Context, page browser.Page) error {
		var err error
		out, err = c.exec.SendMessage(ctx, page, guildID, channelID, content)
		return err
	})
	return out, err
}

// pageSource lists through the navigator on an already logged-in page.
type pageSource struct {
	nav  *scrape.Navigator
	page browser.Page
}

func (s pageSource) ListGuilds(ctx context.Context) ([]entity.Guild, error) {
	return s.nav.ListGuilds(ctx, s.page)
}

func (s pageSource) ListChannels(ctx context.Context, guildID string) ([]entity.Channel, error) {
	return s.nav.ListChannels(ctx, s.page, guildID)
}

// Discover finds channels accepted by match in guildIDs, or in the default
// guilds when guildIDs is empty, or in every guild when both are empty.
func (c *Client) Discover(ctx context.Context, match discovery.Matcher, guildIDs []string) ([]discovery.Match, error) {
	if len(guildIDs) == 0 {
		guildIDs = c.cfg.DefaultGuildIDs
	}
	var out []discovery.Match
	err := c.run(ctx, "discover", func(ctx context.Context, page browser.Page) error {
		var err error
		out, err = discovery.Discover(ctx, pageSource{nav: c.nav, page: page}, match, guildIDs, c.logger)
		return err
	})
	return out, err
}

// Status describes the session held by the client.
type Status struct {
	Policy         Policy `json:"policy"`
	Live           bool   `json:"browser_live"`
	LoggedIn       bool   `json:"logged_in"`
	ArtifactPath   string `json:"artifact_path,omitempty"`
	ArtifactExists bool   `json:"artifact_exists"`
	Stopped        bool   `json:"stopped"`
}

// Status reports the session state without touching the browser.
func (c *Client) Status(ctx context.Context) (Status, error) {
	if err := c.lock(ctx); err != nil {
		return Status{}, err
	}
	defer c.unlock()
	return Status{
		Policy:         c.cfg.Policy,
		Live:           c.st.Live(),
		LoggedIn:       c.st.LoggedIn(),
		ArtifactPath:   c.cfg.ArtifactPath,
		ArtifactExists: session.HasArtifact(c.cfg.ArtifactPath),
		Stopped:        c.stopped,
	}, nil
}

// Logout releases the browser and deletes the session artifact, so the
// next operation logs in with credentials.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.lock(ctx); err != nil {
		return err
	}
	defer c.unlock()
	c.closeLocked(ctx)
	if err := session.RemoveArtifact(c.cfg.ArtifactPath); err != nil {
		return fmt.Errorf("client: logout: %w", err)
	}
	c.logger.Info("client: logged out", "artifact", c.cfg.ArtifactPath)
	return nil
}
