// CLAUDE:SUMMARY Posts a message through the channel composer and returns a local acknowledgement reference.
// Package action performs the one mutating operation: posting a message.
package action

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/discordweb/browser"
	"github.com/hazyhaar/discordweb/entity"
	"github.com/hazyhaar/discordweb/idgen"
	"github.com/hazyhaar/discordweb/scrape"
)

// Config tunes the executor. Zero values take the defaults; a negative
// SendDelay disables it.
type Config struct {
	// BaseURL of the web client. Default: https://discord.com
	BaseURL string
	// ComposerTimeout bounds the wait for the message composer. Default: 10s.
	ComposerTimeout time.Duration
	// SendDelay lets the send register before returning. Default: 1s.
	SendDelay time.Duration
	// Composer selects the message input. Default: the slate editor.
	Composer string
	// References mints acknowledgement ids. Default: "sent-<unix seconds>".
	References idgen.Generator
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://discord.com"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.ComposerTimeout <= 0 {
		c.ComposerTimeout = 10 * time.Second
	}
	if c.SendDelay == 0 {
		c.SendDelay = time.Second
	}
	if c.Composer == "" {
		c.Composer = `[data-slate-editor="true"]`
	}
	if c.References == nil {
		c.References = idgen.Prefixed("sent-", idgen.Unix())
	}
}

// Executor posts messages on a logged-in page.
type Executor struct {
	cfg    Config
	logger *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(cfg Config, logger *slog.Logger) *Executor {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{cfg: cfg, logger: logger}
}

// SendMessage opens the channel, types content into the composer and presses
// Enter. A composer that never renders is a *scrape.TargetError. The returned
// MessageID is a local acknowledgement, not a platform message id: the web
// client does not expose it at send time.
func (e *Executor) SendMessage(ctx context.Context, page browser.Page, guildID, channelID, content string) (entity.SendResult, error) {
	fail := func(err error) (entity.SendResult, error) {
		return entity.SendResult{}, &scrape.TargetError{Target: "channel", ID: channelID, Err: err}
	}

	url := e.cfg.BaseURL + "/channels/" + guildID + "/" + channelID
	if err := page.Navigate(ctx, url); err != nil {
		return fail(err)
	}
	if err := page.WaitVisible(ctx, e.cfg.Composer, e.cfg.ComposerTimeout); err != nil {
		return entity.SendResult{}, &scrape.TargetError{Target: "composer", ID: channelID, Err: err}
	}
	if err := page.Fill(ctx, e.cfg.Composer, content); err != nil {
		return fail(err)
	}
	if err := page.Press(ctx, browser.KeyEnter); err != nil {
		return fail(err)
	}
	if err := browser.Sleep(ctx, e.cfg.SendDelay); err != nil {
		return entity.SendResult{}, err
	}

	ref := e.cfg.References()
	e.logger.Info("action: message sent", "guild", guildID, "channel", channelID, "runes", len([]rune(content)), "ref", ref)
	return entity.SendResult{MessageID: ref, Status: entity.StatusSent}, nil
}
