// CLAUDE:SUMMARY Navigator over the web client: guild sidebar, channel list and message list extraction with bounded scroll/retry loops.
// Package scrape pulls guilds, channels and messages out of the rendered web
// client. Every extraction works on HTML snapshots parsed with goquery, so
// each field is read through a Chain of strategies that tolerates missing
// elements. Malformed elements are skipped; only unreachable targets fail.
package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/discordweb/browser"
)

// TargetError reports a view or landmark that never rendered: the guild,
// channel or composer could not be reached or operated on.
type TargetError struct {
	Target string // "guild", "channel", "composer"
	ID     string
	Err    error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("scrape: could not reach %s %s: %v", e.Target, e.ID, e.Err)
}

func (e *TargetError) Unwrap() error { return e.Err }

// ContentFormat selects how message content is rendered.
type ContentFormat string

const (
	FormatText     ContentFormat = "text"
	FormatMarkdown ContentFormat = "markdown"
)

// Config tunes navigation. Zero values take the defaults; a negative delay
// disables it.
type Config struct {
	// BaseURL of the web client. Default: https://discord.com
	BaseURL string

	// LandmarkTimeout bounds waits for the guild sidebar and channel links. Default: 15s.
	LandmarkTimeout time.Duration
	// MessageListTimeout bounds the wait for the message list. Default: 15s.
	MessageListTimeout time.Duration

	// GuildScrollSteps caps the sidebar scroll pass. Default: 20.
	GuildScrollSteps int
	// GuildScrollStep is the pixel increment per step. Default: 100.
	GuildScrollStep int
	// ClickThroughLimit caps the fallback guild detection. Default: 10.
	ClickThroughLimit int
	// MessageRounds caps the message collection rounds. Default: 10.
	MessageRounds int

	// RenderDelay lets a freshly loaded view finish rendering. Default: 2s.
	RenderDelay time.Duration
	// ScrollDelay runs between sidebar scroll steps. Default: 100ms.
	ScrollDelay time.Duration
	// PageUpDelay runs after each page-up key press. Default: 1s.
	PageUpDelay time.Duration

	// ContentFormat of message content. Default: text.
	ContentFormat ContentFormat
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://discord.com"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.LandmarkTimeout <= 0 {
		c.LandmarkTimeout = 15 * time.Second
	}
	if c.MessageListTimeout <= 0 {
		c.MessageListTimeout = 15 * time.Second
	}
	if c.GuildScrollSteps <= 0 {
		c.GuildScrollSteps = 20
	}
	if c.GuildScrollStep <= 0 {
		c.GuildScrollStep = 100
	}
	if c.ClickThroughLimit <= 0 {
		c.ClickThroughLimit = 10
	}
	if c.MessageRounds <= 0 {
		c.MessageRounds = 10
	}
	if c.RenderDelay == 0 {
		c.RenderDelay = 2 * time.Second
	}
	if c.ScrollDelay == 0 {
		c.ScrollDelay = 100 * time.Millisecond
	}
	if c.PageUpDelay == 0 {
		c.PageUpDelay = time.Second
	}
	if c.ContentFormat == "" {
		c.ContentFormat = FormatText
	}
}

// Navigator extracts entities from a logged-in page. It holds no session
// state; the caller owns the page and serialises access to it.
type Navigator struct {
	cfg     Config
	logger  *slog.Logger
	content Chain
}

// NewNavigator creates a Navigator.
func NewNavigator(cfg Config, logger *slog.Logger) *Navigator {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	n := &Navigator{cfg: cfg, logger: logger, content: textContent}
	if cfg.ContentFormat == FormatMarkdown {
		n.content = markdownContent(NewMarkdown())
	}
	return n
}

// Config returns the resolved configuration.
func (n *Navigator) Config() Config { return n.cfg }

// LandingURL is the view every listing returns to.
func (n *Navigator) LandingURL() string { return n.cfg.BaseURL + "/channels/@me" }

// ChannelURL is the view of one channel.
func (n *Navigator) ChannelURL(guildID, channelID string) string {
	return n.cfg.BaseURL + "/channels/" + guildID + "/" + channelID
}

func (n *Navigator) guildURL(guildID string) string {
	return n.cfg.BaseURL + "/channels/" + guildID
}

// snapshot parses the outer HTML of selector ("" = whole document).
func snapshot(ctx context.Context, page browser.Page, selector string) (*goquery.Document, error) {
	h, err := page.HTML(ctx, selector)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(h))
}
