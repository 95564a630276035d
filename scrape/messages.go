package scrape

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/discordweb/browser"
	"github.com/hazyhaar/discordweb/entity"
)

const (
	messageListSelector = `[data-list-id="chat-messages"]`
	messageItemSelector = `[id^="chat-messages-"]`
)

// UnknownAuthor is the author name of messages whose header was not rendered.
const UnknownAuthor = "Unknown"

var contentSelectors = []string{`[class*="messageContent"]`, `[class*="markup"]`, `.messageContent`}

var textContent = func() Chain {
	c := make(Chain, 0, len(contentSelectors))
	for _, sel := range contentSelectors {
		c = append(c, TextOf(sel))
	}
	return c
}()

func markdownContent(md *Markdown) Chain {
	c := make(Chain, 0, len(contentSelectors)*2)
	for _, sel := range contentSelectors {
		c = append(c, MarkdownOf(sel, md))
	}
	// Fall back to plain text if conversion yields nothing.
	return append(c, textContent...)
}

var authorName = Chain{
	TextOf(`[class*="username"]`),
	TextOf(`[class*="authorName"]`),
	TextOf(`.username`),
}

var avatarAuthorID = regexp.MustCompile(`/avatars/(\d+)/`)

var authorID = Chain{
	AttrOf(`[data-author-id]`, "data-author-id"),
	Map(AttrOf(`img[class*="avatar"]`, "src"), func(src string) string {
		if m := avatarAuthorID.FindStringSubmatch(src); m != nil {
			return m[1]
		}
		return ""
	}),
}

var timestampAttr = Chain{AttrOf(`time[datetime]`, "datetime")}

// mediaHosts serve uploaded attachments.
var mediaHosts = map[string]bool{
	"cdn.discordapp.com":   true,
	"media.discordapp.net": true,
}

// MessageQuery selects messages of one channel.
type MessageQuery struct {
	GuildID   string
	ChannelID string
	Limit     int
	// Before and After are exclusive message id bounds; empty = unbounded.
	Before string
	After  string
}

// inRange reports whether id lies strictly between q.After and q.Before.
//
// Ids are compared as strings. This matches chronological order only while
// snowflakes keep the same width; if the id format ever changes the filter
// silently misorders.
func (q MessageQuery) inRange(id string) bool {
	if q.Before != "" && strings.Compare(id, q.Before) >= 0 {
		return false
	}
	if q.After != "" && strings.Compare(id, q.After) <= 0 {
		return false
	}
	return true
}

func attachments(item *goquery.Selection) []string {
	out := []string{}
	seen := make(map[string]bool)
	item.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		u, err := url.Parse(href)
		if err != nil || !mediaHosts[strings.ToLower(u.Hostname())] || seen[href] {
			return
		}
		seen[href] = true
		out = append(out, href)
	})
	return out
}

// parseMessage extracts one message item. ok=false when the element has no
// message id or carries neither content nor attachments (separators, system
// rows). A panic on malformed markup is turned into a skip.
func (n *Navigator) parseMessage(item *goquery.Selection, channelID string, now time.Time) (msg entity.Message, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Debug("scrape: message element skipped", "panic", r)
			ok = false
		}
	}()

	elemID, _ := item.Attr("id")
	id, found := idSuffix(elemID)
	if !found {
		return entity.Message{}, false
	}

	content := n.content.Or(item, "")
	atts := attachments(item)
	if content == "" && len(atts) == 0 {
		return entity.Message{}, false
	}

	ts := now
	if raw, has := timestampAttr.First(item); has {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			ts = t.UTC()
		}
	}

	return entity.Message{
		ID:          id,
		Content:     content,
		AuthorName:  authorName.Or(item, UnknownAuthor),
		AuthorID:    authorID.Or(item, ""),
		ChannelID:   channelID,
		Timestamp:   ts,
		Attachments: atts,
	}, true
}

// ListMessages collects up to q.Limit messages of a channel, newest first.
// It starts at the bottom of the list and presses page-up between rounds to
// render older messages. A channel whose message list never renders is a
// *TargetError.
func (n *Navigator) ListMessages(ctx context.Context, page browser.Page, q MessageQuery) ([]entity.Message, error) {
	if q.Limit <= 0 {
		return []entity.Message{}, nil
	}
	fail := func(err error) error {
		return &TargetError{Target: "channel", ID: q.ChannelID, Err: err}
	}

	if err := page.Navigate(ctx, n.ChannelURL(q.GuildID, q.ChannelID)); err != nil {
		return nil, fail(err)
	}
	if err := page.WaitVisible(ctx, messageListSelector, n.cfg.MessageListTimeout); err != nil {
		return nil, fail(err)
	}
	if err := page.ScrollToBottom(ctx, messageListSelector); err != nil {
		n.logger.Debug("scrape: scroll to newest failed", "error", err)
	}
	if err := browser.Sleep(ctx, n.cfg.RenderDelay); err != nil {
		return nil, err
	}

	msgs := []entity.Message{}
	seen := make(map[string]bool)
	skipped := 0
	for round := 0; round < n.cfg.MessageRounds && len(msgs) < q.Limit; round++ {
		items := n.renderedMessages(ctx, page)
		now := time.Now().UTC()

		// Newest messages are at the bottom of the list.
		for i := items.Length() - 1; i >= 0 && len(msgs) < q.Limit; i-- {
			m, ok := n.parseMessage(items.Eq(i), q.ChannelID, now)
			if !ok {
				skipped++
				continue
			}
			if seen[m.ID] || !q.inRange(m.ID) {
				continue
			}
			seen[m.ID] = true
			msgs = append(msgs, m)
		}
		if len(msgs) >= q.Limit {
			break
		}

		if err := page.Press(ctx, browser.KeyPageUp); err != nil {
			n.logger.Debug("scrape: page up failed", "error", err)
		}
		if err := browser.Sleep(ctx, n.cfg.PageUpDelay); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.After(msgs[j].Timestamp)
	})
	if len(msgs) > q.Limit {
		msgs = msgs[:q.Limit]
	}
	n.logger.Debug("scrape: messages collected",
		"channel", q.ChannelID, "count", len(msgs), "skipped", skipped)
	return msgs, nil
}

// renderedMessages snapshots the message list. A list that cannot be read
// counts as empty for this round.
func (n *Navigator) renderedMessages(ctx context.Context, page browser.Page) *goquery.Selection {
	doc, err := snapshot(ctx, page, messageListSelector)
	if err != nil {
		n.logger.Debug("scrape: message list snapshot failed", "error", err)
		return &goquery.Selection{}
	}
	return doc.Find(messageItemSelector)
}

// String renders a query for logs.
func (q MessageQuery) String() string {
	return fmt.Sprintf("%s/%s limit=%d before=%q after=%q", q.GuildID, q.ChannelID, q.Limit, q.Before, q.After)
}
