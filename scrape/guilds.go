package scrape

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/discordweb/browser"
	"github.com/hazyhaar/discordweb/entity"
)

const (
	guildNavSelector  = `[data-list-id="guildsnav"]`
	guildItemSelector = `[data-list-id="guildsnav"] [role="treeitem"]`
	guildItemPrefix   = "guildsnav___"
)

var guildURLPattern = regexp.MustCompile(`/channels/(\d+)`)

// reservedGuildNames are sidebar entries that are not guilds.
var reservedGuildNames = []string{
	"direct messages",
	"add a server",
	"discover",
	"explore discoverable servers",
	"download apps",
}

func reservedGuild(name string) bool {
	lower := strings.ToLower(name)
	for _, r := range reservedGuildNames {
		if lower == r {
			return true
		}
	}
	return false
}

var guildIcon = Chain{AttrOf("img[src]", "src")}

var guildLabel = Chain{Map(AttrOf("", "aria-label"), func(s string) string { return stripMentions(collapse(s)) })}

// guildName is the first meaningful text run in the item, without any
// mention-count prefix. Falls back to the aria-label, then the whole text.
func guildName(item *goquery.Selection) string {
	var name string
	item.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := collapse(s.Text()); meaningful(t) {
			name = t
			return false
		}
		return true
	})
	if name = stripMentions(name); name != "" {
		return name
	}
	if label, ok := guildLabel.First(item); ok {
		return label
	}
	return stripMentions(collapse(item.Text()))
}

// parseGuilds extracts guilds from the sidebar tree items, deduplicated by id
// in first-seen order.
func parseGuilds(doc *goquery.Document) []entity.Guild {
	out := []entity.Guild{}
	seen := make(map[string]bool)
	doc.Find(guildItemSelector).Each(func(_ int, item *goquery.Selection) {
		listID, _ := item.Attr("data-list-item-id")
		id, ok := strings.CutPrefix(listID, guildItemPrefix)
		if !ok || !allDigits.MatchString(id) || seen[id] {
			return
		}
		name := guildName(item)
		if name == "" || reservedGuild(name) {
			return
		}
		seen[id] = true
		out = append(out, entity.Guild{ID: id, Name: name, Icon: guildIcon.Or(item, "")})
	})
	return out
}

// ListGuilds lists the guilds in the sidebar. A missing sidebar is tolerated
// (the scroll pass and scan then find nothing). When the structural scan
// yields no guild, the first ClickThroughLimit items are clicked one by one
// and the guild id is read from the resulting URL. The page always ends on
// the landing view.
func (n *Navigator) ListGuilds(ctx context.Context, page browser.Page) ([]entity.Guild, error) {
	log := n.logger
	if err := page.Navigate(ctx, n.LandingURL()); err != nil {
		return nil, fmt.Errorf("scrape: list guilds: %w", err)
	}
	defer n.returnToLanding(ctx, page)

	if err := page.WaitVisible(ctx, guildItemSelector, n.cfg.LandmarkTimeout); err != nil {
		log.Debug("scrape: guild sidebar not visible, scanning anyway", "error", err)
	} else if err := browser.Sleep(ctx, n.cfg.RenderDelay); err != nil {
		return nil, err
	}

	if err := n.scrollSidebar(ctx, page); err != nil {
		return nil, err
	}

	doc, err := snapshot(ctx, page, "")
	if err != nil {
		return nil, fmt.Errorf("scrape: list guilds: snapshot: %w", err)
	}
	guilds := parseGuilds(doc)
	if len(guilds) > 0 {
		log.Debug("scrape: guilds parsed", "count", len(guilds))
		return guilds, nil
	}

	log.Debug("scrape: structural scan empty, clicking through sidebar")
	return n.clickThroughGuilds(ctx, page, doc)
}

func (n *Navigator) scrollSidebar(ctx context.Context, page browser.Page) error {
	for i := 0; i < n.cfg.GuildScrollSteps; i++ {
		atEnd, err := page.ScrollBy(ctx, guildNavSelector, n.cfg.GuildScrollStep)
		if err != nil {
			n.logger.Debug("scrape: sidebar scroll failed", "step", i, "error", err)
			return nil
		}
		if err := browser.Sleep(ctx, n.cfg.ScrollDelay); err != nil {
			return err
		}
		if atEnd {
			return nil
		}
	}
	return nil
}

// clickThroughGuilds clicks each of the first items of doc and reads the guild
// id from the URL it lands on.
func (n *Navigator) clickThroughGuilds(ctx context.Context, page browser.Page, doc *goquery.Document) ([]entity.Guild, error) {
	items := doc.Find(guildItemSelector)
	limit := min(items.Length(), n.cfg.ClickThroughLimit)

	out := []entity.Guild{}
	seen := make(map[string]bool)
	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := guildName(items.Eq(i))
		if reservedGuild(name) {
			continue
		}
		if err := page.ClickNth(ctx, guildItemSelector, i); err != nil {
			n.logger.Debug("scrape: guild click failed", "index", i, "error", err)
			continue
		}
		if err := browser.Sleep(ctx, n.cfg.RenderDelay); err != nil {
			return nil, err
		}

		url, err := page.URL(ctx)
		if err == nil {
			if m := guildURLPattern.FindStringSubmatch(url); m != nil && !seen[m[1]] {
				seen[m[1]] = true
				if name == "" {
					name = "guild-" + m[1]
				}
				out = append(out, entity.Guild{ID: m[1], Name: name})
			}
		}

		if err := page.Navigate(ctx, n.LandingURL()); err != nil {
			return nil, fmt.Errorf("scrape: list guilds: back to landing: %w", err)
		}
		if err := browser.Sleep(ctx, n.cfg.RenderDelay); err != nil {
			return nil, err
		}
	}
	n.logger.Debug("scrape: guilds clicked through", "count", len(out), "tried", limit)
	return out, nil
}

func (n *Navigator) returnToLanding(ctx context.Context, page browser.Page) {
	if ctx.Err() != nil {
		return
	}
	if err := page.Navigate(ctx, n.LandingURL()); err != nil {
		n.logger.Debug("scrape: return to landing failed", "error", err)
	}
}
