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

var (
	channelHrefPattern = regexp.MustCompile(`/channels/(\d+)/(\d+)`)
	titleChannelName   = regexp.MustCompile(`#([^|]+)`)
)

var channelLabel = Chain{Map(AttrOf("", "aria-label"), channelLabelName)}

// channelType guesses the type code from the link's aria-label, e.g.
// "stage (stage channel)". Anything unrecognised is a text channel.
func channelType(a *goquery.Selection) int {
	label, _ := a.Attr("aria-label")
	label = strings.ToLower(label)
	switch {
	case strings.Contains(label, "voice channel"):
		return entity.ChannelVoice
	case strings.Contains(label, "announcement channel"):
		return entity.ChannelAnnouncement
	case strings.Contains(label, "stage channel"):
		return entity.ChannelStage
	case strings.Contains(label, "forum channel"):
		return entity.ChannelForum
	default:
		return entity.ChannelText
	}
}

// parseChannels extracts the channels of guildID from every channel link in
// doc, deduplicated by id. current, when non-nil, is placed first.
func parseChannels(doc *goquery.Document, guildID string, current *entity.Channel) []entity.Channel {
	out := []entity.Channel{}
	index := make(map[string]int)
	if current != nil {
		index[current.ID] = 0
		out = append(out, *current)
	}

	doc.Find(`a[href*="/channels/"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := channelHrefPattern.FindStringSubmatch(href)
		if m == nil || m[1] != guildID {
			return
		}
		id := m[2]
		name := cleanChannelName(a.Text())
		if name == "" {
			name = channelLabel.Or(a, "")
		}
		if i, ok := index[id]; ok {
			// The open channel may lack a title; borrow the link's details.
			if out[i].Name == "" {
				out[i].Name = name
			}
			if out[i].Type == entity.ChannelText {
				out[i].Type = channelType(a)
			}
			return
		}
		index[id] = len(out)
		out = append(out, entity.Channel{ID: id, Name: name, Type: channelType(a), GuildID: guildID})
	})

	for i := range out {
		if out[i].Name == "" {
			out[i].Name = "channel-" + out[i].ID
		}
	}
	return out
}

// currentChannel returns the channel open in url, named from the page title
// ("#general | Server - Discord").
func currentChannel(url, title, guildID string) *entity.Channel {
	re := regexp.MustCompile(`/channels/` + regexp.QuoteMeta(guildID) + `/(\d+)`)
	m := re.FindStringSubmatch(url)
	if m == nil {
		return nil
	}
	var name string
	if t := titleChannelName.FindStringSubmatch(title); t != nil {
		name = collapse(t[1])
	}
	return &entity.Channel{ID: m[1], Name: name, Type: entity.ChannelText, GuildID: guildID}
}

// ListChannels lists the channels of a guild. A guild whose channel links
// never render is a *TargetError.
func (n *Navigator) ListChannels(ctx context.Context, page browser.Page, guildID string) ([]entity.Channel, error) {
	fail := func(err error) error {
		return &TargetError{Target: "guild", ID: guildID, Err: err}
	}

	if err := page.Navigate(ctx, n.guildURL(guildID)); err != nil {
		return nil, fail(err)
	}
	links := fmt.Sprintf(`a[href*="/channels/%s/"]`, guildID)
	if err := page.WaitVisible(ctx, links, n.cfg.LandmarkTimeout); err != nil {
		return nil, fail(err)
	}

	url, err := page.URL(ctx)
	if err != nil {
		return nil, fail(err)
	}
	if !strings.Contains(url, "/channels/"+guildID) {
		return nil, fail(fmt.Errorf("landed on %s", url))
	}
	title, err := page.Title(ctx)
	if err != nil {
		n.logger.Debug("scrape: page title unavailable", "error", err)
	}

	doc, err := snapshot(ctx, page, "")
	if err != nil {
		return nil, fail(err)
	}
	channels := parseChannels(doc, guildID, currentChannel(url, title, guildID))
	n.logger.Debug("scrape: channels parsed", "guild", guildID, "count", len(channels))
	return channels, nil
}
