package client

import (
	"context"
	"sort"
	"time"

	"github.com/hazyhaar/discordweb/browser"
	"github.com/hazyhaar/discordweb/discovery"
	"github.com/hazyhaar/discordweb/entity"
	"github.com/hazyhaar/discordweb/scrape"
)

// maxBatch caps one backwards page of ReadRecent.
const maxBatch = 100

// fetchFunc returns up to limit messages older than before, newest first.
type fetchFunc func(ctx context.Context, before string, limit int) ([]entity.Message, error)

// ReadRecent returns up to max messages of a channel posted in the last
// hoursBack hours, newest first. It pages backwards from the newest message
// until max is reached, a page comes back empty or makes no progress, or
// the oldest message of a page predates the window.
func (c *Client) ReadRecent(ctx context.Context, guildID, channelID string, hoursBack, max int) ([]entity.Message, error) {
	cutoff := c.cfg.Now().Add(-time.Duration(hoursBack) * time.Hour)
	var out []entity.Message
	err := c.run(ctx, "read_recent", func(ctx context.Context, page browser.Page) error {
		fetch := func(ctx context.Context, before string, limit int) ([]entity.Message, error) {
			return c.nav.ListMessages(ctx, page, scrape.MessageQuery{
				GuildID:   guildID,
				ChannelID: channelID,
				Limit:     limit,
				Before:    before,
			})
		}
		var err error
		out, err = collectRecent(ctx, fetch, cutoff, max)
		return err
	})
	return out, err
}

func collectRecent(ctx context.Context, fetch fetchFunc, cutoff time.Time, max int) ([]entity.Message, error) {
	out := []entity.Message{}
	seen := make(map[string]bool)
	before := ""
	for len(out) < max {
		batch, err := fetch(ctx, before, min(maxBatch, max-len(out)))
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		var fresh []entity.Message
		for _, m := range batch {
			if !seen[m.ID] {
				seen[m.ID] = true
				fresh = append(fresh, m)
			}
		}
		progress := len(fresh) > 0
		for _, m := range discovery.WithinWindow(fresh, cutoff) {
			if len(out) == max {
				break
			}
			out = append(out, m)
		}

		oldest := batch[len(batch)-1]
		if !progress || !oldest.Timestamp.After(cutoff) || oldest.ID == before {
			break
		}
		before = oldest.ID
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}
