// CLAUDE:SUMMARY Channel discovery by keyword or regex across guilds, keyword presets, time-window filtering and message batch summaries.
// Package discovery reshapes already-extracted data: it finds channels by
// name across guilds and summarises message batches. It never touches the
// browser itself; listings come from a Source.
package discovery

import (
	"context"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/hazyhaar/discordweb/entity"
)

// Source lists guilds and their channels.
type Source interface {
	ListGuilds(ctx context.Context) ([]entity.Guild, error)
	ListChannels(ctx context.Context, guildID string) ([]entity.Channel, error)
}

// Match is a channel whose name matched, with the reason.
type Match struct {
	Guild   entity.Guild   `json:"guild"`
	Channel entity.Channel `json:"channel"`
	Reason  string         `json:"match_reason"`
}

// Matcher decides whether a channel name matches and why.
type Matcher func(name string) (reason string, ok bool)

// Keywords matches names containing any keyword, case-insensitively. The
// reason lists every keyword found.
func Keywords(keywords ...string) Matcher {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			lowered = append(lowered, strings.ToLower(k))
		}
	}
	return func(name string) (string, bool) {
		lower := strings.ToLower(name)
		var hits []string
		for _, k := range lowered {
			if strings.Contains(lower, k) {
				hits = append(hits, k)
			}
		}
		if len(hits) == 0 {
			return "", false
		}
		return "Keywords: " + strings.Join(hits, ", "), true
	}
}

// Pattern matches names against a case-insensitive regular expression. An
// invalid expression matches nothing.
func Pattern(expr string) Matcher {
	re, err := regexp.Compile("(?i)" + expr)
	return func(name string) (string, bool) {
		if err != nil || !re.MatchString(name) {
			return "", false
		}
		return "Pattern: " + expr, true
	}
}

// Keyword presets.
var (
	AnnouncementKeywords = []string{"announcement", "announcements", "news", "updates", "general", "info", "information", "notice"}
	FeedbackKeywords     = []string{"feedback", "suggestions", "bug", "bugs", "feature", "requests", "support", "help", "discuss", "discussion"}
)

// Preset returns the keywords of a named preset ("announcements", "feedback").
func Preset(name string) ([]string, bool) {
	switch strings.ToLower(name) {
	case "announcements", "announcement":
		return AnnouncementKeywords, true
	case "feedback":
		return FeedbackKeywords, true
	}
	return nil, false
}

// ScopeGuilds keeps the guilds whose id is in ids. Empty ids keeps all.
func ScopeGuilds(guilds []entity.Guild, ids []string) []entity.Guild {
	if len(ids) == 0 {
		return guilds
	}
	out := make([]entity.Guild, 0, len(guilds))
	for _, g := range guilds {
		if slices.Contains(ids, g.ID) {
			out = append(out, g)
		}
	}
	return out
}

// Discover lists the guilds of src (scoped to guildIDs), then the channels of
// each, and returns those accepted by match. A guild whose channels cannot be
// listed is skipped; only a failure to list guilds is returned.
func Discover(ctx context.Context, src Source, match Matcher, guildIDs []string, logger *slog.Logger) ([]Match, error) {
	if logger == nil {
		logger = slog.Default()
	}
	guilds, err := src.ListGuilds(ctx)
	if err != nil {
		return nil, err
	}
	guilds = ScopeGuilds(guilds, guildIDs)

	matches := []Match{}
	for _, g := range guilds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		channels, err := src.ListChannels(ctx, g.ID)
		if err != nil {
			logger.Warn("discovery: guild skipped", "guild", g.ID, "error", err)
			continue
		}
		for _, c := range channels {
			if reason, ok := match(c.Name); ok {
				matches = append(matches, Match{Guild: g, Channel: c, Reason: reason})
			}
		}
	}
	logger.Debug("discovery: done", "guilds", len(guilds), "matches", len(matches))
	return matches, nil
}
