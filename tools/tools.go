// CLAUDE:SUMMARY Tool surface: argument validation, JSON views of entities and the MCP registration of every Discord tool.
// Package tools validates tool arguments, calls the backend and shapes
// the JSON results. The same Service backs the MCP server and the one-shot
// CLI commands.
package tools

import (
	"context"
	"time"

	"github.com/hazyhaar/discordweb/client"
	"github.com/hazyhaar/discordweb/discovery"
	"github.com/hazyhaar/discordweb/entity"
)

// Backend is what the tools drive. *client.Client implements it.
type Backend interface {
	ListGuilds(ctx context.Context) ([]entity.Guild, error)
	ListChannels(ctx context.Context, guildID string) ([]entity.Channel, error)
	ReadRecent(ctx context.Context, guildID, channelID string, hoursBack, max int) ([]entity.Message, error)
	SendMessage(ctx context.Context, guildID, channelID, content string) (entity.SendResult, error)
	Discover(ctx context.Context, match discovery.Matcher, guildIDs []string) ([]discovery.Match, error)
	Status(ctx context.Context) (client.Status, error)
	Logout(ctx context.Context) error
}

var _ Backend = (*client.Client)(nil)

// Limits bound tool arguments.
type Limits struct {
	// DefaultHoursBack when read_messages omits hours_back. Default: 24.
	DefaultHoursBack int
	// MaxMessages caps max_messages. Default: 200.
	MaxMessages int
}

func (l *Limits) defaults() {
	if l.DefaultHoursBack <= 0 {
		l.DefaultHoursBack = 24
	}
	if l.MaxMessages <= 0 {
		l.MaxMessages = 200
	}
}

// Argument bounds.
const (
	MinHoursBack       = 1
	MaxHoursBack       = 720
	DefaultMaxMessages = 100
	MaxContentRunes    = 2000
)

// Guild is the JSON view of a guild.
type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Channel is the JSON view of a channel.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type int    `json:"type"`
}

// Message is the JSON view of a message. Timestamp is RFC 3339 in UTC.
type Message struct {
	ID          string   `json:"id"`
	Content     string   `json:"content"`
	AuthorName  string   `json:"author_name"`
	Timestamp   string   `json:"timestamp"`
	Attachments []string `json:"attachments"`
}

// MessagesWithSummary is the read_messages result when a summary is asked for.
type MessagesWithSummary struct {
	Messages []Message         `json:"messages"`
	Summary  discovery.Summary `json:"summary"`
}

// Match is the JSON view of a discovered channel.
type Match struct {
	Guild   Guild   `json:"guild"`
	Channel Channel `json:"channel"`
	Reason  string  `json:"match_reason"`
}

// LogoutResult acknowledges a logout.
type LogoutResult struct {
	Status string `json:"status"`
}

func guildView(g entity.Guild) Guild { return Guild{ID: g.ID, Name: g.Name} }

func channelView(c entity.Channel) Channel { return Channel{ID: c.ID, Name: c.Name, Type: c.Type} }

func messageView(m entity.Message) Message {
	att := m.Attachments
	if att == nil {
		att = []string{}
	}
	return Message{
		ID:          m.ID,
		Content:     m.Content,
		AuthorName:  m.AuthorName,
		Timestamp:   m.Timestamp.UTC().Format(time.RFC3339),
		Attachments: att,
	}
}

// Service implements every tool over a Backend.
type Service struct {
	backend Backend
	limits  Limits
}

// NewService creates a Service.
func NewService(b Backend, limits Limits) *Service {
	limits.defaults()
	return &Service{backend: b, limits: limits}
}

// Limits returns the resolved limits.
func (s *Service) Limits() Limits { return s.limits }

// Servers lists guilds.
func (s *Service) Servers(ctx context.Context) ([]Guild, error) {
	guilds, err := s.backend.ListGuilds(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Guild, 0, len(guilds))
	for _, g := range guilds {
		out = append(out, guildView(g))
	}
	return out, nil
}

// Channels lists the channels of a guild.
func (s *Service) Channels(ctx context.Context, req *ChannelsRequest) ([]Channel, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	channels, err := s.backend.ListChannels(ctx, req.ServerID)
	if err != nil {
		return nil, err
	}
	out := make([]Channel, 0, len(channels))
	for _, c := range channels {
		out = append(out, channelView(c))
	}
	return out, nil
}

// Messages reads the recent messages of a channel. With req.Summary the
// result is a MessagesWithSummary, otherwise a []Message.
func (s *Service) Messages(ctx context.Context, req *MessagesRequest) (any, error) {
	if err := req.validate(s.limits); err != nil {
		return nil, err
	}
	msgs, err := s.backend.ReadRecent(ctx, req.ServerID, req.ChannelID, *req.HoursBack, *req.MaxMessages)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView(m))
	}
	if req.Summary {
		return MessagesWithSummary{Messages: out, Summary: discovery.Summarize(msgs)}, nil
	}
	return out, nil
}

// Send posts a message.
func (s *Service) Send(ctx context.Context, req *SendRequest) (entity.SendResult, error) {
	if err := req.validate(); err != nil {
		return entity.SendResult{}, err
	}
	return s.backend.SendMessage(ctx, req.ServerID, req.ChannelID, req.Content)
}

// Discover finds channels by keywords, preset or pattern.
func (s *Service) Discover(ctx context.Context, req *DiscoverRequest) ([]Match, error) {
	match, err := req.matcher()
	if err != nil {
		return nil, err
	}
	found, err := s.backend.Discover(ctx, match, req.ServerIDs)
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, len(found))
	for _, m := range found {
		out = append(out, Match{Guild: guildView(m.Guild), Channel: channelView(m.Channel), Reason: m.Reason})
	}
	return out, nil
}

// SessionStatus reports the browser session.
func (s *Service) SessionStatus(ctx context.Context) (client.Status, error) {
	return s.backend.Status(ctx)
}

// Logout drops the browser session and its artifact.
func (s *Service) Logout(ctx context.Context) (LogoutResult, error) {
	if err := s.backend.Logout(ctx); err != nil {
		return LogoutResult{}, err
	}
	return LogoutResult{Status: "logged_out"}, nil
}
