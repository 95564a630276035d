package tools

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/discordweb/discovery"
)

// ValidationError rejects tool arguments before the backend is called.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return &ValidationError{Field: field, Reason: "is required"}
	}
	return nil
}

// snowflakeRE matches platform ids. Ids end up in URLs and selectors.
var snowflakeRE = regexp.MustCompile(`^[0-9]+$`)

func snowflake(field, v string) error {
	if err := required(field, v); err != nil {
		return err
	}
	if !snowflakeRE.MatchString(v) {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be a numeric id, got %q", v)}
	}
	return nil
}

// ChannelsRequest are the get_channels arguments.
type ChannelsRequest struct {
	ServerID string `json:"server_id"`
}

func (r *ChannelsRequest) validate() error { return snowflake("server_id", r.ServerID) }

// MessagesRequest are the read_messages arguments. Nil bounds take the
// defaults.
type MessagesRequest struct {
	ServerID    string `json:"server_id"`
	ChannelID   string `json:"channel_id"`
	HoursBack   *int   `json:"hours_back,omitempty"`
	MaxMessages *int   `json:"max_messages,omitempty"`
	Summary     bool   `json:"summary,omitempty"`
}

func (r *MessagesRequest) validate(l Limits) error {
	if err := errors.Join(snowflake("server_id", r.ServerID), snowflake("channel_id", r.ChannelID)); err != nil {
		return err
	}
	if r.HoursBack == nil {
		h := l.DefaultHoursBack
		r.HoursBack = &h
	}
	if r.MaxMessages == nil {
		m := min(DefaultMaxMessages, l.MaxMessages)
		r.MaxMessages = &m
	}
	if h := *r.HoursBack; h < MinHoursBack || h > MaxHoursBack {
		return &ValidationError{Field: "hours_back", Reason: fmt.Sprintf("must be between %d and %d, got %d", MinHoursBack, MaxHoursBack, h)}
	}
	if m := *r.MaxMessages; m < 1 || m > l.MaxMessages {
		return &ValidationError{Field: "max_messages", Reason: fmt.Sprintf("must be between 1 and %d, got %d", l.MaxMessages, m)}
	}
	return nil
}

// SendRequest are the send_message arguments.
type SendRequest struct {
	ServerID  string `json:"server_id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

func (r *SendRequest) validate() error {
	if err := errors.Join(snowflake("server_id", r.ServerID), snowflake("channel_id", r.ChannelID)); err != nil {
		return err
	}
	n := utf8.RuneCountInString(r.Content)
	if n < 1 || n > MaxContentRunes {
		return &ValidationError{Field: "content", Reason: fmt.Sprintf("must be 1 to %d characters, got %d", MaxContentRunes, n)}
	}
	return nil
}

// DiscoverRequest are the discover_channels arguments. Exactly one of
// Keywords, Preset and Pattern is set. An invalid Pattern matches nothing.
type DiscoverRequest struct {
	Keywords  []string `json:"keywords,omitempty"`
	Preset    string   `json:"preset,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	ServerIDs []string `json:"server_ids,omitempty"`
}

func (r *DiscoverRequest) matcher() (discovery.Matcher, error) {
	for _, id := range r.ServerIDs {
		if err := snowflake("server_ids", id); err != nil {
			return nil, err
		}
	}

	set := 0
	for _, ok := range []bool{len(r.Keywords) > 0, r.Preset != "", r.Pattern != ""} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, &ValidationError{Field: "keywords", Reason: "exactly one of keywords, preset or pattern is required"}
	}

	switch {
	case r.Pattern != "":
		return discovery.Pattern(r.Pattern), nil
	case r.Preset != "":
		kw, ok := discovery.Preset(r.Preset)
		if !ok {
			return nil, &ValidationError{Field: "preset", Reason: fmt.Sprintf("unknown preset %q", r.Preset)}
		}
		return discovery.Keywords(kw...), nil
	}
	return discovery.Keywords(r.Keywords...), nil
}
