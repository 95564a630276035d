// CLAUDE:SUMMARY Records extracted from the web client: guilds, channels, messages and send acknowledgements.
// Package entity defines the records the scrape and action packages produce.
// They are rebuilt from the DOM on every call and never cached.
package entity

import "time"

// Channel type codes, following the platform's numbering.
const (
	ChannelText         = 0
	ChannelVoice        = 2
	ChannelAnnouncement = 5
	ChannelStage        = 13
	ChannelForum        = 15
)

// Guild is a server listed in the guild sidebar.
type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Icon is the icon URL when one was rendered.
	Icon string `json:"icon,omitempty"`
}

// Channel belongs to exactly one guild; its ID is unique within it.
type Channel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    int    `json:"type"`
	GuildID string `json:"guild_id"`
}

// Message is one rendered chat message. IDs are snowflakes: fixed-width
// numeric strings where larger means newer.
type Message struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	AuthorName  string    `json:"author_name"`
	AuthorID    string    `json:"author_id,omitempty"`
	ChannelID   string    `json:"channel_id"`
	Timestamp   time.Time `json:"timestamp"`
	Attachments []string  `json:"attachments"`
}

// SendResult acknowledges a posted message. MessageID is a locally generated
// reference, not a platform id.
type SendResult struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// StatusSent is the only SendResult status.
const StatusSent = "sent"
