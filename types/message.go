// SPDX-License-Identifier: MIT

package types

import "time"

// MessageType discriminates system messages from user content.
type MessageType int

const (
	MessageDefault              MessageType = 0
	MessageRecipientAdd         MessageType = 1
	MessageRecipientRemove      MessageType = 2
	MessageCall                 MessageType = 3
	MessageChannelNameChange    MessageType = 4
	MessageChannelIconChange    MessageType = 5
	MessageChannelPinnedMessage MessageType = 6
	MessageUserJoin             MessageType = 7
	MessageReply                MessageType = 19
	MessageThreadStarter        MessageType = 21
)

// Attachment is an uploaded file on a message.
type Attachment struct {
	ID          Snowflake `json:"id"`
	Filename    string    `json:"filename"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int       `json:"size"`
	URL         string    `json:"url"`
	ProxyURL    string    `json:"proxy_url"`
	Height      int       `json:"height,omitempty"`
	Width       int       `json:"width,omitempty"`
	Ephemeral   bool      `json:"ephemeral,omitempty"`
	DurationSec float64   `json:"duration_secs,omitempty"`
	Flags       int       `json:"flags,omitempty"`
}

// IsSpoiler reports whether the attachment is marked as a spoiler.
func (a *Attachment) IsSpoiler() bool {
	return len(a.Filename) > 8 && a.Filename[:8] == "SPOILER_"
}

// EmbedFooter, EmbedImage, EmbedAuthor, and EmbedField are the embed
// sub-objects the API defines.
type EmbedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

type EmbedImage struct {
	URL    string `json:"url"`
	Height int    `json:"height,omitempty"`
	Width  int    `json:"width,omitempty"`
}

type EmbedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Embed is rich content rendered alongside a message.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Type        string       `json:"type,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Timestamp   *time.Time   `json:"timestamp,omitempty"`
	Color       int          `json:"color,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Image       *EmbedImage  `json:"image,omitempty"`
	Thumbnail   *EmbedImage  `json:"thumbnail,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

// MessageReference points a reply or crosspost at its source message.
type MessageReference struct {
	MessageID Snowflake `json:"message_id,omitempty"`
	ChannelID Snowflake `json:"channel_id,omitempty"`
	GuildID   Snowflake `json:"guild_id,omitempty"`
	// FailIfNotExists controls whether sending errors when the
	// referenced message is gone; default true on the wire.
	FailIfNotExists *bool `json:"fail_if_not_exists,omitempty"`
}

// Reaction is an aggregated emoji reaction on a message.
type Reaction struct {
	Count int  `json:"count"`
	Me    bool `json:"me"`
	Emoji struct {
		ID   Snowflake `json:"id,omitempty"`
		Name string    `json:"name"`
	} `json:"emoji"`
}

// Message is a message payload.
type Message struct {
	ID              Snowflake         `json:"id"`
	ChannelID       Snowflake         `json:"channel_id"`
	GuildID         Snowflake         `json:"guild_id,omitempty"`
	Author          User              `json:"author"`
	Member          *Member           `json:"member,omitempty"`
	Content         string            `json:"content"`
	Timestamp       time.Time         `json:"timestamp"`
	EditedTimestamp *time.Time        `json:"edited_timestamp,omitempty"`
	TTS             bool              `json:"tts,omitempty"`
	MentionEveryone bool              `json:"mention_everyone,omitempty"`
	Mentions        []User            `json:"mentions,omitempty"`
	MentionRoles    []Snowflake       `json:"mention_roles,omitempty"`
	Attachments     []Attachment      `json:"attachments,omitempty"`
	Embeds          []Embed           `json:"embeds,omitempty"`
	Reactions       []Reaction        `json:"reactions,omitempty"`
	Nonce           string            `json:"nonce,omitempty"`
	Pinned          bool              `json:"pinned,omitempty"`
	Type            MessageType       `json:"type"`
	Flags           MessageFlags      `json:"flags,omitempty"`
	Reference       *MessageReference `json:"message_reference,omitempty"`
	ReferencedMsg   *Message          `json:"referenced_message,omitempty"`
}

// JumpURL returns the canonical link to the message. DM messages use
// "@me" in place of a guild ID.
func (m *Message) JumpURL() string {
	guild := "@me"
	if !m.GuildID.IsZero() {
		guild = m.GuildID.String()
	}
	return "https://discord.com/channels/" + guild + "/" + m.ChannelID.String() + "/" + m.ID.String()
}
