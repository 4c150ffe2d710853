// SPDX-License-Identifier: MIT

package types

import "time"

// ChannelType discriminates the channel payload shape.
type ChannelType int

const (
	ChannelGuildText     ChannelType = 0
	ChannelDM            ChannelType = 1
	ChannelGuildVoice    ChannelType = 2
	ChannelGroupDM       ChannelType = 3
	ChannelGuildCategory ChannelType = 4
	ChannelGuildNews     ChannelType = 5
	ChannelNewsThread    ChannelType = 10
	ChannelPublicThread  ChannelType = 11
	ChannelPrivateThread ChannelType = 12
	ChannelGuildStage    ChannelType = 13
	ChannelGuildForum    ChannelType = 15
	ChannelGuildMedia    ChannelType = 16
)

func (t ChannelType) String() string {
	switch t {
	case ChannelGuildText:
		return "guild_text"
	case ChannelDM:
		return "dm"
	case ChannelGuildVoice:
		return "guild_voice"
	case ChannelGroupDM:
		return "group_dm"
	case ChannelGuildCategory:
		return "guild_category"
	case ChannelGuildNews:
		return "guild_news"
	case ChannelNewsThread:
		return "news_thread"
	case ChannelPublicThread:
		return "public_thread"
	case ChannelPrivateThread:
		return "private_thread"
	case ChannelGuildStage:
		return "guild_stage"
	case ChannelGuildForum:
		return "guild_forum"
	case ChannelGuildMedia:
		return "guild_media"
	}
	return "unknown"
}

// IsThread reports whether the type is one of the thread kinds.
func (t ChannelType) IsThread() bool {
	return t == ChannelNewsThread || t == ChannelPublicThread || t == ChannelPrivateThread
}

// IsDM reports whether the channel lives outside a guild.
func (t ChannelType) IsDM() bool {
	return t == ChannelDM || t == ChannelGroupDM
}

// ThreadMetadata carries the archival state of a thread channel.
type ThreadMetadata struct {
	Archived            bool      `json:"archived"`
	AutoArchiveDuration int       `json:"auto_archive_duration"`
	ArchiveTimestamp    time.Time `json:"archive_timestamp"`
	Locked              bool      `json:"locked"`
	Invitable           bool      `json:"invitable,omitempty"`
	CreateTimestamp     time.Time `json:"create_timestamp,omitempty"`
}

// PermissionOverwrite is a role or member permission override on a channel.
type PermissionOverwrite struct {
	ID    Snowflake `json:"id"`
	Type  int       `json:"type"`
	Allow string    `json:"allow"`
	Deny  string    `json:"deny"`
}

// Channel is a channel payload of any type; fields irrelevant to the
// type are absent.
type Channel struct {
	ID             Snowflake             `json:"id"`
	Type           ChannelType           `json:"type"`
	GuildID        Snowflake             `json:"guild_id,omitempty"`
	Position       int                   `json:"position,omitempty"`
	Overwrites     []PermissionOverwrite `json:"permission_overwrites,omitempty"`
	Name           string                `json:"name,omitempty"`
	Topic          string                `json:"topic,omitempty"`
	NSFW           bool                  `json:"nsfw,omitempty"`
	LastMessageID  Snowflake             `json:"last_message_id,omitempty"`
	Bitrate        int                   `json:"bitrate,omitempty"`
	UserLimit      int                   `json:"user_limit,omitempty"`
	RateLimit      int                   `json:"rate_limit_per_user,omitempty"`
	Recipients     []User                `json:"recipients,omitempty"`
	Icon           string                `json:"icon,omitempty"`
	OwnerID        Snowflake             `json:"owner_id,omitempty"`
	ParentID       Snowflake             `json:"parent_id,omitempty"`
	LastPinAt      *time.Time            `json:"last_pin_timestamp,omitempty"`
	Flags          ChannelFlags          `json:"flags,omitempty"`
	ThreadMetadata *ThreadMetadata       `json:"thread_metadata,omitempty"`
	MessageCount   int                   `json:"message_count,omitempty"`
	MemberCount    int                   `json:"member_count,omitempty"`
}

// Mention returns the chat mention form of the channel.
func (c *Channel) Mention() string {
	return "<#" + c.ID.String() + ">"
}
