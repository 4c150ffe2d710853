// SPDX-License-Identifier: MIT

package types

// User is a user payload. Fields beyond the partial set are only
// present for the client's own account.
type User struct {
	ID            Snowflake `json:"id"`
	Username      string    `json:"username"`
	Discriminator string    `json:"discriminator"`
	GlobalName    string    `json:"global_name,omitempty"`
	Avatar        string    `json:"avatar,omitempty"`
	Banner        string    `json:"banner,omitempty"`
	AccentColor   int       `json:"accent_color,omitempty"`
	Bot           bool      `json:"bot,omitempty"`
	System        bool      `json:"system,omitempty"`
	PublicFlags   UserFlags `json:"public_flags,omitempty"`

	// Self-only fields.
	MFAEnabled  bool      `json:"mfa_enabled,omitempty"`
	Locale      string    `json:"locale,omitempty"`
	Verified    bool      `json:"verified,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Flags       UserFlags `json:"flags,omitempty"`
	PremiumType int       `json:"premium_type,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	NSFWAllowed *bool     `json:"nsfw_allowed,omitempty"`
}

// DisplayName returns the global name when set, otherwise the username.
func (u *User) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// Tag renders the legacy name#discriminator form, or the plain username
// for accounts migrated off discriminators.
func (u *User) Tag() string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}

// Mention returns the chat mention form of the user.
func (u *User) Mention() string {
	return "<@" + u.ID.String() + ">"
}

// VoiceState describes a user's membership of a voice channel.
type VoiceState struct {
	GuildID    Snowflake `json:"guild_id,omitempty"`
	ChannelID  Snowflake `json:"channel_id,omitempty"`
	UserID     Snowflake `json:"user_id"`
	SessionID  string    `json:"session_id"`
	Deaf       bool      `json:"deaf"`
	Mute       bool      `json:"mute"`
	SelfDeaf   bool      `json:"self_deaf"`
	SelfMute   bool      `json:"self_mute"`
	SelfStream bool      `json:"self_stream,omitempty"`
	SelfVideo  bool      `json:"self_video"`
	Suppress   bool      `json:"suppress"`
}

// Status is a user presence status string.
type Status string

const (
	StatusOnline    Status = "online"
	StatusIdle      Status = "idle"
	StatusDND       Status = "dnd"
	StatusInvisible Status = "invisible"
	StatusOffline   Status = "offline"
)

// ActivityType discriminates the kinds of activity shown in a presence.
type ActivityType int

const (
	ActivityPlaying   ActivityType = 0
	ActivityStreaming ActivityType = 1
	ActivityListening ActivityType = 2
	ActivityWatching  ActivityType = 3
	ActivityCustom    ActivityType = 4
	ActivityCompeting ActivityType = 5
)

// ActivityTimestamps bounds an activity in unix milliseconds.
type ActivityTimestamps struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

// ActivityAssets references the artwork shown with an activity.
type ActivityAssets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	LargeURL   string `json:"large_url,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
	SmallURL   string `json:"small_url,omitempty"`
}

// ActivityButton is a labelled link on a rich presence.
type ActivityButton struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Activity is a single presence activity.
type Activity struct {
	Name          string              `json:"name"`
	Type          ActivityType        `json:"type"`
	URL           string              `json:"url,omitempty"`
	State         string              `json:"state,omitempty"`
	Details       string              `json:"details,omitempty"`
	ApplicationID Snowflake           `json:"application_id,omitempty"`
	Timestamps    *ActivityTimestamps `json:"timestamps,omitempty"`
	Assets        *ActivityAssets     `json:"assets,omitempty"`
	Buttons       []string            `json:"buttons,omitempty"`
	Metadata      map[string]any      `json:"metadata,omitempty"`
}

// Presence is a user's presence as delivered on the gateway.
type Presence struct {
	User         User              `json:"user"`
	GuildID      Snowflake         `json:"guild_id,omitempty"`
	Status       Status            `json:"status"`
	Activities   []Activity        `json:"activities"`
	ClientStatus map[string]Status `json:"client_status,omitempty"`
}
