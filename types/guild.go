// SPDX-License-Identifier: MIT

package types

// Guild is a guild payload. Gateway GUILD_CREATE events include the
// member, channel, and state slices; REST guild fetches do not.
type Guild struct {
	ID          Snowflake `json:"id"`
	Name        string    `json:"name"`
	Icon        string    `json:"icon,omitempty"`
	Splash      string    `json:"splash,omitempty"`
	Banner      string    `json:"banner,omitempty"`
	Description string    `json:"description,omitempty"`
	OwnerID     Snowflake `json:"owner_id"`
	AFKTimeout  int       `json:"afk_timeout,omitempty"`
	Features    []string  `json:"features,omitempty"`
	Roles       []Role    `json:"roles,omitempty"`
	PremiumTier int       `json:"premium_tier,omitempty"`
	VanityURL   string    `json:"vanity_url_code,omitempty"`
	Large       bool      `json:"large,omitempty"`

	// Unavailable marks a guild the gateway has not yet delivered or
	// that is suffering an outage. Only ID is trustworthy when set.
	Unavailable bool `json:"unavailable,omitempty"`

	MemberCount int          `json:"member_count,omitempty"`
	Members     []Member     `json:"members,omitempty"`
	Channels    []Channel    `json:"channels,omitempty"`
	Threads     []Channel    `json:"threads,omitempty"`
	VoiceStates []VoiceState `json:"voice_states,omitempty"`
	Presences   []Presence   `json:"presences,omitempty"`
}

// UnavailableGuild is the stub shape sent in READY and GUILD_DELETE.
type UnavailableGuild struct {
	ID          Snowflake `json:"id"`
	Unavailable bool      `json:"unavailable,omitempty"`
}
