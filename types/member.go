// SPDX-License-Identifier: MIT

package types

import "time"

// Member is a guild member payload. The User field may be absent on
// members embedded in message payloads.
type Member struct {
	User                       *User       `json:"user,omitempty"`
	Nick                       string      `json:"nick,omitempty"`
	Avatar                     string      `json:"avatar,omitempty"`
	Banner                     string      `json:"banner,omitempty"`
	Roles                      []Snowflake `json:"roles"`
	JoinedAt                   time.Time   `json:"joined_at"`
	PremiumSince               *time.Time  `json:"premium_since,omitempty"`
	Deaf                       bool        `json:"deaf"`
	Mute                       bool        `json:"mute"`
	Flags                      int         `json:"flags"`
	Pending                    bool        `json:"pending,omitempty"`
	CommunicationDisabledUntil *time.Time  `json:"communication_disabled_until,omitempty"`

	// GuildID is filled in by gateway member events; REST member
	// payloads omit it.
	GuildID Snowflake `json:"guild_id,omitempty"`
}

// DisplayName returns the nickname when set, falling back to the user's
// display name.
func (m *Member) DisplayName() string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User != nil {
		return m.User.DisplayName()
	}
	return ""
}

// TimedOut reports whether the member is currently under a
// communication timeout.
func (m *Member) TimedOut(now time.Time) bool {
	return m.CommunicationDisabledUntil != nil && m.CommunicationDisabledUntil.After(now)
}

// Role is a guild role.
type Role struct {
	ID          Snowflake `json:"id"`
	Name        string    `json:"name"`
	Color       int       `json:"color"`
	Hoist       bool      `json:"hoist"`
	Position    int       `json:"position"`
	Permissions string    `json:"permissions"`
	Managed     bool      `json:"managed"`
	Mentionable bool      `json:"mentionable"`
	Icon        string    `json:"icon,omitempty"`
}
