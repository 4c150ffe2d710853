// SPDX-License-Identifier: MIT

package types

import "time"

// PartialGuild is the guild stub embedded in invite payloads.
type PartialGuild struct {
	ID          Snowflake `json:"id"`
	Name        string    `json:"name"`
	Icon        string    `json:"icon,omitempty"`
	Splash      string    `json:"splash,omitempty"`
	Banner      string    `json:"banner,omitempty"`
	Description string    `json:"description,omitempty"`
	Features    []string  `json:"features,omitempty"`
	VanityURL   string    `json:"vanity_url_code,omitempty"`
}

// PartialChannel is the channel stub embedded in invite payloads.
type PartialChannel struct {
	ID   Snowflake   `json:"id"`
	Name string      `json:"name,omitempty"`
	Type ChannelType `json:"type"`
}

// Invite is an invite payload as returned by the invite endpoints.
type Invite struct {
	Code             string          `json:"code"`
	Guild            *PartialGuild   `json:"guild,omitempty"`
	Channel          *PartialChannel `json:"channel,omitempty"`
	Inviter          *User           `json:"inviter,omitempty"`
	TargetUser       *User           `json:"target_user,omitempty"`
	PresenceCount    int             `json:"approximate_presence_count,omitempty"`
	MemberCount      int             `json:"approximate_member_count,omitempty"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	Uses             int             `json:"uses,omitempty"`
	MaxUses          int             `json:"max_uses,omitempty"`
	MaxAge           int             `json:"max_age,omitempty"`
	Temporary        bool            `json:"temporary,omitempty"`
	CreatedAt        *time.Time      `json:"created_at,omitempty"`
	Flags            int             `json:"flags,omitempty"`
}

// URL returns the canonical shortlink for the invite.
func (i *Invite) URL() string {
	return "https://discord.gg/" + i.Code
}
