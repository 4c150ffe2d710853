// SPDX-License-Identifier: MIT

package rest

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/concordlib/concord/types"
)

// GatewayURL fetches the websocket URL to connect the gateway session to.
func (c *Client) GatewayURL(ctx context.Context) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := c.Do(ctx, NewRoute("GET", "/gateway"), nil, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// Me fetches the account the token belongs to.
func (c *Client) Me(ctx context.Context) (*types.User, error) {
	var u types.User
	if err := c.Do(ctx, NewRoute("GET", "/users/@me"), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// User fetches a user profile by ID.
func (c *Client) User(ctx context.Context, id types.Snowflake) (*types.User, error) {
	r := NewRoute("GET", "/users/{user_id}").WithParam("user_id", id.String())
	var u types.User
	if err := c.Do(ctx, r, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Channel fetches a channel by ID.
func (c *Client) Channel(ctx context.Context, id types.Snowflake) (*types.Channel, error) {
	r := NewRoute("GET", "/channels/{channel_id}").WithChannel(id)
	var ch types.Channel
	if err := c.Do(ctx, r, nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// CreateDM opens (or returns the existing) direct message channel with
// the recipient.
func (c *Client) CreateDM(ctx context.Context, recipient types.Snowflake) (*types.Channel, error) {
	body := map[string]any{"recipients": []string{recipient.String()}}
	var ch types.Channel
	if err := c.Do(ctx, NewRoute("POST", "/users/@me/channels"), body, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// MessagesQuery narrows a channel history fetch. Zero values are omitted.
type MessagesQuery struct {
	Limit  int
	Before types.Snowflake
	After  types.Snowflake
	Around types.Snowflake
}

// Messages fetches channel history, newest first.
func (c *Client) Messages(ctx context.Context, channelID types.Snowflake, q MessagesQuery) ([]types.Message, error) {
	vals := url.Values{}
	if q.Limit > 0 {
		vals.Set("limit", strconv.Itoa(q.Limit))
	}
	if !q.Before.IsZero() {
		vals.Set("before", q.Before.String())
	}
	if !q.After.IsZero() {
		vals.Set("after", q.After.String())
	}
	if !q.Around.IsZero() {
		vals.Set("around", q.Around.String())
	}
	r := NewRoute("GET", "/channels/{channel_id}/messages").WithChannel(channelID).WithQuery(vals)
	var out []types.Message
	if err := c.Do(ctx, r, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessageData is the body of a message create or edit.
type SendMessageData struct {
	Content   string                  `json:"content,omitempty"`
	Nonce     string                  `json:"nonce,omitempty"`
	TTS       bool                    `json:"tts,omitempty"`
	Embeds    []types.Embed           `json:"embeds,omitempty"`
	Reference *types.MessageReference `json:"message_reference,omitempty"`
	Flags     types.MessageFlags      `json:"flags,omitempty"`
}

// SendMessage posts a message to the channel.
func (c *Client) SendMessage(ctx context.Context, channelID types.Snowflake, data SendMessageData) (*types.Message, error) {
	r := NewRoute("POST", "/channels/{channel_id}/messages").WithChannel(channelID)
	var m types.Message
	if err := c.Do(ctx, r, data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// EditMessage patches a message the client authored.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID types.Snowflake, data SendMessageData) (*types.Message, error) {
	r := NewRoute("PATCH", "/channels/{channel_id}/messages/{message_id}").
		WithChannel(channelID).
		WithParam("message_id", messageID.String())
	var m types.Message
	if err := c.Do(ctx, r, data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteMessage removes a message. Deleting another user's message
// rides a different sub-limit than deleting your own, hence the
// metadata split.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID types.Snowflake, own bool) error {
	meta := "delete-other"
	if own {
		meta = "delete-own"
	}
	r := NewRoute("DELETE", "/channels/{channel_id}/messages/{message_id}").
		WithChannel(channelID).
		WithParam("message_id", messageID.String()).
		WithMetadata(meta)
	return c.Do(ctx, r, nil, nil)
}

// TriggerTyping starts the typing indicator in the channel. It expires
// server-side after roughly ten seconds.
func (c *Client) TriggerTyping(ctx context.Context, channelID types.Snowflake) error {
	r := NewRoute("POST", "/channels/{channel_id}/typing").WithChannel(channelID)
	return c.Do(ctx, r, nil, nil)
}

// AckMessage marks the channel read up to the message and returns the
// rolling ack token the server hands back.
func (c *Client) AckMessage(ctx context.Context, channelID, messageID types.Snowflake, token string) (string, error) {
	r := NewRoute("POST", "/channels/{channel_id}/messages/{message_id}/ack").
		WithChannel(channelID).
		WithParam("message_id", messageID.String())
	body := map[string]any{}
	if token != "" {
		body["token"] = token
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := c.Do(ctx, r, body, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// Guild fetches a guild by ID.
func (c *Client) Guild(ctx context.Context, id types.Snowflake) (*types.Guild, error) {
	r := NewRoute("GET", "/guilds/{guild_id}").WithGuild(id)
	var g types.Guild
	if err := c.Do(ctx, r, nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// GuildMembers pages through a guild's member list.
func (c *Client) GuildMembers(ctx context.Context, guildID types.Snowflake, limit int, after types.Snowflake) ([]types.Member, error) {
	vals := url.Values{}
	if limit > 0 {
		vals.Set("limit", strconv.Itoa(limit))
	}
	if !after.IsZero() {
		vals.Set("after", after.String())
	}
	r := NewRoute("GET", "/guilds/{guild_id}/members").WithGuild(guildID).WithQuery(vals)
	var out []types.Member
	if err := c.Do(ctx, r, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LeaveGuild leaves the guild without marking it lurked.
func (c *Client) LeaveGuild(ctx context.Context, id types.Snowflake) error {
	r := NewRoute("DELETE", "/users/@me/guilds/{guild_id}").WithGuild(id)
	return c.Do(ctx, r, map[string]any{"lurking": false}, nil)
}

// Invite resolves an invite code with approximate member counts.
func (c *Client) Invite(ctx context.Context, code string) (*types.Invite, error) {
	vals := url.Values{"with_counts": {"true"}, "with_expiration": {"true"}}
	r := NewRoute("GET", "/invites/{invite_code}").WithParam("invite_code", code).WithQuery(vals)
	var inv types.Invite
	if err := c.Do(ctx, r, nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// AcceptInvite joins the guild or group behind the invite code.
func (c *Client) AcceptInvite(ctx context.Context, code string) (*types.Invite, error) {
	r := NewRoute("POST", "/invites/{invite_code}").WithParam("invite_code", code)
	var inv types.Invite
	if err := c.Do(ctx, r, map[string]any{}, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// ExternalAssets registers external image URLs with an application and
// returns asset keys usable in rich presence, already carrying the
// required "mp:" prefix.
func (c *Client) ExternalAssets(ctx context.Context, applicationID types.Snowflake, urls ...string) ([]string, error) {
	r := NewRoute("POST", "/applications/{application_id}/external-assets").
		WithParam("application_id", applicationID.String())
	body := map[string]any{"urls": urls}
	var out []struct {
		ExternalAssetPath string `json:"external_asset_path"`
	}
	if err := c.Do(ctx, r, body, &out); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(out))
	for _, item := range out {
		if item.ExternalAssetPath == "" {
			continue
		}
		key := item.ExternalAssetPath
		if !strings.HasPrefix(key, "mp:") {
			key = "mp:" + key
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// SetStatusSetting persists the account's status setting (the one the
// gateway presence mirrors on next identify).
func (c *Client) SetStatusSetting(ctx context.Context, status types.Status) error {
	r := NewRoute("PATCH", "/users/@me/settings")
	return c.Do(ctx, r, map[string]any{"status": status}, nil)
}
