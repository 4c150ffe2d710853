// SPDX-License-Identifier: MIT

package concord

import (
	"encoding/json"
	"sync"

	"github.com/concordlib/concord/gateway"
	"github.com/concordlib/concord/internal/log"
	"github.com/concordlib/concord/types"
)

// TypingStart is the TYPING_START dispatch body.
type TypingStart struct {
	ChannelID types.Snowflake `json:"channel_id"`
	GuildID   types.Snowflake `json:"guild_id,omitempty"`
	UserID    types.Snowflake `json:"user_id"`
	Timestamp int64           `json:"timestamp"`
}

// MessageDelete is the MESSAGE_DELETE dispatch body.
type MessageDelete struct {
	ID        types.Snowflake `json:"id"`
	ChannelID types.Snowflake `json:"channel_id"`
	GuildID   types.Snowflake `json:"guild_id,omitempty"`
}

// InviteCreate is the INVITE_CREATE dispatch body.
type InviteCreate struct {
	ChannelID types.Snowflake `json:"channel_id"`
	GuildID   types.Snowflake `json:"guild_id,omitempty"`
	Code      string          `json:"code"`
	Inviter   *types.User     `json:"inviter,omitempty"`
	MaxAge    int             `json:"max_age"`
	MaxUses   int             `json:"max_uses"`
	Temporary bool            `json:"temporary"`
}

// messageAck is the MESSAGE_ACK dispatch body, sent when another
// session of this account reads a channel.
type messageAck struct {
	ChannelID types.Snowflake `json:"channel_id"`
	MessageID types.Snowflake `json:"message_id"`
}

// voiceServerInfo is the VOICE_SERVER_UPDATE dispatch body.
type voiceServerInfo struct {
	Token    string          `json:"token"`
	GuildID  types.Snowflake `json:"guild_id"`
	Endpoint string          `json:"endpoint"`
}

// handlerSet holds registered event callbacks. Handlers run on the
// gateway read goroutine, after the state cache has been updated.
type handlerSet struct {
	mu             sync.RWMutex
	ready          []func(gateway.Ready)
	messageCreate  []func(types.Message)
	messageUpdate  []func(types.Message)
	messageDelete  []func(MessageDelete)
	typingStart    []func(TypingStart)
	presenceUpdate []func(types.Presence)
	guildCreate    []func(types.Guild)
	guildDelete    []func(types.UnavailableGuild)
	inviteCreate   []func(InviteCreate)
	raw            []func(eventType string, data json.RawMessage)
}

func (c *Client) OnReady(fn func(gateway.Ready)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.ready = append(c.handlers.ready, fn)
}

func (c *Client) OnMessageCreate(fn func(types.Message)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.messageCreate = append(c.handlers.messageCreate, fn)
}

func (c *Client) OnMessageUpdate(fn func(types.Message)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.messageUpdate = append(c.handlers.messageUpdate, fn)
}

func (c *Client) OnMessageDelete(fn func(MessageDelete)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.messageDelete = append(c.handlers.messageDelete, fn)
}

func (c *Client) OnTypingStart(fn func(TypingStart)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.typingStart = append(c.handlers.typingStart, fn)
}

func (c *Client) OnPresenceUpdate(fn func(types.Presence)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.presenceUpdate = append(c.handlers.presenceUpdate, fn)
}

func (c *Client) OnGuildCreate(fn func(types.Guild)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.guildCreate = append(c.handlers.guildCreate, fn)
}

func (c *Client) OnGuildDelete(fn func(types.UnavailableGuild)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.guildDelete = append(c.handlers.guildDelete, fn)
}

func (c *Client) OnInviteCreate(fn func(InviteCreate)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.inviteCreate = append(c.handlers.inviteCreate, fn)
}

// OnRaw sees every dispatch, including ones with typed handlers.
func (c *Client) OnRaw(fn func(eventType string, data json.RawMessage)) {
	c.handlers.mu.Lock()
	defer c.handlers.mu.Unlock()
	c.handlers.raw = append(c.handlers.raw, fn)
}

// dispatch routes one gateway dispatch: update the cache first, then
// fan out to handlers.
func (c *Client) dispatch(eventType string, data json.RawMessage) {
	switch eventType {
	case "READY":
		var ready gateway.Ready
		if c.decode(eventType, data, &ready) {
			c.state.ApplyReady(ready.User, ready.SessionID, ready.Guilds, ready.PrivateChannels, ready.ReadState.Entries)
			c.handlers.mu.RLock()
			fns := c.handlers.ready
			c.handlers.mu.RUnlock()
			for _, fn := range fns {
				fn(ready)
			}
		}

	case "MESSAGE_CREATE":
		var m types.Message
		if c.decode(eventType, data, &m) {
			c.state.AddMessage(m)
			c.handlers.mu.RLock()
			fns := c.handlers.messageCreate
			c.handlers.mu.RUnlock()
			for _, fn := range fns {
				fn(m)
			}
		}

	case "MESSAGE_UPDATE":
		var patch types.Message
		if c.decode(eventType, data, &patch) {
			if merged, ok := c.state.UpdateMessage(patch); ok {
				patch = merged
			}
			c.handlers.mu.RLock()
			fns := c.handlers.messageUpdate
			c.handlers.mu.RUnlock()
			for _, fn := range fns {
				fn(patch)
			}
		}

	case "MESSAGE_DELETE":
		var del MessageDelete
		if c.decode(eventType, data, &del) {
			c.state.DeleteMessage(del.ChannelID, del.ID)
			c.handlers.mu.RLock()
			fns := c.handlers.messageDelete
			c.handlers.mu.RUnlock()
			for _, fn := range fns {
				fn(del)
			}
		}

	case "MESSAGE_ACK":
		var ack messageAck
		if c.decode(eventType, data, &ack) {
			c.state.Ack(ack.ChannelID, ack.MessageID)
		}

	case "TYPING_START":
		var typing TypingStart
		if c.decode(eventType, data, &typing) {
			c.handlers.mu.RLock()
			fns := c.handlers.typingStart
			c.handlers.mu.RUnlock()
			for _, fn := range fns {
				fn(typing)
			}
		}

	case "PRESENCE_UPDATE":
		var p types.Presence
		if c.decode(eventType, data, &p) {
			c.state.ApplyPresence(p)
			c.handlers.mu.RLock()
			fns := c.handlers.presenceUpdate
			c.handlers.mu.RUnlock()
			for _, fn := range fns {
				fn(p)
			}
		}

	case "GUILD_CREATE":
		var g types.Guild
		if c.decode(eventType, data, &g) {
			c.state.UpsertGuild(&g)
			c.handlers.mu.RLock()
			fns := c.handlers.guildCreate
			c.handlers.mu.RUnlock()
			for _, fn := range fns {
				fn(g)
			}
		}

	case "GUILD_UPDATE":
		var g types.Guild
		if c.decode(eventType, data, &g) {
			c.state.UpsertGuild(&g)
		}

	case "GUILD_DELETE":
		var g types.UnavailableGuild
		if c.decode(eventType, data, &g) {
			// Unavailable means an outage, not a removal; only a real
			// delete drops cached state.
			if !g.Unavailable {
				c.state.RemoveGuild(g.ID)
			}
			c.handlers.mu.RLock()
			fns := c.handlers.guildDelete
			c.handlers.mu.RUnlock()
			for _, fn := range fns {
				fn(g)
			}
		}

	case "GUILD_MEMBER_ADD", "GUILD_MEMBER_UPDATE":
		var m types.Member
		if c.decode(eventType, data, &m) {
			c.state.UpsertMember(m.GuildID, m)
		}

	case "GUILD_MEMBER_REMOVE":
		var body struct {
			GuildID types.Snowflake `json:"guild_id"`
			User    types.User      `json:"user"`
		}
		if c.decode(eventType, data, &body) {
			c.state.RemoveMember(body.GuildID, body.User.ID)
		}

	case "GUILD_MEMBERS_CHUNK":
		var chunk struct {
			GuildID types.Snowflake `json:"guild_id"`
			Members []types.Member  `json:"members"`
		}
		if c.decode(eventType, data, &chunk) {
			for _, m := range chunk.Members {
				c.state.UpsertMember(chunk.GuildID, m)
			}
		}

	case "CHANNEL_CREATE", "CHANNEL_UPDATE", "THREAD_CREATE", "THREAD_UPDATE":
		var ch types.Channel
		if c.decode(eventType, data, &ch) {
			c.state.UpsertChannel(ch)
		}

	case "CHANNEL_DELETE", "THREAD_DELETE":
		var ch types.Channel
		if c.decode(eventType, data, &ch) {
			c.state.RemoveChannel(ch.ID)
		}

	case "VOICE_STATE_UPDATE":
		var vs types.VoiceState
		if c.decode(eventType, data, &vs) {
			c.state.ApplyVoiceState(vs)
			if vs.UserID == c.state.Me().ID {
				c.voiceMu.deliverState(vs.GuildID, vs.SessionID)
			}
		}

	case "VOICE_SERVER_UPDATE":
		var info voiceServerInfo
		if c.decode(eventType, data, &info) {
			c.voiceMu.deliverServer(info.GuildID, info)
		}

	case "INVITE_CREATE":
		var inv InviteCreate
		if c.decode(eventType, data, &inv) {
			c.handlers.mu.RLock()
			fns := c.handlers.inviteCreate
			c.handlers.mu.RUnlock()
			for _, fn := range fns {
				fn(inv)
			}
		}
	}

	c.handlers.mu.RLock()
	raw := c.handlers.raw
	c.handlers.mu.RUnlock()
	for _, fn := range raw {
		fn(eventType, data)
	}
}

func (c *Client) decode(eventType string, data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		c.logger.Warn().Err(err).Str(log.FieldEventType, eventType).Msg("undecodable dispatch")
		return false
	}
	return true
}

// voiceWaiter collects the two halves of a voice handshake.
type voiceWaiter struct {
	state  chan string
	server chan voiceServerInfo
}

// voiceWaiters tracks in-flight JoinVoice negotiations per guild.
type voiceWaiters struct {
	mu      sync.Mutex
	pending map[types.Snowflake]*voiceWaiter
}

func (v *voiceWaiters) add(guildID types.Snowflake) *voiceWaiter {
	w := &voiceWaiter{
		state:  make(chan string, 1),
		server: make(chan voiceServerInfo, 1),
	}
	v.mu.Lock()
	v.pending[guildID] = w
	v.mu.Unlock()
	return w
}

func (v *voiceWaiters) remove(guildID types.Snowflake) {
	v.mu.Lock()
	delete(v.pending, guildID)
	v.mu.Unlock()
}

func (v *voiceWaiters) deliverState(guildID types.Snowflake, sessionID string) {
	v.mu.Lock()
	w := v.pending[guildID]
	v.mu.Unlock()
	if w == nil {
		return
	}
	select {
	case w.state <- sessionID:
	default:
	}
}

func (v *voiceWaiters) deliverServer(guildID types.Snowflake, info voiceServerInfo) {
	v.mu.Lock()
	w := v.pending[guildID]
	v.mu.Unlock()
	if w == nil {
		return
	}
	select {
	case w.server <- info:
	default:
	}
}
