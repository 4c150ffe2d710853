// SPDX-License-Identifier: MIT

// Package concord is a client for the Discord user API: REST calls
// with learned rate-limit buckets, a resumable gateway session, an
// in-memory state cache, and voice transport.
package concord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/concordlib/concord/gateway"
	"github.com/concordlib/concord/internal/log"
	"github.com/concordlib/concord/rest"
	"github.com/concordlib/concord/state"
	"github.com/concordlib/concord/types"
	"github.com/concordlib/concord/voice"
)

// Option configures a Client.
type Option func(*Client)

// WithMessageCacheSize caps cached messages per channel. Negative
// disables the message cache.
func WithMessageCacheSize(n int) Option {
	return func(c *Client) { c.stateOpts.MessageCacheSize = n }
}

// WithMemberCap bounds cached members per guild. Negative disables the
// cap.
func WithMemberCap(n int) Option {
	return func(c *Client) { c.stateOpts.MemberCap = n }
}

// WithPersistence snapshots state into a badger store under dir across
// restarts. An empty dir keeps the store in memory.
func WithPersistence(dir string) Option {
	return func(c *Client) {
		c.persist = true
		c.persistDir = dir
	}
}

// WithPresence sets the presence sent on identify.
func WithPresence(status types.Status, activities ...types.Activity) Option {
	return func(c *Client) {
		c.presence = &gateway.PresenceUpdate{Status: status, Activities: activities}
	}
}

// WithRestOptions forwards options to the underlying REST client,
// mainly base URL overrides in tests.
func WithRestOptions(opts ...rest.Option) Option {
	return func(c *Client) { c.restOpts = append(c.restOpts, opts...) }
}

// WithGatewayURL skips the GET /gateway discovery call.
func WithGatewayURL(url string) Option {
	return func(c *Client) { c.gatewayURL = url }
}

// Client ties the REST, gateway, state, and voice layers together.
type Client struct {
	rest    *rest.Client
	state   *state.State
	session *gateway.Session
	store   *state.Store
	logger  zerolog.Logger

	token      string
	presence   *gateway.PresenceUpdate
	stateOpts  state.Options
	restOpts   []rest.Option
	gatewayURL string
	persist    bool
	persistDir string

	handlers handlerSet
	voiceMu  voiceWaiters
}

// New builds a client for the given user token. Nothing connects until
// Run.
func New(token string, opts ...Option) *Client {
	c := &Client{
		token:  token,
		logger: log.WithComponent("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.rest = rest.New(token, c.restOpts...)
	c.state = state.New(c.stateOpts)
	c.voiceMu.pending = make(map[types.Snowflake]*voiceWaiter)
	return c
}

// Rest exposes the REST client for calls without a convenience wrapper.
func (c *Client) Rest() *rest.Client { return c.rest }

// State exposes the cache. It is safe for concurrent reads.
func (c *Client) State() *state.State { return c.state }

// Run connects the gateway and blocks until ctx is cancelled or the
// session fails fatally. State persistence, when enabled, is loaded
// before connecting and flushed on the way out.
func (c *Client) Run(ctx context.Context) error {
	if c.persist {
		store, err := state.Open(c.persistDir)
		if err != nil {
			return fmt.Errorf("open state store: %w", err)
		}
		c.store = store
		defer store.Close()
		if err := store.Load(c.state); err != nil {
			c.logger.Warn().Err(err).Msg("could not load persisted state")
		}
	}

	url := c.gatewayURL
	if url == "" {
		var err error
		url, err = c.rest.GatewayURL(ctx)
		if err != nil {
			return fmt.Errorf("discover gateway url: %w", err)
		}
	}

	c.session = gateway.New(gateway.Config{
		Token:        c.token,
		URL:          url,
		Presence:     c.presence,
		OnDispatch:   c.dispatch,
		OnDisconnect: c.onDisconnect,
	})

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.session.Run(runCtx) })
	if c.store != nil {
		g.Go(func() error { return c.flushLoop(runCtx) })
	}

	err := g.Wait()
	if c.store != nil {
		if ferr := c.store.Flush(c.state); ferr != nil {
			c.logger.Error().Err(ferr).Msg("final state flush failed")
		}
	}
	return err
}

// onDisconnect clears the cache when the gateway connection drops. The
// next READY or RESUMED replay rebuilds it from the dispatch stream.
func (c *Client) onDisconnect(err error) {
	c.logger.Warn().Err(err).Msg("gateway connection lost, clearing cached state")
	c.state.Reset()
}

// flushLoop snapshots state once a minute while connected.
func (c *Client) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.store.Flush(c.state); err != nil {
				c.logger.Warn().Err(err).Msg("periodic state flush failed")
			}
		}
	}
}

// Me returns the connected account, from cache when READY has been
// seen and via REST otherwise.
func (c *Client) Me(ctx context.Context) (types.User, error) {
	if c.state.Ready() {
		return c.state.Me(), nil
	}
	u, err := c.rest.Me(ctx)
	if err != nil {
		return types.User{}, err
	}
	return *u, nil
}

// Guild returns a guild, from cache when present and via REST
// otherwise.
func (c *Client) Guild(ctx context.Context, id types.Snowflake) (types.Guild, error) {
	if g, ok := c.state.Guild(id); ok {
		return g, nil
	}
	g, err := c.rest.Guild(ctx, id)
	if err != nil {
		return types.Guild{}, err
	}
	c.state.UpsertGuild(g)
	return *g, nil
}

// Channel returns a channel, from cache when present and via REST
// otherwise.
func (c *Client) Channel(ctx context.Context, id types.Snowflake) (types.Channel, error) {
	if ch, ok := c.state.Channel(id); ok {
		return ch, nil
	}
	ch, err := c.rest.Channel(ctx, id)
	if err != nil {
		return types.Channel{}, err
	}
	c.state.UpsertChannel(*ch)
	return *ch, nil
}

// SendMessage posts plain text to a channel.
func (c *Client) SendMessage(ctx context.Context, channelID types.Snowflake, content string) (*types.Message, error) {
	return c.rest.SendMessage(ctx, channelID, rest.SendMessageData{Content: content})
}

// Reply posts text referencing an existing message.
func (c *Client) Reply(ctx context.Context, m types.Message, content string) (*types.Message, error) {
	return c.rest.SendMessage(ctx, m.ChannelID, rest.SendMessageData{
		Content: content,
		Reference: &types.MessageReference{
			MessageID: m.ID,
			ChannelID: m.ChannelID,
			GuildID:   m.GuildID,
		},
	})
}

// Ack marks the channel read up to the message, server-side and in the
// local cache.
func (c *Client) Ack(ctx context.Context, channelID, messageID types.Snowflake) error {
	if _, err := c.rest.AckMessage(ctx, channelID, messageID, ""); err != nil {
		return err
	}
	c.state.Ack(channelID, messageID)
	return nil
}

// SetPresence pushes a live presence change over the gateway.
func (c *Client) SetPresence(ctx context.Context, status types.Status, activities ...types.Activity) error {
	if c.session == nil {
		return errors.New("concord: not connected")
	}
	return c.session.UpdatePresence(ctx, status, activities)
}

// RequestGuildMembers asks the gateway for a member chunk stream.
func (c *Client) RequestGuildMembers(ctx context.Context, guildID types.Snowflake, query string, limit int) (string, error) {
	if c.session == nil {
		return "", errors.New("concord: not connected")
	}
	return c.session.RequestGuildMembers(ctx, guildID, query, limit)
}

// JoinVoice connects to a guild voice channel. It sends the voice
// state update, waits for the server to hand back a session and token,
// and completes the voice handshake.
func (c *Client) JoinVoice(ctx context.Context, guildID, channelID types.Snowflake, selfMute, selfDeaf bool) (*voice.Conn, error) {
	if c.session == nil {
		return nil, errors.New("concord: not connected")
	}

	w := c.voiceMu.add(guildID)
	defer c.voiceMu.remove(guildID)

	if err := c.session.UpdateVoiceState(ctx, guildID, channelID, selfMute, selfDeaf); err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var sessionID string
	var server voiceServerInfo
	for sessionID == "" || server.Endpoint == "" {
		select {
		case sessionID = <-w.state:
		case server = <-w.server:
		case <-waitCtx.Done():
			return nil, fmt.Errorf("concord: voice negotiation timed out: %w", waitCtx.Err())
		}
	}

	me := c.state.Me()
	return voice.Dial(ctx, voice.Config{
		GuildID:   guildID,
		UserID:    me.ID,
		SessionID: sessionID,
		Token:     server.Token,
		Endpoint:  server.Endpoint,
	})
}

// LeaveVoice disconnects from voice in the guild.
func (c *Client) LeaveVoice(ctx context.Context, guildID types.Snowflake) error {
	if c.session == nil {
		return errors.New("concord: not connected")
	}
	return c.session.UpdateVoiceState(ctx, guildID, 0, false, false)
}
