// SPDX-License-Identifier: MIT

package concord

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concordlib/concord/gateway"
	"github.com/concordlib/concord/types"
)

func dispatchJSON(t *testing.T, c *Client, eventType, body string) {
	t.Helper()
	c.dispatch(eventType, json.RawMessage(body))
}

func TestDispatchReadyPopulatesState(t *testing.T) {
	c := New("tok")

	var gotReady *gateway.Ready
	c.OnReady(func(r gateway.Ready) { gotReady = &r })

	dispatchJSON(t, c, "READY", `{
		"v": 9,
		"session_id": "sess",
		"user": {"id": "42", "username": "me", "discriminator": "0"},
		"guilds": [{"id": "100", "name": "home"}],
		"private_channels": [{"id": "200", "type": 1}],
		"read_state": {"entries": [{"id": "200", "last_message_id": "900"}]}
	}`)

	require.NotNil(t, gotReady)
	assert.Equal(t, "sess", gotReady.SessionID)

	assert.True(t, c.State().Ready())
	assert.Equal(t, types.Snowflake(42), c.State().Me().ID)
	g, ok := c.State().Guild(100)
	require.True(t, ok)
	assert.Equal(t, "home", g.Name)
	rs, ok := c.State().ReadState(200)
	require.True(t, ok)
	assert.Equal(t, types.Snowflake(900), rs.LastMessageID)
}

func TestDisconnectClearsState(t *testing.T) {
	c := New("tok")
	dispatchJSON(t, c, "READY", `{
		"session_id": "sess",
		"user": {"id": "42"},
		"guilds": [{"id": "100", "name": "home"}]
	}`)
	require.True(t, c.State().Ready())

	c.onDisconnect(assert.AnError)

	assert.False(t, c.State().Ready())
	_, ok := c.State().Guild(100)
	assert.False(t, ok, "cached guilds must not survive a lost session")

	// A fresh READY repopulates the cache.
	dispatchJSON(t, c, "READY", `{"session_id":"sess-2","user":{"id":"42"}}`)
	assert.True(t, c.State().Ready())
}

func TestDispatchMessageLifecycle(t *testing.T) {
	c := New("tok")
	dispatchJSON(t, c, "READY", `{"session_id":"s","user":{"id":"1"}}`)

	var created, updated []types.Message
	var deleted []MessageDelete
	c.OnMessageCreate(func(m types.Message) { created = append(created, m) })
	c.OnMessageUpdate(func(m types.Message) { updated = append(updated, m) })
	c.OnMessageDelete(func(d MessageDelete) { deleted = append(deleted, d) })

	dispatchJSON(t, c, "MESSAGE_CREATE", `{"id":"10","channel_id":"5","content":"hi"}`)
	require.Len(t, created, 1)
	m, ok := c.State().Message(5, 10)
	require.True(t, ok)
	assert.Equal(t, "hi", m.Content)

	// Handlers see the merged message, not the bare patch.
	dispatchJSON(t, c, "MESSAGE_UPDATE", `{"id":"10","channel_id":"5","content":"edited"}`)
	require.Len(t, updated, 1)
	assert.Equal(t, "edited", updated[0].Content)

	dispatchJSON(t, c, "MESSAGE_DELETE", `{"id":"10","channel_id":"5"}`)
	require.Len(t, deleted, 1)
	_, ok = c.State().Message(5, 10)
	assert.False(t, ok)
}

func TestDispatchGuildDeleteDistinguishesOutage(t *testing.T) {
	c := New("tok")
	dispatchJSON(t, c, "GUILD_CREATE", `{"id":"7","name":"g"}`)

	// Outage keeps the cache.
	dispatchJSON(t, c, "GUILD_DELETE", `{"id":"7","unavailable":true}`)
	_, ok := c.State().Guild(7)
	assert.True(t, ok)

	// Actual removal drops it.
	dispatchJSON(t, c, "GUILD_DELETE", `{"id":"7"}`)
	_, ok = c.State().Guild(7)
	assert.False(t, ok)
}

func TestDispatchMessageAck(t *testing.T) {
	c := New("tok")
	dispatchJSON(t, c, "READY", `{
		"session_id": "s",
		"user": {"id": "1"},
		"read_state": [{"id": "5", "last_message_id": "10", "mention_count": 3}]
	}`)

	dispatchJSON(t, c, "MESSAGE_ACK", `{"channel_id":"5","message_id":"20"}`)
	rs, ok := c.State().ReadState(5)
	require.True(t, ok)
	assert.Equal(t, types.Snowflake(20), rs.LastMessageID)
	assert.Zero(t, rs.MentionCount)
}

func TestDispatchRawSeesEverything(t *testing.T) {
	c := New("tok")
	var seen []string
	c.OnRaw(func(eventType string, data json.RawMessage) { seen = append(seen, eventType) })

	dispatchJSON(t, c, "MESSAGE_CREATE", `{"id":"1","channel_id":"2"}`)
	dispatchJSON(t, c, "SOME_UNKNOWN_EVENT", `{}`)

	assert.Equal(t, []string{"MESSAGE_CREATE", "SOME_UNKNOWN_EVENT"}, seen)
}

func TestDispatchUndecodableBodyIsDropped(t *testing.T) {
	c := New("tok")
	var called bool
	c.OnMessageCreate(func(types.Message) { called = true })

	dispatchJSON(t, c, "MESSAGE_CREATE", `{"id":not-json}`)
	assert.False(t, called)
}

func TestVoiceWaiterDelivery(t *testing.T) {
	c := New("tok")
	dispatchJSON(t, c, "READY", `{"session_id":"s","user":{"id":"42"}}`)

	w := c.voiceMu.add(9)
	defer c.voiceMu.remove(9)

	// A voice state for someone else is ignored by the waiter.
	dispatchJSON(t, c, "VOICE_STATE_UPDATE", `{"guild_id":"9","channel_id":"3","user_id":"777","session_id":"other"}`)
	select {
	case <-w.state:
		t.Fatal("foreign voice state delivered")
	default:
	}

	dispatchJSON(t, c, "VOICE_STATE_UPDATE", `{"guild_id":"9","channel_id":"3","user_id":"42","session_id":"vsess"}`)
	dispatchJSON(t, c, "VOICE_SERVER_UPDATE", `{"guild_id":"9","token":"vtok","endpoint":"voice.example:443"}`)

	assert.Equal(t, "vsess", <-w.state)
	info := <-w.server
	assert.Equal(t, "vtok", info.Token)
	assert.Equal(t, "voice.example:443", info.Endpoint)
}
