// SPDX-License-Identifier: MIT

package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concordlib/concord/types"
)

func TestSnapshotRoundTrip(t *testing.T) {
	store, err := Open("") // in-memory
	require.NoError(t, err)
	defer store.Close()

	src := New(Options{})
	src.UpsertGuild(&types.Guild{ID: 1, Name: "persisted"})
	src.UpsertChannel(types.Channel{ID: 10, GuildID: 1})
	src.AddMessage(types.Message{ID: 100, ChannelID: 10, Content: "kept"})
	src.ApplyReadState(types.ReadState{ID: 10, LastMessageID: 100, MentionCount: 2})

	require.NoError(t, store.Flush(src))

	dst := New(Options{})
	require.NoError(t, store.Load(dst))

	g, ok := dst.Guild(1)
	require.True(t, ok)
	assert.Equal(t, "persisted", g.Name)

	msgs := dst.Messages(10)
	require.Len(t, msgs, 1)
	assert.Equal(t, "kept", msgs[0].Content)

	rs, ok := dst.ReadState(10)
	require.True(t, ok)
	assert.Equal(t, types.Snowflake(100), rs.LastMessageID)
	assert.Equal(t, 2, rs.MentionCount)
}

func TestSnapshotOnDisk(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	require.NoError(t, err)
	src := New(Options{})
	src.UpsertGuild(&types.Guild{ID: 7, Name: "durable"})
	require.NoError(t, store.Flush(src))
	require.NoError(t, store.Close())

	// Reopen the same directory: the snapshot survives.
	store2, err := Open(dir)
	require.NoError(t, err)
	defer store2.Close()

	dst := New(Options{})
	require.NoError(t, store2.Load(dst))
	g, ok := dst.Guild(7)
	require.True(t, ok)
	assert.Equal(t, "durable", g.Name)
}
