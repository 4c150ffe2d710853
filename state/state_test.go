// SPDX-License-Identifier: MIT

package state

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concordlib/concord/types"
)

func member(userID types.Snowflake) types.Member {
	return types.Member{User: &types.User{ID: userID, Username: "u" + userID.String()}}
}

func TestUpsertGuildIndexesEmbeddedState(t *testing.T) {
	s := New(Options{})
	g := types.Guild{
		ID:   1,
		Name: "test guild",
		Channels: []types.Channel{
			{ID: 10, Type: types.ChannelGuildText, Name: "general"},
		},
		Threads: []types.Channel{
			{ID: 11, Type: types.ChannelPublicThread, ParentID: 10},
		},
		Members: []types.Member{member(100)},
		VoiceStates: []types.VoiceState{
			{UserID: 100, ChannelID: 12, SessionID: "abc"},
		},
		Presences: []types.Presence{
			{User: types.User{ID: 100}, Status: types.StatusIdle},
		},
	}
	s.UpsertGuild(&g)

	got, ok := s.Guild(1)
	require.True(t, ok)
	assert.Equal(t, "test guild", got.Name)
	assert.Nil(t, got.Members, "embedded slices are indexed, not stored")

	ch, ok := s.Channel(10)
	require.True(t, ok)
	assert.Equal(t, types.Snowflake(1), ch.GuildID)

	_, ok = s.Channel(11)
	assert.True(t, ok, "threads are channels too")

	m, ok := s.Member(1, 100)
	require.True(t, ok)
	assert.Equal(t, "u100", m.User.Username)

	vs, ok := s.VoiceState(1, 100)
	require.True(t, ok)
	assert.Equal(t, "abc", vs.SessionID)

	p, ok := s.Presence(100)
	require.True(t, ok)
	assert.Equal(t, types.StatusIdle, p.Status)
}

func TestRemoveGuildDropsDependentState(t *testing.T) {
	s := New(Options{})
	s.UpsertGuild(&types.Guild{
		ID:       1,
		Channels: []types.Channel{{ID: 10}},
		Members:  []types.Member{member(100)},
	})
	s.AddMessage(types.Message{ID: 50, ChannelID: 10})
	s.Ack(10, 50)

	s.RemoveGuild(1)

	_, ok := s.Guild(1)
	assert.False(t, ok)
	_, ok = s.Channel(10)
	assert.False(t, ok)
	_, ok = s.Member(1, 100)
	assert.False(t, ok)
	_, ok = s.Message(10, 50)
	assert.False(t, ok)
	_, ok = s.ReadState(10)
	assert.False(t, ok)
}

func TestMemberEvictionPinsClientAndVoiceHolders(t *testing.T) {
	s := New(Options{MemberCap: 3})
	s.SetMe(types.User{ID: 1})
	s.UpsertGuild(&types.Guild{ID: 9})

	s.UpsertMember(9, member(1)) // client user: pinned
	s.ApplyVoiceState(types.VoiceState{GuildID: 9, UserID: 2, ChannelID: 77})
	s.UpsertMember(9, member(2)) // in voice: pinned

	for i := 3; i <= 6; i++ {
		s.UpsertMember(9, member(types.Snowflake(i)))
	}

	assert.Equal(t, 3, s.MemberCount(9))
	_, ok := s.Member(9, 1)
	assert.True(t, ok, "client user must survive eviction")
	_, ok = s.Member(9, 2)
	assert.True(t, ok, "voice holder must survive eviction")
	_, ok = s.Member(9, 3)
	assert.False(t, ok, "oldest unpinned member is evicted first")
}

func TestAckClearsMentionsAndAdvancesMarker(t *testing.T) {
	s := New(Options{})
	s.ApplyReadState(types.ReadState{ID: 10, LastMessageID: 5, MentionCount: 3})

	s.Ack(10, 9)
	rs, ok := s.ReadState(10)
	require.True(t, ok)
	assert.Equal(t, types.Snowflake(9), rs.LastMessageID)
	assert.Zero(t, rs.MentionCount)

	// Acking an older message never moves the marker backwards.
	s.Ack(10, 7)
	rs, _ = s.ReadState(10)
	assert.Equal(t, types.Snowflake(9), rs.LastMessageID)
}

func TestUnread(t *testing.T) {
	s := New(Options{})
	s.UpsertChannel(types.Channel{ID: 10, LastMessageID: 20})

	assert.True(t, s.Unread(10), "no read state means unread")

	s.Ack(10, 20)
	assert.False(t, s.Unread(10))

	s.AddMessage(types.Message{ID: 21, ChannelID: 10})
	assert.True(t, s.Unread(10))
}

func TestUpdateAndDeleteMessage(t *testing.T) {
	s := New(Options{})
	s.AddMessage(types.Message{ID: 1, ChannelID: 10, Content: "before"})

	updated, ok := s.UpdateMessage(types.Message{ID: 1, ChannelID: 10, Content: "after"})
	require.True(t, ok)
	assert.Equal(t, "after", updated.Content)

	got, _ := s.Message(10, 1)
	assert.Equal(t, "after", got.Content)

	removed, ok := s.DeleteMessage(10, 1)
	require.True(t, ok)
	assert.Equal(t, "after", removed.Content)
	_, ok = s.Message(10, 1)
	assert.False(t, ok)
}

func TestMessageCacheEviction(t *testing.T) {
	s := New(Options{MessageCacheSize: 5})
	for i := 1; i <= 8; i++ {
		s.AddMessage(types.Message{ID: types.Snowflake(i), ChannelID: 10, Content: strconv.Itoa(i)})
	}

	msgs := s.Messages(10)
	require.Len(t, msgs, 5)
	assert.Equal(t, types.Snowflake(4), msgs[0].ID, "oldest survivors only")
	assert.Equal(t, types.Snowflake(8), msgs[4].ID)

	_, ok := s.Message(10, 1)
	assert.False(t, ok, "evicted message is gone")
}
