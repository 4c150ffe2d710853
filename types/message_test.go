// SPDX-License-Identifier: MIT

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageJumpURL(t *testing.T) {
	m := Message{ID: 3, ChannelID: 2, GuildID: 1}
	assert.Equal(t, "https://discord.com/channels/1/2/3", m.JumpURL())

	dm := Message{ID: 3, ChannelID: 2}
	assert.Equal(t, "https://discord.com/channels/@me/2/3", dm.JumpURL())
}

func TestAttachmentIsSpoiler(t *testing.T) {
	assert.True(t, (&Attachment{Filename: "SPOILER_cat.png"}).IsSpoiler())
	assert.False(t, (&Attachment{Filename: "cat.png"}).IsSpoiler())
	assert.False(t, (&Attachment{Filename: "SPOILER_"}).IsSpoiler())
}

func TestUserTagAndDisplayName(t *testing.T) {
	legacy := User{Username: "clyde", Discriminator: "0420"}
	assert.Equal(t, "clyde#0420", legacy.Tag())
	assert.Equal(t, "clyde", legacy.DisplayName())

	pomelo := User{Username: "clyde", Discriminator: "0", GlobalName: "Clyde"}
	assert.Equal(t, "clyde", pomelo.Tag())
	assert.Equal(t, "Clyde", pomelo.DisplayName())
}

func TestMessageFlagsHas(t *testing.T) {
	f := MessageFlagSuppressEmbeds | MessageFlagHasThread
	assert.True(t, f.Has(MessageFlagSuppressEmbeds))
	assert.False(t, f.Has(MessageFlagEphemeral))
	assert.True(t, f.Has(MessageFlagSuppressEmbeds|MessageFlagHasThread))
}

func TestReadStateUnread(t *testing.T) {
	rs := ReadState{ID: 1, LastMessageID: 100}
	assert.True(t, rs.Unread(101))
	assert.False(t, rs.Unread(100))
	assert.False(t, rs.Unread(99))
}
