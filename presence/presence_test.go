// SPDX-License-Identifier: MIT

package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concordlib/concord/types"
)

func TestBuilderFullActivity(t *testing.T) {
	act, err := New("Deep Rock Galactic").
		ApplicationID(1234).
		Type(types.ActivityPlaying).
		State("Haz 5").
		Details("Point Extraction").
		StartMillis(1700000000000).
		EndMillis(1700000360000).
		LargeAsset("external/abc", "Mission").
		LargeAssetURL("https://example.com/mission").
		SmallAsset("driller", "Driller").
		Button("Join", "https://example.com/join").
		Button("Watch", "https://example.com/watch").
		Payload()
	require.NoError(t, err)

	assert.Equal(t, "Deep Rock Galactic", act.Name)
	assert.Equal(t, types.ActivityPlaying, act.Type)
	assert.Equal(t, types.Snowflake(1234), act.ApplicationID)
	assert.Equal(t, "Haz 5", act.State)

	require.NotNil(t, act.Timestamps)
	assert.EqualValues(t, 1700000000000, act.Timestamps.Start)
	assert.EqualValues(t, 1700000360000, act.Timestamps.End)

	require.NotNil(t, act.Assets)
	assert.Equal(t, "mp:external/abc", act.Assets.LargeImage)
	assert.Equal(t, "Mission", act.Assets.LargeText)
	assert.Equal(t, "driller", act.Assets.SmallImage)

	assert.Equal(t, []string{"Join", "Watch"}, act.Buttons)
	assert.Equal(t, []string{"https://example.com/join", "https://example.com/watch"},
		act.Metadata["button_urls"])
}

func TestBuilderMinimal(t *testing.T) {
	act, err := New("hello").Payload()
	require.NoError(t, err)
	assert.Equal(t, "hello", act.Name)
	assert.Nil(t, act.Timestamps)
	assert.Nil(t, act.Assets)
	assert.Empty(t, act.Buttons)
	assert.Nil(t, act.Metadata)
}

func TestBuilderDuration(t *testing.T) {
	before := time.Now().UnixMilli()
	act, err := New("timer").Duration(5 * time.Minute).Payload()
	require.NoError(t, err)
	require.NotNil(t, act.Timestamps)
	assert.GreaterOrEqual(t, act.Timestamps.Start, before)
	assert.Equal(t, act.Timestamps.Start+(5*time.Minute).Milliseconds(), act.Timestamps.End)
}

func TestBuilderButtonLimits(t *testing.T) {
	_, err := New("x").
		Button("a", "https://a").
		Button("b", "https://b").
		Button("c", "https://c").
		Payload()
	assert.ErrorIs(t, err, ErrTooManyButtons)

	_, err = New("x").Button("", "https://a").Payload()
	assert.Error(t, err)

	_, err = New("x").Button("a", "").Payload()
	assert.Error(t, err)
}
