// SPDX-License-Identifier: MIT

// Package presence builds rich presence activities for the gateway.
package presence

import (
	"errors"
	"strings"
	"time"

	"github.com/concordlib/concord/types"
)

// maxButtons is the hard cap the gateway enforces on activity buttons.
const maxButtons = 2

// ErrTooManyButtons is returned by Payload when more than two buttons
// were added.
var ErrTooManyButtons = errors.New("presence: at most 2 buttons allowed")

// Builder assembles an activity with fluent setters. The zero value is
// ready to use; setters return the builder for chaining. Validation
// errors are collected and surfaced by Payload.
type Builder struct {
	applicationID types.Snowflake
	name          string
	activityType  types.ActivityType
	url           string
	state         string
	details       string

	startMS int64
	endMS   int64

	assets types.ActivityAssets

	buttonLabels []string
	buttonURLs   []string

	err error
}

// New starts a builder for a named activity.
func New(name string) *Builder {
	return &Builder{name: name}
}

func (b *Builder) ApplicationID(id types.Snowflake) *Builder {
	b.applicationID = id
	return b
}

func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

func (b *Builder) Type(t types.ActivityType) *Builder {
	b.activityType = t
	return b
}

func (b *Builder) State(state string) *Builder {
	b.state = state
	return b
}

func (b *Builder) Details(details string) *Builder {
	b.details = details
	return b
}

func (b *Builder) URL(url string) *Builder {
	b.url = url
	return b
}

// Start marks when the activity began. The zero time means now.
func (b *Builder) Start(t time.Time) *Builder {
	if t.IsZero() {
		t = time.Now()
	}
	b.startMS = t.UnixMilli()
	return b
}

// StartMillis sets the start as a unix-millisecond timestamp directly.
func (b *Builder) StartMillis(ms int64) *Builder {
	b.startMS = ms
	return b
}

func (b *Builder) End(t time.Time) *Builder {
	b.endMS = t.UnixMilli()
	return b
}

func (b *Builder) EndMillis(ms int64) *Builder {
	b.endMS = ms
	return b
}

// Duration sets start to now and end to now plus d.
func (b *Builder) Duration(d time.Duration) *Builder {
	now := time.Now().UnixMilli()
	b.startMS = now
	b.endMS = now + d.Milliseconds()
	return b
}

// LargeAsset sets the large image key with hover text. Keys from the
// external-assets endpoint must carry the "mp:" prefix; it is added
// when missing.
func (b *Builder) LargeAsset(key, text string) *Builder {
	b.assets.LargeImage = normalizeAssetKey(key)
	b.assets.LargeText = text
	return b
}

// LargeAssetURL sets the link opened when the large image is clicked.
func (b *Builder) LargeAssetURL(url string) *Builder {
	b.assets.LargeURL = url
	return b
}

func (b *Builder) SmallAsset(key, text string) *Builder {
	b.assets.SmallImage = normalizeAssetKey(key)
	b.assets.SmallText = text
	return b
}

func (b *Builder) SmallAssetURL(url string) *Builder {
	b.assets.SmallURL = url
	return b
}

// Button adds a labelled link, two at most.
func (b *Builder) Button(label, url string) *Builder {
	if label == "" || url == "" {
		b.err = errors.New("presence: button needs both label and url")
		return b
	}
	if len(b.buttonLabels) >= maxButtons {
		b.err = ErrTooManyButtons
		return b
	}
	b.buttonLabels = append(b.buttonLabels, label)
	b.buttonURLs = append(b.buttonURLs, url)
	return b
}

// Payload emits the activity object the gateway expects, or the first
// validation error hit while building.
func (b *Builder) Payload() (types.Activity, error) {
	if b.err != nil {
		return types.Activity{}, b.err
	}

	act := types.Activity{
		Name:          b.name,
		Type:          b.activityType,
		URL:           b.url,
		State:         b.state,
		Details:       b.details,
		ApplicationID: b.applicationID,
	}

	if b.startMS != 0 || b.endMS != 0 {
		act.Timestamps = &types.ActivityTimestamps{Start: b.startMS, End: b.endMS}
	}

	if b.assets != (types.ActivityAssets{}) {
		assets := b.assets
		act.Assets = &assets
	}

	if len(b.buttonLabels) > 0 {
		act.Buttons = append([]string(nil), b.buttonLabels...)
		act.Metadata = map[string]any{
			"button_urls": append([]string(nil), b.buttonURLs...),
		}
	}

	return act, nil
}

// normalizeAssetKey ensures external asset paths carry the mp: prefix
// exactly once. Plain asset keys pass through untouched.
func normalizeAssetKey(key string) string {
	if strings.HasPrefix(key, "external/") {
		return "mp:" + key
	}
	return key
}
