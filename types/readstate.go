// SPDX-License-Identifier: MIT

package types

import "time"

// ReadState tracks how far the client has read a single channel. The
// gateway delivers the full set in READY and patches it with
// MESSAGE_ACK and CHANNEL_UNREAD_UPDATE events.
type ReadState struct {
	ID            Snowflake  `json:"id"` // channel ID
	LastMessageID Snowflake  `json:"last_message_id,omitempty"`
	LastPinAt     *time.Time `json:"last_pin_timestamp,omitempty"`
	MentionCount  int        `json:"mention_count,omitempty"`
	LastViewed    int        `json:"last_viewed,omitempty"` // days since 2015-01-01
}

// Unread reports whether a channel with the given last message has
// content past the acked position. Snowflakes order by time, so an ID
// comparison is a time comparison.
func (rs *ReadState) Unread(lastMessageID Snowflake) bool {
	return lastMessageID > rs.LastMessageID
}
