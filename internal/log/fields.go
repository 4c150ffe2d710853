// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	FieldComponent = "component"
	FieldEvent     = "event"

	// REST fields
	FieldRoute      = "route"
	FieldBucket     = "bucket"
	FieldStatus     = "status"
	FieldRetryAfter = "retry_after"
	FieldAttempt    = "attempt"

	// Gateway fields
	FieldSessionID = "session_id"
	FieldSeq       = "seq"
	FieldOp        = "op"
	FieldEventType = "event_type"
	FieldCloseCode = "close_code"

	// Domain identity fields
	FieldGuildID   = "guild_id"
	FieldChannelID = "channel_id"
	FieldUserID    = "user_id"

	// Voice fields
	FieldSSRC = "ssrc"
	FieldMode = "mode"
)
