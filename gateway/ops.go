// SPDX-License-Identifier: MIT

// Package gateway maintains the persistent websocket session: identify
// and resume, heartbeating, sequence tracking, and dispatch delivery.
package gateway

import (
	"encoding/json"

	"github.com/concordlib/concord/types"
)

// Op is a gateway opcode.
type Op int

const (
	OpDispatch            Op = 0
	OpHeartbeat           Op = 1
	OpIdentify            Op = 2
	OpPresenceUpdate      Op = 3
	OpVoiceStateUpdate    Op = 4
	OpResume              Op = 6
	OpReconnect           Op = 7
	OpRequestGuildMembers Op = 8
	OpInvalidSession      Op = 9
	OpHello               Op = 10
	OpHeartbeatACK        Op = 11
)

// Close codes the gateway terminates sessions with.
const (
	CloseUnknownError     = 4000
	CloseUnknownOpcode    = 4001
	CloseDecodeError      = 4002
	CloseNotAuthenticated = 4003
	CloseAuthFailed       = 4004
	CloseAlreadyAuth      = 4005
	CloseInvalidSeq       = 4007
	CloseRateLimited      = 4008
	CloseSessionTimeout   = 4009
	CloseInvalidShard     = 4010
	CloseShardingRequired = 4011
	CloseInvalidVersion   = 4012
	CloseInvalidIntents   = 4013
	CloseDisallowedIntent = 4014
)

// fatalClose reports close codes no reconnect can recover from.
func fatalClose(code int) bool {
	switch code {
	case CloseAuthFailed, CloseInvalidShard, CloseShardingRequired,
		CloseInvalidVersion, CloseInvalidIntents, CloseDisallowedIntent:
		return true
	}
	return false
}

// resumableClose reports close codes after which the session may be
// resumed rather than re-identified.
func resumableClose(code int) bool {
	switch code {
	case CloseInvalidSeq, CloseSessionTimeout, CloseAuthFailed,
		CloseNotAuthenticated, CloseAlreadyAuth:
		return false
	}
	return true
}

// payload is the inbound envelope.
type payload struct {
	Op   Op              `json:"op"`
	Data json.RawMessage `json:"d"`
	Seq  int64           `json:"s"`
	Type string          `json:"t"`
}

// outPayload is the outbound envelope. Data is always present, even
// when null, matching what the gateway accepts.
type outPayload struct {
	Op   Op  `json:"op"`
	Data any `json:"d"`
}

// helloData arrives in the first frame after connecting.
type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"` // milliseconds
}

// identifyProperties is the user-client fingerprint. It mirrors the
// super-properties the REST layer sends.
type identifyProperties struct {
	OS                string `json:"os"`
	Browser           string `json:"browser"`
	Device            string `json:"device"`
	SystemLocale      string `json:"system_locale"`
	BrowserUserAgent  string `json:"browser_user_agent"`
	BrowserVersion    string `json:"browser_version"`
	OSVersion         string `json:"os_version"`
	Referrer          string `json:"referrer"`
	ReferringDomain   string `json:"referring_domain"`
	ReleaseChannel    string `json:"release_channel"`
	ClientBuildNumber int    `json:"client_build_number"`
}

// identifyData authenticates a fresh session.
type identifyData struct {
	Token        string             `json:"token"`
	Capabilities int                `json:"capabilities"`
	Properties   identifyProperties `json:"properties"`
	Presence     *PresenceUpdate    `json:"presence,omitempty"`
	Compress     bool               `json:"compress"`
}

// resumeData replays a dropped session from the last seen sequence.
type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// PresenceUpdate is the op 3 body and the identify presence block.
type PresenceUpdate struct {
	Since      int64            `json:"since"`
	Activities []types.Activity `json:"activities"`
	Status     types.Status     `json:"status"`
	AFK        bool             `json:"afk"`
}

// voiceStateData is the op 4 body. Null channel disconnects.
type voiceStateData struct {
	GuildID   *types.Snowflake `json:"guild_id"`
	ChannelID *types.Snowflake `json:"channel_id"`
	SelfMute  bool             `json:"self_mute"`
	SelfDeaf  bool             `json:"self_deaf"`
	SelfVideo bool             `json:"self_video"`
}

// requestMembersData is the op 8 body.
type requestMembersData struct {
	GuildID   types.Snowflake   `json:"guild_id"`
	Query     *string           `json:"query,omitempty"`
	Limit     int               `json:"limit"`
	UserIDs   []types.Snowflake `json:"user_ids,omitempty"`
	Presences bool              `json:"presences"`
	Nonce     string            `json:"nonce,omitempty"`
}

// Ready is the session bootstrap dispatch.
type Ready struct {
	Version          int             `json:"v"`
	User             types.User      `json:"user"`
	SessionID        string          `json:"session_id"`
	SessionType      string          `json:"session_type,omitempty"`
	ResumeGatewayURL string          `json:"resume_gateway_url,omitempty"`
	Guilds           []types.Guild   `json:"guilds"`
	PrivateChannels  []types.Channel `json:"private_channels"`
	ReadState        ReadStateBlock  `json:"read_state"`
}

// ReadStateBlock is the read-state envelope inside READY.
type ReadStateBlock struct {
	Version int               `json:"version"`
	Partial bool              `json:"partial"`
	Entries []types.ReadState `json:"entries"`
}

// UnmarshalJSON also accepts the legacy bare-array form.
func (b *ReadStateBlock) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &b.Entries)
	}
	type alias ReadStateBlock
	return json.Unmarshal(data, (*alias)(b))
}
