// SPDX-License-Identifier: MIT

// Package voice negotiates a voice session and ships encrypted RTP
// audio over UDP. Frames are expected to be Opus-encoded already.
package voice

import (
	"encoding/json"

	"github.com/concordlib/concord/types"
)

// Op is a voice gateway opcode. The numbering differs from the main
// gateway.
type Op int

const (
	OpIdentify           Op = 0
	OpSelectProtocol     Op = 1
	OpReady              Op = 2
	OpHeartbeat          Op = 3
	OpSessionDescription Op = 4
	OpSpeaking           Op = 5
	OpHeartbeatACK       Op = 6
	OpResume             Op = 7
	OpHello              Op = 8
	OpResumed            Op = 9
	OpClientDisconnect   Op = 13
)

// Speaking flags for op 5.
const (
	SpeakingMicrophone = 1 << 0
	SpeakingSoundshare = 1 << 1
	SpeakingPriority   = 1 << 2
)

type payload struct {
	Op   Op              `json:"op"`
	Data json.RawMessage `json:"d"`
}

type outPayload struct {
	Op   Op  `json:"op"`
	Data any `json:"d"`
}

type identifyData struct {
	ServerID  types.Snowflake `json:"server_id"`
	UserID    types.Snowflake `json:"user_id"`
	SessionID string          `json:"session_id"`
	Token     string          `json:"token"`
}

type resumeData struct {
	ServerID  types.Snowflake `json:"server_id"`
	SessionID string          `json:"session_id"`
	Token     string          `json:"token"`
}

type helloData struct {
	HeartbeatInterval float64 `json:"heartbeat_interval"` // milliseconds
}

type readyData struct {
	SSRC  uint32   `json:"ssrc"`
	IP    string   `json:"ip"`
	Port  int      `json:"port"`
	Modes []string `json:"modes"`
}

type selectProtocolData struct {
	Protocol string             `json:"protocol"`
	Data     selectProtocolInfo `json:"data"`
}

type selectProtocolInfo struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
	Mode    string `json:"mode"`
}

type sessionDescription struct {
	Mode      string `json:"mode"`
	SecretKey []byte `json:"secret_key"`
}

// UnmarshalJSON accepts the secret key as the JSON number array the
// voice gateway sends.
func (d *sessionDescription) UnmarshalJSON(data []byte) error {
	var raw struct {
		Mode      string `json:"mode"`
		SecretKey []int  `json:"secret_key"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Mode = raw.Mode
	d.SecretKey = make([]byte, len(raw.SecretKey))
	for i, b := range raw.SecretKey {
		d.SecretKey[i] = byte(b)
	}
	return nil
}

type speakingData struct {
	Speaking int    `json:"speaking"`
	Delay    int    `json:"delay"`
	SSRC     uint32 `json:"ssrc"`
}
