// SPDX-License-Identifier: MIT

package voice

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	discoveryType = 0x1
	discoveryLen  = 70
	// Full discovery packet: 2-byte type, 2-byte length, 70-byte body.
	discoverySize = 74

	rtpHeaderSize  = 12
	rtpVersion     = 0x80
	rtpPayloadType = 0x78
)

// discoveryPacket builds the IP discovery request for the given ssrc.
func discoveryPacket(ssrc uint32) []byte {
	buf := make([]byte, discoverySize)
	binary.BigEndian.PutUint16(buf[0:2], discoveryType)
	binary.BigEndian.PutUint16(buf[2:4], discoveryLen)
	binary.BigEndian.PutUint32(buf[4:8], ssrc)
	return buf
}

// parseDiscovery extracts the external address the voice server saw.
// The IP is a null-terminated string at offset 8, the port the final
// two bytes.
func parseDiscovery(buf []byte) (string, uint16, error) {
	if len(buf) < discoverySize {
		return "", 0, fmt.Errorf("voice: short discovery response (%d bytes)", len(buf))
	}
	raw := buf[8 : discoverySize-2]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	ip := string(raw)
	if ip == "" {
		return "", 0, fmt.Errorf("voice: discovery response missing address")
	}
	port := binary.BigEndian.Uint16(buf[discoverySize-2 : discoverySize])
	return ip, port, nil
}

// rtpHeader writes the fixed 12-byte RTP header.
func rtpHeader(buf []byte, seq uint16, timestamp, ssrc uint32) {
	buf[0] = rtpVersion
	buf[1] = rtpPayloadType
	binary.BigEndian.PutUint16(buf[2:4], seq)
	binary.BigEndian.PutUint32(buf[4:8], timestamp)
	binary.BigEndian.PutUint32(buf[8:12], ssrc)
}
