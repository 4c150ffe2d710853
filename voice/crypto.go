// SPDX-License-Identifier: MIT

package voice

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/secretbox"
)

// Encryption modes in preference order. The first one the server also
// offers wins.
var preferredModes = []string{
	"aead_xchacha20_poly1305_rtpsize",
	"xsalsa20_poly1305_suffix",
	"xsalsa20_poly1305",
}

// selectMode picks the strongest mutually supported mode.
func selectMode(offered []string) (string, error) {
	for _, want := range preferredModes {
		for _, have := range offered {
			if want == have {
				return want, nil
			}
		}
	}
	return "", fmt.Errorf("voice: no supported encryption mode in %v", offered)
}

// encryptor seals one RTP payload. The header is the already-built
// 12-byte RTP header; the returned slice is the complete packet.
type encryptor interface {
	seal(header, opus []byte) ([]byte, error)
}

func newEncryptor(mode string, key []byte) (encryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("voice: secret key must be 32 bytes, got %d", len(key))
	}
	switch mode {
	case "aead_xchacha20_poly1305_rtpsize":
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, err
		}
		return &rtpsizeEncryptor{aead: aead}, nil
	case "xsalsa20_poly1305_suffix":
		var k [32]byte
		copy(k[:], key)
		return &suffixEncryptor{key: k}, nil
	case "xsalsa20_poly1305":
		var k [32]byte
		copy(k[:], key)
		return &classicEncryptor{key: k}, nil
	}
	return nil, fmt.Errorf("voice: unknown encryption mode %q", mode)
}

// rtpsizeEncryptor appends a 4-byte rolling counter; the counter padded
// to 24 bytes is the nonce and the RTP header is authenticated data.
type rtpsizeEncryptor struct {
	aead    cipher.AEAD
	counter uint32
}

func (e *rtpsizeEncryptor) seal(header, opus []byte) ([]byte, error) {
	e.counter++
	var nonce [chacha20poly1305.NonceSizeX]byte
	binary.BigEndian.PutUint32(nonce[:4], e.counter)

	packet := make([]byte, 0, len(header)+len(opus)+e.aead.Overhead()+4)
	packet = append(packet, header...)
	packet = e.aead.Seal(packet, nonce[:], opus, header)
	packet = append(packet, nonce[:4]...)
	return packet, nil
}

// suffixEncryptor appends a random 24-byte nonce to each packet.
type suffixEncryptor struct {
	key [32]byte
}

func (e *suffixEncryptor) seal(header, opus []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("voice: generate nonce: %w", err)
	}
	packet := make([]byte, 0, len(header)+len(opus)+secretbox.Overhead+len(nonce))
	packet = append(packet, header...)
	packet = secretbox.Seal(packet, opus, &nonce, &e.key)
	packet = append(packet, nonce[:]...)
	return packet, nil
}

// classicEncryptor uses the RTP header zero-padded to 24 bytes as the
// nonce. Nothing extra rides on the wire.
type classicEncryptor struct {
	key [32]byte
}

func (e *classicEncryptor) seal(header, opus []byte) ([]byte, error) {
	var nonce [24]byte
	copy(nonce[:], header)
	packet := make([]byte, 0, len(header)+len(opus)+secretbox.Overhead)
	packet = append(packet, header...)
	packet = secretbox.Seal(packet, opus, &nonce, &e.key)
	return packet, nil
}
