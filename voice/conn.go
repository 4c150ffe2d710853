// SPDX-License-Identifier: MIT

package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/concordlib/concord/internal/log"
	"github.com/concordlib/concord/internal/metrics"
	"github.com/concordlib/concord/types"
)

// gatewayVersion is the voice gateway protocol version.
const gatewayVersion = 4

// Config carries the credentials from VOICE_STATE_UPDATE and
// VOICE_SERVER_UPDATE needed to open a voice session.
type Config struct {
	GuildID   types.Snowflake
	UserID    types.Snowflake
	SessionID string
	Token     string

	// Endpoint is the voice server host, optionally with a port.
	Endpoint string

	// Dialer overrides the websocket dialer, mainly for tests.
	Dialer *websocket.Dialer
}

// Conn is an established voice session: a control websocket plus the
// UDP media socket.
type Conn struct {
	cfg    Config
	logger zerolog.Logger

	// wsMu guards the socket pointer and serializes writes, so a
	// resume can swap the socket under concurrent senders.
	wsMu sync.Mutex
	ws   *websocket.Conn

	udp *net.UDPConn
	enc encryptor

	ssrc uint32
	mode string

	frameMu   sync.Mutex
	seq       uint16
	timestamp uint32

	closeOnce sync.Once
	done      chan struct{}
}

// Dial completes the full voice handshake: hello, identify, ready, UDP
// discovery, protocol selection, and session description. The returned
// Conn is ready to send audio.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	c := &Conn{
		cfg:    cfg,
		logger: log.WithComponent("voice").With().Str(log.FieldGuildID, cfg.GuildID.String()).Logger(),
		done:   make(chan struct{}),
	}
	if err := c.handshake(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) handshake(ctx context.Context) error {
	ws, _, err := c.cfg.Dialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return fmt.Errorf("voice: dial control socket: %w", err)
	}
	c.setSocket(ws)

	hello, err := c.awaitOp(ws, OpHello)
	if err != nil {
		return err
	}
	var h helloData
	if err := json.Unmarshal(hello, &h); err != nil {
		return fmt.Errorf("voice: decode hello: %w", err)
	}
	interval := time.Duration(h.HeartbeatInterval) * time.Millisecond
	if interval <= 0 {
		return fmt.Errorf("voice: invalid heartbeat interval %v", h.HeartbeatInterval)
	}

	if err := c.send(outPayload{Op: OpIdentify, Data: identifyData{
		ServerID:  c.cfg.GuildID,
		UserID:    c.cfg.UserID,
		SessionID: c.cfg.SessionID,
		Token:     c.cfg.Token,
	}}); err != nil {
		return err
	}

	readyRaw, err := c.awaitOp(ws, OpReady)
	if err != nil {
		return err
	}
	var ready readyData
	if err := json.Unmarshal(readyRaw, &ready); err != nil {
		return fmt.Errorf("voice: decode ready: %w", err)
	}
	c.ssrc = ready.SSRC

	mode, err := selectMode(ready.Modes)
	if err != nil {
		return err
	}
	c.mode = mode

	externalIP, externalPort, err := c.openUDP(ready)
	if err != nil {
		return err
	}
	c.logger.Debug().
		Str(log.FieldMode, mode).
		Str("external_ip", externalIP).
		Uint16("external_port", externalPort).
		Uint32(log.FieldSSRC, ready.SSRC).
		Msg("udp discovery complete")

	if err := c.send(outPayload{Op: OpSelectProtocol, Data: selectProtocolData{
		Protocol: "udp",
		Data: selectProtocolInfo{
			Address: externalIP,
			Port:    externalPort,
			Mode:    mode,
		},
	}}); err != nil {
		return err
	}

	descRaw, err := c.awaitOp(ws, OpSessionDescription)
	if err != nil {
		return err
	}
	var desc sessionDescription
	if err := json.Unmarshal(descRaw, &desc); err != nil {
		return fmt.Errorf("voice: decode session description: %w", err)
	}
	enc, err := newEncryptor(desc.Mode, desc.SecretKey)
	if err != nil {
		return err
	}
	c.enc = enc
	c.mode = desc.Mode

	go c.heartbeatLoop(interval)
	go c.readLoop()

	c.logger.Info().Str(log.FieldMode, desc.Mode).Msg("voice session established")
	return nil
}

func (c *Conn) wsURL() string {
	host := strings.TrimSuffix(c.cfg.Endpoint, ":80")
	scheme := "wss"
	if strings.HasPrefix(host, "ws://") || strings.HasPrefix(host, "wss://") {
		return host + "/?v=" + strconv.Itoa(gatewayVersion)
	}
	return scheme + "://" + host + "/?v=" + strconv.Itoa(gatewayVersion)
}

func (c *Conn) setSocket(ws *websocket.Conn) {
	c.wsMu.Lock()
	c.ws = ws
	c.wsMu.Unlock()
}

func (c *Conn) socket() *websocket.Conn {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	return c.ws
}

// awaitOp reads control frames from ws until the wanted opcode arrives.
// Heartbeat acks and unrelated ops in between are skipped.
func (c *Conn) awaitOp(ws *websocket.Conn, want Op) (json.RawMessage, error) {
	_ = ws.SetReadDeadline(time.Now().Add(30 * time.Second))
	defer ws.SetReadDeadline(time.Time{})

	for {
		var p payload
		if err := ws.ReadJSON(&p); err != nil {
			return nil, fmt.Errorf("voice: waiting for op %d: %w", want, err)
		}
		if p.Op == want {
			return p.Data, nil
		}
	}
}

// openUDP dials the media address from READY and performs IP
// discovery so the server learns our external address.
func (c *Conn) openUDP(ready readyData) (string, uint16, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(ready.IP, strconv.Itoa(ready.Port)))
	if err != nil {
		return "", 0, fmt.Errorf("voice: resolve media address: %w", err)
	}
	udp, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return "", 0, fmt.Errorf("voice: dial media socket: %w", err)
	}
	c.udp = udp

	if _, err := udp.Write(discoveryPacket(ready.SSRC)); err != nil {
		return "", 0, fmt.Errorf("voice: send discovery: %w", err)
	}
	_ = udp.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer udp.SetReadDeadline(time.Time{})

	buf := make([]byte, discoverySize)
	n, err := udp.Read(buf)
	if err != nil {
		return "", 0, fmt.Errorf("voice: read discovery response: %w", err)
	}
	return parseDiscovery(buf[:n])
}

func (c *Conn) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			nonce := time.Now().UnixMilli()
			if err := c.send(outPayload{Op: OpHeartbeat, Data: nonce}); err != nil {
				// The read loop owns reconnection; keep ticking so a
				// resumed socket picks heartbeats back up.
				c.logger.Warn().Err(err).Msg("voice heartbeat failed")
			}
		}
	}
}

// readLoop drains the control socket after the handshake. A dropped
// socket is resumed in place; acks and client events are discarded.
func (c *Conn) readLoop() {
	for {
		ws := c.socket()
		if ws == nil {
			return
		}
		var p payload
		if err := ws.ReadJSON(&p); err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn().Err(err).Msg("voice control socket dropped, resuming")
			if rerr := c.resume(); rerr != nil {
				c.logger.Error().Err(rerr).Msg("voice resume failed, giving up")
				return
			}
		}
	}
}

// resume redials the control socket and replays the session with op 7.
// The media socket and encryption key survive a resume.
func (c *Conn) resume() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ws, _, err := c.cfg.Dialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return fmt.Errorf("voice: redial control socket: %w", err)
	}
	if _, err := c.awaitOp(ws, OpHello); err != nil {
		ws.Close()
		return err
	}
	if err := ws.WriteJSON(outPayload{Op: OpResume, Data: resumeData{
		ServerID:  c.cfg.GuildID,
		SessionID: c.cfg.SessionID,
		Token:     c.cfg.Token,
	}}); err != nil {
		ws.Close()
		return fmt.Errorf("voice: send resume: %w", err)
	}
	if _, err := c.awaitOp(ws, OpResumed); err != nil {
		ws.Close()
		return err
	}

	select {
	case <-c.done:
		ws.Close()
		return errors.New("voice: connection closed during resume")
	default:
	}

	c.wsMu.Lock()
	old := c.ws
	c.ws = ws
	c.wsMu.Unlock()
	if old != nil {
		old.Close()
	}
	c.logger.Info().Msg("voice session resumed")
	return nil
}

func (c *Conn) send(p outPayload) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	if c.ws == nil {
		return errors.New("voice: not connected")
	}
	return c.ws.WriteJSON(p)
}

// SSRC returns the synchronization source assigned by the server.
func (c *Conn) SSRC() uint32 { return c.ssrc }

// Mode returns the negotiated encryption mode.
func (c *Conn) Mode() string { return c.mode }

// Speaking toggles the speaking indicator. Send it with
// SpeakingMicrophone before the first audio frame.
func (c *Conn) Speaking(flags int) error {
	return c.send(outPayload{Op: OpSpeaking, Data: speakingData{
		Speaking: flags,
		SSRC:     c.ssrc,
	}})
}

// SendFrame encrypts and transmits one Opus frame. samples is the
// frame's sample count (960 for 20ms at 48kHz) used to advance the
// RTP timestamp.
func (c *Conn) SendFrame(opus []byte, samples uint32) error {
	if c.enc == nil || c.udp == nil {
		return errors.New("voice: session not established")
	}
	c.frameMu.Lock()
	c.seq++
	c.timestamp += samples
	header := make([]byte, rtpHeaderSize)
	rtpHeader(header, c.seq, c.timestamp, c.ssrc)
	packet, err := c.enc.seal(header, opus)
	c.frameMu.Unlock()
	if err != nil {
		return err
	}
	if _, err := c.udp.Write(packet); err != nil {
		return fmt.Errorf("voice: send frame: %w", err)
	}
	metrics.VoicePackets.WithLabelValues(c.mode).Inc()
	return nil
}

// Close tears down both sockets. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.wsMu.Lock()
		ws := c.ws
		c.wsMu.Unlock()
		if ws != nil {
			deadline := time.Now().Add(time.Second)
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			err = ws.Close()
		}
		if c.udp != nil {
			if cerr := c.udp.Close(); err == nil {
				err = cerr
			}
		}
	})
	return err
}
