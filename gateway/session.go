// SPDX-License-Identifier: MIT

package gateway

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/concordlib/concord/internal/log"
	"github.com/concordlib/concord/internal/metrics"
	"github.com/concordlib/concord/types"
)

// Version is the gateway protocol version the session speaks.
const Version = 9

// capabilities advertises which READY shape the user client expects.
const capabilities = 16381

var (
	// ErrAuthenticationFailed means the token was rejected; no retry
	// will help.
	ErrAuthenticationFailed = errors.New("gateway: authentication failed")

	// errNoHeartbeatAck marks a zombied connection.
	errNoHeartbeatAck = errors.New("gateway: heartbeat ack not received")
)

// DispatchFunc receives every dispatch in arrival order. It runs on the
// session's read goroutine: blocking here blocks the session.
type DispatchFunc func(eventType string, data json.RawMessage)

// Config wires a Session.
type Config struct {
	Token string

	// URL is the gateway origin from GET /gateway, without query.
	URL string

	// Presence, when set, rides along on identify.
	Presence *PresenceUpdate

	// OnDispatch receives every dispatch including READY and RESUMED.
	OnDispatch DispatchFunc

	// OnDisconnect fires when the connection is lost and the session
	// cannot be resumed, before the re-identify. State derived from the
	// dispatch stream is stale at that point; the fresh READY rebuilds
	// it. A resumable drop replays missed dispatches instead and does
	// not fire this.
	OnDisconnect func(err error)

	// Dialer overrides the websocket dialer, mainly for tests.
	Dialer *websocket.Dialer

	// MaxReconnectWait caps the reconnect backoff. Zero means 64s.
	MaxReconnectWait time.Duration
}

// Session is a single logical gateway connection across reconnects.
type Session struct {
	cfg    Config
	logger zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
	resumeURL string

	seq      atomic.Int64
	lastBeat atomic.Int64 // unix nano of last heartbeat sent
	lastAck  atomic.Int64 // unix nano of last ack received

	writeMu  sync.Mutex
	writeLim *rate.Limiter

	// established flips on READY/RESUMED so Run can reset its backoff
	// after a healthy stretch.
	established atomic.Bool

	// invalidSessionWait returns the pause before re-authenticating
	// after op 9. Overridden in tests.
	invalidSessionWait func() time.Duration
}

// New builds a session; Run drives it.
func New(cfg Config) *Session {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.MaxReconnectWait == 0 {
		cfg.MaxReconnectWait = 64 * time.Second
	}
	return &Session{
		cfg:    cfg,
		logger: log.WithComponent("gateway"),
		// The gateway allows 120 frames per 60s; stay under it and
		// leave room for heartbeats.
		writeLim: rate.NewLimiter(rate.Every(600*time.Millisecond), 100),
		// The gateway asks clients to wait a randomized 1-5s before
		// re-authenticating after an invalidated session.
		invalidSessionWait: func() time.Duration {
			return time.Duration(1000+rand.Intn(4000)) * time.Millisecond
		},
	}
}

// SessionID returns the current session ID, empty before READY.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Seq returns the last dispatch sequence seen.
func (s *Session) Seq() int64 { return s.seq.Load() }

// Run connects and keeps the session alive until ctx is cancelled or a
// fatal close code arrives. Reconnects and resumes happen internally.
func (s *Session) Run(ctx context.Context) error {
	var attempt int
	for {
		resume, err := s.runOnce(ctx)
		metrics.GatewayConnected.Set(0)
		if s.established.Swap(false) {
			attempt = 0
		}
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrAuthenticationFailed) {
			return err
		}
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && fatalClose(closeErr.Code) {
			return fmt.Errorf("gateway: fatal close %d: %s", closeErr.Code, closeErr.Text)
		}

		if !resume {
			s.mu.Lock()
			s.sessionID = ""
			s.resumeURL = ""
			s.mu.Unlock()
			s.seq.Store(0)
			if s.cfg.OnDisconnect != nil {
				s.cfg.OnDisconnect(err)
			}
		}

		wait := time.Duration(1<<min(attempt, 6)) * time.Second
		if wait > s.cfg.MaxReconnectWait {
			wait = s.cfg.MaxReconnectWait
		}
		attempt++
		reason := "identify"
		if resume {
			reason = "resume"
		}
		metrics.GatewayReconnects.WithLabelValues(reason).Inc()
		s.logger.Warn().
			Err(err).
			Dur("wait", wait).
			Str("mode", reason).
			Msg("gateway connection lost, reconnecting")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// connectURL picks the resume URL when resuming and pins the version
// and encoding query.
func (s *Session) connectURL() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resuming := s.sessionID != "" && s.seq.Load() > 0
	origin := s.cfg.URL
	if resuming && s.resumeURL != "" {
		origin = s.resumeURL
	}
	u, err := url.Parse(origin)
	if err != nil {
		return origin, resuming
	}
	q := u.Query()
	q.Set("encoding", "json")
	q.Set("v", strconv.Itoa(Version))
	u.RawQuery = q.Encode()
	return u.String(), resuming
}

// runOnce owns one physical connection. The returned bool reports
// whether the session is resumable afterwards.
func (s *Session) runOnce(ctx context.Context) (bool, error) {
	connURL, resuming := s.connectURL()
	conn, _, err := s.cfg.Dialer.DialContext(ctx, connURL, nil)
	if err != nil {
		return resuming, fmt.Errorf("gateway: dial %s: %w", connURL, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer conn.Close()

	hello, err := s.readHello(conn)
	if err != nil {
		return resuming, err
	}
	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
	s.logger.Debug().Dur("heartbeat_interval", interval).Bool("resuming", resuming).Msg("hello received")

	if resuming {
		err = s.send(ctx, outPayload{Op: OpResume, Data: resumeData{
			Token:     s.cfg.Token,
			SessionID: s.SessionID(),
			Seq:       s.seq.Load(),
		}})
	} else {
		err = s.send(ctx, outPayload{Op: OpIdentify, Data: identifyData{
			Token:        s.cfg.Token,
			Capabilities: capabilities,
			Properties: identifyProperties{
				OS:                "Windows",
				Browser:           "Chrome",
				SystemLocale:      "en-US",
				BrowserVersion:    "120.0.0.0",
				OSVersion:         "10",
				ReleaseChannel:    "stable",
				ClientBuildNumber: 260292,
			},
			Presence: s.cfg.Presence,
			Compress: true,
		}})
	}
	if err != nil {
		return resuming, err
	}

	s.lastAck.Store(time.Now().UnixNano())
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	hbErr := make(chan error, 1)
	go func() { hbErr <- s.heartbeatLoop(runCtx, interval) }()

	readErr := make(chan error, 1)
	go func() { readErr <- s.readLoop(runCtx) }()

	select {
	case <-ctx.Done():
		s.closeGracefully(conn)
		<-readErr
		return false, nil
	case err = <-hbErr:
	case err = <-readErr:
	}
	cancel()
	conn.Close()

	if errors.Is(err, errNoHeartbeatAck) {
		return true, err
	}
	var invalid *invalidSessionError
	if errors.As(err, &invalid) {
		return invalid.resumable, err
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Code == CloseAuthFailed {
			return false, ErrAuthenticationFailed
		}
		return resumableClose(closeErr.Code), err
	}
	return true, err
}

func (s *Session) closeGracefully(conn *websocket.Conn) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = conn.SetReadDeadline(deadline)
}

func (s *Session) readHello(conn *websocket.Conn) (*helloData, error) {
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	p, err := s.readPayload(conn)
	if err != nil {
		return nil, fmt.Errorf("gateway: read hello: %w", err)
	}
	if p.Op != OpHello {
		return nil, fmt.Errorf("gateway: expected hello, got op %d", p.Op)
	}
	var hello helloData
	if err := json.Unmarshal(p.Data, &hello); err != nil {
		return nil, fmt.Errorf("gateway: decode hello: %w", err)
	}
	if hello.HeartbeatInterval <= 0 {
		return nil, fmt.Errorf("gateway: invalid heartbeat interval %d", hello.HeartbeatInterval)
	}
	return &hello, nil
}

// readPayload reads one frame, inflating compressed binary frames.
func (s *Session) readPayload(conn *websocket.Conn) (*payload, error) {
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if msgType == websocket.BinaryMessage {
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gateway: open zlib frame: %w", err)
		}
		data, err = io.ReadAll(zr)
		zr.Close()
		if err != nil {
			return nil, fmt.Errorf("gateway: inflate frame: %w", err)
		}
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("gateway: decode payload: %w", err)
	}
	return &p, nil
}

// invalidSessionError carries the server's verdict on resumability.
type invalidSessionError struct {
	resumable bool
}

func (e *invalidSessionError) Error() string {
	return fmt.Sprintf("gateway: session invalidated (resumable=%t)", e.resumable)
}

func (s *Session) readLoop(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	for {
		p, err := s.readPayload(conn)
		if err != nil {
			return err
		}

		switch p.Op {
		case OpDispatch:
			if p.Seq > 0 {
				s.seq.Store(p.Seq)
			}
			s.handleDispatch(p)

		case OpHeartbeat:
			// Immediate beat on demand.
			if err := s.sendHeartbeat(ctx); err != nil {
				return err
			}

		case OpHeartbeatACK:
			now := time.Now()
			s.lastAck.Store(now.UnixNano())
			if beat := s.lastBeat.Load(); beat > 0 {
				metrics.GatewayHeartbeatLatency.Observe(now.Sub(time.Unix(0, beat)).Seconds())
			}

		case OpReconnect:
			s.logger.Info().Msg("server requested reconnect")
			return errors.New("gateway: server requested reconnect")

		case OpInvalidSession:
			var resumable bool
			_ = json.Unmarshal(p.Data, &resumable)
			wait := s.invalidSessionWait()
			s.logger.Warn().Bool("resumable", resumable).Dur("wait", wait).Msg("session invalidated")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
			}
			return &invalidSessionError{resumable: resumable}

		default:
			s.logger.Debug().Int(log.FieldOp, int(p.Op)).Msg("unhandled opcode")
		}
	}
}

func (s *Session) handleDispatch(p *payload) {
	metrics.GatewayEvents.WithLabelValues(p.Type).Inc()

	switch p.Type {
	case "READY":
		var ready Ready
		if err := json.Unmarshal(p.Data, &ready); err != nil {
			s.logger.Error().Err(err).Msg("failed to decode READY")
			break
		}
		s.mu.Lock()
		s.sessionID = ready.SessionID
		s.resumeURL = ready.ResumeGatewayURL
		s.mu.Unlock()
		s.established.Store(true)
		metrics.GatewayConnected.Set(1)
		s.logger.Info().
			Str(log.FieldSessionID, ready.SessionID).
			Int("guilds", len(ready.Guilds)).
			Msg("session ready")

	case "RESUMED":
		s.established.Store(true)
		metrics.GatewayConnected.Set(1)
		s.logger.Info().
			Str(log.FieldSessionID, s.SessionID()).
			Int64(log.FieldSeq, s.seq.Load()).
			Msg("session resumed")
	}

	if s.cfg.OnDispatch != nil {
		s.cfg.OnDispatch(p.Type, p.Data)
	}
}

func (s *Session) heartbeatLoop(ctx context.Context, interval time.Duration) error {
	// First beat after a jittered fraction of the interval, as the
	// protocol prescribes.
	first := time.Duration(rand.Float64() * float64(interval))
	timer := time.NewTimer(first)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if s.lastAck.Load() < s.lastBeat.Load() {
			s.logger.Warn().Msg("previous heartbeat unacknowledged, assuming zombied connection")
			return errNoHeartbeatAck
		}
		if err := s.sendHeartbeat(ctx); err != nil {
			return err
		}
		timer.Reset(interval)
	}
}

func (s *Session) sendHeartbeat(ctx context.Context) error {
	s.lastBeat.Store(time.Now().UnixNano())
	seq := s.seq.Load()
	var data any
	if seq > 0 {
		data = seq
	}
	return s.send(ctx, outPayload{Op: OpHeartbeat, Data: data})
}

// send serializes writes and keeps them under the gateway frame limit.
func (s *Session) send(ctx context.Context, p outPayload) error {
	if err := s.writeLim.Wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("gateway: not connected")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(p)
}

// UpdatePresence sends an op 3 presence change on the live session.
func (s *Session) UpdatePresence(ctx context.Context, status types.Status, activities []types.Activity) error {
	if activities == nil {
		activities = []types.Activity{}
	}
	return s.send(ctx, outPayload{Op: OpPresenceUpdate, Data: PresenceUpdate{
		Status:     status,
		Activities: activities,
	}})
}

// UpdateVoiceState joins, moves, or (with a zero channel) leaves voice.
func (s *Session) UpdateVoiceState(ctx context.Context, guildID, channelID types.Snowflake, selfMute, selfDeaf bool) error {
	data := voiceStateData{SelfMute: selfMute, SelfDeaf: selfDeaf}
	if !guildID.IsZero() {
		data.GuildID = &guildID
	}
	if !channelID.IsZero() {
		data.ChannelID = &channelID
	}
	return s.send(ctx, outPayload{Op: OpVoiceStateUpdate, Data: data})
}

// RequestGuildMembers asks for a member chunk stream and returns the
// nonce that GUILD_MEMBERS_CHUNK events will echo.
func (s *Session) RequestGuildMembers(ctx context.Context, guildID types.Snowflake, query string, limit int) (string, error) {
	nonce := uuid.NewString()
	err := s.send(ctx, outPayload{Op: OpRequestGuildMembers, Data: requestMembersData{
		GuildID: guildID,
		Query:   &query,
		Limit:   limit,
		Nonce:   nonce,
	}})
	if err != nil {
		return "", err
	}
	return nonce, nil
}
