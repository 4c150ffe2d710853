// SPDX-License-Identifier: MIT

package gateway

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newFakeGateway serves a scripted gateway over a test websocket. The
// handler runs once per connection; read and write errors inside it are
// expected during teardown, so helpers swallow them.
func newFakeGateway(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func sendJSON(conn *websocket.Conn, v any) {
	_ = conn.WriteJSON(v)
}

func sendHello(conn *websocket.Conn, intervalMS int) {
	sendJSON(conn, map[string]any{"op": 10, "d": map[string]any{"heartbeat_interval": intervalMS}})
}

func recvPayload(conn *websocket.Conn) (payload, bool) {
	var p payload
	_, data, err := conn.ReadMessage()
	if err != nil {
		return p, false
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, false
	}
	return p, true
}

func TestSessionIdentifyAndDispatch(t *testing.T) {
	var mu sync.Mutex
	var events []string
	identCh := make(chan identifyData, 1)
	dispatched := make(chan struct{})

	url := newFakeGateway(t, func(conn *websocket.Conn) {
		sendHello(conn, 45000)

		p, ok := recvPayload(conn)
		if !ok || p.Op != OpIdentify {
			return
		}
		var data identifyData
		if json.Unmarshal(p.Data, &data) == nil {
			identCh <- data
		}

		sendJSON(conn, map[string]any{
			"op": 0, "s": 1, "t": "READY",
			"d": map[string]any{
				"v": 9, "session_id": "sess-1", "resume_gateway_url": "wss://resume.test",
				"user": map[string]any{"id": "42", "username": "me", "discriminator": "0"},
			},
		})
		sendJSON(conn, map[string]any{
			"op": 0, "s": 2, "t": "MESSAGE_CREATE",
			"d": map[string]any{"id": "7", "channel_id": "1", "content": "hi"},
		})

		// Hold the socket open until the client hangs up.
		_, _ = recvPayload(conn)
	})

	s := New(Config{
		Token: "test-token",
		URL:   url,
		OnDispatch: func(eventType string, data json.RawMessage) {
			mu.Lock()
			events = append(events, eventType)
			mu.Unlock()
			if eventType == "MESSAGE_CREATE" {
				close(dispatched)
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-dispatched:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for dispatches")
	}

	ident := <-identCh
	assert.Equal(t, "test-token", ident.Token)
	assert.Equal(t, capabilities, ident.Capabilities)
	assert.Equal(t, "Chrome", ident.Properties.Browser)
	assert.True(t, ident.Compress)

	assert.Equal(t, "sess-1", s.SessionID())
	assert.EqualValues(t, 2, s.Seq())
	mu.Lock()
	assert.Equal(t, []string{"READY", "MESSAGE_CREATE"}, events)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not shut down")
	}
}

func TestSessionHeartbeatCarriesSequence(t *testing.T) {
	gotBeat := make(chan struct{})

	url := newFakeGateway(t, func(conn *websocket.Conn) {
		// Tiny interval so the first jittered beat arrives quickly.
		sendHello(conn, 50)

		if _, ok := recvPayload(conn); !ok {
			return
		}
		sendJSON(conn, map[string]any{
			"op": 0, "s": 41, "t": "READY",
			"d": map[string]any{"session_id": "s", "user": map[string]any{"id": "1"}},
		})

		for {
			p, ok := recvPayload(conn)
			if !ok {
				return
			}
			if p.Op != OpHeartbeat {
				continue
			}
			sendJSON(conn, map[string]any{"op": 11})
			// The first beat may have raced the READY dispatch; wait
			// for one that carries the sequence.
			var seq int64
			if json.Unmarshal(p.Data, &seq) == nil && seq == 41 {
				select {
				case <-gotBeat:
				default:
					close(gotBeat)
				}
				return
			}
		}
	})

	s := New(Config{Token: "t", URL: url})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-gotBeat:
	case <-time.After(5 * time.Second):
		t.Fatal("no heartbeat with the expected sequence")
	}

	cancel()
	<-done
}

func TestSessionResumesAfterReconnectOp(t *testing.T) {
	var mu sync.Mutex
	var conns int
	var disconnects atomic.Int32
	resumed := make(chan resumeData, 1)

	url := newFakeGateway(t, func(conn *websocket.Conn) {
		mu.Lock()
		conns++
		n := conns
		mu.Unlock()

		sendHello(conn, 45000)
		p, ok := recvPayload(conn)
		if !ok {
			return
		}

		if n == 1 {
			if p.Op != OpIdentify {
				return
			}
			sendJSON(conn, map[string]any{
				"op": 0, "s": 12, "t": "READY",
				"d": map[string]any{"session_id": "sess-9", "user": map[string]any{"id": "1"}},
			})
			// Ask the client to reconnect-and-resume.
			sendJSON(conn, map[string]any{"op": 7})
			return
		}

		if p.Op != OpResume {
			return
		}
		var data resumeData
		if json.Unmarshal(p.Data, &data) != nil {
			return
		}
		sendJSON(conn, map[string]any{"op": 0, "t": "RESUMED", "d": map[string]any{}})
		select {
		case resumed <- data:
		default:
		}
		_, _ = recvPayload(conn)
	})

	s := New(Config{
		Token:        "tok",
		URL:          url,
		OnDisconnect: func(err error) { disconnects.Add(1) },
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case data := <-resumed:
		assert.Equal(t, "sess-9", data.SessionID)
		assert.EqualValues(t, 12, data.Seq)
		assert.Equal(t, "tok", data.Token)
	case <-time.After(10 * time.Second):
		t.Fatal("no resume attempt observed")
	}
	assert.Zero(t, disconnects.Load(), "a resumable drop must not report a lost session")

	cancel()
	<-done
}

func TestSessionInvalidSessionStartsFresh(t *testing.T) {
	var mu sync.Mutex
	var conns int
	var disconnects atomic.Int32
	second := make(chan Op, 1)

	url := newFakeGateway(t, func(conn *websocket.Conn) {
		mu.Lock()
		conns++
		n := conns
		mu.Unlock()

		sendHello(conn, 45000)
		p, ok := recvPayload(conn)
		if !ok {
			return
		}

		if n == 1 {
			if p.Op != OpIdentify {
				return
			}
			sendJSON(conn, map[string]any{
				"op": 0, "s": 3, "t": "READY",
				"d": map[string]any{"session_id": "sess-x", "user": map[string]any{"id": "1"}},
			})
			// Invalidate without resumability; the session must start over.
			sendJSON(conn, map[string]any{"op": 9, "d": false})
			return
		}

		select {
		case second <- p.Op:
		default:
		}
		_, _ = recvPayload(conn)
	})

	s := New(Config{
		Token:        "tok",
		URL:          url,
		OnDisconnect: func(err error) { disconnects.Add(1) },
	})
	s.invalidSessionWait = func() time.Duration { return time.Millisecond }
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case op := <-second:
		assert.Equal(t, OpIdentify, op, "a non-resumable invalidation must re-identify")
	case <-time.After(10 * time.Second):
		t.Fatal("no reconnect after invalid session")
	}
	assert.EqualValues(t, 1, disconnects.Load(), "losing the session must be reported")
	assert.Empty(t, s.SessionID())

	cancel()
	<-done
}

func TestSessionInvalidSessionStaysResumable(t *testing.T) {
	var mu sync.Mutex
	var conns int
	resumed := make(chan resumeData, 1)

	url := newFakeGateway(t, func(conn *websocket.Conn) {
		mu.Lock()
		conns++
		n := conns
		mu.Unlock()

		sendHello(conn, 45000)
		p, ok := recvPayload(conn)
		if !ok {
			return
		}

		if n == 1 {
			if p.Op != OpIdentify {
				return
			}
			sendJSON(conn, map[string]any{
				"op": 0, "s": 5, "t": "READY",
				"d": map[string]any{"session_id": "sess-y", "user": map[string]any{"id": "1"}},
			})
			sendJSON(conn, map[string]any{"op": 9, "d": true})
			return
		}

		if p.Op != OpResume {
			return
		}
		var data resumeData
		if json.Unmarshal(p.Data, &data) != nil {
			return
		}
		select {
		case resumed <- data:
		default:
		}
		sendJSON(conn, map[string]any{"op": 0, "t": "RESUMED", "d": map[string]any{}})
		_, _ = recvPayload(conn)
	})

	s := New(Config{Token: "tok", URL: url})
	s.invalidSessionWait = func() time.Duration { return time.Millisecond }
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case data := <-resumed:
		assert.Equal(t, "sess-y", data.SessionID)
		assert.EqualValues(t, 5, data.Seq)
	case <-time.After(10 * time.Second):
		t.Fatal("no resume after resumable invalidation")
	}

	cancel()
	<-done
}

func TestSessionCompressedDispatch(t *testing.T) {
	got := make(chan string, 1)

	url := newFakeGateway(t, func(conn *websocket.Conn) {
		sendHello(conn, 45000)
		if _, ok := recvPayload(conn); !ok {
			return
		}

		raw, _ := json.Marshal(map[string]any{
			"op": 0, "s": 1, "t": "TYPING_START",
			"d": map[string]any{"channel_id": "5", "user_id": "6"},
		})
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		_, _ = zw.Write(raw)
		_ = zw.Close()
		_ = conn.WriteMessage(websocket.BinaryMessage, buf.Bytes())
		_, _ = recvPayload(conn)
	})

	s := New(Config{
		Token: "t",
		URL:   url,
		OnDispatch: func(eventType string, data json.RawMessage) {
			select {
			case got <- eventType:
			default:
			}
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case evt := <-got:
		assert.Equal(t, "TYPING_START", evt)
	case <-time.After(5 * time.Second):
		t.Fatal("compressed dispatch not delivered")
	}

	cancel()
	<-done
}

func TestSessionAuthFailureIsFatal(t *testing.T) {
	url := newFakeGateway(t, func(conn *websocket.Conn) {
		sendHello(conn, 45000)
		if _, ok := recvPayload(conn); !ok {
			return
		}
		msg := websocket.FormatCloseMessage(CloseAuthFailed, "Authentication failed.")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	})

	s := New(Config{Token: "bad", URL: url})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestCloseCodeClassification(t *testing.T) {
	assert.True(t, fatalClose(CloseAuthFailed))
	assert.True(t, fatalClose(CloseDisallowedIntent))
	assert.False(t, fatalClose(CloseUnknownError))

	assert.True(t, resumableClose(CloseUnknownError))
	assert.True(t, resumableClose(CloseRateLimited))
	assert.False(t, resumableClose(CloseInvalidSeq))
	assert.False(t, resumableClose(CloseSessionTimeout))
}

func TestReadStateBlockAcceptsBothShapes(t *testing.T) {
	var block ReadStateBlock
	require.NoError(t, json.Unmarshal([]byte(`{"version":3,"partial":false,"entries":[{"id":"1","mention_count":2}]}`), &block))
	require.Len(t, block.Entries, 1)
	assert.Equal(t, 2, block.Entries[0].MentionCount)

	var legacy ReadStateBlock
	require.NoError(t, json.Unmarshal([]byte(`[{"id":"9"}]`), &legacy))
	require.Len(t, legacy.Entries, 1)
	assert.Equal(t, "9", legacy.Entries[0].ID.String())
}
