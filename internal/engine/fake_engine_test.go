// ABOUTME: In-process fake of the engine's WebSocket command server for tests
// ABOUTME: Supports scripted handshakes, automatic echo replies, and manual reply control

package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/2389/engine-bridge/internal/history"
)

type fakeEngine struct {
	t   *testing.T
	srv *httptest.Server

	// handshake, when set, receives the hello frame and returns the reply to
	// send. A nil reply means never answer.
	handshake func(hello helloFrame) any
	// autoReply echoes every command back as a success reply.
	autoReply bool

	received chan commandFrame

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newFakeEngine(t *testing.T, configure ...func(*fakeEngine)) *fakeEngine {
	t.Helper()
	fe := &fakeEngine{
		t:        t,
		received: make(chan commandFrame, 256),
	}
	for _, c := range configure {
		c(fe)
	}
	fe.srv = httptest.NewServer(http.HandlerFunc(fe.serve))
	t.Cleanup(func() {
		fe.dropAll()
		fe.srv.Close()
	})
	return fe
}

func (fe *fakeEngine) url() string {
	return "ws" + strings.TrimPrefix(fe.srv.URL, "http")
}

func (fe *fakeEngine) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	fe.mu.Lock()
	fe.conns = append(fe.conns, conn)
	fe.mu.Unlock()

	ctx := r.Context()

	if fe.handshake != nil {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var hello helloFrame
		_ = json.Unmarshal(data, &hello)
		reply := fe.handshake(hello)
		if reply == nil {
			// Hold the connection open without answering.
			_, _, _ = conn.Read(ctx)
			return
		}
		b, _ := json.Marshal(reply)
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			return
		}
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var frame commandFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		fe.received <- frame

		if fe.autoReply {
			fe.reply(conn, map[string]any{
				"id":     frame.ID,
				"status": StatusSuccess,
				"result": map[string]any{"command": frame.Command, "params": frame.Params},
			})
		}
	}
}

func (fe *fakeEngine) reply(conn *websocket.Conn, v any) {
	b, err := json.Marshal(v)
	require.NoError(fe.t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, b)
}

// send writes a frame on the most recent connection.
func (fe *fakeEngine) send(v any) {
	var conn *websocket.Conn
	require.Eventually(fe.t, func() bool {
		fe.mu.Lock()
		defer fe.mu.Unlock()
		if len(fe.conns) == 0 {
			return false
		}
		conn = fe.conns[len(fe.conns)-1]
		return true
	}, 2*time.Second, 5*time.Millisecond)
	fe.reply(conn, v)
}

// next waits for the next command frame received by the engine.
func (fe *fakeEngine) next() commandFrame {
	fe.t.Helper()
	select {
	case f := <-fe.received:
		return f
	case <-time.After(5 * time.Second):
		fe.t.Fatal("timeout waiting for command frame")
		return commandFrame{}
	}
}

// dropAll abruptly closes every server-side connection.
func (fe *fakeEngine) dropAll() {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	for _, c := range fe.conns {
		c.CloseNow()
	}
	fe.conns = nil
}

func withAutoReply(fe *fakeEngine) { fe.autoReply = true }

// newTestPair returns a connected Manager and Dispatcher recording into a fresh log.
func newTestPair(t *testing.T, fe *fakeEngine, cfg ManagerConfig) (*Manager, *Dispatcher, *history.Log) {
	t.Helper()
	log := history.New(history.Config{Capacity: 200})
	mgr := NewManager(cfg)
	disp := NewDispatcher(mgr, log, nil)
	mgr.SetHandler(disp)
	t.Cleanup(mgr.Disconnect)

	if fe != nil {
		_, err := mgr.Connect(context.Background(), fe.url())
		require.NoError(t, err)
	}
	return mgr, disp, log
}
