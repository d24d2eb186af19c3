// ABOUTME: Tests for the status service
// ABOUTME: Covers aggregation, non-blocking snapshots, TTL expiry, and probe de-duplication

package status

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/engine-bridge/internal/engine"
	"github.com/2389/engine-bridge/internal/history"
)

type fakeConn struct {
	info engine.ConnectionInfo
}

func (f *fakeConn) Info() engine.ConnectionInfo { return f.info }

type fakeProber struct {
	calls atomic.Int32
	mu    sync.Mutex
	err   error
	gate  chan struct{}
}

func (f *fakeProber) Ping(ctx context.Context) error {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeProber) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func TestSnapshot_HistoryTailMatchesLastSequence(t *testing.T) {
	log := history.New(history.Config{Capacity: 100})
	svc := New(Config{Connection: &fakeConn{}, History: log, Prober: &fakeProber{}, Tail: 20})
	svc.Observe(true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			log.Append(history.OriginEngineOutbound, i)
		}
	}()

	for i := 0; i < 500; i++ {
		snap := svc.Snapshot()
		if n := len(snap.MessageHistory); n > 0 {
			require.Equal(t, snap.LastSequence, snap.MessageHistory[n-1].Seq)
		}
	}
	<-done
	svc.Wait()
}

func TestSnapshot_Aggregates(t *testing.T) {
	log := history.New(history.Config{Capacity: 100})
	for i := 0; i < 30; i++ {
		log.Append(history.OriginClientDirect, i)
	}
	conn := &fakeConn{info: engine.ConnectionInfo{State: engine.StateConnected, Endpoint: "ws://x", SessionID: "s1", Protocol: "none"}}
	prober := &fakeProber{}

	svc := New(Config{Connection: conn, History: log, Prober: prober, Tail: 20})
	assert.True(t, svc.Prime(context.Background()))

	snap := svc.Snapshot()
	assert.True(t, snap.MCPConnected)
	assert.True(t, snap.OllamaAvailable)
	require.Len(t, snap.MessageHistory, 20)
	assert.Equal(t, uint64(11), snap.MessageHistory[0].Seq)
	assert.Equal(t, uint64(30), snap.LastSequence)
	assert.Equal(t, "s1", snap.Engine.SessionID)
	require.NotNil(t, snap.OllamaCheckedAt)

	b, err := json.Marshal(snap)
	require.NoError(t, err)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(b, &wire))
	for _, key := range []string{"mcp_connected", "ollama_available", "message_history", "engine", "last_sequence"} {
		assert.Contains(t, wire, key)
	}
}

func TestSnapshot_NeverBlocksOnProbe(t *testing.T) {
	conn := &fakeConn{info: engine.ConnectionInfo{State: engine.StateDisconnected}}
	prober := &fakeProber{gate: make(chan struct{})}
	svc := New(Config{Connection: conn, History: history.New(history.Config{Capacity: 5}), Prober: prober, ProbeTimeout: 5 * time.Second})

	start := time.Now()
	for i := 0; i < 50; i++ {
		snap := svc.Snapshot()
		assert.False(t, snap.OllamaAvailable)
		assert.False(t, snap.MCPConnected)
		assert.Nil(t, snap.OllamaCheckedAt)
	}
	assert.Less(t, time.Since(start), 200*time.Millisecond)

	close(prober.gate)
	svc.Wait()

	assert.Equal(t, int32(1), prober.calls.Load(), "concurrent stale snapshots must share one probe")
	assert.True(t, svc.Snapshot().OllamaAvailable)
}

func TestSnapshot_TTL(t *testing.T) {
	prober := &fakeProber{}
	svc := New(Config{
		Connection: &fakeConn{},
		History:    history.New(history.Config{Capacity: 5}),
		Prober:     prober,
		TTL:        time.Minute,
	})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	svc.Prime(context.Background())
	require.Equal(t, int32(1), prober.calls.Load())

	// Fresh cache: no probe.
	svc.Snapshot()
	svc.Wait()
	assert.Equal(t, int32(1), prober.calls.Load())

	// Expired: the stale value is served and a probe runs in the background.
	prober.setErr(errors.New("connection refused"))
	now = now.Add(2 * time.Minute)
	assert.True(t, svc.Snapshot().OllamaAvailable)
	svc.Wait()
	assert.Equal(t, int32(2), prober.calls.Load())
	assert.False(t, svc.Snapshot().OllamaAvailable)
}

func TestObserve(t *testing.T) {
	svc := New(Config{Connection: &fakeConn{}, History: history.New(history.Config{Capacity: 5}), Prober: &fakeProber{}})
	svc.Observe(false)
	assert.False(t, svc.OllamaAvailable())
	svc.Observe(true)
	assert.True(t, svc.OllamaAvailable())
	assert.NotNil(t, svc.Snapshot().OllamaCheckedAt)
}
