// ABOUTME: Tests for command dispatch and reply correlation
// ABOUTME: Covers interleaved replies, timeouts, late replies, connection loss, and history pairing

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/engine-bridge/internal/command"
	"github.com/2389/engine-bridge/internal/history"
)

func TestDispatcher_NotConnected(t *testing.T) {
	_, disp, log := newTestPair(t, nil, ManagerConfig{})

	start := time.Now()
	reply, err := disp.Execute(context.Background(), command.New("get_actors_in_level", nil), time.Second)
	assert.Nil(t, reply)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Zero(t, disp.Pending())

	entries := log.Recent(10)
	require.Len(t, entries, 1)
	assert.Equal(t, history.OriginEngineInbound, entries[0].Origin)
	var payload map[string]any
	require.NoError(t, entries[0].Decode(&payload))
	assert.Equal(t, true, payload["local"])
	assert.Equal(t, string(KindNotConnected), payload["kind"])
}

func TestDispatcher_RoundTripHistory(t *testing.T) {
	fe := newFakeEngine(t, withAutoReply)
	_, disp, log := newTestPair(t, fe, ManagerConfig{})

	params := map[string]any{"name": "X", "type": "SPHERE", "location": []any{0, 0, 100}}
	reply, err := disp.Execute(context.Background(), command.New("create_actor", params), 2*time.Second)
	require.NoError(t, err)
	assert.True(t, reply.OK())
	assert.Equal(t, StatusSuccess, reply.Status)

	entries := log.Recent(10)
	require.Len(t, entries, 2)
	assert.Equal(t, history.OriginEngineOutbound, entries[0].Origin)
	assert.Equal(t, history.OriginEngineInbound, entries[1].Origin)
	assert.Less(t, entries[0].Seq, entries[1].Seq)

	var out struct {
		ID      string          `json:"id"`
		Command string          `json:"command"`
		Params  json.RawMessage `json:"params"`
	}
	require.NoError(t, entries[0].Decode(&out))
	var in struct {
		ID string `json:"id"`
	}
	require.NoError(t, entries[1].Decode(&in))

	assert.Equal(t, reply.ID, out.ID)
	assert.Equal(t, out.ID, in.ID)
	assert.Equal(t, "create_actor", out.Command)

	want, err := json.Marshal(params)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(out.Params))
}

func TestDispatcher_InterleavedReplies(t *testing.T) {
	fe := newFakeEngine(t)
	_, disp, _ := newTestPair(t, fe, ManagerConfig{})

	const n = 8
	var wg sync.WaitGroup
	results := make([]float64, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reply, err := disp.Execute(context.Background(),
				command.New("get_actor_properties", map[string]any{"name": fmt.Sprintf("actor-%d", i)}),
				5*time.Second)
			if err != nil {
				errs[i] = err
				return
			}
			var result struct {
				Index float64 `json:"index"`
			}
			errs[i] = json.Unmarshal(reply.Result, &result)
			results[i] = result.Index
		}(i)
	}

	frames := make([]commandFrame, n)
	for i := range frames {
		frames[i] = fe.next()
	}
	// Answer in reverse arrival order.
	for i := n - 1; i >= 0; i-- {
		var idx int
		_, err := fmt.Sscanf(frames[i].Params["name"].(string), "actor-%d", &idx)
		require.NoError(t, err)
		fe.send(map[string]any{
			"id":     frames[i].ID,
			"status": StatusSuccess,
			"result": map[string]any{"index": idx},
		})
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i], "call %d", i)
		assert.Equal(t, float64(i), results[i], "call %d got another call's reply", i)
	}
	assert.Zero(t, disp.Pending())
}

func TestDispatcher_EngineErrorIsAReply(t *testing.T) {
	fe := newFakeEngine(t)
	_, disp, _ := newTestPair(t, fe, ManagerConfig{})

	done := make(chan struct{})
	var (
		reply *Reply
		err   error
	)
	go func() {
		defer close(done)
		reply, err = disp.Execute(context.Background(), command.New("delete_actor", map[string]any{"name": "Ghost"}), 2*time.Second)
	}()

	frame := fe.next()
	fe.send(map[string]any{"id": frame.ID, "status": "error", "error": "Actor not found: Ghost"})
	<-done

	require.NoError(t, err)
	assert.False(t, reply.OK())
	assert.Equal(t, "Actor not found: Ghost", reply.ErrorMessage())
}

func TestDispatcher_TimeoutAndLateReply(t *testing.T) {
	fe := newFakeEngine(t)
	_, disp, log := newTestPair(t, fe, ManagerConfig{})

	reply, err := disp.Execute(context.Background(), command.New("take_screenshot", nil), 100*time.Millisecond)
	assert.Nil(t, reply)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Zero(t, disp.Pending())

	var de *DispatchError
	require.True(t, errors.As(err, &de))
	assert.NotEmpty(t, de.CorrelationID)

	frame := fe.next()
	assert.Equal(t, de.CorrelationID, frame.ID)

	before := log.LastSequence()
	fe.send(map[string]any{"id": frame.ID, "status": StatusSuccess, "result": map[string]any{}})

	// The late reply is recorded and then dropped.
	assert.Eventually(t, func() bool { return log.LastSequence() == before+1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, disp.Pending())
}

func TestDispatcher_ContextCanceled(t *testing.T) {
	fe := newFakeEngine(t)
	_, disp, _ := newTestPair(t, fe, ManagerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		fe.next()
		cancel()
	}()

	_, err := disp.Execute(ctx, command.New("get_selected_actors", nil), 5*time.Second)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Zero(t, disp.Pending())
}

func TestDispatcher_DisconnectFailsAllPending(t *testing.T) {
	fe := newFakeEngine(t)
	mgr, disp, log := newTestPair(t, fe, ManagerConfig{})

	const n = 5
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := disp.Execute(context.Background(), command.New("get_actors_in_level", nil), 10*time.Second)
			errs <- err
		}()
	}

	assert.Eventually(t, func() bool { return disp.Pending() == n }, 2*time.Second, 5*time.Millisecond)

	mgr.Disconnect()

	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrConnectionLost)
		case <-time.After(2 * time.Second):
			t.Fatal("pending call not released by disconnect")
		}
	}
	assert.Zero(t, disp.Pending())

	// Each outbound entry has a local inbound partner.
	var outbound, local int
	for _, e := range log.Recent(100) {
		switch e.Origin {
		case history.OriginEngineOutbound:
			outbound++
		case history.OriginEngineInbound:
			var p map[string]any
			require.NoError(t, e.Decode(&p))
			if p["local"] == true {
				local++
			}
		}
	}
	assert.Equal(t, n, outbound)
	assert.Equal(t, n, local)
}

func TestDispatcher_TransportLossFailsPending(t *testing.T) {
	fe := newFakeEngine(t)
	mgr, disp, _ := newTestPair(t, fe, ManagerConfig{})

	errCh := make(chan error, 1)
	go func() {
		_, err := disp.Execute(context.Background(), command.New("get_actors_in_level", nil), 10*time.Second)
		errCh <- err
	}()
	fe.next()

	fe.dropAll()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConnectionLost)
	case <-time.After(3 * time.Second):
		t.Fatal("pending call not released by transport loss")
	}
	assert.Equal(t, StateFailed, mgr.Info().State)
	assert.Zero(t, disp.Pending())
}

func TestDispatcher_EventsAreRecorded(t *testing.T) {
	fe := newFakeEngine(t)
	_, disp, log := newTestPair(t, fe, ManagerConfig{})

	fe.send(map[string]any{"type": "level_loaded", "level": "Main"})

	assert.Eventually(t, func() bool { return log.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	e := log.Recent(1)[0]
	assert.Equal(t, history.OriginEngineInbound, e.Origin)
	assert.JSONEq(t, `{"type":"level_loaded","level":"Main"}`, string(e.Payload))
	assert.Zero(t, disp.Pending())
}

func TestDispatcher_RejectsInvalidCommand(t *testing.T) {
	fe := newFakeEngine(t)
	_, disp, log := newTestPair(t, fe, ManagerConfig{})

	_, err := disp.Execute(context.Background(), command.New("", nil), time.Second)
	assert.ErrorIs(t, err, command.ErrEmptyName)
	assert.Zero(t, log.Len())
}
