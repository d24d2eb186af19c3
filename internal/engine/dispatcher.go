// ABOUTME: Correlates command requests with engine replies over the shared session
// ABOUTME: Tracks pending calls by id and fails them on timeout, cancellation, or connection loss

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/engine-bridge/internal/command"
	"github.com/2389/engine-bridge/internal/history"
)

// DefaultCommandTimeout bounds Execute when no timeout is given.
const DefaultCommandTimeout = 30 * time.Second

// Recorder receives every frame the dispatcher moves.
type Recorder interface {
	Append(origin history.Origin, payload any) history.Entry
}

// Transport is the part of Manager the dispatcher needs.
type Transport interface {
	CurrentSession() (string, bool)
	Send(ctx context.Context, sessionID string, frame []byte) error
}

type callResult struct {
	reply *Reply
	err   error
}

type pendingCall struct {
	id        string
	sessionID string
	command   string
	submitted time.Time
	done      chan callResult
}

// Dispatcher sends commands and routes replies by correlation id.
type Dispatcher struct {
	transport Transport
	recorder  Recorder

	mu      sync.Mutex
	pending map[string]*pendingCall

	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher. Wire it to a Manager with
// Manager.SetHandler so it receives replies.
func NewDispatcher(transport Transport, recorder Recorder, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		transport: transport,
		recorder:  recorder,
		pending:   make(map[string]*pendingCall),
		logger:    logger.With("component", "dispatcher"),
	}
}

// Pending returns the number of calls awaiting a reply.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Execute sends cmd and waits for the matching reply. It fails immediately
// with KindNotConnected when no session is live. A reply whose status is
// "error" is returned without an error.
func (d *Dispatcher) Execute(ctx context.Context, cmd command.Command, timeout time.Duration) (*Reply, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	sessionID, ok := d.transport.CurrentSession()
	if !ok {
		d.recordLocal("", cmd.Name, KindNotConnected, ErrNotConnected)
		return nil, &DispatchError{Kind: KindNotConnected}
	}

	call := &pendingCall{
		id:        uuid.New().String(),
		sessionID: sessionID,
		command:   cmd.Name,
		submitted: time.Now(),
		done:      make(chan callResult, 1),
	}

	frame := commandFrame{
		ID:      call.id,
		Type:    frameTypeCommand,
		Command: cmd.Name,
		Params:  cmd.Parameters,
	}
	if frame.Params == nil {
		frame.Params = map[string]any{}
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.pending[call.id] = call
	d.mu.Unlock()

	d.recorder.Append(history.OriginEngineOutbound, frame)

	if err := d.transport.Send(ctx, sessionID, data); err != nil {
		d.remove(call.id)
		kind := KindConnectionLost
		switch {
		case errors.Is(err, ErrNotConnected):
			kind = KindNotConnected
		case errors.Is(err, context.Canceled):
			kind = KindCanceled
		case errors.Is(err, context.DeadlineExceeded):
			kind = KindTimeout
		}
		d.recordLocal(call.id, cmd.Name, kind, err)
		return nil, &DispatchError{Kind: kind, CorrelationID: call.id, Err: err}
	}

	d.logger.Debug("command sent", "id", call.id, "command", cmd.Name)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-call.done:
		return res.reply, res.err
	case <-timer.C:
		return d.abandon(call, KindTimeout, nil)
	case <-ctx.Done():
		kind := KindCanceled
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return d.abandon(call, kind, ctx.Err())
	}
}

// abandon removes a call that stopped waiting. If the reply won the race it
// is returned instead.
func (d *Dispatcher) abandon(call *pendingCall, kind Kind, cause error) (*Reply, error) {
	if !d.remove(call.id) {
		res := <-call.done
		return res.reply, res.err
	}
	d.logger.Warn("command abandoned",
		"id", call.id,
		"command", call.command,
		"kind", kind,
		"elapsed", time.Since(call.submitted).Round(time.Millisecond),
	)
	d.recordLocal(call.id, call.command, kind, cause)
	return nil, &DispatchError{Kind: kind, CorrelationID: call.id, Err: cause}
}

// remove deletes a pending call and reports whether it was still present.
func (d *Dispatcher) remove(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pending[id]; !ok {
		return false
	}
	delete(d.pending, id)
	return true
}

// HandleFrame routes an inbound frame. Replies for unknown or abandoned ids
// are recorded and dropped.
func (d *Dispatcher) HandleFrame(sessionID string, data []byte) {
	f, err := decodeInbound(data)
	if err != nil {
		d.logger.Warn("invalid frame from engine", "session_id", sessionID, "error", err)
		d.recorder.Append(history.OriginEngineInbound, map[string]any{
			"raw":   string(data),
			"error": err.Error(),
		})
		return
	}

	d.recorder.Append(history.OriginEngineInbound, json.RawMessage(data))

	if f.ID == "" {
		d.logger.Debug("engine event", "session_id", sessionID, "type", f.Type)
		return
	}

	d.mu.Lock()
	call, ok := d.pending[f.ID]
	if ok {
		delete(d.pending, f.ID)
	}
	d.mu.Unlock()

	if !ok {
		d.logger.Warn("received reply for unknown request", "id", f.ID, "session_id", sessionID)
		return
	}

	call.done <- callResult{reply: newReply(f, data)}
}

// HandleClose fails every pending call of the closed session.
func (d *Dispatcher) HandleClose(sessionID string, err error) {
	d.mu.Lock()
	var failed []*pendingCall
	for id, call := range d.pending {
		if call.sessionID == sessionID {
			failed = append(failed, call)
			delete(d.pending, id)
		}
	}
	d.mu.Unlock()

	if len(failed) > 0 {
		d.logger.Warn("failing pending commands", "session_id", sessionID, "count", len(failed), "error", err)
	}
	for _, call := range failed {
		d.recordLocal(call.id, call.command, KindConnectionLost, err)
		call.done <- callResult{err: &DispatchError{Kind: KindConnectionLost, CorrelationID: call.id, Err: err}}
	}
}

// recordLocal appends a synthetic inbound entry for a failure that never
// produced an engine reply, so every outbound entry has a partner.
func (d *Dispatcher) recordLocal(id, name string, kind Kind, cause error) {
	payload := map[string]any{
		"local":   true,
		"status":  StatusError,
		"kind":    kind,
		"command": name,
	}
	if id != "" {
		payload["id"] = id
	}
	if cause != nil {
		payload["error"] = cause.Error()
	} else if s := kind.sentinel(); s != nil {
		payload["error"] = s.Error()
	}
	d.recorder.Append(history.OriginEngineInbound, payload)
}

var _ Handler = (*Dispatcher)(nil)
