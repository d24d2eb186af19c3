// ABOUTME: Owns the single WebSocket session to the engine's command server
// ABOUTME: Handles connect, optional handshake, the read loop, serialised writes, and teardown

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// State is the lifecycle state of the engine session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
)

// ProtocolNone is reported when no handshake was performed.
const ProtocolNone = "none"

// Manager defaults
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultReadLimit      = 16 << 20
)

// Handler receives inbound frames and session closure notifications.
// Both methods are called from the session's read loop goroutine, except
// HandleClose for deliberate teardown which runs on the caller of
// Connect or Disconnect.
type Handler interface {
	HandleFrame(sessionID string, data []byte)
	HandleClose(sessionID string, err error)
}

// Session is one live connection to the engine.
type Session struct {
	ID          string
	Endpoint    string
	Protocol    string
	ConnectedAt time.Time

	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// ConnectionInfo is a consistent copy of the manager's state.
type ConnectionInfo struct {
	State       State      `json:"state"`
	Endpoint    string     `json:"endpoint,omitempty"`
	SessionID   string     `json:"session_id,omitempty"`
	Protocol    string     `json:"protocol,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	// Handshake enables the hello/welcome exchange after dialing.
	Handshake bool
	Protocol  string
	ReadLimit int64
	Logger    *slog.Logger
}

// Manager owns at most one Session at a time.
type Manager struct {
	cfg ManagerConfig

	// connectMu serialises Connect and Disconnect.
	connectMu sync.Mutex

	// mu guards the fields below it.
	mu       sync.RWMutex
	state    State
	endpoint string
	lastErr  string
	session  *Session
	handler  Handler

	// writeMu serialises frame writes in acquisition order.
	writeMu sync.Mutex

	logger *slog.Logger
}

// NewManager creates a disconnected Manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultReadLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		state:  StateDisconnected,
		logger: cfg.Logger.With("component", "engine"),
	}
}

// SetHandler installs the receiver of inbound frames.
func (m *Manager) SetHandler(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

func (m *Manager) getHandler() Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handler
}

// IsConnected reports whether a session is live.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateConnected
}

// CurrentSession returns the live session's id.
func (m *Manager) CurrentSession() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateConnected || m.session == nil {
		return "", false
	}
	return m.session.ID, true
}

// Info returns a copy of the connection state taken under one lock.
func (m *Manager) Info() ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := ConnectionInfo{
		State:     m.state,
		Endpoint:  m.endpoint,
		LastError: m.lastErr,
	}
	if s := m.session; s != nil {
		info.SessionID = s.ID
		info.Protocol = s.Protocol
		connectedAt := s.ConnectedAt
		info.ConnectedAt = &connectedAt
	}
	return info
}

// Connect establishes a session to endpoint, replacing any existing one.
// Calls on the replaced session fail with ErrConnectionLost.
// On failure the Manager is left disconnected with LastError set.
func (m *Manager) Connect(ctx context.Context, endpoint string) (*Session, error) {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.teardown("replaced by new connection")

	m.mu.Lock()
	m.state = StateConnecting
	m.endpoint = endpoint
	m.lastErr = ""
	m.mu.Unlock()

	m.logger.Info("connecting to engine", "endpoint", endpoint)

	s, err := m.dial(ctx, endpoint)
	if err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.lastErr = err.Error()
		m.mu.Unlock()

		m.logger.Warn("engine connect failed", "endpoint", endpoint, "error", err)
		return nil, err
	}

	m.mu.Lock()
	m.state = StateConnected
	m.session = s
	m.mu.Unlock()

	go m.readLoop(s)

	m.logger.Info("connected to engine",
		"endpoint", endpoint,
		"session_id", s.ID,
		"protocol", s.Protocol,
	)
	return s, nil
}

// dial opens the transport and performs the handshake within the connect timeout.
func (m *Manager) dial(ctx context.Context, endpoint string) (*Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	connectErr := func(kind Kind, err error) error {
		if kind != KindHandshakeRejected && dialCtx.Err() != nil {
			if ctx.Err() != nil {
				kind = KindCanceled
			} else {
				kind = KindTimeout
			}
		}
		return &ConnectError{Kind: kind, Endpoint: endpoint, Err: err}
	}

	conn, _, err := websocket.Dial(dialCtx, endpoint, nil)
	if err != nil {
		return nil, connectErr(KindUnreachable, err)
	}
	conn.SetReadLimit(m.cfg.ReadLimit)

	protocol := ProtocolNone
	if m.cfg.Handshake {
		protocol, err = m.handshake(dialCtx, conn)
		if err != nil {
			conn.CloseNow()
			var rejected *handshakeRejection
			if errors.As(err, &rejected) {
				return nil, connectErr(KindHandshakeRejected, err)
			}
			return nil, connectErr(KindUnreachable, err)
		}
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	return &Session{
		ID:          uuid.New().String(),
		Endpoint:    endpoint,
		Protocol:    protocol,
		ConnectedAt: time.Now().UTC(),
		conn:        conn,
		ctx:         sessCtx,
		cancel:      sessCancel,
		done:        make(chan struct{}),
	}, nil
}

type handshakeRejection struct {
	reason string
}

func (e *handshakeRejection) Error() string {
	return e.reason
}

// handshake sends hello and waits for welcome. It returns the negotiated protocol.
func (m *Manager) handshake(ctx context.Context, conn *websocket.Conn) (string, error) {
	hello, err := json.Marshal(helloFrame{
		Type:     frameTypeHello,
		Client:   ClientName,
		Protocol: m.cfg.Protocol,
	})
	if err != nil {
		return "", fmt.Errorf("encoding hello: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, hello); err != nil {
		return "", fmt.Errorf("sending hello: %w", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("reading handshake reply: %w", err)
	}

	var reply handshakeReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return "", &handshakeRejection{reason: "malformed handshake reply"}
	}

	switch reply.Type {
	case frameTypeWelcome:
		if reply.Protocol == "" {
			return m.cfg.Protocol, nil
		}
		return reply.Protocol, nil
	case frameTypeReject:
		reason := reply.Reason
		if reason == "" {
			reason = "rejected by engine"
		}
		return "", &handshakeRejection{reason: reason}
	default:
		return "", &handshakeRejection{reason: fmt.Sprintf("unexpected handshake frame %q", reply.Type)}
	}
}

// Disconnect closes the current session. It is safe to call when not connected.
func (m *Manager) Disconnect() {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.teardown("client requested disconnect")

	m.mu.Lock()
	m.state = StateDisconnected
	m.lastErr = ""
	m.mu.Unlock()
}

// teardown closes the current session and waits for its read loop to exit.
// Must hold connectMu.
func (m *Manager) teardown(reason string) {
	m.mu.Lock()
	s := m.session
	m.session = nil
	if s != nil {
		m.state = StateDisconnected
	}
	h := m.handler
	m.mu.Unlock()

	if s == nil {
		return
	}

	m.logger.Info("closing engine session", "session_id", s.ID, "reason", reason)

	if err := s.conn.Close(websocket.StatusNormalClosure, reason); err != nil {
		m.logger.Debug("engine close handshake incomplete", "session_id", s.ID, "error", err)
	}
	s.cancel()
	<-s.done

	if h != nil {
		h.HandleClose(s.ID, ErrConnectionLost)
	}
}

// readLoop delivers inbound frames until the transport closes.
func (m *Manager) readLoop(s *Session) {
	defer close(s.done)

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			m.sessionEnded(s, err)
			return
		}
		if h := m.getHandler(); h != nil {
			h.HandleFrame(s.ID, data)
		}
	}
}

// sessionEnded handles a transport closure. Deliberate teardown has already
// detached the session, so only unexpected closures reach the handler here.
func (m *Manager) sessionEnded(s *Session, err error) {
	m.mu.Lock()
	if m.session != s {
		m.mu.Unlock()
		return
	}
	m.session = nil
	m.state = StateFailed
	m.lastErr = fmt.Sprintf("connection lost: %v", err)
	h := m.handler
	m.mu.Unlock()

	s.cancel()
	s.conn.CloseNow()

	m.logger.Warn("engine connection lost", "session_id", s.ID, "error", err)

	if h != nil {
		h.HandleClose(s.ID, fmt.Errorf("%w: %v", ErrConnectionLost, err))
	}
}

// Send writes one frame on the session identified by sessionID. It fails with
// ErrNotConnected when no session is live and ErrConnectionLost when the
// session has been replaced. The caller's ctx is checked before writing but
// does not bound the write: cancelling a write would close the shared socket.
func (m *Manager) Send(ctx context.Context, sessionID string, frame []byte) error {
	m.mu.RLock()
	s := m.session
	m.mu.RUnlock()

	if s == nil {
		return ErrNotConnected
	}
	if s.ID != sessionID {
		return ErrConnectionLost
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(s.ctx, m.cfg.WriteTimeout)
	defer cancel()

	if err := s.conn.Write(writeCtx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}
