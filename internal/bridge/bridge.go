// ABOUTME: HTTP boundary composing the engine session, dispatcher, translator, and history
// ABOUTME: Owns the HTTP server lifecycle: routes, middleware, Run, and graceful Shutdown

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/2389/engine-bridge/internal/auth"
	"github.com/2389/engine-bridge/internal/command"
	"github.com/2389/engine-bridge/internal/engine"
	"github.com/2389/engine-bridge/internal/history"
	"github.com/2389/engine-bridge/internal/ollama"
	"github.com/2389/engine-bridge/internal/status"
	"github.com/2389/engine-bridge/internal/translate"
)

// Defaults
const (
	DefaultCommandTimeout = 30 * time.Second
	DefaultModelsTimeout  = 10 * time.Second
	defaultHeartbeat      = 15 * time.Second
	shutdownTimeout       = 5 * time.Second
)

// Connector manages the engine session.
type Connector interface {
	Connect(ctx context.Context, endpoint string) (*engine.Session, error)
	Disconnect()
	IsConnected() bool
	Info() engine.ConnectionInfo
}

// Executor sends commands and waits for replies.
type Executor interface {
	Execute(ctx context.Context, cmd command.Command, timeout time.Duration) (*engine.Reply, error)
}

// Translator turns natural language into a command.
type Translator interface {
	Translate(ctx context.Context, text, model string) (*translate.Result, error)
}

// ModelLister lists the LLM backend's installed models.
type ModelLister interface {
	ListModels(ctx context.Context) (*ollama.ModelList, error)
}

// StatusProvider builds status snapshots and accepts reachability observations.
type StatusProvider interface {
	Snapshot() status.Snapshot
	Observe(available bool)
}

// HistoryLog is the in-memory message history.
type HistoryLog interface {
	Append(origin history.Origin, payload any) history.Entry
	Since(after uint64, limit int) ([]history.Entry, bool)
	LastSequence() uint64
	Subscribe(ctx context.Context) <-chan history.Entry
}

// Archive serves history entries that have been evicted from memory.
type Archive interface {
	ListEntries(ctx context.Context, afterSeq uint64, limit int) ([]history.Entry, error)
}

// Config wires a Bridge. Engine, Dispatcher, Translator, Models, Status,
// and History are required.
type Config struct {
	Addr             string
	DefaultEngineURL string
	CommandTimeout   time.Duration
	ModelsTimeout    time.Duration
	CORSOrigins      []string
	// Verifier enables bearer auth on /api routes when non-nil.
	Verifier auth.Verifier

	Engine     Connector
	Dispatcher Executor
	Translator Translator
	Models     ModelLister
	Status     StatusProvider
	History    HistoryLog
	// Archive is consulted when a history query reaches past the ring.
	Archive Archive
	Catalog *command.Catalog

	Logger *slog.Logger
}

// Bridge serves the HTTP API.
type Bridge struct {
	cfg       Config
	engine    Connector
	dispatch  Executor
	translate Translator
	models    ModelLister
	status    StatusProvider
	history   HistoryLog
	archive   Archive
	catalog   *command.Catalog

	heartbeat time.Duration
	server    *http.Server

	// closing is closed when shutdown starts so history streams return.
	closing   chan struct{}
	closeOnce sync.Once

	logger *slog.Logger
}

// New creates a Bridge from cfg.
func New(cfg Config) (*Bridge, error) {
	switch {
	case cfg.Engine == nil:
		return nil, errors.New("bridge: engine connector is required")
	case cfg.Dispatcher == nil:
		return nil, errors.New("bridge: dispatcher is required")
	case cfg.Translator == nil:
		return nil, errors.New("bridge: translator is required")
	case cfg.Models == nil:
		return nil, errors.New("bridge: model lister is required")
	case cfg.Status == nil:
		return nil, errors.New("bridge: status provider is required")
	case cfg.History == nil:
		return nil, errors.New("bridge: history log is required")
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if cfg.ModelsTimeout <= 0 {
		cfg.ModelsTimeout = DefaultModelsTimeout
	}
	if cfg.Catalog == nil {
		cfg.Catalog = command.Builtin()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	b := &Bridge{
		cfg:       cfg,
		engine:    cfg.Engine,
		dispatch:  cfg.Dispatcher,
		translate: cfg.Translator,
		models:    cfg.Models,
		status:    cfg.Status,
		history:   cfg.History,
		archive:   cfg.Archive,
		catalog:   cfg.Catalog,
		heartbeat: defaultHeartbeat,
		closing:   make(chan struct{}),
		logger:    cfg.Logger.With("component", "bridge"),
	}
	b.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           b.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	b.server.RegisterOnShutdown(b.signalClosing)
	return b, nil
}

// Handler returns the complete HTTP handler with middleware applied.
func (b *Bridge) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/status", b.handleStatus)
	api.HandleFunc("GET /api/models", b.handleModels)
	api.HandleFunc("POST /api/connect", b.handleConnect)
	api.HandleFunc("POST /api/disconnect", b.handleDisconnect)
	api.HandleFunc("POST /api/process-nl", b.handleProcessNL)
	api.HandleFunc("POST /api/send-command", b.handleSendCommand)
	api.HandleFunc("GET /api/commands", b.handleCommands)
	api.HandleFunc("GET /api/history", b.handleHistory)
	api.HandleFunc("GET /api/history/stream", b.handleHistoryStream)

	var authed http.Handler = api
	if b.cfg.Verifier != nil {
		authed = auth.Middleware(b.cfg.Verifier)(api)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", authed)
	mux.HandleFunc("GET /health", b.handleHealth)
	mux.HandleFunc("GET /health/ready", b.handleReady)

	return b.recoverer(b.cors(mux))
}

// Run listens on the configured address and blocks until ctx is canceled
// or the server fails. Returns nil on graceful shutdown.
func (b *Bridge) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", b.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return b.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until ctx is canceled.
func (b *Bridge) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		b.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := b.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		b.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		b.logger.Error("server error", "error", serverErr)
	}

	// The caller's context is already done; shut down on a fresh one.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := b.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// Shutdown stops the HTTP server and closes the engine session.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.logger.Info("shutting down bridge")
	b.signalClosing()

	err := b.server.Shutdown(ctx)
	b.engine.Disconnect()
	if err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

func (b *Bridge) signalClosing() {
	b.closeOnce.Do(func() { close(b.closing) })
}
