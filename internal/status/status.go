// ABOUTME: Aggregates engine connection state, LLM reachability, and recent history
// ABOUTME: Snapshot never waits on the network; stale reachability is refreshed in the background

package status

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/2389/engine-bridge/internal/engine"
	"github.com/2389/engine-bridge/internal/history"
)

// Defaults
const (
	DefaultTTL          = 60 * time.Second
	DefaultProbeTimeout = 2 * time.Second
	DefaultTail         = 20
)

// ConnectionSource reports the engine session state.
type ConnectionSource interface {
	Info() engine.ConnectionInfo
}

// HistorySource provides the history tail.
type HistorySource interface {
	// Tail returns the newest n entries and the last sequence number,
	// taken together.
	Tail(n int) ([]history.Entry, uint64)
}

// Prober checks LLM backend reachability.
type Prober interface {
	Ping(ctx context.Context) error
}

// Snapshot is the aggregate status served to clients.
type Snapshot struct {
	MCPConnected    bool                  `json:"mcp_connected"`
	OllamaAvailable bool                  `json:"ollama_available"`
	MessageHistory  []history.Entry       `json:"message_history"`
	Engine          engine.ConnectionInfo `json:"engine"`
	OllamaCheckedAt *time.Time            `json:"ollama_checked_at,omitempty"`
	LastSequence    uint64                `json:"last_sequence"`
}

// Config configures a Service.
type Config struct {
	Connection   ConnectionSource
	History      HistorySource
	Prober       Prober
	TTL          time.Duration
	ProbeTimeout time.Duration
	Tail         int
	Logger       *slog.Logger
}

// Service composes status snapshots.
type Service struct {
	conn         ConnectionSource
	history      HistorySource
	prober       Prober
	ttl          time.Duration
	probeTimeout time.Duration
	tail         int

	mu        sync.RWMutex
	available bool
	checkedAt time.Time

	group    singleflight.Group
	probing  atomic.Bool
	inflight sync.WaitGroup

	now    func() time.Time
	logger *slog.Logger
}

// New creates a Service. Reachability is unknown (reported false) until the
// first probe completes.
func New(cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.Tail <= 0 {
		cfg.Tail = DefaultTail
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		conn:         cfg.Connection,
		history:      cfg.History,
		prober:       cfg.Prober,
		ttl:          cfg.TTL,
		probeTimeout: cfg.ProbeTimeout,
		tail:         cfg.Tail,
		now:          time.Now,
		logger:       cfg.Logger.With("component", "status"),
	}
}

// Snapshot returns the current status without blocking. When the cached
// reachability is older than the TTL, one background probe is started and
// the previous value is returned.
func (s *Service) Snapshot() Snapshot {
	info := s.conn.Info()

	s.mu.RLock()
	available, checkedAt := s.available, s.checkedAt
	s.mu.RUnlock()

	if checkedAt.IsZero() || s.now().Sub(checkedAt) >= s.ttl {
		s.refreshAsync()
	}

	entries, last := s.history.Tail(s.tail)
	snap := Snapshot{
		MCPConnected:    info.State == engine.StateConnected,
		OllamaAvailable: available,
		MessageHistory:  entries,
		Engine:          info,
		LastSequence:    last,
	}
	if !checkedAt.IsZero() {
		t := checkedAt
		snap.OllamaCheckedAt = &t
	}
	return snap
}

// Prime runs one probe and waits for it, so the first snapshot is accurate.
func (s *Service) Prime(ctx context.Context) bool {
	return s.Refresh(ctx)
}

// Refresh probes now, sharing an in-flight probe if there is one, and
// returns the resulting reachability.
func (s *Service) Refresh(ctx context.Context) bool {
	v, _, _ := s.group.Do("probe", func() (any, error) {
		return s.probe(ctx), nil
	})
	return v.(bool)
}

func (s *Service) refreshAsync() {
	if !s.probing.CompareAndSwap(false, true) {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer s.probing.Store(false)
		s.Refresh(context.Background())
	}()
}

func (s *Service) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	err := s.prober.Ping(ctx)
	if err != nil {
		s.logger.Debug("ollama probe failed", "error", err)
	}
	s.Observe(err == nil)
	return err == nil
}

// Observe records reachability learned elsewhere, such as from a
// translation call, and restarts the TTL.
func (s *Service) Observe(available bool) {
	s.mu.Lock()
	changed := s.available != available || s.checkedAt.IsZero()
	s.available = available
	s.checkedAt = s.now().UTC()
	s.mu.Unlock()

	if changed {
		s.logger.Info("ollama availability changed", "available", available)
	}
}

// OllamaAvailable returns the cached reachability.
func (s *Service) OllamaAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available
}

// Wait blocks until background probes have finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}
