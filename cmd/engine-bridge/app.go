// ABOUTME: Builds the bridge from configuration: history, store, engine, translator, status
// ABOUTME: Owns startup ordering and the shutdown of durable resources

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/engine-bridge/internal/auth"
	"github.com/2389/engine-bridge/internal/bridge"
	"github.com/2389/engine-bridge/internal/command"
	"github.com/2389/engine-bridge/internal/config"
	"github.com/2389/engine-bridge/internal/engine"
	"github.com/2389/engine-bridge/internal/history"
	"github.com/2389/engine-bridge/internal/ollama"
	"github.com/2389/engine-bridge/internal/status"
	"github.com/2389/engine-bridge/internal/store"
	"github.com/2389/engine-bridge/internal/translate"
)

type app struct {
	store   *store.SQLiteStore
	history *history.Log
	manager *engine.Manager
	status  *status.Service
	llm     *ollama.Client
	bridge  *bridge.Bridge
	logger  *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}

	histCfg := history.Config{
		Capacity:  cfg.History.Capacity,
		QueueSize: cfg.History.PersistQueue,
		Logger:    logger,
	}
	if cfg.History.DatabasePath != "" {
		s, err := store.NewSQLiteStore(cfg.History.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("opening history database: %w", err)
		}
		last, err := s.LastSequence(ctx)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("reading history database: %w", err)
		}
		histCfg.StartSequence = last
		histCfg.Sink = s
		a.store = s
		logger.Info("history persistence enabled", "path", cfg.History.DatabasePath, "resume_after", last)
	}
	a.history = history.New(histCfg)
	logger.Debug("history ring ready", "capacity", a.history.Capacity(), "next_seq", histCfg.StartSequence+1)

	catalog := loadCatalog(cfg.Catalog.DocsDir, logger)

	a.manager = engine.NewManager(engine.ManagerConfig{
		ConnectTimeout: cfg.Engine.ConnectTimeout,
		Handshake:      cfg.Engine.Handshake.Enabled,
		Protocol:       cfg.Engine.Handshake.Protocol,
		Logger:         logger,
	})
	dispatcher := engine.NewDispatcher(a.manager, a.history, logger)
	a.manager.SetHandler(dispatcher)

	llm := ollama.New(cfg.Ollama.BaseURL, nil, logger)
	a.llm = llm
	translator := translate.New(translate.Config{
		Backend:           llm,
		Catalog:           catalog,
		Recorder:          a.history,
		DefaultModel:      cfg.Ollama.DefaultModel,
		Timeout:           cfg.Ollama.RequestTimeout,
		RequestsPerSecond: cfg.Ollama.RequestsPerSecond,
		Logger:            logger,
	})

	a.status = status.New(status.Config{
		Connection:   a.manager,
		History:      a.history,
		Prober:       llm,
		TTL:          cfg.Ollama.ProbeTTL,
		ProbeTimeout: cfg.Ollama.ProbeTimeout,
		Tail:         cfg.History.StatusTail,
		Logger:       logger,
	})

	bcfg := bridge.Config{
		Addr:             cfg.Server.HTTPAddr,
		DefaultEngineURL: cfg.Engine.DefaultURL,
		CommandTimeout:   cfg.Engine.CommandTimeout,
		CORSOrigins:      cfg.Server.CORSOrigins,
		Engine:           a.manager,
		Dispatcher:       dispatcher,
		Translator:       translator,
		Models:           llm,
		Status:           a.status,
		History:          a.history,
		Catalog:          catalog,
		Logger:           logger,
	}
	if a.store != nil {
		bcfg.Archive = a.store
	}
	if cfg.Auth.JWTSecret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		bcfg.Verifier = verifier
	}

	b, err := bridge.New(bcfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("creating bridge: %w", err)
	}
	a.bridge = b
	return a, nil
}

// run primes the LLM reachability cache and serves until ctx is canceled.
func (a *app) run(ctx context.Context) error {
	if a.status.Prime(ctx) {
		a.logger.Info("ollama reachable", "url", a.llm.BaseURL())
	} else {
		a.logger.Warn("ollama not reachable; natural-language commands will fail until it is", "url", a.llm.BaseURL())
	}
	return a.bridge.Run(ctx)
}

// close flushes history to the store and closes it.
func (a *app) close() {
	a.history.Close()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("closing history database", "error", err)
		}
	}
}

// loadCatalog loads markdown tool docs, falling back to the built-in
// catalog when none are configured or found.
func loadCatalog(dir string, logger *slog.Logger) *command.Catalog {
	if dir == "" {
		return command.Builtin()
	}
	cat, err := command.Load(dir)
	if err != nil {
		logger.Warn("tool docs unavailable, using built-in catalog", "dir", dir, "error", err)
		return command.Builtin()
	}
	logger.Info("loaded tool docs", "dir", dir, "commands", cat.Len())
	return cat
}
