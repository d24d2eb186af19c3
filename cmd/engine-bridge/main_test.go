// ABOUTME: Tests for the bridge binary's wiring, logger, and argument parsing
// ABOUTME: Builds a full app against a temporary SQLite history database

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/engine-bridge/internal/command"
	"github.com/2389/engine-bridge/internal/config"
	"github.com/2389/engine-bridge/internal/history"
)

func TestParseSendArgs(t *testing.T) {
	req, err := parseSendArgs([]string{"get_actors_in_level"})
	require.NoError(t, err)
	assert.Equal(t, "get_actors_in_level", req.Command)
	assert.Empty(t, req.Parameters)

	req, err = parseSendArgs([]string{"delete_actor", `{"name": "Cube"}`})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "Cube"}`, string(req.Parameters))

	_, err = parseSendArgs([]string{"delete_actor", `{name}`})
	assert.Error(t, err)
	_, err = parseSendArgs(nil)
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestColorHandler(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "info"}, &buf)

	logger.Debug("hidden")
	logger.With("component", "engine").WithGroup("call").Info("sent", "id", "abc")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INF sent")
	assert.Contains(t, out, " component=engine")
	assert.Contains(t, out, " call.id=abc")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	logger.Debug("probe", "ok", true)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "probe", rec["msg"])
	assert.Equal(t, true, rec["ok"])
}

func TestLoadCatalog_FallsBackToBuiltin(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	assert.Equal(t, command.Builtin().Len(), loadCatalog("", logger).Len())
	assert.Equal(t, command.Builtin().Len(), loadCatalog(filepath.Join(t.TempDir(), "missing"), logger).Len())
	assert.Equal(t, command.Builtin().Len(), loadCatalog(t.TempDir(), logger).Len())
}

func TestNewApp_ResumesHistorySequence(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	cfg := config.Default()
	cfg.History.DatabasePath = filepath.Join(t.TempDir(), "history.db")
	cfg.Auth.JWTSecret = "secret"

	first, err := newApp(ctx, cfg, logger)
	require.NoError(t, err)
	first.history.Append(history.OriginClientDirect, "one")
	first.history.Append(history.OriginClientDirect, "two")
	first.close()

	second, err := newApp(ctx, cfg, logger)
	require.NoError(t, err)
	defer second.close()

	e := second.history.Append(history.OriginClientDirect, "three")
	assert.Equal(t, uint64(3), e.Seq)
}

func TestRunSend_EngineError(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("ENGINE_BRIDGE_CONFIG", "")

	got := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- body
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"abc","status":"error","error":"Actor not found: Cube"}`)
	}))
	defer srv.Close()

	err := runSend(context.Background(), []string{"--url", srv.URL, "delete_actor", `{"name": "Cube"}`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Actor not found: Cube")
	assert.JSONEq(t, `{"command": "delete_actor", "parameters": {"name": "Cube"}}`, string(<-got))
}
