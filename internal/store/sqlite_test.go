// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers schema creation, entry persistence, cursors, and sequence recovery

package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/engine-bridge/internal/history"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func entry(seq uint64, origin history.Origin, payload string) history.Entry {
	return history.Entry{
		Seq:       seq,
		Origin:    origin,
		Timestamp: time.Date(2026, 3, 1, 12, 0, int(seq), 0, time.UTC),
		Payload:   json.RawMessage(payload),
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "history.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.SaveEntry(ctx, entry(1, history.OriginClientDirect, `{}`)))
	last, err := s.LastSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), last)
}

func TestSQLiteStore_SaveAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveEntry(ctx, entry(1, history.OriginClientDirect, `{"command":"get_actors_in_level"}`)))
	require.NoError(t, s.SaveEntry(ctx, entry(2, history.OriginEngineOutbound, `{"id":"abc"}`)))
	require.NoError(t, s.SaveEntry(ctx, entry(3, history.OriginEngineInbound, `{"id":"abc","status":"success"}`)))

	all, err := s.ListEntries(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, uint64(1), all[0].Seq)
	assert.Equal(t, history.OriginEngineInbound, all[2].Origin)
	assert.JSONEq(t, `{"id":"abc","status":"success"}`, string(all[2].Payload))
	assert.True(t, all[1].Timestamp.Equal(time.Date(2026, 3, 1, 12, 0, 2, 0, time.UTC)))

	after, err := s.ListEntries(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, uint64(2), after[0].Seq)
}

func TestSQLiteStore_DuplicateIgnored(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveEntry(ctx, entry(7, history.OriginLLMResponse, `"first"`)))
	require.NoError(t, s.SaveEntry(ctx, entry(7, history.OriginLLMResponse, `"second"`)))

	all, err := s.ListEntries(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.JSONEq(t, `"first"`, string(all[0].Payload))
}

func TestSQLiteStore_RejectsUnknownOrigin(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveEntry(context.Background(), entry(1, history.Origin("bogus"), `{}`))
	assert.Error(t, err)
}

func TestSQLiteStore_LastSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seq, err := s.LastSequence(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	require.NoError(t, s.SaveEntry(ctx, entry(4, history.OriginClientDirect, `{}`)))
	require.NoError(t, s.SaveEntry(ctx, entry(9, history.OriginClientDirect, `{}`)))

	seq, err = s.LastSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), seq)
}

func TestSQLiteStore_AsHistorySink(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	log := history.New(history.Config{Capacity: 2, Sink: s})
	for i := 0; i < 5; i++ {
		log.Append(history.OriginClientDirect, map[string]int{"i": i})
	}
	log.Close()

	all, err := s.ListEntries(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)

	// A new log resumes numbering after the persisted entries.
	last, err := s.LastSequence(ctx)
	require.NoError(t, err)
	resumed := history.New(history.Config{Capacity: 2, StartSequence: last})
	assert.Equal(t, uint64(6), resumed.Append(history.OriginClientDirect, nil).Seq)
}

func TestSQLiteStore_Closed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.SaveEntry(ctx, entry(1, history.OriginClientDirect, `{}`)), ErrClosed)
	_, err := s.ListEntries(ctx, 0, 0)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.LastSequence(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Close(), ErrClosed)
}
