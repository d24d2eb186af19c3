// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/2389/engine-bridge/internal/history"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu      sync.RWMutex
	entries map[uint64]history.Entry
	closed  bool
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{entries: make(map[uint64]history.Entry)}
}

// SaveEntry stores an entry unless its sequence number is already present.
func (m *MockStore) SaveEntry(ctx context.Context, entry history.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if _, ok := m.entries[entry.Seq]; ok {
		return nil
	}
	// Copy the payload to avoid external modification
	entry.Payload = append([]byte(nil), entry.Payload...)
	m.entries[entry.Seq] = entry
	return nil
}

// ListEntries returns entries after afterSeq in ascending order.
func (m *MockStore) ListEntries(ctx context.Context, afterSeq uint64, limit int) ([]history.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	out := []history.Entry{}
	for seq, e := range m.entries {
		if seq > afterSeq {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })

	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LastSequence returns the highest stored sequence number.
func (m *MockStore) LastSequence(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}
	var last uint64
	for seq := range m.entries {
		if seq > last {
			last = seq
		}
	}
	return last, nil
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.closed = true
	return nil
}
