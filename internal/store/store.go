// ABOUTME: Store interface for durable history persistence
// ABOUTME: Implemented by SQLiteStore and the in-memory MockStore

package store

import (
	"context"
	"errors"

	"github.com/2389/engine-bridge/internal/history"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Query limits for ListEntries.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Store persists history entries beyond the in-memory ring.
type Store interface {
	// SaveEntry stores one entry. Saving an already stored sequence number
	// is a no-op.
	SaveEntry(ctx context.Context, entry history.Entry) error

	// ListEntries returns entries with sequence numbers greater than
	// afterSeq in ascending order, at most limit of them.
	ListEntries(ctx context.Context, afterSeq uint64, limit int) ([]history.Entry, error)

	// LastSequence returns the highest stored sequence number, or 0.
	LastSequence(ctx context.Context) (uint64, error)

	Close() error
}

var (
	_ Store        = (*SQLiteStore)(nil)
	_ Store        = (*MockStore)(nil)
	_ history.Sink = (*SQLiteStore)(nil)
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
