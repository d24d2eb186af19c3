// ABOUTME: Tests for the in-memory MockStore
// ABOUTME: Ensures it matches SQLiteStore ordering and duplicate semantics

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/engine-bridge/internal/history"
)

func TestMockStore(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	require.NoError(t, m.SaveEntry(ctx, entry(3, history.OriginEngineInbound, `{}`)))
	require.NoError(t, m.SaveEntry(ctx, entry(1, history.OriginClientDirect, `{}`)))
	require.NoError(t, m.SaveEntry(ctx, entry(2, history.OriginEngineOutbound, `{}`)))
	require.NoError(t, m.SaveEntry(ctx, entry(2, history.OriginLLMResponse, `{}`)))

	all, err := m.ListEntries(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{all[0].Seq, all[1].Seq, all[2].Seq})
	assert.Equal(t, history.OriginEngineOutbound, all[1].Origin)

	last, err := m.LastSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), last)

	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.SaveEntry(ctx, entry(4, history.OriginClientDirect, `{}`)), ErrClosed)
	assert.ErrorIs(t, m.Close(), ErrClosed)
}
