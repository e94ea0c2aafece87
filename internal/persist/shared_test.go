package persist_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbithq/orbit/internal/persist"
)

// countingBackend counts reads so tests can tell whether the remote
// round trip was skipped.
type countingBackend struct {
	persist.Backend
	reads int
}

func (c *countingBackend) Read(ctx context.Context) ([]byte, error) {
	c.reads++
	return c.Backend.Read(ctx)
}

// brokenBackend fails every operation.
type brokenBackend struct{}

func (brokenBackend) Read(context.Context) ([]byte, error) { return nil, errors.New("remote down") }
func (brokenBackend) Write(context.Context, []byte) error  { return errors.New("remote down") }
func (brokenBackend) Clear(context.Context) error          { return errors.New("remote down") }

func TestSharedReadServesCacheWithinTTL(t *testing.T) {
	ctx := context.Background()
	local := persist.NewMemoryBackend()
	remote := &countingBackend{Backend: persist.NewMemoryBackend()}
	require.NoError(t, remote.Write(ctx, []byte(`remote copy`)))

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	sb := persist.NewSharedBackend(local, remote, 1500*time.Millisecond, discardLogger())
	sb.SetNow(func() time.Time { return now })

	got, err := sb.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte(`remote copy`), got)
	assert.Equal(t, 1, remote.reads, "cold read hits the remote")

	now = now.Add(time.Second)
	got, err = sb.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte(`remote copy`), got)
	assert.Equal(t, 1, remote.reads, "fresh read skips the remote")

	now = now.Add(2 * time.Second)
	_, err = sb.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, remote.reads, "stale read consults the remote again")
}

func TestSharedReadDegradesWhenRemoteFails(t *testing.T) {
	ctx := context.Background()
	local := persist.NewMemoryBackend()
	require.NoError(t, local.Write(ctx, []byte(`local copy`)))

	sb := persist.NewSharedBackend(local, brokenBackend{}, time.Second, discardLogger())

	got, err := sb.Read(ctx)
	require.NoError(t, err, "a failing remote degrades to the local copy")
	assert.Equal(t, []byte(`local copy`), got)
}

func TestSharedReadKeepsLocalWhenRemoteEmpty(t *testing.T) {
	ctx := context.Background()
	local := persist.NewMemoryBackend()
	require.NoError(t, local.Write(ctx, []byte(`written before remote came up`)))
	remote := &countingBackend{Backend: persist.NewMemoryBackend()}

	sb := persist.NewSharedBackend(local, remote, time.Second, discardLogger())

	got, err := sb.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte(`written before remote came up`), got, "empty remote never clobbers local state")

	_, err = sb.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, remote.reads, "the empty remote answer still counts as a sync")
}

func TestSharedWriteGoesThrough(t *testing.T) {
	ctx := context.Background()
	local := persist.NewMemoryBackend()
	remote := &countingBackend{Backend: persist.NewMemoryBackend()}

	sb := persist.NewSharedBackend(local, remote, time.Second, discardLogger())
	require.NoError(t, sb.Write(ctx, []byte(`v1`)))

	got, err := remote.Backend.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte(`v1`), got, "writes reach the remote")

	got, err = sb.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte(`v1`), got)
	assert.Equal(t, 0, remote.reads, "a write marks the cache fresh")
}

func TestSharedWriteSurvivesRemoteOutage(t *testing.T) {
	ctx := context.Background()
	local := persist.NewMemoryBackend()

	sb := persist.NewSharedBackend(local, brokenBackend{}, time.Second, discardLogger())
	require.NoError(t, sb.Write(ctx, []byte(`v1`)), "write-through is best effort")

	got, err := sb.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte(`v1`), got)
}

// Reconciliation is last-writer-wins at whole-document granularity:
// inside the freshness window a reader can observe its own cached copy
// even though another instance already advanced the remote.
func TestSharedStaleWindowIsVisible(t *testing.T) {
	ctx := context.Background()
	local := persist.NewMemoryBackend()
	remote := persist.NewMemoryBackend()

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	sb := persist.NewSharedBackend(local, remote, 1500*time.Millisecond, discardLogger())
	sb.SetNow(func() time.Time { return now })

	require.NoError(t, sb.Write(ctx, []byte(`mine`)))
	require.NoError(t, remote.Write(ctx, []byte(`theirs`)), "another instance writes the remote")

	got, err := sb.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte(`mine`), got, "within the TTL the cached copy wins")

	now = now.Add(2 * time.Second)
	got, err = sb.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte(`theirs`), got, "after the TTL the remote copy is adopted")
}
