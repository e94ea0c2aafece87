package persist_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbithq/orbit/internal/document"
	"github.com/orbithq/orbit/internal/orberr"
	"github.com/orbithq/orbit/internal/persist"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDocumentsBootstrapsWhenAbsent(t *testing.T) {
	docs := persist.NewDocuments(persist.NewMemoryBackend(), discardLogger())

	d, err := docs.Read(context.Background())
	require.NoError(t, err)
	require.NotNil(t, d.UserByEmail(document.DefaultAdminEmail), "fresh document carries the default admin")

	// Absent state is not a failure: reading it twice never trips the
	// corrupt-recovery path.
	_, err = docs.Read(context.Background())
	require.NoError(t, err)
}

func TestDocumentsRoundTrip(t *testing.T) {
	docs := persist.NewDocuments(persist.NewMemoryBackend(), discardLogger())
	ctx := context.Background()

	d := document.New()
	d.Users = append(d.Users, document.User{ID: "u1", Email: "LUNA@Example.com"})

	persisted, err := docs.Write(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, "luna@example.com", persisted.UserByID("u1").Email, "writes persist normalized state")

	back, err := docs.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, back.UserByID("u1"))
	assert.Equal(t, "luna@example.com", back.UserByID("u1").Email)
}

func TestDocumentsRecoversFromCorruptStateOnce(t *testing.T) {
	backend := persist.NewMemoryBackend()
	docs := persist.NewDocuments(backend, discardLogger())
	ctx := context.Background()

	require.NoError(t, backend.Write(ctx, []byte(`{{ not json`)))

	// First failure: bootstrap a fresh document instead of failing.
	d, err := docs.Read(ctx)
	require.NoError(t, err)
	assert.NotNil(t, d.UserByEmail(document.DefaultAdminEmail))

	// Recovery does not rewrite durable state, so the second read hits
	// the same garbage. Two consecutive failures are fatal.
	_, err = docs.Read(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, orberr.ErrCorrupt))
}

func TestDocumentsSuccessResetsFailureStreak(t *testing.T) {
	backend := persist.NewMemoryBackend()
	docs := persist.NewDocuments(backend, discardLogger())
	ctx := context.Background()

	require.NoError(t, backend.Write(ctx, []byte(`garbage`)))
	_, err := docs.Read(ctx)
	require.NoError(t, err, "first failure recovers")

	_, err = docs.Write(ctx, document.New())
	require.NoError(t, err)

	// The successful write cleared the streak; fresh garbage recovers
	// again instead of being fatal.
	require.NoError(t, backend.Write(ctx, []byte(`garbage again`)))
	_, err = docs.Read(ctx)
	require.NoError(t, err)
}

func TestMemoryBackendCopiesData(t *testing.T) {
	backend := persist.NewMemoryBackend()
	ctx := context.Background()

	src := []byte(`{"a":1}`)
	require.NoError(t, backend.Write(ctx, src))
	src[0] = 'X'

	got, err := backend.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), got, "stored bytes are isolated from the caller's slice")

	require.NoError(t, backend.Clear(ctx))
	got, err = backend.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}
