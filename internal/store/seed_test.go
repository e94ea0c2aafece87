package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbithq/orbit/internal/store"
)

func TestSeedProducesWorkingDemoState(t *testing.T) {
	if testing.Short() {
		t.Skip("seed hashes a dozen passwords")
	}

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Seed(ctx, s))

	users, err := s.Users().List(adminCtx(), "", 0)
	require.NoError(t, err)
	assert.Len(t, users, 13, "twelve demo users plus the default admin")

	for _, u := range users {
		if u.IsAdmin() {
			continue
		}
		assert.True(t, u.OnboardingCompleted, "seeded user %s has photo and three categories", u.Email)
	}

	doc, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Interests, 24, "two interests per demo user")
	assert.Len(t, doc.Messages, 3)
	assert.NotEmpty(t, doc.Matches, "overlapping categories produce matches")

	matched := false
	for _, m := range doc.Matches {
		if m.Percentage >= 10 {
			matched = true
			break
		}
	}
	assert.True(t, matched, "at least one pair clears the threshold")

	// Seeding twice resets instead of duplicating.
	require.NoError(t, store.Seed(ctx, s))
	users, err = s.Users().List(adminCtx(), "", 0)
	require.NoError(t, err)
	assert.Len(t, users, 13)
}
