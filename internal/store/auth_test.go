package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbithq/orbit/internal/document"
	"github.com/orbithq/orbit/internal/orberr"
)

func TestRegisterAndLogin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.Register(ctx, "  Luna@Example.com ", "secret", "Luna Vega")
	require.NoError(t, err)
	assert.Equal(t, "luna@example.com", u.Email)
	assert.Equal(t, document.RoleUser, u.Role)
	assert.NotEmpty(t, u.PasswordHash)
	assert.NotEqual(t, "secret", u.PasswordHash)

	_, err = s.Register(ctx, "luna@example.com", "other", "Impostor")
	assert.ErrorIs(t, err, orberr.ErrValidation, "duplicate email")

	_, err = s.Register(ctx, "   ", "pw", "Nobody")
	assert.ErrorIs(t, err, orberr.ErrValidation, "empty email")

	loggedIn, err := s.Login(ctx, "luna@example.com", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, loggedIn.LastLoginDate)

	_, err = s.Login(ctx, "luna@example.com", "wrong")
	assert.ErrorIs(t, err, orberr.ErrAuthRequired)

	_, err = s.Login(ctx, "nobody@example.com", "secret")
	assert.ErrorIs(t, err, orberr.ErrAuthRequired, "unknown accounts fail the same way as bad passwords")
}

func TestLoginDisabledAccount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.Register(ctx, "off@example.com", "pw", "Switched Off")
	require.NoError(t, err)

	_, err = s.Users().Update(adminCtx(), u.ID, map[string]any{"disabled": true})
	require.NoError(t, err)

	_, err = s.Login(ctx, "off@example.com", "pw")
	assert.ErrorIs(t, err, orberr.ErrForbidden)
}

// Pure-auth flows force an engagement pass even inside the throttle
// window, so two compatible accounts are matched the moment one of them
// logs in.
func TestLoginForcesEngagementPass(t *testing.T) {
	s := newTestStore(t)
	s.SetNow(func() time.Time { return baseTime })
	ctx := context.Background()

	u1, err := s.Register(ctx, "a@example.com", "pw", "A")
	require.NoError(t, err)
	u2, err := s.Register(ctx, "b@example.com", "pw", "B")
	require.NoError(t, err)

	cats := []string{"music", "travel", "food"}
	for _, id := range []string{u1.ID, u2.ID} {
		_, err := s.Users().Update(adminCtx(), id, map[string]any{
			"photo_url":               "p.jpg",
			"key_interest_categories": cats,
		})
		require.NoError(t, err)
	}

	// The profile updates happened inside the throttle window, so the
	// pair has not been rescored yet.
	matches, err := s.Matches().List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 0, matches[0].Percentage)

	_, err = s.Login(ctx, "a@example.com", "pw")
	require.NoError(t, err)

	matches, err = s.Matches().List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 75, matches[0].Percentage, "three shared key categories")
	assert.Equal(t, document.PairKey(u1.ID, u2.ID), matches[0].PairKey)

	newMatch, err := s.Notifications().Filter(ctx, nil, "", 0)
	require.NoError(t, err)
	count := 0
	for _, n := range newMatch {
		if n.Type == document.NotifNewMatch {
			count++
		}
	}
	assert.Equal(t, 2, count, "both sides hear about the new match")
}

func TestPasswordResetFlow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Register(ctx, "reset@example.com", "oldpw", "Resetter")
	require.NoError(t, err)

	_, err = s.RequestPasswordReset(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, orberr.ErrNotFound)

	req, err := s.RequestPasswordReset(ctx, "reset@example.com")
	require.NoError(t, err)
	assert.Equal(t, "pending", req.Status)
	assert.NotEmpty(t, req.Token)

	require.NoError(t, s.CompletePasswordReset(ctx, req.Token, "newpw"))

	_, err = s.Login(ctx, "reset@example.com", "oldpw")
	assert.ErrorIs(t, err, orberr.ErrAuthRequired, "the old password is dead")
	_, err = s.Login(ctx, "reset@example.com", "newpw")
	require.NoError(t, err)

	assert.ErrorIs(t, s.CompletePasswordReset(ctx, req.Token, "again"),
		orberr.ErrNotFound, "a used token cannot be replayed")

	rows, err := s.PasswordResets().Filter(ctx, nil, "", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "used", rows[0].Status)
	assert.NotEmpty(t, rows[0].UsedDate)
}
