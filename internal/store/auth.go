package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/orbithq/orbit/internal/document"
	"github.com/orbithq/orbit/internal/orberr"
)

type actorKeyType struct{}

var actorKey actorKeyType

// WithActor attaches the calling user's id to the context. Privileged
// entity operations resolve the actor from here.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey, userID)
}

// ActorFrom returns the actor id attached to ctx, if any.
func ActorFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(actorKey).(string)
	return id, ok && id != ""
}

// requireAdmin resolves the ctx actor against doc and demands the
// administrator role.
func requireAdmin(ctx context.Context, doc *document.Document) error {
	actorID, ok := ActorFrom(ctx)
	if !ok {
		return orberr.ErrAuthRequired
	}
	actor := doc.UserByID(actorID)
	if actor == nil || !actor.IsAdmin() || actor.Disabled {
		return orberr.Forbiddenf("actor %q is not an administrator", actorID)
	}
	return nil
}

// Register creates a new account with a bcrypt-hashed password. Runs as
// a forced-engagement turn so the newcomer's pairwise state is fresh
// immediately.
func (s *Store) Register(ctx context.Context, email, password, fullName string) (document.User, error) {
	var created document.User
	_, err := s.mutate(ctx, mutateOpts{engage: true, force: true}, func(t *Turn) error {
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" {
			return orberr.Validationf("email is required")
		}
		if t.Doc.UserByEmail(email) != nil {
			return orberr.Validationf("email %q already registered", email)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}

		created = document.User{
			ID:           uuid.NewString(),
			Email:        email,
			FullName:     fullName,
			Role:         document.RoleUser,
			PasswordHash: string(hash),
			CreatedDate:  document.Timestamp(t.Now),
			UpdatedDate:  document.Timestamp(t.Now),
		}
		t.Doc.Users = append(t.Doc.Users, created)
		t.Emit("users", KindCreate, created.ID, created)
		return nil
	})
	if err != nil {
		return document.User{}, err
	}
	return created, nil
}

// Login verifies credentials and stamps the last login date. It forces
// an engagement pass even inside the throttle window, the freshness
// guarantee first login relies on.
func (s *Store) Login(ctx context.Context, email, password string) (document.User, error) {
	var loggedIn document.User
	_, err := s.mutate(ctx, mutateOpts{engage: true, force: true}, func(t *Turn) error {
		u := t.Doc.UserByEmail(email)
		if u == nil {
			return fmt.Errorf("%w: invalid credentials", orberr.ErrAuthRequired)
		}
		if u.Disabled {
			return orberr.Forbiddenf("account disabled")
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
			return fmt.Errorf("%w: invalid credentials", orberr.ErrAuthRequired)
		}
		u.LastLoginDate = document.Timestamp(t.Now)
		u.UpdatedDate = document.Timestamp(t.Now)
		loggedIn = *u
		t.Emit("users", KindUpdate, u.ID, *u)
		return nil
	})
	if err != nil {
		return document.User{}, err
	}
	return loggedIn, nil
}

// RequestPasswordReset issues a reset token for the account behind
// email.
func (s *Store) RequestPasswordReset(ctx context.Context, email string) (document.PasswordResetRequest, error) {
	var req document.PasswordResetRequest
	_, err := s.mutate(ctx, mutateOpts{engage: true}, func(t *Turn) error {
		u := t.Doc.UserByEmail(email)
		if u == nil {
			return orberr.NotFoundf("no account for %q", email)
		}
		req = document.PasswordResetRequest{
			ID:          uuid.NewString(),
			UserID:      u.ID,
			Token:       uuid.NewString(),
			Status:      "pending",
			CreatedDate: document.Timestamp(t.Now),
		}
		t.Doc.PasswordResetRequests = append(t.Doc.PasswordResetRequests, req)
		t.Emit("password_reset_requests", KindCreate, req.ID, req)
		return nil
	})
	if err != nil {
		return document.PasswordResetRequest{}, err
	}
	return req, nil
}

// CompletePasswordReset consumes a pending token and installs the new
// password.
func (s *Store) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	_, err := s.mutate(ctx, mutateOpts{engage: true}, func(t *Turn) error {
		for i := range t.Doc.PasswordResetRequests {
			req := &t.Doc.PasswordResetRequests[i]
			if req.Token != token || req.Status != "pending" {
				continue
			}
			u := t.Doc.UserByID(req.UserID)
			if u == nil {
				return orberr.NotFoundf("reset target user %q", req.UserID)
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			u.PasswordHash = string(hash)
			u.UpdatedDate = document.Timestamp(t.Now)
			req.Status = "used"
			req.UsedDate = document.Timestamp(t.Now)
			t.Emit("users", KindUpdate, u.ID, *u)
			t.Emit("password_reset_requests", KindUpdate, req.ID, *req)
			return nil
		}
		return orberr.NotFoundf("pending reset token")
	})
	return err
}
