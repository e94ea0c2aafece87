package store

import (
	"context"
	"fmt"

	"github.com/orbithq/orbit/internal/document"
)

// Seed resets the backing document and populates it with demo users,
// interests and messages, then forces one engagement pass via a login.
//
// Behavior:
//  1. Replaces the whole document with a fresh one (default admin kept
//     by normalization).
//  2. Registers 12 users with password "orbit123", photos and rotating
//     key interest categories, so several pairs clear the match
//     threshold.
//  3. Creates interests across all five categories and a few opening
//     messages.
func Seed(ctx context.Context, s *Store) error {
	err := s.Mutate(ctx, func(t *Turn) error {
		*t.Doc = *document.New()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset store: %w", err)
	}

	admin := WithActor(ctx, document.DefaultAdminID)
	names := []string{
		"Luna Vega", "Milo Park", "Iris Chen", "Theo Brandt",
		"Nadia Rossi", "Felix Okafor", "Sana Khalil", "Owen Blake",
		"Priya Nair", "Jonas Weiss", "Mara Silva", "Elio Costa",
	}

	users := make([]document.User, 0, len(names))
	for i, name := range names {
		email := fmt.Sprintf("user%d@example.com", i+1)
		u, err := s.Register(ctx, email, "orbit123", name)
		if err != nil {
			return fmt.Errorf("failed to seed user %s: %w", email, err)
		}

		// Three consecutive categories each; neighbors overlap on two,
		// which lands pairs above the match threshold.
		cats := []string{
			document.Categories[i%5],
			document.Categories[(i+1)%5],
			document.Categories[(i+2)%5],
		}
		if _, err := s.Users().Update(admin, u.ID, map[string]any{
			"photo_url":               fmt.Sprintf("https://img.orbit.local/%d.jpg", i+1),
			"key_interest_categories": cats,
		}); err != nil {
			return fmt.Errorf("failed to complete profile for %s: %w", email, err)
		}

		for j, c := range cats[:2] {
			if _, err := s.Interests().Create(ctx, document.Interest{
				UserID:   u.ID,
				Category: c,
				Title:    fmt.Sprintf("%s pick #%d", c, j+1),
				Position: j,
			}); err != nil {
				return fmt.Errorf("failed to seed interest: %w", err)
			}
		}
		users = append(users, u)
	}

	openers := []string{"Hey, your planet looks great!", "We match on two categories, nice.", "Coffee sometime?"}
	for i, text := range openers {
		if _, err := s.Messages().Create(ctx, document.Message{
			FromUserID: users[i].ID,
			ToUserID:   users[i+1].ID,
			Text:       text,
		}); err != nil {
			return fmt.Errorf("failed to seed message: %w", err)
		}
	}

	// Guarantees fresh pairwise state regardless of the throttle.
	if _, err := s.Login(ctx, users[0].Email, "orbit123"); err != nil {
		return fmt.Errorf("failed to run seed login: %w", err)
	}
	return nil
}
