// Package match defines the pairwise scoring contract consumed by the
// engagement scheduler. The exact weighting is an external concern; the
// scheduler only depends on the Scorer signature and treats the returned
// percentage as the pair's single truth for both directions.
package match

import (
	"github.com/orbithq/orbit/internal/document"
)

// Score is the outcome of scoring one unordered user pair.
type Score struct {
	// Percentage is the pair's compatibility, 0..100.
	Percentage int
	// MatchedCategories are the category ids both users share.
	MatchedCategories []string
	// CanMessage reports whether the pair may exchange messages.
	CanMessage bool
}

// Scorer computes the compatibility of two users given the global
// interest and message lists. Implementations must be deterministic and
// symmetric in spirit: Scorer(a, b, ...) and Scorer(b, a, ...) yield the
// same percentage.
type Scorer func(a, b *document.User, interests []document.Interest, messages []document.Message) Score

// Default is the reference scorer: shared key interest categories drive
// the percentage, shared interest activity and an existing conversation
// nudge it up. Deterministic and symmetric.
func Default(a, b *document.User, interests []document.Interest, messages []document.Message) Score {
	shared := intersect(a.KeyInterestCategories, b.KeyInterestCategories)

	pct := 25 * len(shared)

	// Categories where both users actively post interests count a little
	// extra on top of the declared key set.
	catsA := interestCategories(interests, a.ID)
	for c := range interestCategories(interests, b.ID) {
		if catsA[c] {
			pct += 5
		}
	}

	talked := false
	for i := range messages {
		m := &messages[i]
		if (m.FromUserID == a.ID && m.ToUserID == b.ID) ||
			(m.FromUserID == b.ID && m.ToUserID == a.ID) {
			talked = true
			break
		}
	}
	if talked {
		pct += 10
	}
	if pct > 100 {
		pct = 100
	}

	return Score{
		Percentage:        pct,
		MatchedCategories: shared,
		CanMessage:        talked || pct >= 10,
	}
}

// Fixed returns a scorer that always reports pct; tests use it to drive
// threshold crossings deterministically.
func Fixed(pct int) Scorer {
	return func(a, b *document.User, _ []document.Interest, _ []document.Message) Score {
		return Score{
			Percentage:        pct,
			MatchedCategories: intersect(a.KeyInterestCategories, b.KeyInterestCategories),
			CanMessage:        pct >= 10,
		}
	}
}

func intersect(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, c := range b {
		inB[c] = true
	}
	out := []string{}
	for _, c := range a {
		if inB[c] {
			out = append(out, c)
		}
	}
	return out
}

func interestCategories(interests []document.Interest, userID string) map[string]bool {
	out := map[string]bool{}
	for i := range interests {
		if interests[i].UserID == userID {
			out[interests[i].Category] = true
		}
	}
	return out
}
