// Package engage implements the engagement scheduler: the throttled
// batch job that recomputes pairwise match scores, detects threshold
// crossings and emits deduplicated, rate-limited notifications plus
// daily digest summaries.
//
// The scheduler is inline, throttled work. It runs inside a mutation
// queue turn against that turn's private document clone and never
// spawns background goroutines.
package engage

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orbithq/orbit/internal/config"
	"github.com/orbithq/orbit/internal/document"
	"github.com/orbithq/orbit/internal/match"
)

// matchThreshold is the percentage at which a pair counts as matched.
const matchThreshold = 10

// newcomerWindow is how long a user counts as "new" for the
// new-similar-user notification.
const newcomerWindow = 3 * 24 * time.Hour

// Scheduler drives engagement passes over a document.
type Scheduler struct {
	scorer        match.Scorer
	throttle      time.Duration
	pushPerDay    int
	recentSilence time.Duration
	log           *slog.Logger
}

// New builds a scheduler around a scorer. cfg and log may be nil, in
// which case the defaults apply (15s throttle, 2 pushes per day,
// 30 minute recent-text silence).
func New(scorer match.Scorer, cfg *config.Config, log *slog.Logger) *Scheduler {
	s := &Scheduler{
		scorer:        scorer,
		throttle:      15 * time.Second,
		pushPerDay:    2,
		recentSilence: 30 * time.Minute,
		log:           log,
	}
	if cfg != nil {
		if cfg.Engage.Throttle > 0 {
			s.throttle = cfg.Engage.Throttle
		}
		if cfg.Engage.PushPerDay > 0 {
			s.pushPerDay = cfg.Engage.PushPerDay
		}
		if cfg.Engage.RecentSilence > 0 {
			s.recentSilence = cfg.Engage.RecentSilence
		}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Run executes one engagement pass against doc, honoring the throttle
// unless force is set (pure-authentication flows force freshness).
// Returns the notifications created, in creation order, so the caller
// can publish them after persisting.
//
// The throttle stamp is written before the pass body executes, so the
// pass's own writes cannot re-trigger a pass. A panic inside the pass
// aborts the remainder but keeps everything already appended; the
// triggering mutation still succeeds.
func (s *Scheduler) Run(doc *document.Document, now time.Time, force bool) []document.Notification {
	if !force {
		if last, err := time.Parse(time.RFC3339, doc.Meta.LastEngagementRunAt); err == nil {
			if now.Sub(last) < s.throttle {
				return nil
			}
		}
	}
	doc.Meta.LastEngagementRunAt = document.Timestamp(now)

	var created []document.Notification
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("engagement pass aborted", "panic", r)
			}
		}()
		s.pairwisePass(doc, now, &created)
		s.dailyHighlights(doc, now, &created)
	}()
	return created
}

// pairwisePass recomputes every unordered pair of enabled, non-admin
// users, upserts Match records and handles threshold crossings and
// improvements. O(n^2) in active user count by design.
func (s *Scheduler) pairwisePass(doc *document.Document, now time.Time, created *[]document.Notification) {
	var active []int
	for i := range doc.Users {
		u := &doc.Users[i]
		if u.Disabled || u.IsAdmin() {
			continue
		}
		active = append(active, i)
	}

	today := document.Day(now)
	for x := 0; x < len(active); x++ {
		for y := x + 1; y < len(active); y++ {
			a := &doc.Users[active[x]]
			b := &doc.Users[active[y]]

			score := s.scorer(a, b, doc.Interests, doc.Messages)
			pct := clampPct(score.Percentage)
			key := document.PairKey(a.ID, b.ID)

			prev := 0
			if m := doc.MatchByPairKey(key); m != nil {
				prev = m.Percentage
				m.LastPercentage = prev
				m.Percentage = pct
				m.MatchedCategories = document.CoerceCategories(score.MatchedCategories)
				m.CanMessage = score.CanMessage
				m.UpdatedDate = document.Timestamp(now)
			} else {
				ua, ub := a.ID, b.ID
				if ua > ub {
					ua, ub = ub, ua
				}
				doc.Matches = append(doc.Matches, document.Match{
					ID:                uuid.NewString(),
					PairKey:           key,
					UserAID:           ua,
					UserBID:           ub,
					Percentage:        pct,
					LastPercentage:    0,
					MatchedCategories: document.CoerceCategories(score.MatchedCategories),
					CanMessage:        score.CanMessage,
					CreatedDate:       document.Timestamp(now),
					UpdatedDate:       document.Timestamp(now),
				})
			}

			switch {
			case prev < matchThreshold && pct >= matchThreshold:
				s.onNewMatch(doc, a, b, key, pct, today, now, created)
			case prev >= matchThreshold && pct > prev:
				s.onImprovedMatch(doc, a, b, pct, today, now, created)
			}
		}
	}
}

// onNewMatch handles a pair crossing the match threshold for the first
// time: metric increments, one notification per direction, and the
// new-similar-user extra when exactly one side is a newcomer.
func (s *Scheduler) onNewMatch(doc *document.Document, a, b *document.User, pairKey string, pct int, today string, now time.Time, created *[]document.Notification) {
	touchDailyMetrics(a, today)
	touchDailyMetrics(b, today)
	a.DailyMetrics.NewMatches++
	b.DailyMetrics.NewMatches++

	s.appendBoth(doc, a, b, now, created, func(to, from *document.User) document.Notification {
		return document.Notification{
			ToUserID:   to.ID,
			FromUserID: from.ID,
			Type:       document.NotifNewMatch,
			Text:       newMatchText(from, pct),
			DedupeKey:  "new_match|" + pairKey,
		}
	})

	aNew := createdWithin(a, now, newcomerWindow)
	bNew := createdWithin(b, now, newcomerWindow)
	if aNew != bNew {
		newcomer, older := a, b
		if bNew {
			newcomer, older = b, a
		}
		if n, ok := s.Append(doc, document.Notification{
			ToUserID:   older.ID,
			FromUserID: newcomer.ID,
			Type:       document.NotifNewSimilarUser,
			Text:       newSimilarUserText(newcomer),
			DedupeKey:  "new_similar_user|" + newcomer.ID + "|" + older.ID,
		}, now); ok {
			*created = append(*created, n)
		}
	}
}

// onImprovedMatch handles a pair that was already matched and improved
// strictly. Mutually exclusive with onNewMatch for the same pair and
// pass.
func (s *Scheduler) onImprovedMatch(doc *document.Document, a, b *document.User, pct int, today string, now time.Time, created *[]document.Notification) {
	touchDailyMetrics(a, today)
	touchDailyMetrics(b, today)
	a.DailyMetrics.ImprovedMatches++
	b.DailyMetrics.ImprovedMatches++

	s.appendBoth(doc, a, b, now, created, func(to, from *document.User) document.Notification {
		return document.Notification{
			ToUserID:   to.ID,
			FromUserID: from.ID,
			Type:       document.NotifImprovedMatch,
			Text:       improvedMatchText(from, pct),
		}
	})
}

func (s *Scheduler) appendBoth(doc *document.Document, a, b *document.User, now time.Time, created *[]document.Notification, build func(to, from *document.User) document.Notification) {
	if n, ok := s.Append(doc, build(a, b), now); ok {
		*created = append(*created, n)
	}
	if n, ok := s.Append(doc, build(b, a), now); ok {
		*created = append(*created, n)
	}
}

// touchDailyMetrics rolls a user's daily counters onto today, resetting
// them when the day changed.
func touchDailyMetrics(u *document.User, today string) {
	if u.DailyMetrics.Day != today {
		u.DailyMetrics = document.DailyMetrics{Day: today}
	}
}

func createdWithin(u *document.User, now time.Time, window time.Duration) bool {
	t, err := time.Parse(time.RFC3339, u.CreatedDate)
	if err != nil {
		return false
	}
	return now.Sub(t) <= window
}

func clampPct(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
