package engage

import (
	"fmt"
	"strings"
	"time"

	"github.com/orbithq/orbit/internal/document"
)

// dailyHighlights composes the once-a-day digest for every eligible
// user who has not received one today: their best current match, their
// engagement counters and their match-quality counters. Stamps
// last_daily_update_day and emits one daily_update notification.
func (s *Scheduler) dailyHighlights(doc *document.Document, now time.Time, created *[]document.Notification) {
	today := document.Day(now)
	for i := range doc.Users {
		u := &doc.Users[i]
		if u.Disabled || u.IsAdmin() || u.LastDailyUpdateDay == today {
			continue
		}

		touchDailyMetrics(u, today)
		u.DailyHighlight = highlightText(doc, u)
		u.LastDailyUpdateDay = today

		if n, ok := s.Append(doc, document.Notification{
			ToUserID:  u.ID,
			Type:      document.NotifDailyUpdate,
			Text:      "Your daily Orbit update is ready.",
			DedupeKey: "daily_update|" + u.ID + "|" + today,
		}, now); ok {
			*created = append(*created, n)
		}
	}
}

// highlightText is the three-part digest body: best-match summary,
// engagement counters, quality counters.
func highlightText(doc *document.Document, u *document.User) string {
	parts := []string{
		bestMatchSummary(doc, u),
		fmt.Sprintf("Today: %d profile views, %d category interactions, %d search impressions.",
			u.DailyMetrics.ProfileViews,
			u.DailyMetrics.CategoryInteractions,
			u.DailyMetrics.SearchImpressions),
		fmt.Sprintf("Matches: %d new, %d improved.",
			u.DailyMetrics.NewMatches,
			u.DailyMetrics.ImprovedMatches),
	}
	return strings.Join(parts, " ")
}

func bestMatchSummary(doc *document.Document, u *document.User) string {
	var best *document.Match
	for i := range doc.Matches {
		m := &doc.Matches[i]
		if m.UserAID != u.ID && m.UserBID != u.ID {
			continue
		}
		if best == nil || m.Percentage > best.Percentage {
			best = m
		}
	}
	if best == nil {
		return "No matches yet. Add more interests to meet your people."
	}

	otherID := best.UserAID
	if otherID == u.ID {
		otherID = best.UserBID
	}
	other := doc.UserByID(otherID)
	if other == nil {
		return "No matches yet. Add more interests to meet your people."
	}
	return fmt.Sprintf("Best match: %s at %d%%.", displayName(other), best.Percentage)
}

func newMatchText(other *document.User, pct int) string {
	return fmt.Sprintf("You matched with %s! %d%% compatible.", displayName(other), pct)
}

func improvedMatchText(other *document.User, pct int) string {
	return fmt.Sprintf("Your match with %s improved to %d%%.", displayName(other), pct)
}

func newSimilarUserText(newcomer *document.User) string {
	return fmt.Sprintf("%s just joined Orbit and shares your interests.", displayName(newcomer))
}

func displayName(u *document.User) string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}
