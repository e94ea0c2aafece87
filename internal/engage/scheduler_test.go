package engage_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbithq/orbit/internal/document"
	"github.com/orbithq/orbit/internal/engage"
	"github.com/orbithq/orbit/internal/match"
)

var t0 = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pctScorer lets a test change the reported percentage between passes.
type pctScorer struct{ pct int }

func (p *pctScorer) score(_, _ *document.User, _ []document.Interest, _ []document.Message) match.Score {
	return match.Score{Percentage: p.pct, CanMessage: p.pct >= 10}
}

// pairDoc is a fresh document with two long-standing enabled users.
func pairDoc() *document.Document {
	d := document.New()
	joined := document.Timestamp(t0.Add(-30 * 24 * time.Hour))
	d.Users = append(d.Users,
		document.User{ID: "u1", Email: "luna@example.com", FullName: "Luna Vega", CreatedDate: joined},
		document.User{ID: "u2", Email: "theo@example.com", FullName: "Theo Park", CreatedDate: joined},
	)
	return d
}

func byType(d *document.Document, typ string) []document.Notification {
	var out []document.Notification
	for _, n := range d.Notifications {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func TestRunThresholdCrossing(t *testing.T) {
	d := pairDoc()
	sched := engage.New(match.Fixed(12), nil, discardLogger())

	created := sched.Run(d, t0, true)

	require.Len(t, d.Matches, 1)
	m := d.Matches[0]
	assert.Equal(t, document.PairKey("u1", "u2"), m.PairKey)
	assert.Equal(t, 12, m.Percentage)
	assert.Equal(t, 0, m.LastPercentage)

	newMatch := byType(d, document.NotifNewMatch)
	require.Len(t, newMatch, 2, "one notification per direction")
	recipients := map[string]bool{newMatch[0].ToUserID: true, newMatch[1].ToUserID: true}
	assert.True(t, recipients["u1"] && recipients["u2"])

	assert.Equal(t, 1, d.UserByID("u1").DailyMetrics.NewMatches)
	assert.Equal(t, 1, d.UserByID("u2").DailyMetrics.NewMatches)

	assert.Equal(t, len(d.Notifications), len(created), "every appended notification is reported to the caller")
}

func TestRunBelowThresholdIsQuiet(t *testing.T) {
	d := pairDoc()
	sched := engage.New(match.Fixed(5), nil, discardLogger())

	sched.Run(d, t0, true)

	require.Len(t, d.Matches, 1, "the pair record exists regardless of threshold")
	assert.Equal(t, 5, d.Matches[0].Percentage)
	assert.Empty(t, byType(d, document.NotifNewMatch))
	assert.Equal(t, 0, d.UserByID("u1").DailyMetrics.NewMatches)
}

func TestRunImprovedMatch(t *testing.T) {
	d := pairDoc()
	sc := &pctScorer{pct: 12}
	sched := engage.New(sc.score, nil, discardLogger())

	sched.Run(d, t0, true)

	sc.pct = 40
	sched.Run(d, t0.Add(20*time.Second), false)

	require.Len(t, d.Matches, 1, "re-scoring updates the pair record in place")
	assert.Equal(t, 40, d.Matches[0].Percentage)
	assert.Equal(t, 12, d.Matches[0].LastPercentage)

	improved := byType(d, document.NotifImprovedMatch)
	require.Len(t, improved, 2)
	assert.Contains(t, improved[0].Text, "improved to 40%")

	assert.Equal(t, 1, d.UserByID("u1").DailyMetrics.ImprovedMatches)
	assert.Len(t, byType(d, document.NotifNewMatch), 2, "no second new-match announcement")
}

func TestRunThrottle(t *testing.T) {
	d := pairDoc()
	sc := &pctScorer{pct: 12}
	sched := engage.New(sc.score, nil, discardLogger())

	sched.Run(d, t0, false)
	require.Len(t, d.Matches, 1)

	// Inside the throttle window nothing recomputes.
	sc.pct = 40
	created := sched.Run(d, t0.Add(5*time.Second), false)
	assert.Nil(t, created)
	assert.Equal(t, 12, d.Matches[0].Percentage)

	// force bypasses the throttle.
	sched.Run(d, t0.Add(6*time.Second), true)
	assert.Equal(t, 40, d.Matches[0].Percentage)
}

func TestRunNewSimilarUser(t *testing.T) {
	d := pairDoc()
	d.Users[2].CreatedDate = document.Timestamp(t0.Add(-24 * time.Hour)) // u2 is a newcomer
	sched := engage.New(match.Fixed(12), nil, discardLogger())

	sched.Run(d, t0, true)

	similar := byType(d, document.NotifNewSimilarUser)
	require.Len(t, similar, 1, "only the established side is told about the newcomer")
	assert.Equal(t, "u1", similar[0].ToUserID)
	assert.Equal(t, "u2", similar[0].FromUserID)
	assert.Contains(t, similar[0].Text, "Theo Park")
}

func TestRunNewSimilarUserSkippedWhenBothNew(t *testing.T) {
	d := pairDoc()
	d.Users[1].CreatedDate = document.Timestamp(t0.Add(-24 * time.Hour))
	d.Users[2].CreatedDate = document.Timestamp(t0.Add(-36 * time.Hour))
	sched := engage.New(match.Fixed(12), nil, discardLogger())

	sched.Run(d, t0, true)

	assert.Empty(t, byType(d, document.NotifNewSimilarUser))
	assert.Len(t, byType(d, document.NotifNewMatch), 2, "the plain match announcements still go out")
}

func TestRunRecrossingDoesNotReannounce(t *testing.T) {
	d := pairDoc()
	sc := &pctScorer{pct: 12}
	sched := engage.New(sc.score, nil, discardLogger())

	sched.Run(d, t0, true)
	require.Len(t, byType(d, document.NotifNewMatch), 2)

	// Dip below the threshold, then cross it again: the dedupe key keeps
	// the pair from being announced twice.
	sc.pct = 5
	sched.Run(d, t0.Add(20*time.Second), true)
	sc.pct = 12
	sched.Run(d, t0.Add(40*time.Second), true)

	assert.Len(t, d.Matches, 1)
	assert.Len(t, byType(d, document.NotifNewMatch), 2)
}

func TestRunSkipsDisabledAndAdmins(t *testing.T) {
	d := pairDoc()
	d.Users[1].Disabled = true
	sched := engage.New(match.Fixed(50), nil, discardLogger())

	sched.Run(d, t0, true)

	assert.Empty(t, d.Matches, "disabled users never pair")
	assert.Empty(t, byType(d, document.NotifNewMatch))

	// The default admin is in the document too and got nothing.
	for _, n := range d.Notifications {
		assert.NotEqual(t, document.DefaultAdminID, n.ToUserID)
	}
}

func TestDailyHighlights(t *testing.T) {
	d := pairDoc()
	sched := engage.New(match.Fixed(0), nil, discardLogger())

	sched.Run(d, t0, true)

	u := d.UserByID("u1")
	assert.Equal(t, document.Day(t0), u.LastDailyUpdateDay)
	assert.Equal(t,
		"No matches yet. Add more interests to meet your people. "+
			"Today: 0 profile views, 0 category interactions, 0 search impressions. "+
			"Matches: 0 new, 0 improved.",
		u.DailyHighlight)
	require.Len(t, byType(d, document.NotifDailyUpdate), 2, "one digest per eligible user")

	// Same calendar day: no second digest.
	sched.Run(d, t0.Add(time.Hour), true)
	assert.Len(t, byType(d, document.NotifDailyUpdate), 2)

	// Next day: a fresh digest.
	sched.Run(d, t0.Add(24*time.Hour), true)
	assert.Len(t, byType(d, document.NotifDailyUpdate), 4)
}

func TestDailyHighlightNamesBestMatch(t *testing.T) {
	d := pairDoc()
	sched := engage.New(match.Fixed(40), nil, discardLogger())

	sched.Run(d, t0, true)

	assert.Contains(t, d.UserByID("u1").DailyHighlight, "Best match: Theo Park at 40%.")
	assert.Contains(t, d.UserByID("u2").DailyHighlight, "Best match: Luna Vega at 40%.")
	assert.Contains(t, d.UserByID("u1").DailyHighlight, "Matches: 1 new, 0 improved.")
}
