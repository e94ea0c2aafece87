package engage

import (
	"time"

	"github.com/google/uuid"

	"github.com/orbithq/orbit/internal/document"
)

// Append applies the uniform notification emission rules to a candidate
// and, when it survives them, appends it to the document and bumps the
// recipient's badge counter. Returns the created record and whether the
// candidate was accepted.
//
// Suppression, in order:
//   - recipient missing or disabled
//   - sender equals recipient
//   - dedupe_key already present for that recipient
//   - no dedupe_key, but the same literal text was the most recent
//     notification for that recipient within the recent-silence window
//
// Priority defaults from the type's class unless the candidate carries
// an explicit override. Push delivery is capped per recipient per
// calendar day; the second push of a day requires priority >= 2.
func (s *Scheduler) Append(doc *document.Document, n document.Notification, now time.Time) (document.Notification, bool) {
	recipient := doc.UserByID(n.ToUserID)
	if recipient == nil || recipient.Disabled {
		return document.Notification{}, false
	}
	if n.FromUserID != "" && n.FromUserID == n.ToUserID {
		return document.Notification{}, false
	}

	if n.DedupeKey != "" {
		for i := range doc.Notifications {
			e := &doc.Notifications[i]
			if e.ToUserID == n.ToUserID && e.DedupeKey == n.DedupeKey {
				return document.Notification{}, false
			}
		}
	} else if last := lastFor(doc, n.ToUserID); last != nil && last.Text == n.Text {
		if at, err := time.Parse(time.RFC3339, last.CreatedDate); err == nil {
			if now.Sub(at) < s.recentSilence {
				return document.Notification{}, false
			}
		}
	}

	if n.Priority <= 0 {
		n.Priority = document.PriorityForType(n.Type)
	}
	if n.BadgeKey == "" {
		n.BadgeKey = document.BadgeKeyForType(n.Type)
	}

	pushes := pushesOnDay(doc, n.ToUserID, document.Day(now))
	n.PushEnabled = pushes < s.pushPerDay && (pushes == 0 || n.Priority >= 2)

	n.ID = uuid.NewString()
	n.IsRead = false
	n.CreatedDate = document.Timestamp(now)

	doc.Notifications = append(doc.Notifications, n)
	recipient.Badges.Incr(n.BadgeKey)
	return n, true
}

// lastFor returns the most recent notification for a recipient, newest
// by append order, or nil.
func lastFor(doc *document.Document, userID string) *document.Notification {
	for i := len(doc.Notifications) - 1; i >= 0; i-- {
		if doc.Notifications[i].ToUserID == userID {
			return &doc.Notifications[i]
		}
	}
	return nil
}

func pushesOnDay(doc *document.Document, userID, day string) int {
	count := 0
	for i := range doc.Notifications {
		n := &doc.Notifications[i]
		if n.ToUserID != userID || !n.PushEnabled {
			continue
		}
		if at, err := time.Parse(time.RFC3339, n.CreatedDate); err == nil && document.Day(at) == day {
			count++
		}
	}
	return count
}
