// Package document defines the typed data model behind the Orbit store:
// the whole-database Document, the entity records it holds, and the
// schema normalizer that keeps every load and write well-formed.
package document

import (
	"strings"
	"time"
)

// Roles recognized by the store. Anything else is coerced to RoleUser.
const (
	RoleAdmin = "administrator"
	RoleUser  = "user"
)

// DefaultAdminID and DefaultAdminEmail identify the administrator record
// that the normalizer asserts on every pass. The id is fixed so repeated
// normalization of the same input stays deterministic.
const (
	DefaultAdminID    = "usr_admin"
	DefaultAdminEmail = "admin@orbit.local"
)

// Categories is the fixed domain set for interests. An Interest written
// with a category outside this set is rejected; a stored one is dropped
// on load.
var Categories = []string{"music", "sports", "travel", "food", "creativity"}

// ValidCategory reports whether c belongs to the fixed category set.
func ValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Badge keys. Each names a per-user unread counter; notification creation
// increments exactly one of them.
const (
	BadgeMatching = "matching"
	BadgeMessages = "messages"
	BadgeMyPlanet = "my_planet"
)

// Notification types emitted by the engagement scheduler and the
// messaging flows.
const (
	NotifNewMatch       = "new_match"
	NotifImprovedMatch  = "improved_match"
	NotifMessage        = "message"
	NotifNewSimilarUser = "new_similar_user"
	NotifInteraction    = "interaction"
	NotifDailyUpdate    = "daily_update"
)

// Badges holds the per-section unread counters for one user. Counters
// never go negative; the normalizer floors them at zero.
type Badges struct {
	Matching int `json:"matching"`
	Messages int `json:"messages"`
	MyPlanet int `json:"my_planet"`
}

// Incr bumps the counter named by key. Unknown keys are ignored.
func (b *Badges) Incr(key string) {
	switch key {
	case BadgeMatching:
		b.Matching++
	case BadgeMessages:
		b.Messages++
	case BadgeMyPlanet:
		b.MyPlanet++
	}
}

// DailyMetrics accumulates one user's engagement counters for a single
// day (Day is YYYY-MM-DD).
type DailyMetrics struct {
	Day                  string `json:"day"`
	ProfileViews         int    `json:"profile_views"`
	CategoryInteractions int    `json:"category_interactions"`
	SearchImpressions    int    `json:"search_impressions"`
	NewMatches           int    `json:"new_matches"`
	ImprovedMatches      int    `json:"improved_matches"`
}

// User is the authoritative account record. Its UserProfile is derived
// and rebuilt from it on every normalization pass.
type User struct {
	ID                    string       `json:"id"`
	Email                 string       `json:"email"`
	FullName              string       `json:"full_name"`
	Role                  string       `json:"role"`
	Disabled              bool         `json:"disabled"`
	PasswordHash          string       `json:"password_hash,omitempty"`
	PhotoURL              string       `json:"photo_url"`
	Coins                 int          `json:"coins"`
	Badges                Badges       `json:"badges"`
	DailyMetrics          DailyMetrics `json:"daily_metrics"`
	KeyInterestCategories []string     `json:"key_interest_categories"`
	OnboardingCompleted   bool         `json:"onboarding_completed"`
	OnboardingRequired    bool         `json:"onboarding_required"`
	LastDailyUpdateDay    string       `json:"last_daily_update_day"`
	DailyHighlight        string       `json:"daily_highlight"`
	LastLoginDate         string       `json:"last_login_date"`
	CreatedDate           string       `json:"created_date"`
	UpdatedDate           string       `json:"updated_date"`
}

// IsAdmin reports whether the user carries the administrator role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// UserProfile is the denormalized display record kept 1:1 with its User.
// Never independently authoritative.
type UserProfile struct {
	ID                    string   `json:"id"`
	UserID                string   `json:"user_id"`
	Email                 string   `json:"email"`
	FullName              string   `json:"full_name"`
	PhotoURL              string   `json:"photo_url"`
	Bio                   string   `json:"bio"`
	KeyInterestCategories []string `json:"key_interest_categories"`
	OnboardingCompleted   bool     `json:"onboarding_completed"`
	CreatedDate           string   `json:"created_date"`
	UpdatedDate           string   `json:"updated_date"`
}

// Interest is one item a user shows on their profile, bound to the fixed
// category set.
type Interest struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	PhotoURL    string `json:"photo_url"`
	Description string `json:"description"`
	Position    int    `json:"position"`
	CreatedDate string `json:"created_date"`
	UpdatedDate string `json:"updated_date"`
}

// Message is a direct message between two users.
type Message struct {
	ID          string `json:"id"`
	FromUserID  string `json:"from_user_id"`
	ToUserID    string `json:"to_user_id"`
	Text        string `json:"text"`
	IsRead      bool   `json:"is_read"`
	CreatedDate string `json:"created_date"`
}

// Notification is an in-feed (and optionally push) item for one
// recipient. DedupeKey guarantees at most one notification per
// (recipient, key); BadgeKey names the badge counter bumped at creation.
type Notification struct {
	ID          string            `json:"id"`
	ToUserID    string            `json:"to_user_id"`
	FromUserID  string            `json:"from_user_id,omitempty"`
	Type        string            `json:"type"`
	Text        string            `json:"text"`
	IsRead      bool              `json:"is_read"`
	DedupeKey   string            `json:"dedupe_key,omitempty"`
	Priority    int               `json:"priority"`
	PushEnabled bool              `json:"push_enabled"`
	BadgeKey    string            `json:"badge_key"`
	Meta        map[string]string `json:"meta,omitempty"`
	CreatedDate string            `json:"created_date"`
}

// Match is the scored state of one unordered user pair. PairKey is the
// canonical order-independent identifier; at most one Match exists per
// pair.
type Match struct {
	ID                string   `json:"id"`
	PairKey           string   `json:"pair_key"`
	UserAID           string   `json:"user_a_id"`
	UserBID           string   `json:"user_b_id"`
	Percentage        int      `json:"percentage"`
	LastPercentage    int      `json:"last_percentage"`
	MatchedCategories []string `json:"matched_categories"`
	CanMessage        bool     `json:"can_message"`
	CreatedDate       string   `json:"created_date"`
	UpdatedDate       string   `json:"updated_date"`
}

// Subscription is a user's plan record.
type Subscription struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Plan        string `json:"plan"`
	Status      string `json:"status"`
	CreatedDate string `json:"created_date"`
}

// Pulse is a short broadcast status a user posts to their planet.
type Pulse struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Text        string `json:"text"`
	CreatedDate string `json:"created_date"`
}

// Invite is an administrator-issued invitation to join.
type Invite struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	InvitedByID string `json:"invited_by_id"`
	Status      string `json:"status"`
	CreatedDate string `json:"created_date"`
}

// PasswordResetRequest tracks one reset token issued for a user.
type PasswordResetRequest struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Token       string `json:"token"`
	Status      string `json:"status"`
	CreatedDate string `json:"created_date"`
	UsedDate    string `json:"used_date,omitempty"`
}

// ActivityLog is an append-only audit record.
type ActivityLog struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Action      string            `json:"action"`
	Meta        map[string]string `json:"meta,omitempty"`
	CreatedDate string            `json:"created_date"`
}

// Event is one published bus event, mirrored into meta.events so the
// durable document records what was announced.
type Event struct {
	Seq        int64  `json:"seq"`
	EntityType string `json:"entity_type"`
	Kind       string `json:"kind"` // create | update | delete
	RecordID   string `json:"record_id"`
	At         string `json:"at"`
}

// EventRingCap bounds meta.events; oldest entries fall off first.
const EventRingCap = 200

// Meta carries process-wide scheduling and event state, lifecycle bound
// to the store.
type Meta struct {
	LastEngagementRunAt string  `json:"last_engagement_run_at"`
	EventSeq            int64   `json:"event_seq"`
	Events              []Event `json:"events"`
}

// Document is the whole database: one slice per collection plus Meta.
// Insertion order is list order before any sort.
type Document struct {
	Users                 []User                 `json:"users"`
	UserProfiles          []UserProfile          `json:"user_profiles"`
	Interests             []Interest             `json:"interests"`
	Messages              []Message              `json:"messages"`
	Notifications         []Notification         `json:"notifications"`
	Matches               []Match                `json:"matches"`
	Subscriptions         []Subscription         `json:"subscriptions"`
	Pulses                []Pulse                `json:"pulses"`
	Invites               []Invite               `json:"invites"`
	PasswordResetRequests []PasswordResetRequest `json:"password_reset_requests"`
	ActivityLogs          []ActivityLog          `json:"activity_logs"`
	Meta                  Meta                   `json:"meta"`
}

// PairKey builds the canonical order-independent identifier for an
// unordered pair of user ids: the lexicographically smaller id first,
// joined with "|". PairKey(a, b) == PairKey(b, a) always.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// UserByID returns a pointer into d.Users, or nil.
func (d *Document) UserByID(id string) *User {
	for i := range d.Users {
		if d.Users[i].ID == id {
			return &d.Users[i]
		}
	}
	return nil
}

// UserByEmail returns a pointer into d.Users matched on the lower-cased
// email, or nil.
func (d *Document) UserByEmail(email string) *User {
	email = strings.ToLower(strings.TrimSpace(email))
	for i := range d.Users {
		if d.Users[i].Email == email {
			return &d.Users[i]
		}
	}
	return nil
}

// MatchByPairKey returns a pointer into d.Matches, or nil.
func (d *Document) MatchByPairKey(key string) *Match {
	for i := range d.Matches {
		if d.Matches[i].PairKey == key {
			return &d.Matches[i]
		}
	}
	return nil
}

// Timestamp renders t in the wire format used for every date field.
// RFC3339 in UTC keeps lexicographic order equal to chronological order,
// which the query engine's string comparison relies on.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Day renders t as the YYYY-MM-DD calendar day used by daily metrics and
// the push cap.
func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
