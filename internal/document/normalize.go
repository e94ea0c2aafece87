package document

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Normalize enforces the document schema: every collection present,
// every record coerced into shape, the default administrator asserted,
// and every profile rebuilt from its user. It is pure (the input is
// never modified) and idempotent: Normalize(Normalize(d)) equals
// Normalize(d) for any input, including nil.
//
// Runs unconditionally on every load and before every persist.
func Normalize(d *Document) *Document {
	if d == nil {
		d = &Document{}
	}
	out := d.Clone()

	normalizeUsers(out)
	assertAdmin(out)
	rebuildProfiles(out)
	normalizeInterests(out)
	normalizeMatches(out)
	normalizeNotifications(out)
	ensureCollections(out)

	if len(out.Meta.Events) > EventRingCap {
		out.Meta.Events = append([]Event(nil), out.Meta.Events[len(out.Meta.Events)-EventRingCap:]...)
	}
	return out
}

// New returns a freshly bootstrapped document containing only the
// default administrator. Used when durable state is absent or corrupt.
func New() *Document {
	return Normalize(nil)
}

func normalizeUsers(d *Document) {
	users := d.Users[:0:0]
	seen := map[string]bool{}
	for i := range d.Users {
		u := d.Users[i]
		if u.ID == "" || seen[u.ID] {
			continue
		}
		seen[u.ID] = true

		u.Email = strings.ToLower(strings.TrimSpace(u.Email))
		if u.Role != RoleAdmin {
			u.Role = RoleUser
		}
		u.KeyInterestCategories = CoerceCategories(u.KeyInterestCategories)
		u.OnboardingCompleted = onboardingComplete(&u)
		u.OnboardingRequired = !u.OnboardingCompleted
		if u.Badges.Matching < 0 {
			u.Badges.Matching = 0
		}
		if u.Badges.Messages < 0 {
			u.Badges.Messages = 0
		}
		if u.Badges.MyPlanet < 0 {
			u.Badges.MyPlanet = 0
		}
		users = append(users, u)
	}
	d.Users = users
}

// onboardingComplete: photo present and at least three key categories
// selected, or the administrator role (admins are always complete).
func onboardingComplete(u *User) bool {
	if u.Role == RoleAdmin {
		return true
	}
	return u.PhotoURL != "" && len(u.KeyInterestCategories) >= 3
}

// CoerceCategories de-duplicates and membership-filters a category set,
// preserving first-occurrence order. Never returns nil.
func CoerceCategories(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, c := range in {
		if !ValidCategory(c) || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// assertAdmin re-creates the default administrator if absent and repairs
// it if tampered. Deterministic so normalization stays pure.
func assertAdmin(d *Document) {
	for i := range d.Users {
		if d.Users[i].Email == DefaultAdminEmail {
			d.Users[i].Role = RoleAdmin
			d.Users[i].Disabled = false
			d.Users[i].OnboardingCompleted = true
			d.Users[i].OnboardingRequired = false
			return
		}
	}
	d.Users = append(d.Users, User{
		ID:                    DefaultAdminID,
		Email:                 DefaultAdminEmail,
		FullName:              "Orbit Admin",
		Role:                  RoleAdmin,
		OnboardingCompleted:   true,
		KeyInterestCategories: []string{},
	})
}

// rebuildProfiles derives the user_profiles collection from users,
// merging display fields over any surviving profile record. Exactly one
// profile per user, ordered like users; orphans and duplicates drop out.
func rebuildProfiles(d *Document) {
	existing := map[string]UserProfile{}
	for _, p := range d.UserProfiles {
		if _, dup := existing[p.UserID]; !dup && p.UserID != "" {
			existing[p.UserID] = p
		}
	}

	profiles := make([]UserProfile, 0, len(d.Users))
	for i := range d.Users {
		u := &d.Users[i]
		p, ok := existing[u.ID]
		if !ok {
			p = UserProfile{
				ID:          "prof_" + u.ID,
				UserID:      u.ID,
				CreatedDate: u.CreatedDate,
			}
		}
		p.Email = u.Email
		p.FullName = u.FullName
		p.PhotoURL = u.PhotoURL
		p.KeyInterestCategories = cloneStrings(u.KeyInterestCategories)
		p.OnboardingCompleted = u.OnboardingCompleted
		profiles = append(profiles, p)
	}
	d.UserProfiles = profiles
}

func normalizeInterests(d *Document) {
	interests := d.Interests[:0:0]
	for _, it := range d.Interests {
		if !ValidCategory(it.Category) {
			continue
		}
		interests = append(interests, it)
	}
	d.Interests = interests
}

func normalizeMatches(d *Document) {
	matches := d.Matches[:0:0]
	seen := map[string]bool{}
	for _, m := range d.Matches {
		if m.UserAID == "" || m.UserBID == "" || m.UserAID == m.UserBID {
			continue
		}
		m.PairKey = PairKey(m.UserAID, m.UserBID)
		if seen[m.PairKey] {
			continue
		}
		seen[m.PairKey] = true
		m.Percentage = clampPct(m.Percentage)
		m.LastPercentage = clampPct(m.LastPercentage)
		m.MatchedCategories = CoerceCategories(m.MatchedCategories)
		matches = append(matches, m)
	}
	d.Matches = matches
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

func normalizeNotifications(d *Document) {
	for i := range d.Notifications {
		n := &d.Notifications[i]
		if n.Priority <= 0 {
			n.Priority = PriorityForType(n.Type)
		}
		if n.BadgeKey == "" {
			n.BadgeKey = BadgeKeyForType(n.Type)
		}
	}
}

// PriorityForType derives the default priority class for a notification
// type: match/message class 3, similarity/interaction class 2, digest
// class 1.
func PriorityForType(t string) int {
	switch t {
	case NotifNewMatch, NotifImprovedMatch, NotifMessage:
		return 3
	case NotifNewSimilarUser, NotifInteraction:
		return 2
	default:
		return 1
	}
}

// BadgeKeyForType derives the badge counter a notification type feeds.
func BadgeKeyForType(t string) string {
	switch t {
	case NotifNewMatch, NotifImprovedMatch, NotifNewSimilarUser, NotifInteraction:
		return BadgeMatching
	case NotifMessage:
		return BadgeMessages
	default:
		return BadgeMyPlanet
	}
}

// ensureCollections replaces nil collection slices with empty ones so a
// serialized document always carries every known collection as an array.
func ensureCollections(d *Document) {
	if d.Users == nil {
		d.Users = []User{}
	}
	if d.UserProfiles == nil {
		d.UserProfiles = []UserProfile{}
	}
	if d.Interests == nil {
		d.Interests = []Interest{}
	}
	if d.Messages == nil {
		d.Messages = []Message{}
	}
	if d.Notifications == nil {
		d.Notifications = []Notification{}
	}
	if d.Matches == nil {
		d.Matches = []Match{}
	}
	if d.Subscriptions == nil {
		d.Subscriptions = []Subscription{}
	}
	if d.Pulses == nil {
		d.Pulses = []Pulse{}
	}
	if d.Invites == nil {
		d.Invites = []Invite{}
	}
	if d.PasswordResetRequests == nil {
		d.PasswordResetRequests = []PasswordResetRequest{}
	}
	if d.ActivityLogs == nil {
		d.ActivityLogs = []ActivityLog{}
	}
	if d.Meta.Events == nil {
		d.Meta.Events = []Event{}
	}
}

// rawDocument defers per-collection decoding so one malformed collection
// cannot poison the rest of the document.
type rawDocument struct {
	Users                 json.RawMessage `json:"users"`
	UserProfiles          json.RawMessage `json:"user_profiles"`
	Interests             json.RawMessage `json:"interests"`
	Messages              json.RawMessage `json:"messages"`
	Notifications         json.RawMessage `json:"notifications"`
	Matches               json.RawMessage `json:"matches"`
	Subscriptions         json.RawMessage `json:"subscriptions"`
	Pulses                json.RawMessage `json:"pulses"`
	Invites               json.RawMessage `json:"invites"`
	PasswordResetRequests json.RawMessage `json:"password_reset_requests"`
	ActivityLogs          json.RawMessage `json:"activity_logs"`
	Meta                  json.RawMessage `json:"meta"`
}

// FromJSON decodes a possibly-malformed raw document. Absent or
// wrong-typed collections come back empty; only unparseable top-level
// JSON is an error (the persistence backend treats that as corrupt
// state). The result is not yet normalized.
func FromJSON(data []byte) (*Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	d := &Document{
		Users:                 decodeList[User](raw.Users),
		UserProfiles:          decodeList[UserProfile](raw.UserProfiles),
		Interests:             decodeList[Interest](raw.Interests),
		Messages:              decodeList[Message](raw.Messages),
		Notifications:         decodeList[Notification](raw.Notifications),
		Matches:               decodeList[Match](raw.Matches),
		Subscriptions:         decodeList[Subscription](raw.Subscriptions),
		Pulses:                decodeList[Pulse](raw.Pulses),
		Invites:               decodeList[Invite](raw.Invites),
		PasswordResetRequests: decodeList[PasswordResetRequest](raw.PasswordResetRequests),
		ActivityLogs:          decodeList[ActivityLog](raw.ActivityLogs),
	}
	if len(raw.Meta) > 0 {
		// Tolerant: a malformed meta object resets scheduling state.
		_ = json.Unmarshal(raw.Meta, &d.Meta)
	}
	return d, nil
}

func decodeList[T any](raw json.RawMessage) []T {
	if len(raw) == 0 {
		return nil
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
