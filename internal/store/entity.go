package store

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orbithq/orbit/internal/document"
	"github.com/orbithq/orbit/internal/orberr"
	"github.com/orbithq/orbit/internal/query"
)

// Entity is the typed CRUD surface for one collection. Reads serve the
// latest durable snapshot without queueing; writes run as queued turns.
// Privileged entities (users, invites) require an administrator actor
// in the context for every operation.
type Entity[T any] struct {
	store      *Store
	name       string
	privileged bool
	engage     bool

	// slot locates this entity's collection inside a document.
	slot func(*document.Document) *[]T

	// validate runs before create and after patch application.
	validate func(*Turn, *T) error

	// create overrides the default append (notifications route through
	// the emission rules).
	create func(*Turn, T) (T, error)

	// onDelete applies cascades after the record is removed.
	onDelete func(*Turn, T)
}

func (s *Store) initEntities() {
	s.users = &Entity[document.User]{
		store: s, name: "users", privileged: true, engage: true,
		slot:     func(d *document.Document) *[]document.User { return &d.Users },
		validate: validateUser,
		onDelete: cascadeUserDelete,
	}
	s.profiles = &Entity[document.UserProfile]{
		store: s, name: "user_profiles", engage: true,
		slot: func(d *document.Document) *[]document.UserProfile { return &d.UserProfiles },
	}
	s.interests = &Entity[document.Interest]{
		store: s, name: "interests", engage: true,
		slot:     func(d *document.Document) *[]document.Interest { return &d.Interests },
		validate: validateInterest,
	}
	s.messages = &Entity[document.Message]{
		store: s, name: "messages", engage: true,
		slot: func(d *document.Document) *[]document.Message { return &d.Messages },
	}
	s.notifications = &Entity[document.Notification]{
		store: s, name: "notifications", engage: false,
		slot: func(d *document.Document) *[]document.Notification { return &d.Notifications },
		create: func(t *Turn, n document.Notification) (document.Notification, error) {
			created, ok := s.sched.Append(t.Doc, n, t.Now)
			if !ok {
				return document.Notification{}, orberr.Validationf("notification suppressed for recipient %q", n.ToUserID)
			}
			return created, nil
		},
	}
	s.matches = &Entity[document.Match]{
		store: s, name: "matches", engage: true,
		slot: func(d *document.Document) *[]document.Match { return &d.Matches },
	}
	s.subscriptions = &Entity[document.Subscription]{
		store: s, name: "subscriptions", engage: true,
		slot: func(d *document.Document) *[]document.Subscription { return &d.Subscriptions },
	}
	s.pulses = &Entity[document.Pulse]{
		store: s, name: "pulses", engage: true,
		slot: func(d *document.Document) *[]document.Pulse { return &d.Pulses },
	}
	s.invites = &Entity[document.Invite]{
		store: s, name: "invites", privileged: true, engage: true,
		slot: func(d *document.Document) *[]document.Invite { return &d.Invites },
	}
	s.resets = &Entity[document.PasswordResetRequest]{
		store: s, name: "password_reset_requests", engage: true,
		slot: func(d *document.Document) *[]document.PasswordResetRequest { return &d.PasswordResetRequests },
	}
	s.activityLogs = &Entity[document.ActivityLog]{
		store: s, name: "activity_logs", engage: true,
		slot: func(d *document.Document) *[]document.ActivityLog { return &d.ActivityLogs },
	}
}

// Entity accessors.

func (s *Store) Users() *Entity[document.User]                  { return s.users }
func (s *Store) Profiles() *Entity[document.UserProfile]        { return s.profiles }
func (s *Store) Interests() *Entity[document.Interest]          { return s.interests }
func (s *Store) Messages() *Entity[document.Message]            { return s.messages }
func (s *Store) Notifications() *Entity[document.Notification]  { return s.notifications }
func (s *Store) Matches() *Entity[document.Match]               { return s.matches }
func (s *Store) Subscriptions() *Entity[document.Subscription]  { return s.subscriptions }
func (s *Store) Pulses() *Entity[document.Pulse]                { return s.pulses }
func (s *Store) Invites() *Entity[document.Invite]              { return s.invites }
func (s *Store) PasswordResets() *Entity[document.PasswordResetRequest] {
	return s.resets
}
func (s *Store) ActivityLogs() *Entity[document.ActivityLog] { return s.activityLogs }

// List returns the collection ordered by sortKey ("-" prefix for
// descending) and truncated to limit (0 for all).
func (e *Entity[T]) List(ctx context.Context, sortKey string, limit int) ([]T, error) {
	return e.Filter(ctx, nil, sortKey, limit)
}

// Filter returns the records matching pred, sorted and limited.
func (e *Entity[T]) Filter(ctx context.Context, pred query.Predicate, sortKey string, limit int) ([]T, error) {
	doc, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, doc); err != nil {
		return nil, err
	}

	rows := *e.slot(doc)
	if len(pred) > 0 {
		filtered := make([]T, 0, len(rows))
		for i := range rows {
			if query.Matches(&rows[i], pred) {
				filtered = append(filtered, rows[i])
			}
		}
		rows = filtered
	}
	return query.SortAndLimit(rows, sortKey, limit), nil
}

// Get returns the record with the given id.
func (e *Entity[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	doc, err := e.store.Snapshot(ctx)
	if err != nil {
		return zero, err
	}
	if err := e.authorize(ctx, doc); err != nil {
		return zero, err
	}
	rows := *e.slot(doc)
	for i := range rows {
		if recordID(&rows[i]) == id {
			return rows[i], nil
		}
	}
	return zero, orberr.NotFoundf("%s %q", e.name, id)
}

// Create appends a record inside one queued turn, assigning an id and
// timestamps when absent, and publishes a create event after the state
// is durable.
func (e *Entity[T]) Create(ctx context.Context, rec T) (T, error) {
	var created T
	_, err := e.store.mutate(ctx, mutateOpts{engage: e.engage}, func(t *Turn) error {
		if err := e.authorize(ctx, t.Doc); err != nil {
			return err
		}
		if e.validate != nil {
			if err := e.validate(t, &rec); err != nil {
				return err
			}
		}
		if e.create != nil {
			var err error
			if created, err = e.create(t, rec); err != nil {
				return err
			}
		} else {
			stampRecord(&rec, t.Now, true)
			rows := e.slot(t.Doc)
			*rows = append(*rows, rec)
			created = rec
		}
		t.Emit(e.name, KindCreate, recordID(&created), created)
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return created, nil
}

// Update applies a shallow field patch (JSON names) to the record with
// the given id. The id itself cannot be patched.
func (e *Entity[T]) Update(ctx context.Context, id string, fields map[string]any) (T, error) {
	var updated T
	_, err := e.store.mutate(ctx, mutateOpts{engage: e.engage}, func(t *Turn) error {
		if err := e.authorize(ctx, t.Doc); err != nil {
			return err
		}
		rows := e.slot(t.Doc)
		for i := range *rows {
			if recordID(&(*rows)[i]) != id {
				continue
			}
			patched, err := applyPatch((*rows)[i], fields)
			if err != nil {
				return err
			}
			if e.validate != nil {
				if err := e.validate(t, &patched); err != nil {
					return err
				}
			}
			stampRecord(&patched, t.Now, false)
			(*rows)[i] = patched
			updated = patched
			t.Emit(e.name, KindUpdate, id, patched)
			return nil
		}
		return orberr.NotFoundf("%s %q", e.name, id)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return updated, nil
}

// Delete removes the record with the given id, runs cascades, and
// publishes a delete event after persist.
func (e *Entity[T]) Delete(ctx context.Context, id string) error {
	_, err := e.store.mutate(ctx, mutateOpts{engage: e.engage}, func(t *Turn) error {
		rows := e.slot(t.Doc)
		if err := e.authorize(ctx, t.Doc); err != nil {
			return err
		}
		for i := range *rows {
			if recordID(&(*rows)[i]) != id {
				continue
			}
			removed := (*rows)[i]
			*rows = append((*rows)[:i], (*rows)[i+1:]...)
			if e.onDelete != nil {
				e.onDelete(t, removed)
			}
			t.Emit(e.name, KindDelete, id, removed)
			return nil
		}
		return orberr.NotFoundf("%s %q", e.name, id)
	})
	return err
}

// Subscribe registers fn for this entity's events and returns the
// unsubscribe handle.
func (e *Entity[T]) Subscribe(fn Handler) (unsubscribe func()) {
	return e.store.bus.Subscribe(e.name, fn)
}

func (e *Entity[T]) authorize(ctx context.Context, doc *document.Document) error {
	if !e.privileged {
		return nil
	}
	return requireAdmin(ctx, doc)
}

// --- hooks ---

func validateUser(t *Turn, u *document.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Email == "" {
		return orberr.Validationf("user email is required")
	}
	if existing := t.Doc.UserByEmail(u.Email); existing != nil && existing.ID != u.ID {
		return orberr.Validationf("email %q already registered", u.Email)
	}
	return nil
}

func validateInterest(_ *Turn, it *document.Interest) error {
	if !document.ValidCategory(it.Category) {
		return orberr.Validationf("interest category %q not in the fixed set", it.Category)
	}
	return nil
}

// cascadeUserDelete removes everything owned by or referencing the
// deleted user: profile, interests, messages and notifications in
// either direction, matches and subscriptions involving it.
func cascadeUserDelete(t *Turn, u document.User) {
	d := t.Doc

	profiles := d.UserProfiles[:0]
	for _, p := range d.UserProfiles {
		if p.UserID != u.ID {
			profiles = append(profiles, p)
		}
	}
	d.UserProfiles = profiles

	interests := d.Interests[:0]
	for _, it := range d.Interests {
		if it.UserID != u.ID {
			interests = append(interests, it)
		}
	}
	d.Interests = interests

	messages := d.Messages[:0]
	for _, m := range d.Messages {
		if m.FromUserID != u.ID && m.ToUserID != u.ID {
			messages = append(messages, m)
		}
	}
	d.Messages = messages

	notifications := d.Notifications[:0]
	for _, n := range d.Notifications {
		if n.ToUserID != u.ID && n.FromUserID != u.ID {
			notifications = append(notifications, n)
		}
	}
	d.Notifications = notifications

	matches := d.Matches[:0]
	for _, m := range d.Matches {
		if m.UserAID != u.ID && m.UserBID != u.ID {
			matches = append(matches, m)
		}
	}
	d.Matches = matches

	subs := d.Subscriptions[:0]
	for _, sub := range d.Subscriptions {
		if sub.UserID != u.ID {
			subs = append(subs, sub)
		}
	}
	d.Subscriptions = subs
}

// --- record helpers ---

func recordID(rec any) string {
	v, ok := query.Field(rec, "id")
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// stampRecord fills id and date fields that the caller left empty.
// Works by field name over any record struct.
func stampRecord(rec any, now time.Time, isCreate bool) {
	v := reflect.ValueOf(rec).Elem()
	ts := document.Timestamp(now)

	if f := v.FieldByName("ID"); f.IsValid() && f.Kind() == reflect.String && f.String() == "" {
		f.SetString(uuid.NewString())
	}
	if isCreate {
		if f := v.FieldByName("CreatedDate"); f.IsValid() && f.Kind() == reflect.String && f.String() == "" {
			f.SetString(ts)
		}
	}
	if f := v.FieldByName("UpdatedDate"); f.IsValid() && f.Kind() == reflect.String {
		f.SetString(ts)
	}
}

// applyPatch merges a shallow JSON-name keyed patch into a record copy.
// Dynamic coercion stays in the normalizer; this only round-trips the
// merged shape back into the typed record.
func applyPatch[T any](rec T, fields map[string]any) (T, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return rec, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return rec, err
	}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		m[k] = v
	}
	merged, err := json.Marshal(m)
	if err != nil {
		return rec, err
	}
	var out T
	if err := json.Unmarshal(merged, &out); err != nil {
		return rec, orberr.Validationf("patch does not fit %T: %v", out, err)
	}
	return out, nil
}
