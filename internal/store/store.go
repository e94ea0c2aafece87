// Package store is the embedded document store behind the Orbit app:
// a serialized mutation pipeline over a persistence backend, a reactive
// event bus, and a typed per-entity CRUD surface.
//
// All writes flow through a single FIFO task queue drained by one
// worker goroutine per Store, so writes observe a strict total order.
// Reads never queue; they operate on the latest durable snapshot.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/orbithq/orbit/internal/document"
	"github.com/orbithq/orbit/internal/engage"
	"github.com/orbithq/orbit/internal/match"
	"github.com/orbithq/orbit/internal/persist"
)

// Turn is one queued mutation's view of the world: a deep, private
// clone of the document plus the turn's timestamp and pending events.
// Partial failures inside a turn can never corrupt shared state because
// only a fully successful turn is persisted.
type Turn struct {
	Doc *document.Document
	Now time.Time

	events []Event
}

// Emit records an event for publication after the turn persists.
// Publication never happens for a failed turn.
func (t *Turn) Emit(entityType string, kind Kind, recordID string, snapshot any) {
	t.events = append(t.events, Event{
		EntityType: entityType,
		Kind:       kind,
		RecordID:   recordID,
		Record:     snapshot,
	})
}

type mutateOpts struct {
	// engage runs the engagement scheduler after the mutation body.
	// Disabled for notification writes so the scheduler cannot feed
	// itself.
	engage bool
	// force bypasses the scheduler throttle (pure-auth freshness).
	force bool
}

type taskResult struct {
	doc *document.Document
	err error
}

type task struct {
	ctx  context.Context
	fn   func(*Turn) error
	opts mutateOpts
	done chan taskResult
}

// ErrClosed is returned for mutations queued after Close.
var ErrClosed = errors.New("store closed")

// Store owns the single authoritative document. Only its queue worker
// may produce a new authoritative version; every other code path gets
// cloned, disposable copies.
type Store struct {
	docs  *persist.Documents
	sched *engage.Scheduler
	bus   *Bus
	log   *slog.Logger

	// now is swappable for tests.
	now func() time.Time

	tasks  chan task
	closed bool
	mu     sync.RWMutex
	wg     sync.WaitGroup

	users         *Entity[document.User]
	profiles      *Entity[document.UserProfile]
	interests     *Entity[document.Interest]
	messages      *Entity[document.Message]
	notifications *Entity[document.Notification]
	matches       *Entity[document.Match]
	subscriptions *Entity[document.Subscription]
	pulses        *Entity[document.Pulse]
	invites       *Entity[document.Invite]
	resets        *Entity[document.PasswordResetRequest]
	activityLogs  *Entity[document.ActivityLog]
}

// New wires a store over a persistence wrapper and an engagement
// scheduler and starts its queue worker. log may be nil.
func New(docs *persist.Documents, sched *engage.Scheduler, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	if sched == nil {
		sched = engage.New(match.Default, nil, log)
	}
	s := &Store{
		docs:  docs,
		sched: sched,
		bus:   NewBus(log),
		log:   log,
		now:   time.Now,
		tasks: make(chan task, 64),
	}
	s.initEntities()

	s.wg.Add(1)
	go s.drain()
	return s
}

// SetNow replaces the store clock; tests use it to step time across
// throttle and calendar boundaries.
func (s *Store) SetNow(now func() time.Time) { s.now = now }

// Bus exposes the store's event bus.
func (s *Store) Bus() *Bus { return s.bus }

// Close stops the queue worker after the pending chain drains. Queued
// mutations still complete; new ones are rejected.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.tasks)
	s.mu.Unlock()
	s.wg.Wait()
}

// Snapshot returns the latest durable state, normalized. It never waits
// on the mutation queue: a reader may observe a state no newer than the
// last persisted document, which is the documented read semantics.
func (s *Store) Snapshot(ctx context.Context) (*document.Document, error) {
	return s.docs.Read(ctx)
}

// Mutate queues fn as one turn and waits for it. fn receives a private
// clone of the document; returning an error rejects the turn without
// touching durable state, and the queue advances to the next turn
// regardless. The engagement scheduler runs after fn unless the turn
// was a notification write.
func (s *Store) Mutate(ctx context.Context, fn func(*Turn) error) error {
	_, err := s.mutate(ctx, mutateOpts{engage: true}, fn)
	return err
}

func (s *Store) mutate(ctx context.Context, opts mutateOpts, fn func(*Turn) error) (*document.Document, error) {
	t := task{ctx: ctx, fn: fn, opts: opts, done: make(chan taskResult, 1)}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	s.tasks <- t
	s.mu.RUnlock()

	select {
	case res := <-t.done:
		return res.doc, res.err
	case <-ctx.Done():
		// The turn still runs to completion in queue order; only the
		// caller stops waiting. Queued mutations are not cancellable.
		return nil, ctx.Err()
	}
}

func (s *Store) drain() {
	defer s.wg.Done()
	for t := range s.tasks {
		res := s.runTurn(t)
		t.done <- res
	}
}

// runTurn executes one queued mutation: load, normalize, clone, apply,
// engage, normalize, persist, publish. Events publish only after the
// new state is durable.
func (s *Store) runTurn(t task) taskResult {
	cur, err := s.docs.Read(t.ctx)
	if err != nil {
		return taskResult{err: err}
	}

	turn := &Turn{Doc: cur.Clone(), Now: s.now()}
	if err := t.fn(turn); err != nil {
		return taskResult{err: err}
	}

	if t.opts.engage && s.sched != nil {
		for _, n := range s.sched.Run(turn.Doc, turn.Now, t.opts.force) {
			turn.Emit("notifications", KindCreate, n.ID, n)
		}
	}

	s.stampEvents(turn)

	persisted, err := s.docs.Write(t.ctx, turn.Doc)
	if err != nil {
		return taskResult{err: fmt.Errorf("persist turn: %w", err)}
	}

	for _, e := range turn.events {
		s.bus.Publish(e)
	}
	return taskResult{doc: persisted}
}

// stampEvents sequences the turn's events into meta so the durable
// document records what was announced.
func (s *Store) stampEvents(turn *Turn) {
	for _, e := range turn.events {
		turn.Doc.Meta.EventSeq++
		turn.Doc.Meta.Events = append(turn.Doc.Meta.Events, document.Event{
			Seq:        turn.Doc.Meta.EventSeq,
			EntityType: e.EntityType,
			Kind:       string(e.Kind),
			RecordID:   e.RecordID,
			At:         document.Timestamp(turn.Now),
		})
	}
	if len(turn.Doc.Meta.Events) > document.EventRingCap {
		turn.Doc.Meta.Events = turn.Doc.Meta.Events[len(turn.Doc.Meta.Events)-document.EventRingCap:]
	}
}
