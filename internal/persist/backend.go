// Package persist provides durable storage for the whole-database JSON
// blob. A Backend moves raw bytes with atomic replace semantics; the
// Documents wrapper layers decoding, normalization and corrupt-state
// recovery on top of any Backend.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/orbithq/orbit/internal/document"
	"github.com/orbithq/orbit/internal/orberr"
)

// Backend is the raw blob tier. Read returns (nil, nil) when no durable
// state exists yet; Write replaces the whole blob atomically.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Clear(ctx context.Context) error
}

// Documents reads and writes normalized documents through a Backend.
//
// Corrupt recovery: if durable state is unreadable or malformed, Read
// falls back to a freshly bootstrapped document (default administrator
// included) exactly once; a second consecutive failure is fatal for
// that operation. A successful read or write resets the streak.
type Documents struct {
	backend Backend
	log     *slog.Logger

	mu            sync.Mutex
	corruptStreak int
}

// NewDocuments wraps backend. logger may be nil.
func NewDocuments(backend Backend, log *slog.Logger) *Documents {
	if log == nil {
		log = slog.Default()
	}
	return &Documents{backend: backend, log: log}
}

// Read loads the current durable state, normalized. Absent state
// bootstraps a fresh document without counting as a failure.
func (s *Documents) Read(ctx context.Context) (*document.Document, error) {
	data, err := s.backend.Read(ctx)
	if err != nil {
		return s.recover(fmt.Errorf("read durable state: %w", err))
	}
	if len(data) == 0 {
		s.resetStreak()
		return document.New(), nil
	}
	doc, err := document.FromJSON(data)
	if err != nil {
		return s.recover(err)
	}
	s.resetStreak()
	return document.Normalize(doc), nil
}

// Write persists doc, normalized, and returns the durable copy.
func (s *Documents) Write(ctx context.Context, doc *document.Document) (*document.Document, error) {
	norm := document.Normalize(doc)
	data, err := json.Marshal(norm)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if err := s.backend.Write(ctx, data); err != nil {
		return nil, fmt.Errorf("write durable state: %w", err)
	}
	s.resetStreak()
	return norm, nil
}

func (s *Documents) recover(cause error) (*document.Document, error) {
	s.mu.Lock()
	s.corruptStreak++
	streak := s.corruptStreak
	s.mu.Unlock()

	if streak > 1 {
		return nil, orberr.Corruptf("%v (repeated failure)", cause)
	}
	s.log.Warn("durable state unreadable, rebuilding fresh document", "err", cause)
	return document.New(), nil
}

func (s *Documents) resetStreak() {
	s.mu.Lock()
	s.corruptStreak = 0
	s.mu.Unlock()
}
