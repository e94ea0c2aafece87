// Package server hosts the shared-store protocol: three operations over
// a plain JSON endpoint — fetch the current raw document, replace it
// wholesale, and clear it. This is the per-deployment shared copy that
// multiple store instances (browser tabs, processes) reconcile against.
package server

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/orbithq/orbit/internal/config"
	"github.com/orbithq/orbit/internal/document"
	"github.com/orbithq/orbit/internal/orberr"
	"github.com/orbithq/orbit/internal/persist"
)

// maxDocumentBytes bounds a replace payload; the store is sized for a
// few thousand records, far under this.
const maxDocumentBytes = 32 << 20

// Server serves the shared-store endpoint over any persistence backend.
type Server struct {
	backend persist.Backend
	log     *slog.Logger
}

// New builds a Server. log may be nil.
func New(backend persist.Backend, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{backend: backend, log: log}
}

// Router wires the three protocol operations and the CORS layer the
// browser-hosted deployment needs.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/store", s.handleFetch).Methods(http.MethodGet)
	r.HandleFunc("/store", s.handleReplace).Methods(http.MethodPut)
	r.HandleFunc("/store", s.handleClear).Methods(http.MethodDelete)
	return cors.AllowAll().Handler(r)
}

// Start boots the endpoint on the configured address and serves until
// the listener fails.
func Start(cfg *config.Config, backend persist.Backend, log *slog.Logger) error {
	srv := New(backend, log)
	addr := fmt.Sprintf("%s:%s", cfg.HTTP.Host, cfg.HTTP.Port)
	log.Info("starting shared-store endpoint", "addr", addr)
	return http.ListenAndServe(addr, srv.Router())
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	data, err := s.backend.Read(r.Context())
	if err != nil {
		s.fail(w, "fetch", err)
		return
	}
	if data == nil {
		http.Error(w, "no document", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}
	// Reject payloads that are not even a decodable document; a bad
	// client must not be able to poison every other instance.
	if _, err := document.FromJSON(data); err != nil {
		http.Error(w, "malformed document", http.StatusBadRequest)
		return
	}
	if err := s.backend.Write(r.Context(), data); err != nil {
		s.fail(w, "replace", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.Clear(r.Context()); err != nil {
		s.fail(w, "clear", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	s.log.Error("shared-store operation failed", "op", op, "err", err)
	http.Error(w, err.Error(), orberr.HTTPStatus(err))
}
