// Package server exposes a loaded session over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/session"
)

// Handler serves the ledger and sync endpoints of one session.
type Handler struct {
	session *session.Session
	now     func() time.Time
}

// NewHandler creates a Handler. now defaults to time.Now.
func NewHandler(s *session.Session, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{session: s, now: now}
}

// NewRouter builds the HTTP routes for s.
func NewRouter(s *session.Session, now func() time.Time) http.Handler {
	h := NewHandler(s, now)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ledger", h.Ledger)
	r.Get("/sync", h.SyncStatus)
	r.Post("/sync", h.Sync)
	r.Get("/download", h.Download)

	return r
}

// NewServer wraps the router in an http.Server with the timeouts used in
// production.
func NewServer(addr string, s *session.Session) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      NewRouter(s, nil),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
