// Package server exposes the HTTP API. Every session-scoped route follows
// the /{operation}/{userKey} shape; the key picks the actor, the operation
// picks the actor method.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/anatolykoptev/go_loom/internal/engine"
	"github.com/anatolykoptev/go_loom/internal/syncer"
)

// userKeyRe bounds what we accept as a session identifier.
var userKeyRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Server routes API requests to session actors and sync jobs.
type Server struct {
	router chi.Router
	writer syncer.PageWriter
}

// New builds the router. writer may be nil; sync runs are then fetch-only.
func New(writer syncer.PageWriter) *Server {
	s := &Server{writer: writer}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/metrics", s.handleMetrics)

	r.Get("/setup/{userKey}", s.withKey(s.handleSetup))
	r.Get("/health/{userKey}", s.withKey(s.handleHealth))
	r.Post("/upload-cookies/{userKey}", s.withKey(s.handleUploadCookies))
	r.Post("/transcript/{userKey}", s.withKey(s.handleTranscript))
	r.Get("/transcript/{userKey}", s.withKey(s.handleTranscript))
	r.Get("/meetings/{userKey}", s.withKey(s.handleMeetings))
	r.Get("/meeting-transcript/{userKey}", s.withKey(s.handleMeetingTranscript))
	r.Post("/sync/{userKey}", s.withKey(s.handleSync))
	r.Get("/sync-status/{userKey}", s.withKey(s.handleSyncStatus))
	r.Post("/disconnect/{userKey}", s.withKey(s.handleDisconnect))
	r.Get("/dashboard-data/{userKey}", s.withKey(s.handleDashboard))
	r.Get("/analytics/{userKey}", s.withKey(s.handleAnalytics))

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// keyHandler is a handler that has already had its user key validated.
type keyHandler func(w http.ResponseWriter, r *http.Request, userKey string)

func (s *Server) withKey(h keyHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "userKey")
		if !userKeyRe.MatchString(key) {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid user key", false))
			return
		}
		h(w, r, key)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", slog.Any("error", err))
	}
}

func errorBody(msg string, needsAuth bool) map[string]any {
	body := map[string]any{"success": false, "error": msg}
	if needsAuth {
		body["needsAuth"] = true
	}
	return body
}

// writeError maps the engine error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNeedsAuth):
		writeJSON(w, http.StatusUnauthorized, errorBody(err.Error(), true))
	case errors.Is(err, engine.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error(), false))
	case errors.Is(err, engine.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error(), false))
	case errors.Is(err, engine.ErrTransient):
		writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error(), false))
	case errors.Is(err, engine.ErrUpstreamWrite):
		writeJSON(w, http.StatusBadGateway, errorBody(err.Error(), false))
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error(), false))
	}
}
