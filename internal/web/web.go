package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"calext/internal/config"
	"calext/internal/dateinfo"
	"calext/internal/fetch"
	appLog "calext/internal/log"
	"calext/internal/model"
	"calext/internal/store"
)

// Server exposes the ingested calendar data over HTTP: /health,
// /api/events, /api/calendars and /api/dateinfo.
type Server struct {
	cfg     *config.Config
	store   *store.Store
	manager *fetch.Manager
	mux     *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, st *store.Store, mgr *fetch.Manager) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		manager: mgr,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler, wrapped with basic auth
// when credentials are configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password counts as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="calext", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/calendars", s.handleCalendars)
	s.mux.HandleFunc("/api/dateinfo", s.handleDateInfo)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON shape for /api/events.
type eventsResponse struct {
	Window model.Window        `json:"window"`
	Events []model.EventRecord `json:"events"`
}

// handleEvents serves the merged event records overlapping the query
// window. from/to are RFC3339; both default to the configured rolling
// window around now.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	window := s.manager.Window()
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if window.From, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid 'from' timestamp")
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if window.To, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid 'to' timestamp")
			return
		}
	}
	if window.To.Before(window.From) {
		writeError(w, http.StatusBadRequest, "'to' is before 'from'")
		return
	}

	events := s.store.Events(window)
	if events == nil {
		events = []model.EventRecord{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Window: window, Events: events})
}

// handleCalendars reports per-source fetch and suspension state.
func (s *Server) handleCalendars(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Statuses())
}

// handleDateInfo computes slot date info for the presentation layer.
// Query: start (RFC3339, required), end (RFC3339, optional), now
// (RFC3339, optional override).
func (s *Server) handleDateInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or missing 'start' timestamp")
		return
	}
	var end, now time.Time
	if v := r.URL.Query().Get("end"); v != "" {
		if end, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid 'end' timestamp")
			return
		}
	}
	if v := r.URL.Query().Get("now"); v != "" {
		if now, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid 'now' timestamp")
			return
		}
	}

	weekStart := dateinfo.WeekStartMonday
	if s.cfg.WeekStart == "sunday" {
		weekStart = dateinfo.WeekStartSunday
	}
	writeJSON(w, http.StatusOK, dateinfo.For(start, end, now, weekStart))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to encode JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// StartServer serves the API on cfg.Listen until ctx is canceled, then
// shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, st *store.Store, mgr *fetch.Manager) error {
	s := NewServer(cfg, st, mgr)
	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
