// Package api provides the REST API for querying captured spindles.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/HakAl/spindle/internal/config"
	"github.com/HakAl/spindle/internal/journal"
	"github.com/HakAl/spindle/internal/store"
)

// Server is the REST API server.
type Server struct {
	cfg       *config.Config
	store     store.Store
	journal   *journal.Journal
	logger    *slog.Logger
	mux       *http.ServeMux
	version   string
	startTime time.Time
}

// NewServer creates a new API server. wsHandler, when non-nil, is
// mounted at /ws for the live spindle feed.
func NewServer(cfg *config.Config, dataStore store.Store, jnl *journal.Journal, wsHandler http.Handler, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		store:     dataStore,
		journal:   jnl,
		logger:    logger,
		mux:       http.NewServeMux(),
		version:   version,
		startTime: time.Now(),
	}

	// Register routes
	s.mux.HandleFunc("GET /api/spindles", s.authMiddleware(s.listSpindles))
	s.mux.HandleFunc("GET /api/spindles/{id}", s.authMiddleware(s.getSpindle))
	s.mux.HandleFunc("GET /api/stats", s.authMiddleware(s.getStats))
	s.mux.HandleFunc("GET /api/health", s.healthCheck)
	if wsHandler != nil {
		s.mux.Handle("GET /ws", wsHandler)
	}

	return s
}

// Handler returns the HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// Serve runs the API server until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.API.Listen,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("API listening", "addr", s.cfg.API.Listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// authMiddleware wraps a handler with bearer token authentication.
// Uses constant-time comparison to prevent timing attacks.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			auth = "Bearer " + r.URL.Query().Get("token")
		}

		expected := "Bearer " + s.cfg.API.Token

		if subtle.ConstantTimeCompare([]byte(auth), []byte(expected)) != 1 {
			s.logger.Debug("auth failed", "provided_len", len(auth))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}

// corsMiddleware adds CORS headers for local development.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Only allow localhost origins
		if origin != "" {
			if strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1") ||
				strings.HasPrefix(origin, "https://localhost") ||
				strings.HasPrefix(origin, "https://127.0.0.1") {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// listSpindles returns a paginated list of spindles.
func (s *Server) listSpindles(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	filter := store.SpindleFilter{
		Limit:  50,
		Offset: 0,
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			filter.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	if v := r.URL.Query().Get("session_id"); v != "" {
		filter.SessionID = &v
	}
	if v := r.URL.Query().Get("connection_id"); v != "" {
		filter.ConnectionID = &v
	}
	if v := r.URL.Query().Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.StartTime = &t
		}
	}
	if v := r.URL.Query().Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.EndTime = &t
		}
	}

	spindles, err := s.store.ListSpindles(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list spindles", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if spindles == nil {
		spindles = []*store.Spindle{}
	}

	s.writeJSON(w, spindles)
}

// getSpindle returns a single spindle by ID.
func (s *Server) getSpindle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Missing spindle ID", http.StatusBadRequest)
		return
	}

	sp, err := s.store.GetSpindle(ctx, id)
	if err != nil {
		s.logger.Error("failed to get spindle", "id", id, "error", err)
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	s.writeJSON(w, sp)
}

// getStats returns aggregate capture statistics.
func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	stats, err := s.store.GetStats(ctx)
	if err != nil {
		s.logger.Error("failed to get stats", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, map[string]interface{}{
		"spindles":       stats,
		"journal_drops":  s.journal.Drops(),
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

// healthCheck returns service status. Unauthenticated so clients can
// probe before configuring a token.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"service":  "spindle",
		"version":  s.version,
		"status":   "ok",
		"proxy":    s.cfg.Proxy.Listen,
		"upstream": s.cfg.Proxy.UpstreamURL,
		"journal":  s.journal.Path(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
