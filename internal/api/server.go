// Package api serves the daemon's HTTP interface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ideapadd/internal/ledger"
	"github.com/dokzlo13/ideapadd/internal/profile"
	"github.com/dokzlo13/ideapadd/internal/reconcile"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
	maxBodyBytes        = 64 << 10
)

// Settings reads and applies firmware settings
type Settings interface {
	Reload(ctx context.Context) *reconcile.Session
	Apply(ctx context.Context, req reconcile.Request, source, profile string, persist bool) (reconcile.SaveResult, error)
}

// Profiles lists and applies script profiles
type Profiles interface {
	Profiles() []profile.Profile
	ApplyProfile(ctx context.Context, name, source string) (reconcile.SaveResult, error)
}

// History reads the audit ledger
type History interface {
	Recent(limit int) ([]*ledger.Entry, error)
}

// Server is the HTTP API. Profiles, History and Gatherer may be nil.
type Server struct {
	Settings Settings
	Profiles Profiles
	History  History
	Gatherer prometheus.Gatherer
	Ready    func() bool

	httpServer *http.Server
}

// Handler builds the request router
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/settings", s.getSettings)
	mux.HandleFunc("PUT /api/settings", s.putSettings)
	mux.HandleFunc("GET /api/profiles", s.listProfiles)
	mux.HandleFunc("POST /api/profiles/{name}/apply", s.applyProfile)
	mux.HandleFunc("GET /api/history", s.history)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		if s.Ready != nil && !s.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if s.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Run serves on addr until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Starting API server")

	// ListenAndServe returns as soon as Shutdown starts; drained reports when
	// in-flight handlers have finished.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	<-drained
	return nil
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	session := s.Settings.Reload(r.Context())
	writeJSON(w, http.StatusOK, session.View())
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	var values map[string]string
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&values); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(values) == 0 {
		writeError(w, http.StatusBadRequest, "no settings given")
		return
	}

	req, err := reconcile.ParseRequest(values)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.Settings.Apply(r.Context(), req, "api", "", true)
	if err != nil {
		log.Error().Err(err).Msg("API settings apply failed")
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res.View())
}

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	profiles := []profile.Profile{}
	if s.Profiles != nil {
		profiles = append(profiles, s.Profiles.Profiles()...)
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (s *Server) applyProfile(w http.ResponseWriter, r *http.Request) {
	if s.Profiles == nil {
		writeError(w, http.StatusNotFound, "no profile script loaded")
		return
	}
	name := r.PathValue("name")
	res, err := s.Profiles.ApplyProfile(r.Context(), name, "api")
	switch {
	case errors.Is(err, profile.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		log.Error().Err(err).Str("profile", name).Msg("API profile apply failed")
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res.View())
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeJSON(w, http.StatusOK, []*ledger.Entry{})
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.History.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read history")
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
