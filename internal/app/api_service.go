package app

import (
	"context"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ideapadd/internal/api"
	"github.com/dokzlo13/ideapadd/internal/config"
	"github.com/dokzlo13/ideapadd/internal/ledger"
	"github.com/dokzlo13/ideapadd/internal/reconcile"
)

// APIService runs the HTTP API.
type APIService struct {
	cfg    *config.Config
	server *api.Server
	ready  atomic.Bool
}

// NewAPIService creates the API service.
func NewAPIService(cfg *config.Config, orchestrator *reconcile.Orchestrator, profiles *ProfileService, history *ledger.Ledger, gatherer prometheus.Gatherer) *APIService {
	s := &APIService{cfg: cfg}
	s.server = &api.Server{
		Settings: orchestrator,
		Profiles: profiles,
		History:  history,
		Gatherer: gatherer,
		Ready:    s.ready.Load,
	}
	return s
}

// Run serves until ctx is cancelled and in-flight requests have drained.
// It returns immediately when the API is disabled.
func (s *APIService) Run(ctx context.Context) {
	if !s.cfg.API.Enabled {
		return
	}
	if err := s.server.Run(ctx, s.cfg.API.Addr(), s.cfg.GetShutdownTimeout()); err != nil {
		log.Error().Err(err).Msg("API server error")
	}
}

// SetReady marks the daemon ready for /ready.
func (s *APIService) SetReady() {
	s.ready.Store(true)
}
