package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ideapadd/internal/config"
	"github.com/dokzlo13/ideapadd/internal/eventbus"
	"github.com/dokzlo13/ideapadd/internal/metrics"
	"github.com/dokzlo13/ideapadd/internal/power"
)

// PowerService follows the UPower power source.
type PowerService struct {
	cfg     *config.Config
	bus     *eventbus.Bus
	metrics *metrics.Metrics
	upower  *power.UPower
	Watcher *power.Watcher
}

// NewPowerService creates the service; nothing connects until Start.
func NewPowerService(cfg *config.Config, bus *eventbus.Bus, m *metrics.Metrics) *PowerService {
	return &PowerService{cfg: cfg, bus: bus, metrics: m}
}

// Start connects to the system bus and starts watching. A missing system bus
// is logged and leaves the daemon running without power events.
func (s *PowerService) Start(ctx context.Context) {
	if !s.cfg.Power.Enabled {
		log.Info().Msg("Power watcher is disabled")
		return
	}

	upower, err := power.NewUPower()
	if err != nil {
		log.Warn().Err(err).Msg("UPower unavailable, power events disabled")
		return
	}
	s.upower = upower
	s.Watcher = power.NewWatcher(upower, s.bus, s.metrics)

	go s.Watcher.Run(ctx)
}

// Close closes the bus connection.
func (s *PowerService) Close() {
	if s.upower != nil {
		if err := s.upower.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close system bus connection")
		}
	}
}
