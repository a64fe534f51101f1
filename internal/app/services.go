package app

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ideapadd/internal/config"
	"github.com/dokzlo13/ideapadd/internal/db"
	"github.com/dokzlo13/ideapadd/internal/eventbus"
	"github.com/dokzlo13/ideapadd/internal/ledger"
	"github.com/dokzlo13/ideapadd/internal/metrics"
	"github.com/dokzlo13/ideapadd/internal/reconcile"
	"github.com/dokzlo13/ideapadd/internal/state"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB       *db.DB
	Ledger   *ledger.Ledger
	Store    *state.Store
	Desired  *state.TypedStore[reconcile.Desired]
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Bus      *eventbus.Bus

	// Observers
	Audit    *ledger.Observer
	Snapshot *SnapshotObserver

	// High-level services
	Firmware *FirmwareService
	Profiles *ProfileService
	Power    *PowerService
	API      *APIService

	// Goroutines that may touch the database; Stop waits for them
	wg sync.WaitGroup
}

// NewServices creates all services with proper dependency injection.
// Nothing touches the hardware until a reconciler method is called.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	s.Ledger = ledger.New(database.DB)
	s.Store = state.NewStore(database.DB)
	s.Desired = state.NewTypedStore[reconcile.Desired](s.Store, state.KindDesired)

	s.Registry = prometheus.NewRegistry()
	s.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.Metrics = metrics.New(s.Registry)

	s.Audit = ledger.NewObserver(s.Ledger)
	s.Snapshot = NewSnapshotObserver(s.Store)

	s.Firmware, err = NewFirmwareService(cfg, s.Desired, s.Audit, s.Metrics, s.Snapshot)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.Workers, cfg.EventBus.QueueSize)
	s.Profiles = NewProfileService(cfg, s.Firmware.Orchestrator, s.Audit, s.Bus)
	s.Power = NewPowerService(cfg, s.Bus, s.Metrics)
	s.API = NewAPIService(cfg, s.Firmware.Orchestrator, s.Profiles, s.Ledger, s.Registry)

	return s, nil
}

// Start starts all daemon services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	// Profiles must exist before the first power event arrives
	if err := s.Profiles.LoadScript(); err != nil {
		return err
	}

	s.Firmware.Prime(ctx)
	s.spawn(func() { s.Firmware.Run(ctx) })
	s.Profiles.Start(ctx)
	s.Power.Start(ctx)
	s.spawn(func() { s.API.Run(ctx) })
	s.spawn(func() { s.runLedgerCleanup(ctx) })

	s.API.SetReady()
	return nil
}

// spawn runs fn in a goroutine tracked by Stop.
func (s *Services) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// runLedgerCleanup periodically removes ledger entries past retention.
func (s *Services) runLedgerCleanup(ctx context.Context) {
	retention := s.cfg.Ledger.Retention()
	ticker := time.NewTicker(s.cfg.Ledger.CleanupInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.Ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}

// ClearState clears stored desired and observed state.
func (s *Services) ClearState() error {
	return s.Store.Clear("")
}

// Stop waits for the background loops started by Start to return, then
// releases all resources. The context passed to Start must already be
// cancelled. A firmware command is never interrupted, so the wait is bounded
// and the database is closed anyway once it expires.
func (s *Services) Stop() error {
	timeout := 2 * s.cfg.GetShutdownTimeout()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn().Dur("timeout", timeout).Msg("Background work still running at shutdown")
	}

	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Power != nil {
		s.Power.Close()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.Profiles != nil {
		s.Profiles.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
