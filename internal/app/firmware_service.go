package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ideapadd/internal/command"
	"github.com/dokzlo13/ideapadd/internal/config"
	"github.com/dokzlo13/ideapadd/internal/executor"
	"github.com/dokzlo13/ideapadd/internal/reconcile"
)

// FirmwareService wraps the executor, reconciler and orchestrator.
type FirmwareService struct {
	cfg *config.Config

	Executor     *executor.Shell
	Builder      *command.Builder
	Reconciler   *reconcile.Reconciler
	Orchestrator *reconcile.Orchestrator
}

// NewFirmwareService creates the reconciliation stack. desired may be nil.
func NewFirmwareService(cfg *config.Config, desired reconcile.DesiredStore, observers ...reconcile.Observer) (*FirmwareService, error) {
	shell, err := executor.NewShell(cfg.Executor.Shell, cfg.Executor.Elevate)
	if err != nil {
		return nil, err
	}

	builder := command.NewBuilder(
		cfg.Device.ConservationModePath,
		cfg.Device.ACPICallPath,
		cfg.Device.ACPIModule,
	)

	reconciler := reconcile.New(shell, builder, observers...)

	orchestrator := reconcile.NewOrchestrator(
		reconciler,
		desired,
		cfg.Reconciler.PeriodicInterval.Duration(),
		cfg.Reconciler.RateLimitRPS,
		cfg.Reconciler.Enforce,
	)

	log.Debug().
		Str("elevate", shell.Elevation()).
		Str("conservation_path", builder.ConservationPath()).
		Msg("Firmware access configured")

	return &FirmwareService{
		cfg:          cfg,
		Executor:     shell,
		Builder:      builder,
		Reconciler:   reconciler,
		Orchestrator: orchestrator,
	}, nil
}

// Prime reads the hardware once and queues the first enforcement pass.
func (s *FirmwareService) Prime(ctx context.Context) {
	session := s.Orchestrator.Reload(ctx)
	for _, sv := range session.View().Settings {
		log.Info().Str("setting", sv.Key).Str("state", sv.Description).Msg("Initial firmware state")
	}

	s.Orchestrator.Trigger()
}

// Run blocks in the enforcement loop until ctx is cancelled.
func (s *FirmwareService) Run(ctx context.Context) {
	if err := s.Orchestrator.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Orchestrator error")
	}
}
