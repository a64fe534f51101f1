package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ideapadd/internal/config"
	"github.com/dokzlo13/ideapadd/internal/eventbus"
	"github.com/dokzlo13/ideapadd/internal/ledger"
	"github.com/dokzlo13/ideapadd/internal/profile"
	"github.com/dokzlo13/ideapadd/internal/reconcile"
)

// ProfileService owns the Lua profile script and applies profiles.
type ProfileService struct {
	cfg          *config.Config
	Runtime      *profile.Runtime
	orchestrator *reconcile.Orchestrator
	audit        *ledger.Observer
	bus          *eventbus.Bus
	settle       *eventbus.Quiet

	mu        sync.Mutex
	onBattery *bool // last power source seen, nil until the first event
}

// NewProfileService creates the service. audit and bus may be nil.
func NewProfileService(cfg *config.Config, orchestrator *reconcile.Orchestrator, audit *ledger.Observer, bus *eventbus.Bus) *ProfileService {
	return &ProfileService{
		cfg:          cfg,
		Runtime:      profile.NewRuntime(),
		orchestrator: orchestrator,
		audit:        audit,
		bus:          bus,
	}
}

// LoadScript executes the configured script. Without a script there are no profiles.
func (s *ProfileService) LoadScript() error {
	if s.cfg.Script == "" {
		log.Debug().Msg("No profile script configured")
		return nil
	}
	return s.Runtime.LoadFile(s.cfg.Script)
}

// Profiles returns the loaded profiles.
func (s *ProfileService) Profiles() []profile.Profile {
	return s.Runtime.Profiles()
}

// ApplyProfile saves a profile's values and persists them as desired state.
func (s *ProfileService) ApplyProfile(ctx context.Context, name, source string) (reconcile.SaveResult, error) {
	p, ok := s.Runtime.Get(name)
	if !ok {
		return reconcile.SaveResult{}, fmt.Errorf("%w: %s", profile.ErrNotFound, name)
	}
	req, err := p.Request()
	if err != nil {
		return reconcile.SaveResult{}, err
	}

	res, err := s.orchestrator.Apply(ctx, req, source, name, true)
	if err != nil {
		return res, err
	}

	if s.audit != nil {
		s.audit.ProfileApplied(name, source, res)
	}
	log.Info().Str("profile", name).Str("source", source).Str("summary", res.Summary()).Msg("Profile applied")
	return res, nil
}

// Start subscribes to power events and watches the script for changes.
func (s *ProfileService) Start(ctx context.Context) {
	if s.bus != nil {
		s.settle = eventbus.NewQuiet(s.cfg.Power.Settle.Duration(), func(event eventbus.Event) {
			s.handlePower(ctx, event)
		})
		s.bus.Subscribe(eventbus.EventTypePowerSource, s.settle.Handle)

		// A reloaded script may map the current power source to another profile
		s.bus.Subscribe(eventbus.EventTypeScriptReloaded, func(eventbus.Event) {
			s.mu.Lock()
			last := s.onBattery
			s.mu.Unlock()
			if last != nil {
				s.applyPower(ctx, *last)
			}
		})
	}

	if s.cfg.Script == "" {
		return
	}
	go func() {
		err := s.Runtime.Watch(ctx, 0, func(err error) {
			if err == nil && s.bus != nil {
				s.bus.Publish(eventbus.Event{
					Type: eventbus.EventTypeScriptReloaded,
					Data: map[string]any{"path": s.cfg.Script},
				})
			}
		})
		if err != nil {
			log.Warn().Err(err).Msg("Profile script watch stopped")
		}
	}()
}

func (s *ProfileService) handlePower(ctx context.Context, event eventbus.Event) {
	onBattery, ok := event.Bool("on_battery")
	if !ok {
		return
	}
	s.mu.Lock()
	s.onBattery = &onBattery
	s.mu.Unlock()

	s.applyPower(ctx, onBattery)
}

func (s *ProfileService) applyPower(ctx context.Context, onBattery bool) {
	if !s.Runtime.HasPowerHook() {
		return
	}

	name, err := s.Runtime.ResolvePower(ctx, onBattery)
	if err != nil {
		log.Error().Err(err).Msg("Failed to resolve power profile")
		return
	}
	if name == "" {
		log.Debug().Bool("on_battery", onBattery).Msg("Power hook chose no profile")
		return
	}

	res, err := s.ApplyProfile(ctx, name, "power")
	if err != nil {
		log.Error().Err(err).Str("profile", name).Msg("Failed to apply power profile")
		return
	}
	if res.Err() != nil {
		log.Warn().Err(res.Err()).Str("profile", name).Msg("Power profile partially applied")
	}
}

// Close drops pending power events and releases the Lua state.
func (s *ProfileService) Close() {
	if s.settle != nil {
		s.settle.Close()
	}
	s.Runtime.Close()
}
