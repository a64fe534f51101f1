package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Orchestrator is the single owner of a Reconciler in the daemon. Every flow
// (API, power events, enforcement ticks) goes through it, so at most one
// reconciliation runs at a time.
type Orchestrator struct {
	reconciler *Reconciler
	desired    DesiredStore
	limiter    *rate.Limiter

	// Configuration
	periodicInterval time.Duration
	enforce          bool

	mu          sync.Mutex // serializes all reconciler access
	lastVersion int64
	trigger     chan struct{}
}

// NewOrchestrator creates an orchestrator. desired may be nil, which disables
// persistence and enforcement.
func NewOrchestrator(r *Reconciler, desired DesiredStore, periodicInterval time.Duration, rateLimitRPS float64, enforce bool) *Orchestrator {
	if periodicInterval == 0 {
		periodicInterval = 5 * time.Minute
	}
	if rateLimitRPS == 0 {
		rateLimitRPS = 1.0
	}

	burst := int(rateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	return &Orchestrator{
		reconciler:       r,
		desired:          desired,
		limiter:          rate.NewLimiter(rate.Limit(rateLimitRPS), burst),
		periodicInterval: periodicInterval,
		enforce:          enforce && desired != nil,
		trigger:          make(chan struct{}, 1),
	}
}

// Do runs fn with exclusive access to the reconciler.
func (o *Orchestrator) Do(fn func(r *Reconciler)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(o.reconciler)
}

// Session returns the last observed session.
func (o *Orchestrator) Session() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reconciler.Session()
}

// Reload re-reads the hardware.
func (o *Orchestrator) Reload(ctx context.Context) *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reconciler.Reload(ctx)
}

// Apply reloads, then saves req. With persist set, req is merged into the
// stored desired state for enforcement.
func (o *Orchestrator) Apply(ctx context.Context, req Request, source, profile string, persist bool) (SaveResult, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return SaveResult{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	// Always diff against fresh hardware truth.
	o.reconciler.Reload(ctx)
	res := o.reconciler.Save(ctx, req, source)

	if persist && o.desired != nil {
		if err := o.storeDesired(req, source, profile); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (o *Orchestrator) storeDesired(req Request, source, profile string) error {
	current, _, err := o.desired.Get(DesiredID)
	if err != nil {
		return fmt.Errorf("failed to load desired state: %w", err)
	}

	base, err := current.Request()
	if err != nil {
		log.Warn().Err(err).Msg("Discarding invalid stored desired state")
		base = Request{}
	}

	next := Desired{
		Values:  base.Merge(req).Names(),
		Profile: profile,
		Source:  source,
	}
	if err := o.desired.Set(DesiredID, next); err != nil {
		return fmt.Errorf("failed to store desired state: %w", err)
	}

	// Already applied; the enforcement loop need not react to our own write.
	if _, version, err := o.desired.Get(DesiredID); err == nil {
		o.lastVersion = version
	}
	return nil
}

// Trigger signals that enforcement should run.
func (o *Orchestrator) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
		// Already triggered
	}
}

// Run starts the enforcement loop. It returns when ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().
		Dur("periodic_interval", o.periodicInterval).
		Bool("enforce", o.enforce).
		Msg("Orchestrator started")

	ticker := time.NewTicker(o.periodicInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Orchestrator stopping")
			return nil
		case <-o.trigger:
			o.enforceDesired(ctx, false)
		case <-ticker.C:
			o.enforceDesired(ctx, true)
		}
	}
}

// enforceDesired reloads and re-applies the desired request. Triggered runs
// only act on a new desired version; periodic runs also correct drift.
func (o *Orchestrator) enforceDesired(ctx context.Context, periodic bool) {
	if !o.enforce {
		o.Reload(ctx)
		return
	}

	desired, version, err := o.desired.Get(DesiredID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load desired state")
		return
	}

	o.mu.Lock()
	stale := version > o.lastVersion
	o.mu.Unlock()

	if desired.IsEmpty() || (!periodic && !stale) {
		log.Debug().Int64("version", version).Msg("Nothing to enforce")
		o.Reload(ctx)
		return
	}

	req, err := desired.Request()
	if err != nil {
		log.Error().Err(err).Msg("Stored desired state is invalid")
		return
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.reconciler.Reload(ctx)
	res := o.reconciler.Save(ctx, req, "enforcer")
	if res.Err() != nil {
		log.Error().Err(res.Err()).Msg("Enforcement left settings unapplied")
		return
	}

	o.lastVersion = version
	if len(res.Changed) > 0 {
		log.Info().Str("summary", res.Summary()).Int64("version", version).Msg("Desired state enforced")
	}
}
