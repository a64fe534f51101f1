package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ideapadd/internal/command"
	"github.com/dokzlo13/ideapadd/internal/executor"
	"github.com/dokzlo13/ideapadd/internal/firmware"
)

// Reconciler reads firmware state into a Session and writes requested values.
// It is not safe for concurrent use; callers serialize access (see Orchestrator).
type Reconciler struct {
	exec      executor.Executor
	builder   *command.Builder
	observers []Observer

	session *Session
}

// New creates a Reconciler. The session starts with every setting Unknown
// until the first Reload.
func New(exec executor.Executor, builder *command.Builder, observers ...Observer) *Reconciler {
	if builder == nil {
		builder = command.Default()
	}
	return &Reconciler{
		exec:      exec,
		builder:   builder,
		observers: observers,
		session:   NewSession(nil),
	}
}

// Session returns the last observed session.
func (r *Reconciler) Session() *Session {
	return r.session
}

// Builder returns the command builder.
func (r *Reconciler) Builder() *command.Builder {
	return r.builder
}

// Reload probes every setting and replaces the session. A setting that cannot
// be read becomes Unknown without affecting the others.
func (r *Reconciler) Reload(ctx context.Context) *Session {
	next := &Session{}
	for _, setting := range firmware.All() {
		next.states[setting] = r.read(ctx, setting)
	}
	next.loadedAt = timeNow()
	r.session = next

	for _, o := range r.observers {
		o.Reloaded(next)
	}
	return next
}

func (r *Reconciler) read(ctx context.Context, setting firmware.Setting) firmware.State {
	cmd, err := r.builder.RenderRead(command.Read{Setting: setting})
	if err != nil {
		return firmware.Unknown(executor.FailureText(err), firmware.ReasonExecutorFailure)
	}

	out, err := r.exec.Execute(ctx, cmd)
	if err != nil {
		log.Warn().Err(err).Str("setting", setting.String()).Msg("Failed to read setting")
		return firmware.Unknown(executor.FailureText(err), firmware.ReasonExecutorFailure)
	}

	st := firmware.Parse(setting, out)
	if !st.IsKnown() {
		log.Warn().Str("setting", setting.String()).Str("raw", st.Raw()).Msg("Unrecognized setting state")
	}
	return st
}

// ComputeWrites returns the writes needed to move the session to req, in
// fixed setting order. Settings whose baseline is Unknown are never written.
func (r *Reconciler) ComputeWrites(req Request) []command.Write {
	return computeWrites(r.session, req)
}

func computeWrites(session *Session, req Request) []command.Write {
	var writes []command.Write
	for _, setting := range firmware.All() {
		target, requested := req[setting]
		if !requested {
			continue
		}
		current, known := session.Get(setting).Value()
		if !known || current == target {
			continue
		}
		writes = append(writes, command.Write{Setting: setting, Target: target})
	}
	return writes
}

// SkippedSettings returns the requested settings left alone because their
// baseline is Unknown.
func (r *Reconciler) SkippedSettings(req Request) []firmware.Setting {
	var skipped []firmware.Setting
	for _, setting := range firmware.All() {
		if _, requested := req[setting]; requested && !r.session.Get(setting).IsKnown() {
			skipped = append(skipped, setting)
		}
	}
	return skipped
}

// ApplyWrites executes writes in fixed setting order. A failed write is
// recorded and does not stop the others.
func (r *Reconciler) ApplyWrites(ctx context.Context, writes []command.Write) ApplyResult {
	return r.applyWrites(ctx, "", "", writes)
}

func (r *Reconciler) applyWrites(ctx context.Context, saveID, source string, writes []command.Write) ApplyResult {
	result := ApplyResult{Failed: make(map[firmware.Setting]error)}

	ordered := make(map[firmware.Setting]command.Write, len(writes))
	for _, w := range writes {
		ordered[w.Setting] = w
	}

	for _, setting := range firmware.All() {
		w, ok := ordered[setting]
		if !ok {
			continue
		}

		ev := WriteEvent{SaveID: saveID, Source: source, Write: w}
		cmd, err := r.builder.RenderWrite(w)
		if err == nil {
			ev.Command = cmd
			_, err = r.exec.Execute(ctx, cmd)
		}
		ev.Err = err

		if err != nil {
			log.Error().Err(err).Str("setting", setting.String()).Str("target", setting.ValueName(w.Target)).Msg("Write failed")
			result.Failed[setting] = err
		} else {
			log.Info().Str("setting", setting.String()).Str("target", setting.ValueName(w.Target)).Msg("Setting written")
			result.Changed = append(result.Changed, setting)
		}

		for _, o := range r.observers {
			o.WriteApplied(ev)
		}
	}

	return result
}

// Save computes and applies the writes for req, then reloads so the session
// reflects what the hardware actually took. source tags the save for auditing.
func (r *Reconciler) Save(ctx context.Context, req Request, source string) SaveResult {
	res := SaveResult{
		ID:      uuid.NewString(),
		Source:  source,
		Writes:  r.ComputeWrites(req),
		Skipped: r.SkippedSettings(req),
	}

	for _, setting := range res.Skipped {
		log.Warn().Str("setting", setting.String()).Msg("Skipping write: current state unknown")
		for _, o := range r.observers {
			o.WriteSkipped(SkipEvent{
				SaveID:    res.ID,
				Source:    source,
				Setting:   setting,
				Requested: req[setting],
				Baseline:  r.session.Get(setting),
			})
		}
	}

	res.ApplyResult = r.applyWrites(ctx, res.ID, source, res.Writes)
	if len(res.Writes) > 0 {
		r.Reload(ctx)
	}
	res.Session = r.session
	return res
}

// Preview renders the commands Save would run for req without executing them.
func (r *Reconciler) Preview(req Request) ([]string, error) {
	writes := r.ComputeWrites(req)
	out := make([]string, 0, len(writes))
	for _, w := range writes {
		cmd, err := r.builder.RenderWrite(w)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", w, err)
		}
		out = append(out, cmd)
	}
	return out, nil
}
