package ledger

import (
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ideapadd/internal/reconcile"
)

// Observer records reconciler writes and skips in the ledger.
type Observer struct {
	ledger *Ledger
}

var _ reconcile.Observer = (*Observer)(nil)

// NewObserver creates a ledger-backed reconcile observer.
func NewObserver(l *Ledger) *Observer {
	return &Observer{ledger: l}
}

// Reloaded is a no-op: reads are not audited.
func (o *Observer) Reloaded(*reconcile.Session) {}

// WriteApplied records a write and its outcome.
func (o *Observer) WriteApplied(ev reconcile.WriteEvent) {
	setting := ev.Write.Setting
	payload := map[string]any{
		"target":  setting.ValueName(ev.Write.Target),
		"command": ev.Command,
		"save_id": ev.SaveID,
	}

	eventType := EventWriteApplied
	if ev.Err != nil {
		eventType = EventWriteFailed
		payload["error"] = ev.Err.Error()
	}

	o.append(eventType, ev.SaveID, ev.Source, setting.String(), payload)
}

// WriteSkipped records a requested write that was refused because the
// current state was unknown.
func (o *Observer) WriteSkipped(ev reconcile.SkipEvent) {
	o.append(EventWriteSkipped, ev.SaveID, ev.Source, ev.Setting.String(), map[string]any{
		"requested": ev.Setting.ValueName(ev.Requested),
		"raw":       ev.Baseline.Raw(),
		"reason":    ev.Baseline.Reason().String(),
		"save_id":   ev.SaveID,
	})
}

// ProfileApplied records a profile application and the save it produced.
func (o *Observer) ProfileApplied(profile, source string, res reconcile.SaveResult) {
	changed := make([]string, 0, len(res.Changed))
	for _, s := range res.Changed {
		changed = append(changed, s.String())
	}
	o.append(EventProfileApplied, res.ID, source, "", map[string]any{
		"profile": profile,
		"changed": changed,
		"save_id": res.ID,
	})
}

func (o *Observer) append(eventType EventType, saveID, source, setting string, payload map[string]any) {
	key := ""
	if saveID != "" {
		key = saveID + ":" + setting
	}
	if err := o.ledger.Append(eventType, key, source, setting, payload); err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to record ledger event")
	}
}
