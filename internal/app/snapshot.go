package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ideapadd/internal/reconcile"
	"github.com/dokzlo13/ideapadd/internal/state"
)

// SnapshotID is the store key of the last observed session.
const SnapshotID = "session"

// SnapshotObserver persists every reloaded session so the CLI can show the
// last known state without running privileged reads.
type SnapshotObserver struct {
	store *state.TypedStore[reconcile.SessionView]
}

var _ reconcile.Observer = (*SnapshotObserver)(nil)

// NewSnapshotObserver creates an observer writing to the observed kind.
func NewSnapshotObserver(store *state.Store) *SnapshotObserver {
	return &SnapshotObserver{store: state.NewTypedStore[reconcile.SessionView](store, state.KindObserved)}
}

// Reloaded stores the session view.
func (o *SnapshotObserver) Reloaded(session *reconcile.Session) {
	if err := o.store.Set(SnapshotID, session.View()); err != nil {
		log.Warn().Err(err).Msg("Failed to store observed state")
	}
}

func (o *SnapshotObserver) WriteApplied(reconcile.WriteEvent) {}

func (o *SnapshotObserver) WriteSkipped(reconcile.SkipEvent) {}

// Last returns the stored snapshot; ok is false when nothing was stored yet.
func (o *SnapshotObserver) Last() (view reconcile.SessionView, ok bool, err error) {
	view, version, err := o.store.Get(SnapshotID)
	if err != nil {
		return view, false, err
	}
	return view, version > 0, nil
}
