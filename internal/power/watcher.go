// Package power tracks whether the machine runs on AC or battery and
// publishes transitions to the event bus.
package power

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/ideapadd/internal/eventbus"
)

// Source reports the power source
type Source interface {
	OnBattery(ctx context.Context) (bool, error)
	Watch(ctx context.Context, fn func(onBattery bool)) error
}

// Reconnecter is implemented by sources whose connection can drop. The
// watcher calls Reconnect after a watch ends with an error.
type Reconnecter interface {
	Reconnect() error
}

// Publisher receives power source events
type Publisher interface {
	Publish(eventbus.Event)
}

// Gauge mirrors the current power source, typically into metrics
type Gauge interface {
	SetOnBattery(bool)
}

// Watcher publishes an EventTypePowerSource event on every transition
type Watcher struct {
	src   Source
	pub   Publisher
	gauge Gauge

	retry time.Duration

	mu    sync.Mutex
	known bool
	last  bool
}

// NewWatcher creates a watcher; gauge may be nil
func NewWatcher(src Source, pub Publisher, gauge Gauge) *Watcher {
	return &Watcher{src: src, pub: pub, gauge: gauge, retry: 10 * time.Second}
}

// Current returns the last observed power source
func (w *Watcher) Current() (onBattery bool, known bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last, w.known
}

// Run reads the initial state and then follows changes until ctx is done.
// A dropped watch is retried after a delay, on a fresh connection when the
// source supports it.
func (w *Watcher) Run(ctx context.Context) {
	for {
		if onBattery, err := w.src.OnBattery(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to read power source")
		} else {
			w.observe(onBattery)
		}

		err := w.src.Watch(ctx, w.observe)
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Dur("retry_in", w.retry).Msg("Power source watch stopped")

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retry):
		}

		if r, ok := w.src.(Reconnecter); ok {
			if err := r.Reconnect(); err != nil {
				log.Warn().Err(err).Msg("Failed to reconnect power source")
			}
		}
	}
}

func (w *Watcher) observe(onBattery bool) {
	w.mu.Lock()
	if w.known && w.last == onBattery {
		w.mu.Unlock()
		return
	}
	w.known = true
	w.last = onBattery
	w.mu.Unlock()

	if w.gauge != nil {
		w.gauge.SetOnBattery(onBattery)
	}
	log.Info().Str("source", SourceName(onBattery)).Msg("Power source changed")
	w.pub.Publish(eventbus.Event{
		Type: eventbus.EventTypePowerSource,
		Data: map[string]any{
			"on_battery": onBattery,
			"source":     SourceName(onBattery),
		},
	})
}

// SourceName returns "battery" or "ac"
func SourceName(onBattery bool) string {
	if onBattery {
		return "battery"
	}
	return "ac"
}
