package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// EventType names a class of daemon events
type EventType string

const (
	EventTypePowerSource    EventType = "power_source"
	EventTypeScriptReloaded EventType = "script_reloaded"
)

const (
	DefaultWorkerCount = 2
	DefaultQueueSize   = 32
)

// Event is delivered to every handler subscribed to its type
type Event struct {
	Type EventType
	Data map[string]any
}

// Bool returns a boolean field of the event payload
func (e Event) Bool(key string) (bool, bool) {
	v, ok := e.Data[key].(bool)
	return v, ok
}

// String returns a string field of the event payload
func (e Event) String(key string) string {
	v, _ := e.Data[key].(string)
	return v
}

type Handler func(Event)

type job struct {
	event   Event
	handler Handler
}

// Bus fans events out to handlers on a bounded worker pool.
// Publish never blocks: events are dropped when the queue is full.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler

	queue   chan job
	wg      sync.WaitGroup
	dropped atomic.Int64

	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a bus with default sizing
func New() *Bus {
	return NewWithConfig(DefaultWorkerCount, DefaultQueueSize)
}

// NewWithConfig creates a bus and starts its workers
func NewWithConfig(workers, queueSize int) *Bus {
	if workers <= 0 {
		workers = DefaultWorkerCount
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	b := &Bus{
		handlers: make(map[EventType][]Handler),
		queue:    make(chan job, queueSize),
		closing:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}
	log.Debug().Int("workers", workers).Int("queue_size", queueSize).Msg("Event bus started")
	return b
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()
	for j := range b.queue {
		b.dispatch(id, j)
	}
}

func (b *Bus) dispatch(id int, j job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("event_type", string(j.event.Type)).
				Int("worker", id).
				Msg("Event handler panicked")
		}
	}()
	j.handler(j.event)
}

// Subscribe registers a handler for eventType
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish queues the event for every subscribed handler
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	select {
	case <-b.closing:
		log.Debug().Str("event_type", string(event.Type)).Msg("Event bus closing, dropping event")
		return
	default:
	}

	for _, h := range b.handlers[event.Type] {
		select {
		case b.queue <- job{event: event, handler: h}:
		default:
			b.dropped.Add(1)
			log.Warn().Str("event_type", string(event.Type)).Msg("Event bus queue full, dropping event")
		}
	}
}

// Dropped returns how many deliveries were discarded because the queue was full
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close stops accepting events and waits for queued handlers until ctx expires
func (b *Bus) Close(ctx context.Context) {
	b.closeOnce.Do(func() {
		close(b.closing)
		b.mu.Lock()
		close(b.queue)
		b.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus stopped")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, queued events may be lost")
	}
}
