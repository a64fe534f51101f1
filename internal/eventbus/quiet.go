package eventbus

import (
	"sync"
	"time"
)

// Quiet forwards only the latest event once no new event has arrived for the
// quiet period. A zero period forwards every event immediately.
type Quiet struct {
	mu      sync.Mutex
	period  time.Duration
	handler Handler
	timer   *time.Timer
	last    Event
	gen     uint64 // bumped by every Handle; a timer only flushes its own generation
	pending bool
	closed  bool
}

// NewQuiet wraps handler with a quiet period
func NewQuiet(period time.Duration, handler Handler) *Quiet {
	return &Quiet{period: period, handler: handler}
}

// Handle records the event and restarts the quiet timer. It can be passed
// to Subscribe directly.
func (q *Quiet) Handle(event Event) {
	if q.period <= 0 {
		q.handler(event)
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.last = event
	q.pending = true
	q.gen++
	if q.timer != nil {
		q.timer.Stop()
	}
	gen := q.gen
	q.timer = time.AfterFunc(q.period, func() { q.flush(gen) })
}

func (q *Quiet) flush(gen uint64) {
	q.mu.Lock()
	if !q.pending || q.closed || gen != q.gen {
		q.mu.Unlock()
		return
	}
	event := q.last
	q.pending = false
	q.mu.Unlock()

	q.handler(event)
}

// Close drops any pending event
func (q *Quiet) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.pending = false
	if q.timer != nil {
		q.timer.Stop()
	}
}
