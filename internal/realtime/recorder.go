package realtime

import (
	"context"
	"sync"
)

// Recorder is an in-memory Publisher that keeps everything it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events match entity and op.
func (r *Recorder) Count(entity Entity, op Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Entity == entity && ev.Op == op {
			n++
		}
	}
	return n
}
