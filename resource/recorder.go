package resource

import "sync"

// Recorder is an Observer that keeps every event it sees.
type Recorder struct {
	events []Event
	mu     sync.Mutex
}

func (r *Recorder) OnHandleEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Created returns the kinds of created handles in creation order.
func (r *Recorder) Created() []Kind {
	return r.kinds(EventCreated)
}

// Released returns the kinds of released handles in release order.
func (r *Recorder) Released() []Kind {
	return r.kinds(EventReleased)
}

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *Recorder) kinds(t EventType) []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []Kind
	for _, e := range r.events {
		if e.Type == t {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}
