package resource

import (
	"reflect"
	"sync"
)

type entry struct {
	kind  Kind
	ptr   uintptr
	valid bool
}

// Tracker is a table of live engine handles with observer support.
type Tracker struct {
	entries   []entry
	freeList  []ID
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		entries:  make([]entry, 0, 8),
		freeList: make([]ID, 0, 4),
	}
}

// Created records a new live handle and returns its ID.
func (t *Tracker) Created(kind Kind, ptr uintptr) ID {
	t.mu.Lock()
	e := entry{kind: kind, ptr: ptr, valid: true}
	var id ID
	if len(t.freeList) > 0 {
		id = t.freeList[len(t.freeList)-1]
		t.freeList = t.freeList[:len(t.freeList)-1]
		t.entries[id-1] = e
	} else {
		t.entries = append(t.entries, e)
		id = ID(len(t.entries))
	}
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Kind: kind, ID: id, Ptr: ptr})
	return id
}

// Released records that the handle's engine object was freed.
// It returns false if id is not live.
func (t *Tracker) Released(id ID) bool {
	if id == 0 {
		return false
	}

	t.mu.Lock()
	idx := int(id) - 1
	if idx >= len(t.entries) || !t.entries[idx].valid {
		t.mu.Unlock()
		return false
	}
	e := t.entries[idx]
	t.entries[idx] = entry{}
	t.freeList = append(t.freeList, id)
	t.mu.Unlock()

	t.notify(Event{Type: EventReleased, Kind: e.kind, ID: id, Ptr: e.ptr})
	return true
}

// Live returns the number of live handles.
func (t *Tracker) Live() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries) - len(t.freeList)
}

// LiveKind returns the number of live handles of kind.
func (t *Tracker) LiveKind(kind Kind) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, e := range t.entries {
		if e.valid && e.kind == kind {
			n++
		}
	}
	return n
}

// Subscribe adds an observer for lifecycle events.
func (t *Tracker) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer. Observers of a non-comparable type, such
// as ObserverFunc, cannot be matched and stay subscribed.
func (t *Tracker) Unsubscribe(o Observer) {
	if o == nil || !reflect.TypeOf(o).Comparable() {
		return
	}
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Tracker) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnHandleEvent(e)
	}
}
