package resource

// ID identifies a handle in a Tracker.
// ID 0 is reserved and always invalid.
type ID uint32

// Kind is the kind of engine handle.
type Kind string

const (
	KindContext Kind = "context"
	KindStore   Kind = "store"
	KindState   Kind = "state"
	KindValue   Kind = "value"
)

// Kinds lists every handle kind in teardown order.
var Kinds = []Kind{KindValue, KindState, KindStore, KindContext}

// EventType is a handle lifecycle transition.
type EventType uint8

const (
	EventCreated EventType = iota
	EventReleased
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Event represents a handle lifecycle event.
type Event struct {
	Kind Kind
	ID   ID
	Ptr  uintptr
	Type EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
// Functions are not comparable, so Unsubscribe ignores an ObserverFunc.
type ObserverFunc func(Event)

func (f ObserverFunc) OnHandleEvent(e Event) {
	f(e)
}
