// Package resource tracks the lifecycle of engine handles.
//
// Every handle wrapper (context, store, state, value) registers itself with
// the Tracker of its Context when it is created and deregisters when its
// engine object is actually released. The Tracker is the single place where
// leaks and teardown order become observable.
//
// # Handle Table
//
// The Tracker maps integer IDs to live handles:
//
//	tracker := resource.NewTracker()
//
//	id := tracker.Created(resource.KindStore, ptr)
//	...
//	tracker.Released(id)
//
//	tracker.Live()                  // handles still alive
//	tracker.LiveKind(resource.KindValue)
//
// # Observers
//
// Observers receive events synchronously, in the order the engine calls ran:
//
//	rec := &resource.Recorder{}
//	tracker.Subscribe(rec)
//	...
//	rec.Released() // [value state store context]
//
// MetricsObserver exports the same events as prometheus metrics.
package resource
