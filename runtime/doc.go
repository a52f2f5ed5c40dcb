// Package runtime wraps the Nix evaluator's handle-based API in owned Go
// handles.
//
// # Quick Start
//
//	eng, err := engine.Native()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	out, err := runtime.Evaluate(eng, "1 + 1", runtime.WithStore(runtime.StoreDummy))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(out) // 2
//
// # Handles
//
// Evaluation needs four engine objects, created in this order:
//
//	Context  error slot, shared by everything below
//	Store    connection to a store backend
//	State    evaluator state bound to one store
//	Value    slot holding an expression result
//
// Each handle holds a reference to its parent. Close drops the caller's
// reference; the engine object is freed when the last reference goes. The
// engine therefore always sees teardown in the order Value, State, Store,
// Context, whatever order the caller closes in. Close is idempotent.
//
// # Values
//
// NewValue returns a *Value, which can only be assigned. Assign moves the
// slot into a *ReadyValue, which can be forced, inspected and displayed:
//
//	v, err := runtime.NewValue(ctx, state)
//	rv, err := v.Assign(state, `{ a = 1; }`, ".")
//	defer rv.Close()
//	out, err := rv.Display(state) // { a = 1; }
//
// # Sessions
//
// A Session keeps a context, store and state open across many evaluations:
//
//	s, err := runtime.OpenSession(eng)
//	defer s.Close()
//	out, err := s.Eval(`"hello"`)
//
// # Lifecycle events
//
// Every handle reports creation and release to a resource.Tracker. Attach a
// resource.Recorder or resource.MetricsObserver with WithObserver.
package runtime
