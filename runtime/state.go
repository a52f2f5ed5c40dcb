package runtime

import (
	"go.uber.org/zap"

	"github.com/wippyai/nix-runtime/engine"
	"github.com/wippyai/nix-runtime/errors"
	"github.com/wippyai/nix-runtime/resource"
)

// StateOptions holds optional evaluator state settings
type StateOptions struct {
	// LookupPath entries, as for NIX_PATH: "nixpkgs=/path" or "/path".
	LookupPath []string
}

// State owns an evaluator state bound to one store.
//
// The state holds a reference to its store, and through it to the context.
// Values allocated from the state hold a reference to the state.
type State struct {
	ctx   *Context
	store *Store
	refs  *shares
	ptr   engine.Ptr
	id    resource.ID
}

// NewState creates an evaluator state. The guard is taken by value and must
// come from Initialize on the same context.
func NewState(ctx *Context, store *Store, guard InitGuard) (*State, error) {
	return NewStateWithOptions(ctx, store, guard, nil)
}

// NewStateWithOptions creates an evaluator state with custom options.
func NewStateWithOptions(ctx *Context, store *Store, guard InitGuard, opts *StateOptions) (*State, error) {
	if err := ctx.open(errors.PhaseState); err != nil {
		return nil, err
	}
	if !guard.Valid() {
		return nil, errors.InvalidInput(errors.PhaseState, "expression subsystem not initialized")
	}
	if guard.ctx != ctx {
		return nil, errors.InvalidInput(errors.PhaseState, "init guard belongs to a different context")
	}
	if store == nil {
		return nil, errors.InvalidInput(errors.PhaseState, "nil store")
	}
	if store.ctx != ctx {
		return nil, errors.InvalidInput(errors.PhaseState, "store belongs to a different context")
	}
	if !store.refs.acquire() {
		return nil, errors.Released(errors.HandleStore)
	}

	var lookupPath []string
	if opts != nil {
		lookupPath = opts.LookupPath
	}

	raw, msg := ctx.create(func(c engine.Ptr) engine.Ptr {
		return ctx.engine.StateCreate(c, lookupPath, store.ptr)
	})
	if raw.IsNull() {
		store.release()
		return nil, errors.HandleCreation(errors.HandleState, msg)
	}

	s := &State{ctx: ctx, store: store, ptr: raw}
	s.refs = newShares(s.free)
	s.id = ctx.tracker.Created(resource.KindState, uintptr(raw))
	ctx.logCreated(resource.KindState, raw)
	return s, nil
}

// Store returns the store the state evaluates against.
func (s *State) Store() *Store {
	return s.store
}

// Context returns the state's context.
func (s *State) Context() *Context {
	return s.ctx
}

// Close releases the caller's reference to the state.
// Calling Close more than once has no effect.
func (s *State) Close() error {
	return s.refs.closeOwner()
}

// usable checks that s is a live state on ctx.
func (s *State) usable(ctx *Context, phase errors.Phase) error {
	if s == nil {
		return errors.InvalidInput(phase, "nil state")
	}
	if s.ctx != ctx {
		return errors.InvalidInput(phase, "state belongs to a different context")
	}
	if s.refs.isClosed() {
		return errors.Released(errors.HandleState)
	}
	return nil
}

func (s *State) free() error {
	s.ctx.mu.Lock()
	s.ctx.engine.StateFree(s.ptr)
	s.ctx.mu.Unlock()
	s.ctx.tracker.Released(s.id)
	s.ctx.logReleased(resource.KindState, s.ptr)
	s.store.release()
	return nil
}

func (s *State) release() {
	if err := s.refs.release(); err != nil {
		Logger().Warn("state release failed", zap.String("session", s.ctx.label), zap.Error(err))
	}
}
