package runtime

import (
	"github.com/wippyai/nix-runtime/engine"
	"github.com/wippyai/nix-runtime/errors"
)

// InitGuard proves that the expression subsystem was initialized on a
// context. It has no teardown. The zero InitGuard is not valid: only
// Initialize produces one, and NewState rejects a guard made for a different
// context.
type InitGuard struct {
	ctx *Context
}

// Initialize runs the engine's expression subsystem initializer on ctx.
//
// The engine tolerates repeated initialization, so calling Initialize twice is
// safe, but a session should obtain its guard once and hand it to NewState.
func Initialize(ctx *Context) (InitGuard, error) {
	if err := ctx.open(errors.PhaseInit); err != nil {
		return InitGuard{}, err
	}
	st, msg := ctx.status(func(raw engine.Ptr) engine.Status {
		return ctx.engine.LibexprInit(raw)
	})
	if !st.OK() {
		return InitGuard{}, errors.Initialization(int(st), msg)
	}
	return InitGuard{ctx: ctx}, nil
}

// Valid reports whether the guard came from a successful Initialize.
func (g InitGuard) Valid() bool {
	return g.ctx != nil
}
