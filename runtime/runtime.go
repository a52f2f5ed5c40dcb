package runtime

import (
	"github.com/wippyai/nix-runtime/engine"
	"github.com/wippyai/nix-runtime/errors"
)

// Runtime binds an engine to default session options.
type Runtime struct {
	engine   engine.Engine
	defaults []Option
}

// New creates a runtime over eng. The options apply to every session the
// runtime opens, before any per-session options.
func New(eng engine.Engine, defaults ...Option) (*Runtime, error) {
	if eng == nil {
		return nil, errors.InvalidInput(errors.PhaseEngine, "nil engine")
	}
	return &Runtime{engine: eng, defaults: defaults}, nil
}

// Close releases the engine.
// All sessions must be closed before calling this.
func (r *Runtime) Close() error {
	return r.engine.Close()
}

func (r *Runtime) Engine() engine.Engine {
	return r.engine
}

func (r *Runtime) options(opts []Option) []Option {
	all := make([]Option, 0, len(r.defaults)+len(opts))
	all = append(all, r.defaults...)
	return append(all, opts...)
}

// OpenSession opens a session on the runtime's engine.
func (r *Runtime) OpenSession(opts ...Option) (*Session, error) {
	return OpenSession(r.engine, r.options(opts)...)
}

// Evaluate runs one expression in a fresh session.
func (r *Runtime) Evaluate(expr string, opts ...Option) (string, error) {
	return Evaluate(r.engine, expr, r.options(opts)...)
}

// ParseFlakeRef parses a flake reference with the runtime's engine.
func (r *Runtime) ParseFlakeRef(url, baseDir string) (string, error) {
	return ParseFlakeRef(r.engine, url, baseDir)
}
