package runtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/nix-runtime/engine"
	"github.com/wippyai/nix-runtime/errors"
	"github.com/wippyai/nix-runtime/resource"
)

// ContextConfig holds optional settings for a Context
type ContextConfig struct {
	// Tracker receives lifecycle events for this context and every handle
	// derived from it. A new Tracker is created when nil.
	Tracker *resource.Tracker

	// Observers are subscribed to the tracker before the context is created.
	Observers []resource.Observer

	// Label is attached to every log line, typically a session ID.
	Label string
}

// Context owns the engine's context object.
//
// The context is shared: every Store, State and Value derived from it holds a
// reference, because their operations and teardown report errors through the
// context's error slot. Close drops the owner's reference; the engine context
// is freed when the last reference is gone.
type Context struct {
	engine  engine.Engine
	tracker *resource.Tracker
	refs    *shares
	label   string
	ptr     engine.Ptr
	id      resource.ID
	mu      sync.Mutex
}

// NewContext allocates an engine context.
func NewContext(eng engine.Engine) (*Context, error) {
	return NewContextWithConfig(eng, nil)
}

// NewContextWithConfig allocates an engine context with custom configuration.
func NewContextWithConfig(eng engine.Engine, cfg *ContextConfig) (*Context, error) {
	if eng == nil {
		return nil, errors.InvalidInput(errors.PhaseContext, "nil engine")
	}

	tracker := resource.NewTracker()
	label := ""
	if cfg != nil {
		if cfg.Tracker != nil {
			tracker = cfg.Tracker
		}
		for _, o := range cfg.Observers {
			tracker.Subscribe(o)
		}
		label = cfg.Label
	}

	raw := eng.ContextCreate()
	if raw.IsNull() {
		// No context means no error slot to read a message from.
		return nil, errors.HandleCreation(errors.HandleContext, "")
	}

	c := &Context{
		engine:  eng,
		tracker: tracker,
		label:   label,
		ptr:     raw,
	}
	c.refs = newShares(c.free)
	c.id = tracker.Created(resource.KindContext, uintptr(raw))
	c.logCreated(resource.KindContext, raw)
	return c, nil
}

// Close releases the caller's reference. The engine context itself is freed
// once every store, state and value created from it has been closed.
// Calling Close more than once has no effect.
func (c *Context) Close() error {
	return c.refs.closeOwner()
}

// Engine returns the engine this context was created on.
func (c *Context) Engine() engine.Engine {
	return c.engine
}

// Tracker returns the lifecycle tracker shared by this context's handles.
func (c *Context) Tracker() *resource.Tracker {
	return c.tracker
}

// Label returns the log label set at creation.
func (c *Context) Label() string {
	return c.label
}

// Dependents returns the number of live handles holding this context.
func (c *Context) Dependents() int {
	return c.refs.dependents()
}

func (c *Context) free() error {
	c.mu.Lock()
	c.engine.ContextFree(c.ptr)
	c.mu.Unlock()
	c.tracker.Released(c.id)
	c.logReleased(resource.KindContext, c.ptr)
	return nil
}

// open checks that the owner has not closed the context.
func (c *Context) open(phase errors.Phase) error {
	if c == nil {
		return errors.InvalidInput(phase, "nil context")
	}
	if c.refs.isClosed() {
		return errors.Released(errors.HandleContext)
	}
	return nil
}

// acquire takes a reference for a dependent handle.
func (c *Context) acquire() error {
	if !c.refs.acquire() {
		return errors.Released(errors.HandleContext)
	}
	return nil
}

func (c *Context) release() {
	if err := c.refs.release(); err != nil {
		Logger().Warn("context release failed", zap.String("session", c.label), zap.Error(err))
	}
}

// status runs a status-returning engine call and, on failure, reads the
// error slot before anything else can overwrite it.
func (c *Context) status(fn func(raw engine.Ptr) engine.Status) (engine.Status, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := fn(c.ptr)
	if st.OK() {
		return st, ""
	}
	return st, c.engine.ErrMsg(c.ptr)
}

// create runs a handle-returning engine call; a null handle is a failure.
func (c *Context) create(fn func(raw engine.Ptr) engine.Ptr) (engine.Ptr, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := fn(c.ptr)
	if !p.IsNull() {
		return p, ""
	}
	return p, c.engine.ErrMsg(c.ptr)
}

// query runs a getter whose failure is only visible through the error code.
func query[T any](c *Context, fn func(raw engine.Ptr) T) (T, engine.Status, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := fn(c.ptr)
	st := c.engine.ErrCode(c.ptr)
	if st.OK() {
		return v, st, ""
	}
	return v, st, c.engine.ErrMsg(c.ptr)
}

func (c *Context) logCreated(kind resource.Kind, p engine.Ptr) {
	Logger().Debug("handle created",
		zap.String("session", c.label),
		zap.String("kind", string(kind)),
		zap.Uintptr("ptr", uintptr(p)))
}

func (c *Context) logReleased(kind resource.Kind, p engine.Ptr) {
	Logger().Debug("handle released",
		zap.String("session", c.label),
		zap.String("kind", string(kind)),
		zap.Uintptr("ptr", uintptr(p)))
}
