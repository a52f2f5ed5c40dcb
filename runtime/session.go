package runtime

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/nix-runtime/engine"
	"github.com/wippyai/nix-runtime/errors"
	"github.com/wippyai/nix-runtime/resource"
)

// SessionConfig holds the settings for a Session.
type SessionConfig struct {
	// Tracker receives lifecycle events. A new Tracker is created when nil.
	Tracker *resource.Tracker

	// ID labels every log line of the session. A random UUID when empty.
	ID string

	// BasePath resolves relative paths in expressions. Defaults to ".".
	BasePath string

	Store      StoreType
	LookupPath []string
	Observers  []resource.Observer
	Display    DisplayOptions
}

// Option configures a Session.
type Option func(*SessionConfig)

// WithStore selects the store backend.
func WithStore(t StoreType) Option {
	return func(c *SessionConfig) { c.Store = t }
}

// WithBasePath sets the directory relative paths resolve against.
func WithBasePath(path string) Option {
	return func(c *SessionConfig) { c.BasePath = path }
}

// WithLookupPath sets lookup path entries such as "nixpkgs=/path".
func WithLookupPath(entries ...string) Option {
	return func(c *SessionConfig) { c.LookupPath = append(c.LookupPath, entries...) }
}

// WithObserver subscribes o to the session's lifecycle events.
func WithObserver(o resource.Observer) Option {
	return func(c *SessionConfig) { c.Observers = append(c.Observers, o) }
}

// WithTracker makes the session report to t.
func WithTracker(t *resource.Tracker) Option {
	return func(c *SessionConfig) { c.Tracker = t }
}

// WithDisplay sets rendering options.
func WithDisplay(opts DisplayOptions) Option {
	return func(c *SessionConfig) { c.Display = opts }
}

// WithID sets the session ID used in logs.
func WithID(id string) Option {
	return func(c *SessionConfig) { c.ID = id }
}

func buildConfig(opts []Option) SessionConfig {
	var cfg SessionConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.BasePath == "" {
		cfg.BasePath = DefaultBasePath
	}
	return cfg
}

// Session is a context, store and evaluator state kept open for evaluating
// any number of expressions.
type Session struct {
	ctx   *Context
	store *Store
	state *State
	cfg   SessionConfig
}

// OpenSession creates a context, initializes the expression subsystem and
// opens a store and state. On failure everything already built is closed in
// reverse order.
func OpenSession(eng engine.Engine, opts ...Option) (*Session, error) {
	cfg := buildConfig(opts)

	ctx, err := NewContextWithConfig(eng, &ContextConfig{
		Tracker:   cfg.Tracker,
		Observers: cfg.Observers,
		Label:     cfg.ID,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{ctx: ctx, cfg: cfg}
	if err := s.open(); err != nil {
		s.closeLogged()
		return nil, err
	}
	Logger().Debug("session opened", zap.String("session", cfg.ID), zap.String("store", cfg.Store.URI()))
	return s, nil
}

func (s *Session) open() error {
	guard, err := Initialize(s.ctx)
	if err != nil {
		return err
	}
	s.store, err = OpenStore(s.ctx, s.cfg.Store)
	if err != nil {
		return err
	}
	s.state, err = NewStateWithOptions(s.ctx, s.store, guard, &StateOptions{LookupPath: s.cfg.LookupPath})
	return err
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.cfg.ID
}

// Context returns the session's context.
func (s *Session) Context() *Context {
	return s.ctx
}

// State returns the session's evaluator state.
func (s *Session) State() *State {
	return s.state
}

// Tracker returns the session's lifecycle tracker.
func (s *Session) Tracker() *resource.Tracker {
	return s.ctx.tracker
}

// Eval evaluates expr against the session's base path and renders the result.
func (s *Session) Eval(expr string) (string, error) {
	return s.EvalAt(expr, s.cfg.BasePath)
}

// EvalAt evaluates expr with relative paths resolved against basePath.
func (s *Session) EvalAt(expr, basePath string) (string, error) {
	rv, err := s.EvalValue(expr, basePath)
	if err != nil {
		return "", err
	}
	out, err := rv.DisplayWith(s.state, s.cfg.Display)
	if cerr := rv.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}
	return out, nil
}

// EvalValue assigns expr into a new value without forcing it.
// The caller owns the returned value and must close it.
func (s *Session) EvalValue(expr, basePath string) (*ReadyValue, error) {
	if s.state == nil {
		return nil, errors.Released(errors.HandleState)
	}
	v, err := NewValue(s.ctx, s.state)
	if err != nil {
		return nil, err
	}
	rv, err := v.Assign(s.state, expr, basePath)
	if err != nil {
		if cerr := v.Close(); cerr != nil {
			Logger().Warn("value release failed", zap.String("session", s.cfg.ID), zap.Error(cerr))
		}
		return nil, err
	}
	return rv, nil
}

// Close closes the state, store and context, in that order, and returns the
// first error. Calling Close more than once has no effect.
func (s *Session) Close() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if s.state != nil {
		keep(s.state.Close())
	}
	if s.store != nil {
		keep(s.store.Close())
	}
	keep(s.ctx.Close())
	return first
}

func (s *Session) closeLogged() {
	if err := s.Close(); err != nil {
		Logger().Warn("session teardown failed", zap.String("session", s.cfg.ID), zap.Error(err))
	}
}

// Evaluate runs one expression end to end: context, init, store, state,
// value, assign, force and display, then closes every handle it built in
// reverse order. The first error wins; a teardown error is returned only if
// evaluation succeeded.
func Evaluate(eng engine.Engine, expr string, opts ...Option) (string, error) {
	s, err := OpenSession(eng, opts...)
	if err != nil {
		return "", err
	}
	out, err := s.Eval(expr)
	if cerr := s.Close(); cerr != nil {
		if err == nil {
			return "", cerr
		}
		Logger().Warn("session teardown failed", zap.String("session", s.cfg.ID), zap.Error(cerr))
	}
	if err != nil {
		return "", err
	}
	return out, nil
}
