package runtime

import (
	"fmt"

	"github.com/wippyai/nix-runtime/engine"
	"github.com/wippyai/nix-runtime/errors"
	"github.com/wippyai/nix-runtime/resource"
)

// DefaultBasePath is the directory relative paths in an expression resolve
// against when no base path is given.
const DefaultBasePath = "."

// slot is one engine value reference. It holds a reference to the state it
// was allocated from, which keeps the state, store and context alive until
// the slot is released.
type slot struct {
	ctx   *Context
	state *State
	refs  *shares
	ptr   engine.Ptr
	id    resource.ID
}

func newSlot(state *State, raw engine.Ptr) *slot {
	s := &slot{ctx: state.ctx, state: state, ptr: raw}
	s.refs = newShares(s.free)
	s.id = state.ctx.tracker.Created(resource.KindValue, uintptr(raw))
	state.ctx.logCreated(resource.KindValue, raw)
	return s
}

// free drops the engine reference. The decref runs whatever phase the value
// is in; an unassigned slot still holds a reference.
func (s *slot) free() error {
	st, msg := s.ctx.status(func(c engine.Ptr) engine.Status {
		return s.ctx.engine.ValueDecref(c, s.ptr)
	})
	s.ctx.tracker.Released(s.id)
	s.ctx.logReleased(resource.KindValue, s.ptr)
	s.state.release()
	if !st.OK() {
		return errors.New(errors.PhaseValue, errors.KindEngine).
			Handle(errors.HandleValue).
			Code(int(st)).
			Detail("%s", msg).
			Build()
	}
	return nil
}

func (s *slot) usable(state *State, phase errors.Phase) error {
	if s.refs.isClosed() {
		return errors.Released(errors.HandleValue)
	}
	if state != s.state {
		return errors.InvalidInput(phase, "value was allocated from a different state")
	}
	return state.usable(s.ctx, phase)
}

// Value is an allocated value slot with no content yet (the Init phase).
//
// The only way forward is Assign, which moves the slot into a ReadyValue.
// Force and Display exist only on ReadyValue.
type Value struct {
	s *slot
}

// NewValue allocates a value slot from state.
func NewValue(ctx *Context, state *State) (*Value, error) {
	if err := ctx.open(errors.PhaseValue); err != nil {
		return nil, err
	}
	if err := state.usable(ctx, errors.PhaseValue); err != nil {
		return nil, err
	}
	if !state.refs.acquire() {
		return nil, errors.Released(errors.HandleState)
	}

	raw, msg := ctx.create(func(c engine.Ptr) engine.Ptr {
		return ctx.engine.AllocValue(c, state.ptr)
	})
	if raw.IsNull() {
		state.release()
		return nil, errors.HandleCreation(errors.HandleValue, msg)
	}
	return &Value{s: newSlot(state, raw)}, nil
}

// Assign parses expr relative to basePath and binds the result into the
// slot. It does not force evaluation. basePath defaults to DefaultBasePath.
//
// On success the slot moves to the returned ReadyValue and v becomes empty:
// further calls on v fail with KindMoved and v.Close does nothing. On
// failure v keeps the slot and must still be closed.
func (v *Value) Assign(state *State, expr, basePath string) (*ReadyValue, error) {
	if v.s == nil {
		return nil, errors.Moved()
	}
	if err := v.s.usable(state, errors.PhaseEval); err != nil {
		return nil, err
	}
	if basePath == "" {
		basePath = DefaultBasePath
	}

	s := v.s
	st, msg := s.ctx.status(func(c engine.Ptr) engine.Status {
		return s.ctx.engine.ExprEvalFromString(c, state.ptr, expr, basePath, s.ptr)
	})
	if !st.OK() {
		return nil, errors.ExprEval(int(st), msg)
	}

	v.s = nil
	rv := &ReadyValue{s: s}
	rv.refreshType()
	return rv, nil
}

// Moved reports whether the slot has moved to a ReadyValue.
func (v *Value) Moved() bool {
	return v.s == nil
}

// Close releases the slot if v still owns it.
// Calling Close more than once has no effect.
func (v *Value) Close() error {
	if v.s == nil {
		return nil
	}
	return v.s.refs.closeOwner()
}

// ReadyValue is a value with content (the Ready phase). Its type is known,
// but it is not necessarily forced.
type ReadyValue struct {
	s      *slot
	typ    engine.ValueType
	forced bool
}

func (rv *ReadyValue) refreshType() {
	rv.typ, _, _ = query(rv.s.ctx, func(c engine.Ptr) engine.ValueType {
		return rv.s.ctx.engine.GetType(c, rv.s.ptr)
	})
}

// Force drives evaluation of the lazy value. Once Force has succeeded,
// further calls return nil without calling the engine.
func (rv *ReadyValue) Force(state *State) error {
	if err := rv.s.usable(state, errors.PhaseForce); err != nil {
		return err
	}
	if rv.forced {
		return nil
	}

	s := rv.s
	st, msg := s.ctx.status(func(c engine.Ptr) engine.Status {
		return s.ctx.engine.ValueForce(c, state.ptr, s.ptr)
	})
	if !st.OK() {
		return errors.Force(int(st), msg)
	}
	rv.forced = true
	rv.refreshType()
	return nil
}

// Forced reports whether Force has succeeded.
func (rv *ReadyValue) Forced() bool {
	return rv.forced
}

// Type returns the engine's type tag for the value. Before Force it may be
// TypeThunk.
func (rv *ReadyValue) Type() engine.ValueType {
	return rv.typ
}

// Close releases the value's engine reference.
// Calling Close more than once has no effect.
func (rv *ReadyValue) Close() error {
	return rv.s.refs.closeOwner()
}

// expect checks that the value is live and of type want.
func (rv *ReadyValue) expect(want engine.ValueType) error {
	if rv.s.refs.isClosed() {
		return errors.Released(errors.HandleValue)
	}
	if rv.typ != want {
		return errors.TypeMismatch(errors.PhaseValue, want.String(), rv.typ.String())
	}
	return nil
}

func getterError(st engine.Status, msg string) error {
	return errors.New(errors.PhaseValue, errors.KindEngine).
		Handle(errors.HandleValue).
		Code(int(st)).
		Detail("%s", msg).
		Build()
}

// StringValue returns the contents of a string value.
func (rv *ReadyValue) StringValue() (string, error) {
	if err := rv.expect(engine.TypeString); err != nil {
		return "", err
	}
	s := rv.s
	var out string
	st, msg := s.ctx.status(func(c engine.Ptr) engine.Status {
		var st engine.Status
		out, st = s.ctx.engine.GetString(c, s.ptr)
		return st
	})
	if !st.OK() {
		return "", getterError(st, msg)
	}
	return out, nil
}

// Path returns a path value as text.
func (rv *ReadyValue) Path() (string, error) {
	if err := rv.expect(engine.TypePath); err != nil {
		return "", err
	}
	out, st, msg := query(rv.s.ctx, func(c engine.Ptr) string {
		return rv.s.ctx.engine.GetPathString(c, rv.s.ptr)
	})
	if !st.OK() {
		return "", getterError(st, msg)
	}
	return out, nil
}

// Int returns an integer value.
func (rv *ReadyValue) Int() (int64, error) {
	if err := rv.expect(engine.TypeInt); err != nil {
		return 0, err
	}
	out, st, msg := query(rv.s.ctx, func(c engine.Ptr) int64 {
		return rv.s.ctx.engine.GetInt(c, rv.s.ptr)
	})
	if !st.OK() {
		return 0, getterError(st, msg)
	}
	return out, nil
}

// Float returns a float value.
func (rv *ReadyValue) Float() (float64, error) {
	if err := rv.expect(engine.TypeFloat); err != nil {
		return 0, err
	}
	out, st, msg := query(rv.s.ctx, func(c engine.Ptr) float64 {
		return rv.s.ctx.engine.GetFloat(c, rv.s.ptr)
	})
	if !st.OK() {
		return 0, getterError(st, msg)
	}
	return out, nil
}

// Bool returns a boolean value.
func (rv *ReadyValue) Bool() (bool, error) {
	if err := rv.expect(engine.TypeBool); err != nil {
		return false, err
	}
	out, st, msg := query(rv.s.ctx, func(c engine.Ptr) bool {
		return rv.s.ctx.engine.GetBool(c, rv.s.ptr)
	})
	if !st.OK() {
		return false, getterError(st, msg)
	}
	return out, nil
}

// Len returns the number of elements of a list or attributes of a set.
func (rv *ReadyValue) Len() (int, error) {
	if rv.s.refs.isClosed() {
		return 0, errors.Released(errors.HandleValue)
	}
	var get func(engine.Ptr, engine.Ptr) uint32
	switch rv.typ {
	case engine.TypeList:
		get = rv.s.ctx.engine.GetListSize
	case engine.TypeAttrs:
		get = rv.s.ctx.engine.GetAttrsSize
	default:
		return 0, errors.TypeMismatch(errors.PhaseValue, "list or set", rv.typ.String())
	}
	n, st, msg := query(rv.s.ctx, func(c engine.Ptr) uint32 {
		return get(c, rv.s.ptr)
	})
	if !st.OK() {
		return 0, getterError(st, msg)
	}
	return int(n), nil
}

// child wraps an engine reference returned by an element accessor.
func (rv *ReadyValue) child(state *State, raw engine.Ptr) (*ReadyValue, error) {
	if !state.refs.acquire() {
		// The engine handed us a reference we cannot track; give it back.
		rv.s.ctx.status(func(c engine.Ptr) engine.Status {
			return rv.s.ctx.engine.ValueDecref(c, raw)
		})
		return nil, errors.Released(errors.HandleState)
	}
	child := &ReadyValue{s: newSlot(state, raw)}
	child.refreshType()
	return child, nil
}

// ListElem returns element i of a list. The element is not forced.
// The caller owns the returned value and must close it.
func (rv *ReadyValue) ListElem(state *State, i int) (*ReadyValue, error) {
	if err := rv.expect(engine.TypeList); err != nil {
		return nil, err
	}
	if err := rv.s.usable(state, errors.PhaseValue); err != nil {
		return nil, err
	}
	if i < 0 {
		return nil, errors.InvalidInput(errors.PhaseValue, "negative list index")
	}
	n, err := rv.Len()
	if err != nil {
		return nil, err
	}
	if i >= n {
		return nil, errors.InvalidInput(errors.PhaseValue, fmt.Sprintf("list index %d out of range for length %d", i, n))
	}
	raw, msg := rv.s.ctx.create(func(c engine.Ptr) engine.Ptr {
		return rv.s.ctx.engine.GetListByIdx(c, rv.s.ptr, state.ptr, uint32(i))
	})
	if raw.IsNull() {
		return nil, getterError(engine.StatusKey, msg)
	}
	return rv.child(state, raw)
}

// attrAt returns attribute i in engine order. The caller owns the value.
func (rv *ReadyValue) attrAt(state *State, i int) (*ReadyValue, string, error) {
	var name string
	raw, msg := rv.s.ctx.create(func(c engine.Ptr) engine.Ptr {
		var p engine.Ptr
		p, name = rv.s.ctx.engine.GetAttrByIdx(c, rv.s.ptr, state.ptr, uint32(i))
		return p
	})
	if raw.IsNull() {
		return nil, "", getterError(engine.StatusKey, msg)
	}
	child, err := rv.child(state, raw)
	if err != nil {
		return nil, "", err
	}
	return child, name, nil
}

// AttrNames returns the attribute names of a set in engine order.
func (rv *ReadyValue) AttrNames(state *State) ([]string, error) {
	if err := rv.expect(engine.TypeAttrs); err != nil {
		return nil, err
	}
	if err := rv.s.usable(state, errors.PhaseValue); err != nil {
		return nil, err
	}
	n, err := rv.Len()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		child, name, err := rv.attrAt(state, i)
		if err != nil {
			return nil, err
		}
		if err := child.Close(); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// Attr returns the attribute called name. The value is not forced.
// The caller owns the returned value and must close it.
func (rv *ReadyValue) Attr(state *State, name string) (*ReadyValue, error) {
	if err := rv.expect(engine.TypeAttrs); err != nil {
		return nil, err
	}
	if err := rv.s.usable(state, errors.PhaseValue); err != nil {
		return nil, err
	}
	n, err := rv.Len()
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		child, childName, err := rv.attrAt(state, i)
		if err != nil {
			return nil, err
		}
		if childName == name {
			return child, nil
		}
		if err := child.Close(); err != nil {
			return nil, err
		}
	}
	return nil, errors.NotFound(errors.PhaseValue, "attribute", name)
}
