package runtime

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/wippyai/nix-runtime/engine"
	"github.com/wippyai/nix-runtime/engine/enginetest"
	"github.com/wippyai/nix-runtime/errors"
)

func TestValue_InitPhaseHasNoForceOrDisplay(t *testing.T) {
	typ := reflect.TypeOf(&Value{})
	for _, name := range []string{"Force", "Display", "DisplayWith", "StringValue", "Type"} {
		if _, ok := typ.MethodByName(name); ok {
			t.Errorf("*Value has method %s", name)
		}
	}
	ready := reflect.TypeOf(&ReadyValue{})
	for _, name := range []string{"Force", "Display", "Type"} {
		if _, ok := ready.MethodByName(name); !ok {
			t.Errorf("*ReadyValue lacks method %s", name)
		}
	}
	if _, ok := any(&ReadyValue{}).(fmt.Stringer); ok {
		t.Error("*ReadyValue implements fmt.Stringer with a fallible accessor")
	}
}

func TestValue_CloseWithoutAssign(t *testing.T) {
	f := newFixture(t)
	v, err := NewValue(f.ctx, f.state)
	if err != nil {
		t.Fatal(err)
	}
	if f.fake.LiveValues() != 1 {
		t.Fatalf("LiveValues() = %d, want 1", f.fake.LiveValues())
	}
	if err := v.Close(); err != nil {
		t.Fatal(err)
	}
	if err := v.Close(); err != nil {
		t.Fatal(err)
	}
	if n := f.fake.Count(enginetest.OpDecref); n != 1 {
		t.Fatalf("decref called %d times, want 1", n)
	}
	if f.fake.LiveValues() != 0 {
		t.Fatal("value slot leaked")
	}
	f.close(t)
	assertClean(t, f.fake)
}

func TestValue_AssignMovesSlot(t *testing.T) {
	f := newFixture(t)
	v, _ := NewValue(f.ctx, f.state)

	rv, err := v.Assign(f.state, "7", "")
	if err != nil {
		t.Fatal(err)
	}
	if !v.Moved() {
		t.Fatal("Value not moved after Assign")
	}
	if _, err := v.Assign(f.state, "8", ""); !errors.IsKind(err, errors.KindMoved) {
		t.Fatalf("second Assign: %v", err)
	}
	if err := v.Close(); err != nil {
		t.Fatal(err)
	}
	if n := f.fake.Count(enginetest.OpDecref); n != 0 {
		t.Fatalf("moved-from Close reached the engine %d times", n)
	}

	rv.Close()
	rv.Close()
	if n := f.fake.Count(enginetest.OpDecref); n != 1 {
		t.Fatalf("decref called %d times, want 1", n)
	}
	f.close(t)
	assertClean(t, f.fake)
}

func TestValue_AssignFailureKeepsSlot(t *testing.T) {
	f := newFixture(t)
	v, _ := NewValue(f.ctx, f.state)

	_, err := v.Assign(f.state, "", "")
	if !errors.IsKind(err, errors.KindExprEval) {
		t.Fatalf("expected expr eval error, got %v", err)
	}
	e, _ := errors.As(err)
	if e.Detail == "" || e.Code != int(engine.StatusNixError) {
		t.Fatalf("unexpected error fields: %+v", e)
	}
	if v.Moved() {
		t.Fatal("failed Assign moved the slot")
	}
	v.Close()
	f.close(t)
	assertClean(t, f.fake)
}

func TestValue_AssignWrongState(t *testing.T) {
	f := newFixture(t)
	g := newFixture(t)
	v, _ := NewValue(f.ctx, f.state)

	if _, err := v.Assign(g.state, "1", ""); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("Assign with foreign state: %v", err)
	}
	v.Close()
	f.close(t)
	g.close(t)
	assertClean(t, f.fake)
	assertClean(t, g.fake)
}

func TestValue_AllocFailure(t *testing.T) {
	f := newFixture(t)
	f.fake.FailOn(enginetest.OpAllocValue, "out of memory")

	_, err := NewValue(f.ctx, f.state)
	if !errors.IsKind(err, errors.KindHandleCreation) {
		t.Fatalf("expected handle creation error, got %v", err)
	}
	if e, _ := errors.As(err); e.Handle != errors.HandleValue || e.Detail != "out of memory" {
		t.Fatalf("unexpected error fields: %+v", e)
	}
	if f.state.refs.dependents() != 0 {
		t.Fatal("failed allocation still holds the state")
	}
	f.close(t)
	assertClean(t, f.fake)
}

func TestReadyValue_CloseKeepsEngineMessage(t *testing.T) {
	f := newFixture(t)
	rv := f.assign(t, "1")
	f.fake.FailOn(enginetest.OpDecref, "refcount at 100%d")

	err := rv.Close()
	if !errors.IsKind(err, errors.KindEngine) {
		t.Fatalf("expected engine error, got %v", err)
	}
	if e, _ := errors.As(err); e.Detail != "refcount at 100%d" {
		t.Fatalf("Detail = %q", e.Detail)
	}
	if f.state.refs.dependents() != 0 {
		t.Fatal("failed decref still holds the state")
	}
	f.close(t)
	assertClean(t, f.fake)
}

func TestReadyValue_ForceIdempotent(t *testing.T) {
	f := newFixture(t)
	f.fake.Script("1 + 1", enginetest.Thunk(enginetest.Int(2)))
	rv := f.assign(t, "1 + 1")

	if rv.Type() != engine.TypeThunk {
		t.Fatalf("Type() before force = %s, want thunk", rv.Type())
	}
	for i := 0; i < 3; i++ {
		if err := rv.Force(f.state); err != nil {
			t.Fatalf("Force #%d: %v", i+1, err)
		}
	}
	if n := f.fake.Count(enginetest.OpForce); n != 1 {
		t.Fatalf("value_force called %d times, want 1", n)
	}
	if rv.Type() != engine.TypeInt || !rv.Forced() {
		t.Fatalf("Type() after force = %s", rv.Type())
	}
	if n, err := rv.Int(); err != nil || n != 2 {
		t.Fatalf("Int() = %d, %v", n, err)
	}
	rv.Close()
	f.close(t)
	assertClean(t, f.fake)
}

func TestReadyValue_ForceFailure(t *testing.T) {
	f := newFixture(t)
	f.fake.Script("builtins.foo", enginetest.Failing("undefined variable 'foo'"))
	rv := f.assign(t, "builtins.foo")

	err := rv.Force(f.state)
	if !errors.IsKind(err, errors.KindForce) {
		t.Fatalf("expected force error, got %v", err)
	}
	if rv.Forced() {
		t.Fatal("failed Force marked the value forced")
	}
	rv.Close()
	f.close(t)
	assertClean(t, f.fake)
}

func TestReadyValue_Accessors(t *testing.T) {
	f := newFixture(t)
	f.fake.
		Script("float", enginetest.Float(1.5)).
		Script("path", enginetest.Path("/etc/hosts"))

	tests := []struct {
		expr  string
		typ   engine.ValueType
		check func(rv *ReadyValue) error
	}{
		{`"s"`, engine.TypeString, func(rv *ReadyValue) error {
			s, err := rv.StringValue()
			if err == nil && s != "s" {
				t.Errorf("String() = %q", s)
			}
			return err
		}},
		{"42", engine.TypeInt, func(rv *ReadyValue) error {
			n, err := rv.Int()
			if err == nil && n != 42 {
				t.Errorf("Int() = %d", n)
			}
			return err
		}},
		{"float", engine.TypeFloat, func(rv *ReadyValue) error {
			x, err := rv.Float()
			if err == nil && x != 1.5 {
				t.Errorf("Float() = %v", x)
			}
			return err
		}},
		{"true", engine.TypeBool, func(rv *ReadyValue) error {
			b, err := rv.Bool()
			if err == nil && !b {
				t.Error("Bool() = false")
			}
			return err
		}},
		{"path", engine.TypePath, func(rv *ReadyValue) error {
			p, err := rv.Path()
			if err == nil && p != "/etc/hosts" {
				t.Errorf("Path() = %q", p)
			}
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			rv := f.assign(t, tt.expr)
			defer rv.Close()
			if err := rv.Force(f.state); err != nil {
				t.Fatal(err)
			}
			if rv.Type() != tt.typ {
				t.Fatalf("Type() = %s, want %s", rv.Type(), tt.typ)
			}
			if err := tt.check(rv); err != nil {
				t.Fatal(err)
			}
		})
	}
	f.close(t)
	assertClean(t, f.fake)
}

func TestReadyValue_TypeMismatch(t *testing.T) {
	f := newFixture(t)
	rv := f.assign(t, "42")

	if _, err := rv.StringValue(); !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Errorf("String() on int: %v", err)
	}
	if _, err := rv.Bool(); !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Errorf("Bool() on int: %v", err)
	}
	if _, err := rv.Len(); !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Errorf("Len() on int: %v", err)
	}
	if _, err := rv.ListElem(f.state, 0); !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Errorf("ListElem() on int: %v", err)
	}
	if _, err := rv.Attr(f.state, "a"); !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Errorf("Attr() on int: %v", err)
	}
	if n := f.fake.Count(enginetest.OpGetString); n != 0 {
		t.Fatalf("mismatched accessor reached the engine")
	}

	rv.Close()
	if _, err := rv.Int(); !errors.IsKind(err, errors.KindReleased) {
		t.Errorf("Int() after Close: %v", err)
	}
	f.close(t)
	assertClean(t, f.fake)
}

func TestReadyValue_ListAndAttrs(t *testing.T) {
	f := newFixture(t)
	f.fake.
		Script("[ 1 2 ]", enginetest.List(enginetest.Int(1), enginetest.Int(2))).
		Script("{ a = 1; b = 2; }", enginetest.Attrs(map[string]*enginetest.Result{
			"a": enginetest.Int(1),
			"b": enginetest.Int(2),
		}))

	list := f.assign(t, "[ 1 2 ]")
	if n, err := list.Len(); err != nil || n != 2 {
		t.Fatalf("Len() = %d, %v", n, err)
	}
	elem, err := list.ListElem(f.state, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := elem.Int(); n != 2 {
		t.Fatalf("element 1 = %d, want 2", n)
	}
	elem.Close()
	calls := f.fake.Count(enginetest.OpListByIdx)
	if _, err := list.ListElem(f.state, 2); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("out of range ListElem: %v", err)
	}
	if got := f.fake.Count(enginetest.OpListByIdx); got != calls {
		t.Fatalf("out of range ListElem reached the engine: %d calls, want %d", got, calls)
	}
	if v := f.fake.Violations(); len(v) != 0 {
		t.Fatalf("violations: %v", v)
	}
	list.Close()

	set := f.assign(t, "{ a = 1; b = 2; }")
	names, err := set.AttrNames(f.state)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 {
		t.Fatalf("AttrNames() = %v", names)
	}
	a, err := set.Attr(f.state, "a")
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := a.Int(); n != 1 {
		t.Fatalf("a = %d, want 1", n)
	}
	a.Close()
	if _, err := set.Attr(f.state, "missing"); !errors.IsKind(err, errors.KindNotFound) {
		t.Fatalf("missing attribute: %v", err)
	}
	set.Close()

	f.close(t)
	assertClean(t, f.fake)
}

func TestReadyValue_ChildKeepsStateAlive(t *testing.T) {
	f := newFixture(t)
	f.fake.Script("[ 1 ]", enginetest.List(enginetest.Int(1)))
	list := f.assign(t, "[ 1 ]")
	elem, err := list.ListElem(f.state, 0)
	if err != nil {
		t.Fatal(err)
	}
	list.Close()
	f.close(t)

	if n := f.fake.Count(enginetest.OpStateFree); n != 0 {
		t.Fatal("state freed while an element is alive")
	}
	elem.Close()
	assertClean(t, f.fake)
}
