package runtime

import (
	"testing"

	"github.com/wippyai/nix-runtime/engine/enginetest"
	"github.com/wippyai/nix-runtime/resource"
)

// fixture is a fully built handle chain on a fake engine.
type fixture struct {
	fake  *enginetest.Fake
	rec   *resource.Recorder
	ctx   *Context
	store *Store
	state *State
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{fake: enginetest.New(), rec: &resource.Recorder{}}

	var err error
	f.ctx, err = NewContextWithConfig(f.fake, &ContextConfig{Observers: []resource.Observer{f.rec}})
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	guard, err := Initialize(f.ctx)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	f.store, err = OpenStore(f.ctx, StoreDummy)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	f.state, err = NewState(f.ctx, f.store, guard)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	return f
}

// assign allocates a value and assigns expr to it.
func (f *fixture) assign(t *testing.T, expr string) *ReadyValue {
	t.Helper()
	v, err := NewValue(f.ctx, f.state)
	if err != nil {
		t.Fatalf("NewValue: %v", err)
	}
	rv, err := v.Assign(f.state, expr, "")
	if err != nil {
		t.Fatalf("Assign(%q): %v", expr, err)
	}
	return rv
}

func (f *fixture) close(t *testing.T) {
	t.Helper()
	for _, c := range []interface{ Close() error }{f.state, f.store, f.ctx} {
		if err := c.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
}

// assertClean fails the test if the fake saw leaks or handle misuse.
func assertClean(t *testing.T, fake *enginetest.Fake) {
	t.Helper()
	if v := fake.Violations(); len(v) != 0 {
		t.Fatalf("handle violations: %v", v)
	}
	if n := fake.Live(); n != 0 {
		t.Fatalf("%d engine objects still live", n)
	}
}

func kindsEqual(a, b []resource.Kind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
