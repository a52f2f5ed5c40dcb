package runtime

import (
	"strings"
	"testing"

	"github.com/wippyai/nix-runtime/engine/enginetest"
	"github.com/wippyai/nix-runtime/errors"
	"github.com/wippyai/nix-runtime/resource"
)

func TestNewContext_NilEngine(t *testing.T) {
	_, err := NewContext(nil)
	if !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestNewContext_CreationFailure(t *testing.T) {
	fake := enginetest.New().FailOn(enginetest.OpContextCreate, "")
	_, err := NewContext(fake)
	if !errors.IsKind(err, errors.KindHandleCreation) {
		t.Fatalf("expected handle creation error, got %v", err)
	}
	e, _ := errors.As(err)
	if e.Handle != errors.HandleContext || e.Detail != "" {
		t.Fatalf("unexpected error fields: %+v", e)
	}
}

func TestContext_DoubleCloseReachesEngineOnce(t *testing.T) {
	fake := enginetest.New()
	ctx, err := NewContext(fake)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := ctx.Close(); err != nil {
			t.Fatalf("Close #%d: %v", i+1, err)
		}
	}
	if n := fake.Count(enginetest.OpContextFree); n != 1 {
		t.Fatalf("context freed %d times, want 1", n)
	}
	assertClean(t, fake)
}

func TestContext_ClosedRejectsNewHandles(t *testing.T) {
	fake := enginetest.New()
	ctx, _ := NewContext(fake)
	ctx.Close()

	if _, err := Initialize(ctx); !errors.IsKind(err, errors.KindReleased) {
		t.Fatalf("Initialize on closed context: %v", err)
	}
	if _, err := OpenStore(ctx, StoreDummy); !errors.IsKind(err, errors.KindReleased) {
		t.Fatalf("OpenStore on closed context: %v", err)
	}
	if n := fake.Count(enginetest.OpStoreOpen); n != 0 {
		t.Fatalf("store_open called %d times", n)
	}
}

func TestInitialize_Failure(t *testing.T) {
	fake := enginetest.New().FailOn(enginetest.OpLibexprInit, "cannot initialize")
	ctx, _ := NewContext(fake)
	defer ctx.Close()

	_, err := Initialize(ctx)
	if !errors.IsKind(err, errors.KindInitialization) {
		t.Fatalf("expected initialization error, got %v", err)
	}
	e, _ := errors.As(err)
	if e.Detail != "cannot initialize" {
		t.Fatalf("Detail = %q", e.Detail)
	}
}

func TestInitialize_Repeatable(t *testing.T) {
	fake := enginetest.New()
	ctx, _ := NewContext(fake)
	defer ctx.Close()

	for i := 0; i < 2; i++ {
		g, err := Initialize(ctx)
		if err != nil || !g.Valid() {
			t.Fatalf("Initialize #%d: %v", i+1, err)
		}
	}
}

func TestOpenStore_AllTypes(t *testing.T) {
	types := []StoreType{
		StoreAuto,
		StoreDummy,
		StoreDaemon,
		StoreLocal,
		StorePath("/tmp/nix-store"),
	}
	for _, typ := range types {
		t.Run(typ.String(), func(t *testing.T) {
			fake := enginetest.New()
			ctx, _ := NewContext(fake)
			if _, err := Initialize(ctx); err != nil {
				t.Fatal(err)
			}
			store, err := OpenStore(ctx, typ)
			if err != nil {
				t.Fatalf("OpenStore(%s): %v", typ, err)
			}
			if store.URI() != typ.URI() {
				t.Fatalf("URI() = %q, want %q", store.URI(), typ.URI())
			}
			store.Close()
			ctx.Close()
			assertClean(t, fake)
		})
	}
}

func TestOpenStore_UnknownScheme(t *testing.T) {
	fake := enginetest.New()
	ctx, _ := NewContext(fake)
	defer ctx.Close()

	const uri = "not-a-real-scheme://"
	_, err := OpenStore(ctx, ParseStoreType(uri))
	if !errors.IsKind(err, errors.KindHandleCreation) {
		t.Fatalf("expected handle creation error, got %v", err)
	}
	e, _ := errors.As(err)
	if e.Handle != errors.HandleStore {
		t.Fatalf("Handle = %q", e.Handle)
	}
	if !strings.Contains(e.Detail, uri) {
		t.Fatalf("Detail %q does not mention %q", e.Detail, uri)
	}
	if ctx.Dependents() != 0 {
		t.Fatalf("failed store still holds the context")
	}
}

func TestParseStoreType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "auto"},
		{"auto", "auto"},
		{"dummy", "dummy://"},
		{"dummy://", "dummy://"},
		{"daemon", "daemon"},
		{"local", "local"},
		{"/nix/store", "/nix/store"},
		{"./store", "./store"},
		{"ssh://host", "ssh://host"},
	}
	for _, tt := range tests {
		if got := ParseStoreType(tt.in).URI(); got != tt.want {
			t.Errorf("ParseStoreType(%q).URI() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewState_GuardChecks(t *testing.T) {
	fake := enginetest.New()
	ctx, _ := NewContext(fake)
	store, _ := OpenStore(ctx, StoreDummy)

	if _, err := NewState(ctx, store, InitGuard{}); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("zero guard accepted: %v", err)
	}

	other, _ := NewContext(fake)
	foreign, _ := Initialize(other)
	if _, err := NewState(ctx, store, foreign); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("guard from another context accepted: %v", err)
	}
	if _, err := NewState(ctx, nil, foreign); err == nil {
		t.Fatal("nil store accepted")
	}
	if n := fake.Count(enginetest.OpStateCreate); n != 0 {
		t.Fatalf("state_create called %d times", n)
	}

	store.Close()
	ctx.Close()
	other.Close()
	assertClean(t, fake)
}

func TestNewState_LookupPath(t *testing.T) {
	fake := enginetest.New()
	ctx, _ := NewContext(fake)
	guard, _ := Initialize(ctx)
	store, _ := OpenStore(ctx, StoreDummy)

	_, err := NewStateWithOptions(ctx, store, guard, &StateOptions{LookupPath: []string{""}})
	if !errors.IsKind(err, errors.KindHandleCreation) {
		t.Fatalf("expected handle creation error, got %v", err)
	}

	state, err := NewStateWithOptions(ctx, store, guard, &StateOptions{LookupPath: []string{"nixpkgs=/src"}})
	if err != nil {
		t.Fatal(err)
	}
	state.Close()
	store.Close()
	ctx.Close()
	assertClean(t, fake)
}

func TestTeardownOrder_ParentsClosedFirst(t *testing.T) {
	f := newFixture(t)
	rv := f.assign(t, "42")

	// closing owners top-down must not free anything that is still referenced
	f.ctx.Close()
	f.store.Close()
	f.state.Close()
	if n := f.fake.Count(enginetest.OpContextFree) + f.fake.Count(enginetest.OpStoreFree) + f.fake.Count(enginetest.OpStateFree); n != 0 {
		t.Fatalf("%d parents freed while a value is alive", n)
	}

	if err := rv.Close(); err != nil {
		t.Fatal(err)
	}
	want := []resource.Kind{resource.KindValue, resource.KindState, resource.KindStore, resource.KindContext}
	if got := f.rec.Released(); !kindsEqual(got, want) {
		t.Fatalf("release order = %v, want %v", got, want)
	}
	assertClean(t, f.fake)
}

func TestTeardownOrder_EngineCalls(t *testing.T) {
	f := newFixture(t)
	rv := f.assign(t, `"x"`)
	rv.Close()
	f.close(t)

	got := f.fake.Ops(enginetest.OpDecref, enginetest.OpStateFree, enginetest.OpStoreFree, enginetest.OpContextFree)
	want := []enginetest.Op{enginetest.OpDecref, enginetest.OpStateFree, enginetest.OpStoreFree, enginetest.OpContextFree}
	if len(got) != len(want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ops = %v, want %v", got, want)
		}
	}
	if f.ctx.Tracker().Live() != 0 {
		t.Fatalf("tracker still has %d live handles", f.ctx.Tracker().Live())
	}
}
