// Package enginetest provides a scripted, in-memory engine.Engine for tests.
//
// The fake evaluates nothing: expressions are looked up in Exprs, with a
// fallback for plain literals. It keeps per-handle reference counts, a call
// log and a list of protocol violations (use after free, double free, freeing
// a parent before its children) so tests can assert on handle discipline.
package enginetest

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wippyai/nix-runtime/engine"
	"github.com/wippyai/nix-runtime/errors"
)

// Op names an engine call in the fake's log.
type Op string

const (
	OpContextCreate Op = "context_create"
	OpContextFree   Op = "context_free"
	OpLibexprInit   Op = "libexpr_init"
	OpStoreOpen     Op = "store_open"
	OpStoreFree     Op = "store_free"
	OpStateCreate   Op = "state_create"
	OpStateFree     Op = "state_free"
	OpAllocValue    Op = "alloc_value"
	OpEval          Op = "eval_from_string"
	OpForce         Op = "value_force"
	OpDecref        Op = "value_decref"
	OpGetString     Op = "get_string"
	OpListByIdx     Op = "get_list_byidx"
	OpAttrByIdx     Op = "get_attr_byidx"
	OpFlakeRef      Op = "parse_flakeref"
)

type objKind string

const (
	objContext objKind = "context"
	objStore   objKind = "store"
	objState   objKind = "state"
	objValue   objKind = "value"
)

// Call is one entry of the call log.
type Call struct {
	Op  Op
	Ptr engine.Ptr
}

type object struct {
	result *Result
	kind   objKind
	parent engine.Ptr
	refs   int
	forced bool
}

type errSlot struct {
	msg  string
	code engine.Status
}

// Fake is a scripted engine.Engine.
type Fake struct {
	// Exprs maps expression text, trimmed of surrounding whitespace, to its
	// outcome.
	Exprs map[string]*Result

	// Flakes maps flake reference URLs to their canonical form. Any other
	// URL is rejected.
	Flakes map[string]string

	objects    map[engine.Ptr]*object
	slots      map[engine.Ptr]*errSlot
	failures   map[Op]string
	calls      []Call
	violations []string
	next       engine.Ptr
	mu         sync.Mutex
	closed     bool
}

// New creates a fake with an empty script.
func New() *Fake {
	return &Fake{
		Exprs:    make(map[string]*Result),
		Flakes:   make(map[string]string),
		objects:  make(map[engine.Ptr]*object),
		slots:    make(map[engine.Ptr]*errSlot),
		failures: make(map[Op]string),
		next:     0x1000,
	}
}

// Script registers the outcome of expr and returns the fake for chaining.
func (f *Fake) Script(expr string, r *Result) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Exprs[strings.TrimSpace(expr)] = r
	return f
}

// FailOn makes every subsequent call of op fail with msg.
func (f *Fake) FailOn(op Op, msg string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = msg
	return f
}

// ScriptFlake registers the canonical form of a flake reference.
func (f *Fake) ScriptFlake(url, canonical string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Flakes[url] = canonical
	return f
}

// ParseFlakeRef looks url up in Flakes.
func (f *Fake) ParseFlakeRef(url, baseDir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log(OpFlakeRef, 0)
	if !filepath.IsAbs(baseDir) {
		f.violate("%s: base directory %q is not absolute", OpFlakeRef, baseDir)
	}
	if msg, fail := f.injected(OpFlakeRef); fail {
		return "", errors.FlakeRef(url, msg)
	}
	if canonical, ok := f.Flakes[url]; ok {
		return canonical, nil
	}
	return "", errors.FlakeRef(url, fmt.Sprintf("'%s' is not a valid URL", url))
}

// Calls returns a copy of the call log.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Ops returns the logged operations, optionally filtered to the given set.
func (f *Fake) Ops(only ...Op) []Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ops []Op
	for _, c := range f.calls {
		if len(only) == 0 || containsOp(only, c.Op) {
			ops = append(ops, c.Op)
		}
	}
	return ops
}

// Count returns how many times op was called.
func (f *Fake) Count(op Op) int {
	return len(f.Ops(op))
}

// Live returns the number of engine objects still allocated.
func (f *Fake) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// LiveValues returns the number of value slots with outstanding references.
func (f *Fake) LiveValues() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.objects {
		if o.kind == objValue {
			n++
		}
	}
	return n
}

// Violations returns handle discipline violations seen so far.
func (f *Fake) Violations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.violations...)
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func containsOp(ops []Op, op Op) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

func (f *Fake) violate(format string, args ...any) {
	f.violations = append(f.violations, fmt.Sprintf(format, args...))
}

func (f *Fake) log(op Op, p engine.Ptr) {
	f.calls = append(f.calls, Call{Op: op, Ptr: p})
}

func (f *Fake) alloc(kind objKind, parent engine.Ptr, r *Result) engine.Ptr {
	f.next += 0x10
	f.objects[f.next] = &object{kind: kind, parent: parent, refs: 1, result: r}
	return f.next
}

// enter resets ctx's error slot and checks that ctx is alive.
func (f *Fake) enter(op Op, ctx engine.Ptr) *errSlot {
	slot, ok := f.slots[ctx]
	if !ok {
		f.violate("%s: context %#x used after free", op, ctx)
		return &errSlot{}
	}
	slot.code = engine.StatusOK
	slot.msg = ""
	return slot
}

func (slot *errSlot) set(code engine.Status, msg string) engine.Status {
	slot.code = code
	slot.msg = msg
	return code
}

// injected returns the injected failure for op, if any.
func (f *Fake) injected(op Op) (string, bool) {
	msg, ok := f.failures[op]
	return msg, ok
}

func (f *Fake) get(op Op, p engine.Ptr, kind objKind) *object {
	o, ok := f.objects[p]
	if !ok || o.kind != kind {
		f.violate("%s: %s %#x used after free", op, kind, p)
		return nil
	}
	return o
}

func (f *Fake) ContextCreate() engine.Ptr {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, fail := f.injected(OpContextCreate); fail {
		f.log(OpContextCreate, 0)
		return 0
	}
	p := f.alloc(objContext, 0, nil)
	f.slots[p] = &errSlot{}
	f.log(OpContextCreate, p)
	return p
}

func (f *Fake) ContextFree(ctx engine.Ptr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log(OpContextFree, ctx)
	if f.get(OpContextFree, ctx, objContext) == nil {
		f.violate("context %#x freed twice", ctx)
		return
	}
	for p, o := range f.objects {
		if p != ctx && o.parent == ctx {
			f.violate("context %#x freed while %s %#x is alive", ctx, o.kind, p)
		}
	}
	delete(f.objects, ctx)
	delete(f.slots, ctx)
}

func (f *Fake) ErrMsg(ctx engine.Ptr) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if slot, ok := f.slots[ctx]; ok {
		return slot.msg
	}
	f.violate("err_msg: context %#x used after free", ctx)
	return ""
}

func (f *Fake) ErrCode(ctx engine.Ptr) engine.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if slot, ok := f.slots[ctx]; ok {
		return slot.code
	}
	return engine.StatusUnknown
}

func (f *Fake) LibexprInit(ctx engine.Ptr) engine.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot := f.enter(OpLibexprInit, ctx)
	f.log(OpLibexprInit, ctx)
	if msg, fail := f.injected(OpLibexprInit); fail {
		return slot.set(engine.StatusUnknown, msg)
	}
	return engine.StatusOK
}

func (f *Fake) StoreOpen(ctx engine.Ptr, uri string) engine.Ptr {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot := f.enter(OpStoreOpen, ctx)
	if msg, fail := f.injected(OpStoreOpen); fail {
		f.log(OpStoreOpen, 0)
		slot.set(engine.StatusUnknown, msg)
		return 0
	}
	if scheme, _, ok := strings.Cut(uri, "://"); ok && scheme != "dummy" {
		f.log(OpStoreOpen, 0)
		slot.set(engine.StatusNixError, fmt.Sprintf("don't know how to open Nix store with URI '%s'", uri))
		return 0
	}
	p := f.alloc(objStore, ctx, nil)
	f.log(OpStoreOpen, p)
	return p
}

func (f *Fake) StoreFree(store engine.Ptr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log(OpStoreFree, store)
	if f.get(OpStoreFree, store, objStore) == nil {
		return
	}
	for p, o := range f.objects {
		if o.kind == objState && o.parent == store {
			f.violate("store %#x freed while state %#x is alive", store, p)
		}
	}
	delete(f.objects, store)
}

func (f *Fake) StateCreate(ctx engine.Ptr, lookupPath []string, store engine.Ptr) engine.Ptr {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot := f.enter(OpStateCreate, ctx)
	if msg, fail := f.injected(OpStateCreate); fail {
		f.log(OpStateCreate, 0)
		slot.set(engine.StatusUnknown, msg)
		return 0
	}
	if f.get(OpStateCreate, store, objStore) == nil {
		slot.set(engine.StatusUnknown, "invalid store")
		return 0
	}
	for _, entry := range lookupPath {
		if entry == "" {
			f.log(OpStateCreate, 0)
			slot.set(engine.StatusUnknown, "empty lookup path entry")
			return 0
		}
	}
	p := f.alloc(objState, store, nil)
	f.log(OpStateCreate, p)
	return p
}

func (f *Fake) StateFree(state engine.Ptr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log(OpStateFree, state)
	if f.get(OpStateFree, state, objState) == nil {
		return
	}
	for p, o := range f.objects {
		if o.kind == objValue && o.parent == state {
			f.violate("state %#x freed while value %#x is alive", state, p)
		}
	}
	delete(f.objects, state)
}

func (f *Fake) AllocValue(ctx, state engine.Ptr) engine.Ptr {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot := f.enter(OpAllocValue, ctx)
	if msg, fail := f.injected(OpAllocValue); fail {
		f.log(OpAllocValue, 0)
		slot.set(engine.StatusUnknown, msg)
		return 0
	}
	if f.get(OpAllocValue, state, objState) == nil {
		slot.set(engine.StatusUnknown, "invalid state")
		return 0
	}
	p := f.alloc(objValue, state, nil)
	f.log(OpAllocValue, p)
	return p
}

func (f *Fake) ExprEvalFromString(ctx, state engine.Ptr, expr, path string, value engine.Ptr) engine.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot := f.enter(OpEval, ctx)
	f.log(OpEval, value)
	o := f.get(OpEval, value, objValue)
	if o == nil || f.get(OpEval, state, objState) == nil {
		return slot.set(engine.StatusUnknown, "invalid handle")
	}
	if msg, fail := f.injected(OpEval); fail {
		return slot.set(engine.StatusNixError, msg)
	}
	r, ok := f.Exprs[strings.TrimSpace(expr)]
	if !ok {
		r = literal(expr)
	}
	if r.EvalErr != "" {
		return slot.set(engine.StatusNixError, r.EvalErr)
	}
	o.result = r
	return engine.StatusOK
}

func (f *Fake) ValueForce(ctx, state, value engine.Ptr) engine.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot := f.enter(OpForce, ctx)
	f.log(OpForce, value)
	o := f.get(OpForce, value, objValue)
	if o == nil || o.result == nil {
		return slot.set(engine.StatusUnknown, "forcing an unassigned value")
	}
	if msg, fail := f.injected(OpForce); fail {
		return slot.set(engine.StatusNixError, msg)
	}
	if o.result.Type == engine.TypeThunk {
		if o.result.ForceErr != "" {
			return slot.set(engine.StatusNixError, o.result.ForceErr)
		}
		if o.result.Forced != nil {
			o.result = o.result.Forced
		}
	}
	o.forced = true
	return engine.StatusOK
}

func (f *Fake) ValueDecref(ctx, value engine.Ptr) engine.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	slot := f.enter(OpDecref, ctx)
	f.log(OpDecref, value)
	o := f.get(OpDecref, value, objValue)
	if o == nil {
		return slot.set(engine.StatusUnknown, "decref of unknown value")
	}
	o.refs--
	if o.refs == 0 {
		delete(f.objects, value)
	}
	if msg, fail := f.injected(OpDecref); fail {
		return slot.set(engine.StatusNixError, msg)
	}
	return engine.StatusOK
}

// value fetches an assigned value for a getter, setting the error slot on
// failure.
func (f *Fake) value(op Op, ctx, p engine.Ptr, want engine.ValueType) (*Result, *errSlot) {
	slot := f.enter(op, ctx)
	o := f.get(op, p, objValue)
	if o == nil || o.result == nil {
		slot.set(engine.StatusUnknown, "value is not assigned")
		return nil, slot
	}
	if o.result.Type != want {
		slot.set(engine.StatusUnknown, fmt.Sprintf("value is %s while %s was expected", o.result.Type, want))
		return nil, slot
	}
	return o.result, slot
}

func (f *Fake) GetType(ctx, value engine.Ptr) engine.ValueType {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enter("get_type", ctx)
	o := f.get("get_type", value, objValue)
	if o == nil || o.result == nil {
		return engine.TypeThunk
	}
	return o.result.Type
}

func (f *Fake) GetString(ctx, value engine.Ptr) (string, engine.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log(OpGetString, value)
	r, slot := f.value(OpGetString, ctx, value, engine.TypeString)
	if r == nil {
		return "", slot.code
	}
	return r.Str, engine.StatusOK
}

func (f *Fake) GetPathString(ctx, value engine.Ptr) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, _ := f.value("get_path_string", ctx, value, engine.TypePath); r != nil {
		return r.Str
	}
	return ""
}

func (f *Fake) GetInt(ctx, value engine.Ptr) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, _ := f.value("get_int", ctx, value, engine.TypeInt); r != nil {
		return r.Int
	}
	return 0
}

func (f *Fake) GetFloat(ctx, value engine.Ptr) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, _ := f.value("get_float", ctx, value, engine.TypeFloat); r != nil {
		return r.Float
	}
	return 0
}

func (f *Fake) GetBool(ctx, value engine.Ptr) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, _ := f.value("get_bool", ctx, value, engine.TypeBool); r != nil {
		return r.Bool
	}
	return false
}

func (f *Fake) GetListSize(ctx, value engine.Ptr) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, _ := f.value("get_list_size", ctx, value, engine.TypeList); r != nil {
		return uint32(len(r.List))
	}
	return 0
}

func (f *Fake) GetListByIdx(ctx, value, state engine.Ptr, i uint32) engine.Ptr {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, _ := f.value(OpListByIdx, ctx, value, engine.TypeList)
	if r == nil {
		return 0
	}
	if int(i) >= len(r.List) {
		// The engine does not bounds-check list indexes.
		f.violate("%s: index %d read past list of %d", OpListByIdx, i, len(r.List))
		return 0
	}
	p := f.alloc(objValue, state, r.List[i])
	f.log(OpListByIdx, p)
	return p
}

func (f *Fake) GetAttrsSize(ctx, value engine.Ptr) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, _ := f.value("get_attrs_size", ctx, value, engine.TypeAttrs); r != nil {
		return uint32(len(r.Attrs))
	}
	return 0
}

// GetAttrByIdx walks attributes in reverse name order; the engine orders
// attributes by symbol, not by name.
func (f *Fake) GetAttrByIdx(ctx, value, state engine.Ptr, i uint32) (engine.Ptr, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, slot := f.value(OpAttrByIdx, ctx, value, engine.TypeAttrs)
	if r == nil {
		return 0, ""
	}
	names := make([]string, 0, len(r.Attrs))
	for name := range r.Attrs {
		names = append(names, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if int(i) >= len(names) {
		slot.set(engine.StatusKey, fmt.Sprintf("attribute index %d out of bounds", i))
		return 0, ""
	}
	p := f.alloc(objValue, state, r.Attrs[names[i]])
	f.log(OpAttrByIdx, p)
	return p, names[i]
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

var (
	_ engine.Engine         = (*Fake)(nil)
	_ engine.FlakeRefParser = (*Fake)(nil)
)
