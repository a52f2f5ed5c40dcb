package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/nix-runtime/errors"
)

// Reactor export names. The reactor build exports the C API with 32-bit
// pointers, plus malloc/free so the host can place strings in guest memory.
const (
	ExportContextCreate = "nix_c_context_create" // () -> ctx
	ExportContextFree   = "nix_c_context_free"   // (ctx)
	ExportErrMsg        = "nix_err_msg"          // (0, ctx, 0) -> cstr
	ExportErrCode       = "nix_err_code"         // (ctx) -> err
	ExportLibexprInit   = "nix_libexpr_init"     // (ctx) -> err
	ExportStoreOpen     = "nix_store_open"       // (ctx, uri, 0) -> store
	ExportStoreFree     = "nix_store_free"       // (store)
	ExportStateCreate   = "nix_state_create"     // (ctx, lookup, store) -> state
	ExportStateFree     = "nix_state_free"       // (state)
	ExportAllocValue    = "nix_alloc_value"      // (ctx, state) -> value
	ExportEvalString    = "nix_expr_eval_from_string"
	ExportValueForce    = "nix_value_force"     // (ctx, state, value) -> err
	ExportValueDecref   = "nix_value_decref"    // (ctx, value) -> err
	ExportGetType       = "nix_get_type"        // (ctx, value) -> type
	ExportGetPathString = "nix_get_path_string" // (ctx, value) -> cstr
	ExportGetInt        = "nix_get_int"         // (ctx, value) -> i64
	ExportGetFloat      = "nix_get_float"       // (ctx, value) -> f64
	ExportGetBool       = "nix_get_bool"        // (ctx, value) -> i32
	ExportGetListSize   = "nix_get_list_size"   // (ctx, value) -> u32
	ExportGetListByIdx  = "nix_get_list_byidx"  // (ctx, value, state, i) -> value
	ExportGetAttrsSize  = "nix_get_attrs_size"  // (ctx, value) -> u32
	ExportGetAttrByIdx  = "nix_get_attr_byidx"  // (ctx, value, state, i, name_out) -> value

	// ExportGetStringCopy replaces the callback based nix_get_string.
	// Signature: (ctx, value) -> cstr, owned by the host and released with free.
	ExportGetStringCopy = "nix_wasm_get_string"

	ExportMalloc = "malloc"
	ExportFree   = "free"
)

var requiredExports = []string{
	ExportContextCreate, ExportContextFree, ExportErrMsg, ExportErrCode,
	ExportLibexprInit, ExportStoreOpen, ExportStoreFree, ExportStateCreate,
	ExportStateFree, ExportAllocValue, ExportEvalString, ExportValueForce,
	ExportValueDecref, ExportGetType, ExportGetPathString, ExportGetInt,
	ExportGetFloat, ExportGetBool, ExportGetListSize, ExportGetListByIdx,
	ExportGetAttrsSize, ExportGetAttrByIdx, ExportGetStringCopy,
	ExportMalloc, ExportFree,
}

// maxCString bounds reads of NUL-terminated guest strings.
const maxCString = 64 << 20

// WasmConfig holds configuration for the WebAssembly backend
type WasmConfig struct {
	// MemoryLimitPages sets the maximum guest memory in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// Name is the module instance name. Defaults to "nix".
	Name string

	// Mounts maps guest paths to host directories, so expressions can read
	// files. Nothing is mounted by default.
	Mounts map[string]string

	// Stderr receives the evaluator's own diagnostics. Discarded when nil.
	Stderr io.Writer
}

func (c *WasmConfig) moduleConfig(name string) wazero.ModuleConfig {
	modCfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions("_initialize").
		WithSysWalltime().
		WithSysNanotime()
	if c == nil {
		return modCfg
	}
	if len(c.Mounts) > 0 {
		fsCfg := wazero.NewFSConfig()
		for guest, host := range c.Mounts {
			fsCfg = fsCfg.WithDirMount(host, guest)
		}
		modCfg = modCfg.WithFSConfig(fsCfg)
	}
	if c.Stderr != nil {
		modCfg = modCfg.WithStderr(c.Stderr)
	}
	return modCfg
}

// WasmEngine drives a WASI reactor build of the evaluator through wazero.
//
// A guest trap cannot be reported through the guest's own error slot, so the
// trap is kept host-side per context. Like the guest's slot, it is reset by
// the next call made with that context.
type WasmEngine struct {
	ctx     context.Context
	runtime wazero.Runtime
	module  api.Module
	fns     map[string]api.Function
	traps   map[Ptr]error
	cur     Ptr
	mu      sync.Mutex
}

// NewWasmEngine compiles and instantiates a reactor module.
// ctx is used for every guest call made through the engine.
func NewWasmEngine(ctx context.Context, wasm []byte, cfg *WasmConfig) (*WasmEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	name := "nix"
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.Name != "" {
			name = cfg.Name
		}
	}

	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindEngine, err, "instantiate WASI")
	}

	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindEngine, err, "compile evaluator module")
	}

	mod, err := rt.InstantiateModule(ctx, compiled, cfg.moduleConfig(name))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindEngine, err, "instantiate evaluator module")
	}

	fns := make(map[string]api.Function, len(requiredExports))
	for _, export := range requiredExports {
		fn := mod.ExportedFunction(export)
		if fn == nil {
			_ = rt.Close(ctx)
			return nil, errors.NotFound(errors.PhaseEngine, "export", export)
		}
		fns[export] = fn
	}

	Logger().Debug("loaded wasm evaluator",
		zap.String("module", name),
		zap.Int("exports", len(fns)))

	return &WasmEngine{
		ctx:     ctx,
		runtime: rt,
		module:  mod,
		fns:     fns,
		traps:   make(map[Ptr]error),
	}, nil
}

// enter starts an engine call on behalf of ctx and clears its trap.
// ctx is zero for calls that have no context to report through.
func (e *WasmEngine) enter(ctx Ptr) {
	e.cur = ctx
	delete(e.traps, ctx)
}

// fail records err against the context of the current call.
func (e *WasmEngine) fail(err error) {
	if e.cur != 0 {
		e.traps[e.cur] = err
	}
}

// call invokes an export and records a trap instead of returning it.
func (e *WasmEngine) call(name string, args ...uint64) (uint64, bool) {
	results, err := e.fns[name].Call(e.ctx, args...)
	if err != nil {
		Logger().Warn("wasm evaluator trapped",
			zap.String("export", name),
			zap.Error(err))
		e.fail(fmt.Errorf("%s: %w", name, err))
		return 0, false
	}
	if len(results) == 0 {
		return 0, true
	}
	return results[0], true
}

func (e *WasmEngine) callPtr(name string, args ...uint64) Ptr {
	r, ok := e.call(name, args...)
	if !ok {
		return 0
	}
	return Ptr(api.DecodeU32(r))
}

func (e *WasmEngine) callStatus(name string, args ...uint64) Status {
	r, ok := e.call(name, args...)
	if !ok {
		return StatusUnknown
	}
	return Status(api.DecodeI32(r))
}

func (e *WasmEngine) malloc(size uint32) uint32 {
	r, ok := e.call(ExportMalloc, api.EncodeU32(size))
	if !ok {
		return 0
	}
	return api.DecodeU32(r)
}

func (e *WasmEngine) free(ptr uint32) {
	if ptr != 0 {
		e.call(ExportFree, api.EncodeU32(ptr))
	}
}

// writeCString copies s into guest memory with a trailing NUL.
func (e *WasmEngine) writeCString(s string) (uint32, bool) {
	ptr := e.malloc(uint32(len(s) + 1))
	if ptr == 0 {
		return 0, false
	}
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	if !e.module.Memory().Write(ptr, buf) {
		e.free(ptr)
		e.fail(fmt.Errorf("write out of bounds: offset=%d, length=%d", ptr, len(buf)))
		return 0, false
	}
	return ptr, true
}

// readCString reads a NUL-terminated string from guest memory.
func (e *WasmEngine) readCString(ptr uint32) string {
	if ptr == 0 {
		return ""
	}
	mem := e.module.Memory()
	size := mem.Size()
	end := ptr
	for end < size && end-ptr < maxCString {
		b, ok := mem.ReadByte(end)
		if !ok || b == 0 {
			break
		}
		end++
	}
	data, ok := mem.Read(ptr, end-ptr)
	if !ok {
		return ""
	}
	return string(data)
}

func (e *WasmEngine) ContextCreate() Ptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(0)
	return e.callPtr(ExportContextCreate)
}

func (e *WasmEngine) ContextFree(ctx Ptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(0)
	e.call(ExportContextFree, uint64(ctx))
	delete(e.traps, ctx)
}

func (e *WasmEngine) ErrMsg(ctx Ptr) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.traps[ctx]; err != nil {
		return err.Error()
	}
	e.cur = 0
	ptr := e.callPtr(ExportErrMsg, 0, uint64(ctx), 0)
	return e.readCString(uint32(ptr))
}

func (e *WasmEngine) ErrCode(ctx Ptr) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.traps[ctx] != nil {
		return StatusUnknown
	}
	e.cur = 0
	return e.callStatus(ExportErrCode, uint64(ctx))
}

func (e *WasmEngine) LibexprInit(ctx Ptr) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(ctx)
	return e.callStatus(ExportLibexprInit, uint64(ctx))
}

func (e *WasmEngine) StoreOpen(ctx Ptr, uri string) Ptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(ctx)
	curi, ok := e.writeCString(uri)
	if !ok {
		return 0
	}
	defer e.free(curi)
	return e.callPtr(ExportStoreOpen, uint64(ctx), uint64(curi), 0)
}

func (e *WasmEngine) StoreFree(store Ptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(0)
	e.call(ExportStoreFree, uint64(store))
}

func (e *WasmEngine) StateCreate(ctx Ptr, lookupPath []string, store Ptr) Ptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(ctx)

	var lookup uint32
	if len(lookupPath) > 0 {
		// NULL-terminated array of 32-bit string pointers
		lookup = e.malloc(uint32(4 * (len(lookupPath) + 1)))
		if lookup == 0 {
			return 0
		}
		entries := make([]uint32, 0, len(lookupPath))
		defer func() {
			for _, p := range entries {
				e.free(p)
			}
			e.free(lookup)
		}()
		table := make([]byte, 4*(len(lookupPath)+1))
		for i, entry := range lookupPath {
			p, ok := e.writeCString(entry)
			if !ok {
				return 0
			}
			entries = append(entries, p)
			binary.LittleEndian.PutUint32(table[4*i:], p)
		}
		if !e.module.Memory().Write(lookup, table) {
			e.fail(fmt.Errorf("write out of bounds: offset=%d, length=%d", lookup, len(table)))
			return 0
		}
	}
	return e.callPtr(ExportStateCreate, uint64(ctx), uint64(lookup), uint64(store))
}

func (e *WasmEngine) StateFree(state Ptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(0)
	e.call(ExportStateFree, uint64(state))
}

func (e *WasmEngine) AllocValue(ctx, state Ptr) Ptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(ctx)
	return e.callPtr(ExportAllocValue, uint64(ctx), uint64(state))
}

func (e *WasmEngine) ExprEvalFromString(ctx, state Ptr, expr, path string, value Ptr) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(ctx)
	cexpr, ok := e.writeCString(expr)
	if !ok {
		return StatusUnknown
	}
	defer e.free(cexpr)
	cpath, ok := e.writeCString(path)
	if !ok {
		return StatusUnknown
	}
	defer e.free(cpath)
	return e.callStatus(ExportEvalString, uint64(ctx), uint64(state), uint64(cexpr), uint64(cpath), uint64(value))
}

func (e *WasmEngine) ValueForce(ctx, state, value Ptr) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(ctx)
	return e.callStatus(ExportValueForce, uint64(ctx), uint64(state), uint64(value))
}

func (e *WasmEngine) ValueDecref(ctx, value Ptr) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(ctx)
	return e.callStatus(ExportValueDecref, uint64(ctx), uint64(value))
}

func (e *WasmEngine) GetType(ctx, value Ptr) ValueType {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(ctx)
	r, ok := e.call(ExportGetType, uint64(ctx), uint64(value))
	if !ok {
		return TypeThunk
	}
	return ValueType(api.DecodeI32(r))
}

func (e *WasmEngine) GetString(ctx, value Ptr) (string, Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(ctx)
	ptr := uint32(e.callPtr(ExportGetStringCopy, uint64(ctx), uint64(value)))
	if ptr == 0 {
		if e.traps[ctx] != nil {
			return "", StatusUnknown
		}
		return "", e.callStatus(ExportErrCode, uint64(ctx))
	}
	defer e.free(ptr)
	return e.readCString(ptr), StatusOK
}

func (e *WasmEngine) GetPathString(ctx, value Ptr) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(ctx)
	return e.readCString(uint32(e.callPtr(ExportGetPathString, uint64(ctx), uint64(value))))
}

func (e *WasmEngine) GetInt(ctx, value Ptr) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(ctx)
	r, _ := e.call(ExportGetInt, uint64(ctx), uint64(value))
	return int64(r)
}

func (e *WasmEngine) GetFloat(ctx, value Ptr) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(ctx)
	r, _ := e.call(ExportGetFloat, uint64(ctx), uint64(value))
	return math.Float64frombits(r)
}

func (e *WasmEngine) GetBool(ctx, value Ptr) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(ctx)
	r, _ := e.call(ExportGetBool, uint64(ctx), uint64(value))
	return api.DecodeU32(r) != 0
}

func (e *WasmEngine) GetListSize(ctx, value Ptr) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(ctx)
	r, _ := e.call(ExportGetListSize, uint64(ctx), uint64(value))
	return api.DecodeU32(r)
}

func (e *WasmEngine) GetListByIdx(ctx, value, state Ptr, i uint32) Ptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(ctx)
	return e.callPtr(ExportGetListByIdx, uint64(ctx), uint64(value), uint64(state), api.EncodeU32(i))
}

func (e *WasmEngine) GetAttrsSize(ctx, value Ptr) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(ctx)
	r, _ := e.call(ExportGetAttrsSize, uint64(ctx), uint64(value))
	return api.DecodeU32(r)
}

func (e *WasmEngine) GetAttrByIdx(ctx, value, state Ptr, i uint32) (Ptr, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enter(ctx)
	nameOut := e.malloc(4)
	if nameOut == 0 {
		return 0, ""
	}
	defer e.free(nameOut)
	mem := e.module.Memory()
	mem.WriteUint32Le(nameOut, 0)
	p := e.callPtr(ExportGetAttrByIdx, uint64(ctx), uint64(value), uint64(state), api.EncodeU32(i), uint64(nameOut))
	namePtr, ok := mem.ReadUint32Le(nameOut)
	if !ok {
		return p, ""
	}
	return p, e.readCString(namePtr)
}

// Close tears down the wazero runtime and every module in it.
func (e *WasmEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runtime == nil {
		return nil
	}
	err := e.runtime.Close(e.ctx)
	e.runtime = nil
	e.module = nil
	e.fns = nil
	return err
}
