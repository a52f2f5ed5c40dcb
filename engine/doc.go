// Package engine defines the evaluator's handle API and its backends.
//
// Engine mirrors the evaluator's C API one call per method: contexts with a
// last-write-wins error slot, stores, evaluator states and reference counted
// values. Handles are opaque Ptr values; null signals failure.
//
// # Backends
//
//	NativeEngine  - cgo binding to libnixexprc (build tags cgo and nixc)
//	WasmEngine    - WASI reactor build of the evaluator run under wazero
//
// Without the nixc tag Native returns an unsupported error.
//
// Flake references are not part of the C API. NativeEngine parses them through
// a small C++ shim over libnixflake and implements FlakeRefParser; WasmEngine
// does not.
//
// # Reactor ABI
//
// The reactor exports the C API with 32-bit pointers and malloc/free for
// host-placed strings. nix_get_string takes a callback, which a reactor cannot
// call back into the host with, so the reactor also exports
// nix_wasm_get_string returning a malloc'd copy:
//
//	Export                       Signature
//	──────────────────────────────────────────────────────────
//	nix_c_context_create         () -> ctx
//	nix_err_msg                  (0, ctx, 0) -> cstr
//	nix_store_open               (ctx, uri, 0) -> store
//	nix_state_create             (ctx, lookup, store) -> state
//	nix_expr_eval_from_string    (ctx, state, expr, path, value) -> err
//	nix_wasm_get_string          (ctx, value) -> cstr
//	nix_get_attr_byidx           (ctx, value, state, i, name_out) -> value
//
// A trap inside the guest is recorded host-side against the context of the
// trapping call and reported by ErrCode and ErrMsg on that context, so callers
// see it through the ordinary error channel. The next call with the same
// context clears it.
//
// # Thread Safety
//
// WasmEngine serializes guest calls with a mutex. The evaluator's error slot
// is per context; callers pair a failing call with its ErrMsg under their own
// lock.
package engine
