//go:build cgo && nixc

package engine

/*
#cgo pkg-config: nix-expr-c nix-store-c nix-util-c
#include <stdlib.h>
#include <stdint.h>
#include <nix_api_util.h>
#include <nix_api_store.h>
#include <nix_api_expr.h>
#include <nix_api_value.h>

extern void goNixStringCallback(char *start, unsigned int n, void *user_data);

static nix_err nixrt_get_string(nix_c_context *ctx, const nix_value *v, uintptr_t h) {
	return nix_get_string(ctx, v, (nix_get_string_callback)goNixStringCallback, (void *)h);
}
*/
import "C"

import (
	"runtime/cgo"
	"strings"
	"unsafe"
)

// The Go type tags must line up with the C enum.
var (
	_ = [1]struct{}{}[TypeThunk-ValueType(C.NIX_TYPE_THUNK)]
	_ = [1]struct{}{}[TypeExternal-ValueType(C.NIX_TYPE_EXTERNAL)]
)

// NativeEngine calls libnixexprc directly through cgo.
type NativeEngine struct{}

// Native returns the cgo backend.
func Native() (Engine, error) {
	Logger().Debug("using native nix C API backend")
	return &NativeEngine{}, nil
}

func cctx(p Ptr) *C.nix_c_context { return (*C.nix_c_context)(unsafe.Pointer(p)) }
func cstore(p Ptr) *C.Store       { return (*C.Store)(unsafe.Pointer(p)) }
func cstate(p Ptr) *C.EvalState   { return (*C.EvalState)(unsafe.Pointer(p)) }
func cvalue(p Ptr) *C.nix_value   { return (*C.nix_value)(unsafe.Pointer(p)) }

func (e *NativeEngine) ContextCreate() Ptr {
	return Ptr(unsafe.Pointer(C.nix_c_context_create()))
}

func (e *NativeEngine) ContextFree(ctx Ptr) {
	C.nix_c_context_free(cctx(ctx))
}

func (e *NativeEngine) ErrMsg(ctx Ptr) string {
	raw := C.nix_err_msg(nil, cctx(ctx), nil)
	if raw == nil {
		return ""
	}
	return C.GoString(raw)
}

func (e *NativeEngine) ErrCode(ctx Ptr) Status {
	return Status(C.nix_err_code(cctx(ctx)))
}

func (e *NativeEngine) LibexprInit(ctx Ptr) Status {
	return Status(C.nix_libexpr_init(cctx(ctx)))
}

func (e *NativeEngine) StoreOpen(ctx Ptr, uri string) Ptr {
	curi := C.CString(uri)
	defer C.free(unsafe.Pointer(curi))
	return Ptr(unsafe.Pointer(C.nix_store_open(cctx(ctx), curi, nil)))
}

func (e *NativeEngine) StoreFree(store Ptr) {
	C.nix_store_free(cstore(store))
}

func (e *NativeEngine) StateCreate(ctx Ptr, lookupPath []string, store Ptr) Ptr {
	var lookup **C.char
	if len(lookupPath) > 0 {
		// NULL-terminated array of C strings
		arr := (*[1 << 20]*C.char)(C.malloc(C.size_t(len(lookupPath)+1) * C.size_t(unsafe.Sizeof(uintptr(0)))))
		for i, entry := range lookupPath {
			arr[i] = C.CString(entry)
		}
		arr[len(lookupPath)] = nil
		defer func() {
			for i := range lookupPath {
				C.free(unsafe.Pointer(arr[i]))
			}
			C.free(unsafe.Pointer(arr))
		}()
		lookup = &arr[0]
	}
	return Ptr(unsafe.Pointer(C.nix_state_create(cctx(ctx), lookup, cstore(store))))
}

func (e *NativeEngine) StateFree(state Ptr) {
	C.nix_state_free(cstate(state))
}

func (e *NativeEngine) AllocValue(ctx, state Ptr) Ptr {
	return Ptr(unsafe.Pointer(C.nix_alloc_value(cctx(ctx), cstate(state))))
}

func (e *NativeEngine) ExprEvalFromString(ctx, state Ptr, expr, path string, value Ptr) Status {
	cexpr := C.CString(expr)
	defer C.free(unsafe.Pointer(cexpr))
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	return Status(C.nix_expr_eval_from_string(cctx(ctx), cstate(state), cexpr, cpath, cvalue(value)))
}

func (e *NativeEngine) ValueForce(ctx, state, value Ptr) Status {
	return Status(C.nix_value_force(cctx(ctx), cstate(state), cvalue(value)))
}

func (e *NativeEngine) ValueDecref(ctx, value Ptr) Status {
	return Status(C.nix_value_decref(cctx(ctx), cvalue(value)))
}

func (e *NativeEngine) GetType(ctx, value Ptr) ValueType {
	return ValueType(C.nix_get_type(cctx(ctx), cvalue(value)))
}

func (e *NativeEngine) GetString(ctx, value Ptr) (string, Status) {
	var b strings.Builder
	h := cgo.NewHandle(&b)
	defer h.Delete()
	st := Status(C.nixrt_get_string(cctx(ctx), cvalue(value), C.uintptr_t(h)))
	return b.String(), st
}

func (e *NativeEngine) GetPathString(ctx, value Ptr) string {
	raw := C.nix_get_path_string(cctx(ctx), cvalue(value))
	if raw == nil {
		return ""
	}
	return C.GoString(raw)
}

func (e *NativeEngine) GetInt(ctx, value Ptr) int64 {
	return int64(C.nix_get_int(cctx(ctx), cvalue(value)))
}

func (e *NativeEngine) GetFloat(ctx, value Ptr) float64 {
	return float64(C.nix_get_float(cctx(ctx), cvalue(value)))
}

func (e *NativeEngine) GetBool(ctx, value Ptr) bool {
	return bool(C.nix_get_bool(cctx(ctx), cvalue(value)))
}

func (e *NativeEngine) GetListSize(ctx, value Ptr) uint32 {
	return uint32(C.nix_get_list_size(cctx(ctx), cvalue(value)))
}

func (e *NativeEngine) GetListByIdx(ctx, value, state Ptr, i uint32) Ptr {
	return Ptr(unsafe.Pointer(C.nix_get_list_byidx(cctx(ctx), cvalue(value), cstate(state), C.uint(i))))
}

func (e *NativeEngine) GetAttrsSize(ctx, value Ptr) uint32 {
	return uint32(C.nix_get_attrs_size(cctx(ctx), cvalue(value)))
}

func (e *NativeEngine) GetAttrByIdx(ctx, value, state Ptr, i uint32) (Ptr, string) {
	var name *C.char
	p := Ptr(unsafe.Pointer(C.nix_get_attr_byidx(cctx(ctx), cvalue(value), cstate(state), C.uint(i), &name)))
	if name == nil {
		return p, ""
	}
	return p, C.GoString(name)
}

func (e *NativeEngine) Close() error {
	return nil
}
