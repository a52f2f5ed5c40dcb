package engine

import "strconv"

// Ptr is an opaque engine handle. The zero Ptr is the engine's null.
type Ptr uintptr

// IsNull reports whether p is the engine's null handle.
func (p Ptr) IsNull() bool {
	return p == 0
}

// Status is an engine status code (nix_err).
type Status int

// Status codes matching the nix_err enum
const (
	StatusOK       Status = 0
	StatusUnknown  Status = -1
	StatusOverflow Status = -2
	StatusKey      Status = -3
	StatusNixError Status = -4
)

// OK reports whether s is StatusOK.
func (s Status) OK() bool {
	return s == StatusOK
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "NIX_OK"
	case StatusUnknown:
		return "NIX_ERR_UNKNOWN"
	case StatusOverflow:
		return "NIX_ERR_OVERFLOW"
	case StatusKey:
		return "NIX_ERR_KEY"
	case StatusNixError:
		return "NIX_ERR_NIX_ERROR"
	default:
		return "nix_err(" + strconv.Itoa(int(s)) + ")"
	}
}

// ValueType is the engine's type tag for a value (ValueType enum).
type ValueType int

// Value types in the order of the engine's ValueType enum
const (
	TypeThunk ValueType = iota
	TypeInt
	TypeFloat
	TypeBool
	TypeString
	TypePath
	TypeNull
	TypeAttrs
	TypeList
	TypeFunction
	TypeExternal
)

var typeNames = [...]string{
	TypeThunk:    "thunk",
	TypeInt:      "int",
	TypeFloat:    "float",
	TypeBool:     "bool",
	TypeString:   "string",
	TypePath:     "path",
	TypeNull:     "null",
	TypeAttrs:    "set",
	TypeList:     "list",
	TypeFunction: "lambda",
	TypeExternal: "external",
}

func (t ValueType) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// Engine is the foreign evaluator's C-style handle API.
//
// Every call is synchronous. Calls taking a context report failures in that
// context's error slot, which is last-write-wins: read it with ErrMsg before
// making another call. Pointer-returning calls signal failure with a null Ptr.
//
// Values returned by GetListByIdx and GetAttrByIdx carry their own reference
// and must be released with ValueDecref.
type Engine interface {
	ContextCreate() Ptr
	ContextFree(ctx Ptr)
	ErrMsg(ctx Ptr) string
	ErrCode(ctx Ptr) Status

	LibexprInit(ctx Ptr) Status

	StoreOpen(ctx Ptr, uri string) Ptr
	StoreFree(store Ptr)

	StateCreate(ctx Ptr, lookupPath []string, store Ptr) Ptr
	StateFree(state Ptr)

	AllocValue(ctx, state Ptr) Ptr
	ExprEvalFromString(ctx, state Ptr, expr, path string, value Ptr) Status
	ValueForce(ctx, state, value Ptr) Status
	ValueDecref(ctx, value Ptr) Status

	GetType(ctx, value Ptr) ValueType
	GetString(ctx, value Ptr) (string, Status)
	GetPathString(ctx, value Ptr) string
	GetInt(ctx, value Ptr) int64
	GetFloat(ctx, value Ptr) float64
	GetBool(ctx, value Ptr) bool
	GetListSize(ctx, value Ptr) uint32
	GetListByIdx(ctx, value, state Ptr, i uint32) Ptr
	GetAttrsSize(ctx, value Ptr) uint32
	GetAttrByIdx(ctx, value, state Ptr, i uint32) (Ptr, string)

	// Close releases backend resources (loaded libraries, wasm runtimes).
	// Handles created by the engine must be released first.
	Close() error
}

// FlakeRefParser is implemented by backends that can parse flake references.
// Flake references sit outside the C API, so not every backend has them.
type FlakeRefParser interface {
	// ParseFlakeRef parses url, resolving relative paths against the
	// absolute directory baseDir, and returns the reference in canonical form.
	ParseFlakeRef(url, baseDir string) (string, error)
}
