package enginetest

import (
	"strconv"
	"strings"

	"github.com/wippyai/nix-runtime/engine"
)

// Result is the scripted outcome of evaluating one expression.
type Result struct {
	Attrs    map[string]*Result
	Forced   *Result // thunk contents after a successful force
	Str      string
	EvalErr  string // assignment fails with this message
	ForceErr string // forcing fails with this message
	List     []*Result
	Int      int64
	Float    float64
	Type     engine.ValueType
	Bool     bool
}

func Str(s string) *Result    { return &Result{Type: engine.TypeString, Str: s} }
func Path(p string) *Result   { return &Result{Type: engine.TypePath, Str: p} }
func Int(n int64) *Result     { return &Result{Type: engine.TypeInt, Int: n} }
func Float(f float64) *Result { return &Result{Type: engine.TypeFloat, Float: f} }
func Bool(b bool) *Result     { return &Result{Type: engine.TypeBool, Bool: b} }
func Null() *Result           { return &Result{Type: engine.TypeNull} }
func Lambda() *Result         { return &Result{Type: engine.TypeFunction} }
func External() *Result       { return &Result{Type: engine.TypeExternal} }

func List(items ...*Result) *Result {
	return &Result{Type: engine.TypeList, List: items}
}

// Attrs builds an attribute set result.
func Attrs(attrs map[string]*Result) *Result {
	return &Result{Type: engine.TypeAttrs, Attrs: attrs}
}

// Thunk is an unevaluated value that becomes r when forced.
func Thunk(r *Result) *Result {
	return &Result{Type: engine.TypeThunk, Forced: r}
}

// Failing is a thunk whose forcing fails with msg.
func Failing(msg string) *Result {
	return &Result{Type: engine.TypeThunk, ForceErr: msg}
}

// ParseError makes assignment of the expression fail with msg.
func ParseError(msg string) *Result {
	return &Result{EvalErr: msg}
}

// literal interprets the handful of literals the fake understands without a
// script entry: strings, integers, booleans and null.
func literal(expr string) *Result {
	expr = strings.TrimSpace(expr)
	switch {
	case expr == "":
		return ParseError("syntax error, unexpected end of file")
	case expr == "true":
		return Bool(true)
	case expr == "false":
		return Bool(false)
	case expr == "null":
		return Null()
	case strings.HasPrefix(expr, `"`):
		s, err := strconv.Unquote(expr)
		if err != nil {
			return ParseError("syntax error, unexpected end of file, expecting '\"'")
		}
		return Str(s)
	}
	if n, err := strconv.ParseInt(expr, 10, 64); err == nil {
		return Int(n)
	}
	return ParseError("undefined variable '" + expr + "'")
}
