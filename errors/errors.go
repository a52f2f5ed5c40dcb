package errors

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates which lifecycle step produced the error
type Phase string

const (
	PhaseContext Phase = "context" // context allocation and teardown
	PhaseInit    Phase = "init"    // expression subsystem initialization
	PhaseStore   Phase = "store"   // store open/close
	PhaseState   Phase = "state"   // evaluator state creation
	PhaseValue   Phase = "value"   // value allocation and accessors
	PhaseEval    Phase = "eval"    // expression parse and bind
	PhaseForce   Phase = "force"   // forcing the lazy graph
	PhaseDisplay Phase = "display" // rendering a value as text
	PhaseFlake   Phase = "flake"   // flake reference parsing
	PhaseEngine  Phase = "engine"  // backend loading
	PhaseConfig  Phase = "config"  // configuration loading
	PhaseCLI     Phase = "cli"     // command line surface
)

// Kind categorizes the error
type Kind string

const (
	KindHandleCreation Kind = "handle_creation"
	KindInitialization Kind = "initialization"
	KindExprEval       Kind = "expr_eval"
	KindForce          Kind = "force"
	KindArgument       Kind = "argument"
	KindEmptyInput     Kind = "empty_input"
	KindReleased       Kind = "released"
	KindMoved          Kind = "moved"
	KindTypeMismatch   Kind = "type_mismatch"
	KindUnsupported    Kind = "unsupported"
	KindInvalidInput   Kind = "invalid_input"
	KindNotFound       Kind = "not_found"
	KindEngine         Kind = "engine"
	KindFlakeRef       Kind = "flake_ref"
)

// Handle names the kind of engine handle an error refers to
type Handle string

const (
	HandleContext Handle = "context"
	HandleStore   Handle = "store"
	HandleState   Handle = "state"
	HandleValue   Handle = "value"
)

// Error is the structured error type used throughout the library
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Handle Handle
	Detail string
	Code   int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Handle != "" {
		b.WriteString(" (")
		b.WriteString(string(e.Handle))
		b.WriteByte(')')
	}

	if e.Code != 0 {
		b.WriteString(" code ")
		b.WriteString(strconv.Itoa(e.Code))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Message returns the engine diagnostic if one was captured, otherwise the
// full error text. The CLI prints this.
func (e *Error) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Error()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// Empty Phase or Handle on the target act as wildcards.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	if t.Phase != "" && e.Phase != t.Phase {
		return false
	}
	if t.Handle != "" && e.Handle != t.Handle {
		return false
	}
	return true
}

// IsKind reports whether any error in err's chain is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	return stderrors.Is(err, &Error{Kind: kind})
}

// As is errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Handle sets the handle kind
func (b *Builder) Handle(h Handle) *Builder {
	b.err.Handle = h
	return b
}

// Code sets the engine status code
func (b *Builder) Code(code int) *Builder {
	b.err.Code = code
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// phaseOf maps a handle to the lifecycle phase that creates it.
func phaseOf(h Handle) Phase {
	switch h {
	case HandleContext:
		return PhaseContext
	case HandleStore:
		return PhaseStore
	case HandleState:
		return PhaseState
	default:
		return PhaseValue
	}
}

// HandleCreation creates an error for a null handle returned by the engine.
// msg is empty for the context, which has no error slot yet.
func HandleCreation(h Handle, msg string) *Error {
	return &Error{
		Phase:  phaseOf(h),
		Kind:   KindHandleCreation,
		Handle: h,
		Detail: msg,
	}
}

// Initialization creates an error for a failed subsystem initialization
func Initialization(code int, msg string) *Error {
	return &Error{
		Phase:  PhaseInit,
		Kind:   KindInitialization,
		Code:   code,
		Detail: msg,
	}
}

// ExprEval creates an error for an expression that failed to parse or bind
func ExprEval(code int, msg string) *Error {
	return &Error{
		Phase:  PhaseEval,
		Kind:   KindExprEval,
		Code:   code,
		Detail: msg,
	}
}

// Force creates an error for a failed forced evaluation
func Force(code int, msg string) *Error {
	return &Error{
		Phase:  PhaseForce,
		Kind:   KindForce,
		Code:   code,
		Detail: msg,
	}
}

// FlakeRef creates an error for a flake reference the engine rejected
func FlakeRef(url, msg string) *Error {
	return &Error{
		Phase:  PhaseFlake,
		Kind:   KindFlakeRef,
		Detail: msg,
		Cause:  fmt.Errorf("flake reference %q", url),
	}
}

// Released creates an error for use of a handle after it was closed
func Released(h Handle) *Error {
	return &Error{
		Phase:  phaseOf(h),
		Kind:   KindReleased,
		Handle: h,
		Detail: fmt.Sprintf("%s handle already released", h),
	}
}

// Moved creates an error for use of an Init value after ownership moved on
func Moved() *Error {
	return &Error{
		Phase:  PhaseValue,
		Kind:   KindMoved,
		Handle: HandleValue,
		Detail: "value was moved by a successful assignment",
	}
}

// TypeMismatch creates an error for an accessor that does not match the value's type
func TypeMismatch(phase Phase, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Detail: fmt.Sprintf("expected %s, value is %s", want, got),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotFound creates a not found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Argument creates a command line usage error
func Argument(detail string) *Error {
	return &Error{
		Phase:  PhaseCLI,
		Kind:   KindArgument,
		Detail: detail,
	}
}

// EmptyInput creates an error for an expression that is empty after trimming
func EmptyInput(source string) *Error {
	return &Error{
		Phase:  PhaseCLI,
		Kind:   KindEmptyInput,
		Detail: fmt.Sprintf("no expression given on %s", source),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
