package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseStore,
				Kind:   KindHandleCreation,
				Handle: HandleStore,
				Code:   -1,
				Detail: "don't know how to open Nix store",
			},
			contains: []string{"[store]", "handle_creation", "(store)", "code -1", "don't know how"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseContext,
				Kind:  KindHandleCreation,
			},
			contains: []string{"[context]", "handle_creation"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseEngine,
				Kind:   KindEngine,
				Detail: "load reactor",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[engine]", "engine", "load reactor", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseEngine, KindEngine, cause, "wrapped")

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("session: %w", Force(-4, "undefined variable 'foo'"))

	if !errors.Is(err, &Error{Kind: KindForce}) {
		t.Error("wildcard phase should match")
	}
	if !errors.Is(err, &Error{Phase: PhaseForce, Kind: KindForce}) {
		t.Error("exact phase should match")
	}
	if errors.Is(err, &Error{Phase: PhaseEval, Kind: KindForce}) {
		t.Error("different phase should not match")
	}
	if errors.Is(err, &Error{Kind: KindExprEval}) {
		t.Error("different kind should not match")
	}
	if !IsKind(err, KindForce) {
		t.Error("IsKind should see through wrapping")
	}
}

func TestError_IsHandle(t *testing.T) {
	err := HandleCreation(HandleStore, "bad uri")

	if !errors.Is(err, &Error{Kind: KindHandleCreation, Handle: HandleStore}) {
		t.Error("matching handle should match")
	}
	if errors.Is(err, &Error{Kind: KindHandleCreation, Handle: HandleValue}) {
		t.Error("different handle should not match")
	}
	if err.Phase != PhaseStore {
		t.Errorf("phase = %s, want store", err.Phase)
	}
}

func TestAs(t *testing.T) {
	err := fmt.Errorf("outer: %w", ExprEval(-4, "syntax error"))
	e, ok := As(err)
	if !ok {
		t.Fatal("As should find *Error")
	}
	if e.Message() != "syntax error" {
		t.Errorf("Message() = %q", e.Message())
	}

	if _, ok := As(errors.New("plain")); ok {
		t.Error("As should fail for plain errors")
	}
}

func TestMessage_FallsBackToError(t *testing.T) {
	err := HandleCreation(HandleContext, "")
	if err.Message() != err.Error() {
		t.Errorf("Message() = %q, want %q", err.Message(), err.Error())
	}
}

func TestBuilder(t *testing.T) {
	err := New(PhaseInit, KindInitialization).
		Code(-1).
		Detail("init %s", "failed").
		Build()

	if err.Code != -1 {
		t.Errorf("Code = %d", err.Code)
	}
	if err.Detail != "init failed" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if !IsKind(err, KindInitialization) {
		t.Error("kind mismatch")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		err   *Error
		phase Phase
		kind  Kind
	}{
		{Initialization(-1, "x"), PhaseInit, KindInitialization},
		{ExprEval(-4, "x"), PhaseEval, KindExprEval},
		{Force(-4, "x"), PhaseForce, KindForce},
		{Released(HandleState), PhaseState, KindReleased},
		{Moved(), PhaseValue, KindMoved},
		{TypeMismatch(PhaseValue, "string", "int"), PhaseValue, KindTypeMismatch},
		{Unsupported(PhaseDisplay, "x"), PhaseDisplay, KindUnsupported},
		{InvalidInput(PhaseConfig, "x"), PhaseConfig, KindInvalidInput},
		{NotFound(PhaseValue, "attribute", "a"), PhaseValue, KindNotFound},
		{Argument("x"), PhaseCLI, KindArgument},
		{EmptyInput("stdin"), PhaseCLI, KindEmptyInput},
		{FlakeRef("github:a/b", "x"), PhaseFlake, KindFlakeRef},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if tt.err.Phase != tt.phase {
				t.Errorf("phase = %s, want %s", tt.err.Phase, tt.phase)
			}
			if tt.err.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", tt.err.Kind, tt.kind)
			}
		})
	}
}
