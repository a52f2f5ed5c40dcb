// Package errors provides structured error types for the nix-runtime library.
//
// Errors are categorized by Phase (which lifecycle step failed) and Kind (error
// category). Handle creation failures also name the Handle that could not be
// created. When the engine reported the failure through its error slot, the
// engine's message is carried verbatim in Detail and its status in Code.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseStore, errors.KindHandleCreation).
//		Handle(errors.HandleStore).
//		Code(-1).
//		Detail("don't know how to open Nix store with URI 'x://'").
//		Build()
//
// Or use convenience constructors for the common cases:
//
//	err := errors.HandleCreation(errors.HandleValue, "out of memory")
//	err := errors.Force(code, msg)
//
// All errors implement the standard error interface and support errors.Is/As.
// A target with an empty Phase matches any phase:
//
//	if errors.IsKind(err, errors.KindForce) { ... }
package errors
