// Package nixruntime is a Go binding to the Nix expression evaluator.
//
// The evaluator exposes a C-style API of raw handles with manual release.
// This module wraps those handles in owned Go values that release
// themselves in the right order and report failures as structured errors.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	nixruntime/
//	├── runtime/         Owned handles, sessions and the Evaluate entry point
//	├── engine/          Evaluator backends: cgo (native) and wazero (wasm)
//	│   └── enginetest/  Scripted fake engine and wasm stub for tests
//	├── resource/        Handle lifecycle tracking, recording and metrics
//	├── config/          YAML configuration
//	├── errors/          Structured error types
//	└── cmd/nix-eval/    Command line evaluator and REPL
//
// # Quick Start
//
//	eng, err := engine.Native() // needs -tags nixc
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	out, err := runtime.Evaluate(eng, `"hello"`)
//	fmt.Println(out) // hello
//
// # Backends
//
// The native backend links libnixexprc through cgo and is only built with
// the nixc build tag. The wasm backend runs a WASI reactor build of the
// evaluator under wazero and needs no cgo.
//
// # Handle Order
//
// Each handle keeps its parent alive, so the engine always sees teardown in
// the order value, state, store, context. See the runtime package.
package nixruntime
