//go:build !(cgo && nixc)

package engine

import "github.com/wippyai/nix-runtime/errors"

// Native returns the cgo backend. This build was made without the nixc tag,
// so no native backend is linked in.
func Native() (Engine, error) {
	return nil, errors.Unsupported(errors.PhaseEngine,
		"native backend not compiled in (build with -tags nixc and cgo enabled)")
}
