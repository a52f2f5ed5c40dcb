//go:build cgo && nixc

package engine

/*
#cgo pkg-config: nix-flake nix-fetchers
#cgo CXXFLAGS: -std=c++2a
#include <stdlib.h>
#include "native_flake.h"
*/
import "C"

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/nix-runtime/errors"
)

var _ FlakeRefParser = (*NativeEngine)(nil)

// ParseFlakeRef parses url with libnixflake. baseDir must be absolute.
func (e *NativeEngine) ParseFlakeRef(url, baseDir string) (string, error) {
	curl := C.CString(url)
	defer C.free(unsafe.Pointer(curl))
	cbase := C.CString(baseDir)
	defer C.free(unsafe.Pointer(cbase))

	var out *C.char
	rc := C.nixrt_flakeref_canonical(curl, cbase, &out)
	if out == nil {
		return "", errors.FlakeRef(url, "out of memory")
	}
	defer C.free(unsafe.Pointer(out))
	text := C.GoString(out)

	if rc != 0 {
		Logger().Debug("flake reference rejected", zap.String("url", url), zap.String("error", text))
		return "", errors.FlakeRef(url, text)
	}
	return text, nil
}
