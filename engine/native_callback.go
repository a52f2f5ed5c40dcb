//go:build cgo && nixc

package engine

/*
#include <stddef.h>
*/
import "C"

import (
	"runtime/cgo"
	"strings"
	"unsafe"
)

// goNixStringCallback receives string contents from nix_get_string.
// user_data is a cgo.Handle to a *strings.Builder.
//
//export goNixStringCallback
func goNixStringCallback(start *C.char, n C.uint, userData unsafe.Pointer) {
	b := cgo.Handle(uintptr(userData)).Value().(*strings.Builder)
	b.WriteString(C.GoStringN(start, C.int(n)))
}
