package enginetest

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/wippyai/nix-runtime/engine"
)

// Fixed addresses used by the reactor stub.
const (
	StubContext    = 16
	StubStore      = 32
	StubState      = 48
	StubValue      = 80
	StubElem       = 112
	StubAttr       = 128
	StubErrMsg     = "boom"
	StubString     = "hello"
	StubInt        = 42
	StubFloat      = 1.5
	StubListSize   = 2
	StubAttrsSize  = 1
	stubErrAddr    = 64
	stubStringAddr = 96
	stubHeap       = 1024
)

const (
	i32 byte = 0x7f
	i64 byte = 0x7e
	f64 byte = 0x7c
)

// Body is the instruction sequence of a stub function, without the final end.
type Body []byte

// Unreachable traps when called.
var Unreachable = Body{0x00}

// I32 returns a body producing the constant v.
func I32(v int32) Body {
	return append(Body{0x41}, sleb(int64(v))...)
}

type stubFunc struct {
	params  []byte
	results []byte
	body    Body
}

func sig(n int, results ...byte) ([]byte, []byte) {
	params := make([]byte, n)
	for i := range params {
		params[i] = i32
	}
	return params, results
}

func defaultStubs() map[string]stubFunc {
	f := func(n int, body Body, results ...byte) stubFunc {
		p, r := sig(n, results...)
		return stubFunc{params: p, results: r, body: body}
	}
	f64Body := make(Body, 9)
	f64Body[0] = 0x44
	binary.LittleEndian.PutUint64(f64Body[1:], math.Float64bits(StubFloat))

	// store name pointer to *name_out, return the attribute value
	attrBody := Body{0x20, 0x04}
	attrBody = append(attrBody, I32(stubStringAddr)...)
	attrBody = append(attrBody, 0x36, 0x02, 0x00)
	attrBody = append(attrBody, I32(StubAttr)...)

	return map[string]stubFunc{
		engine.ExportContextCreate: f(0, I32(StubContext), i32),
		engine.ExportContextFree:   f(1, nil),
		engine.ExportErrMsg:        f(3, I32(stubErrAddr), i32),
		engine.ExportErrCode:       f(1, I32(0), i32),
		engine.ExportLibexprInit:   f(1, I32(0), i32),
		engine.ExportStoreOpen:     f(3, I32(StubStore), i32),
		engine.ExportStoreFree:     f(1, nil),
		engine.ExportStateCreate:   f(3, I32(StubState), i32),
		engine.ExportStateFree:     f(1, nil),
		engine.ExportAllocValue:    f(2, I32(StubValue), i32),
		engine.ExportEvalString:    f(5, I32(0), i32),
		engine.ExportValueForce:    f(3, I32(0), i32),
		engine.ExportValueDecref:   f(2, I32(0), i32),
		engine.ExportGetType:       f(2, I32(int32(engine.TypeString)), i32),
		engine.ExportGetPathString: f(2, I32(stubStringAddr), i32),
		engine.ExportGetInt:        f(2, append(Body{0x42}, sleb(StubInt)...), i64),
		engine.ExportGetFloat:      f(2, f64Body, f64),
		engine.ExportGetBool:       f(2, I32(1), i32),
		engine.ExportGetListSize:   f(2, I32(StubListSize), i32),
		engine.ExportGetListByIdx:  f(4, I32(StubElem), i32),
		engine.ExportGetAttrsSize:  f(2, I32(StubAttrsSize), i32),
		engine.ExportGetAttrByIdx:  f(5, attrBody, i32),
		engine.ExportGetStringCopy: f(2, I32(stubStringAddr), i32),
		engine.ExportMalloc:        f(1, I32(stubHeap), i32),
		engine.ExportFree:          f(1, nil),
	}
}

// ReactorStub builds a wasm module exporting the evaluator's C ABI with
// constant results: every handle is a fixed address, every status is OK,
// and strings read "hello" (errors read "boom"). overrides replaces the body
// of the named exports; a nil body removes the export.
func ReactorStub(overrides map[string]Body) []byte {
	stubs := defaultStubs()
	for name, body := range overrides {
		if body == nil {
			delete(stubs, name)
			continue
		}
		s := stubs[name]
		s.body = body
		stubs[name] = s
	}

	names := make([]string, 0, len(stubs))
	for name := range stubs {
		names = append(names, name)
	}
	sort.Strings(names)

	var types, funcs, exports, code [][]byte
	for i, name := range names {
		s := stubs[name]
		types = append(types, concat([]byte{0x60}, vec(bytesOf(s.params)), vec(bytesOf(s.results))))
		funcs = append(funcs, uleb(uint64(i)))
		exports = append(exports, concat(str(name), []byte{0x00}, uleb(uint64(i))))
		body := concat([]byte{0x00}, s.body, []byte{0x0b})
		code = append(code, concat(uleb(uint64(len(body))), body))
	}
	exports = append(exports, concat(str("memory"), []byte{0x02, 0x00}))

	data := [][]byte{
		segment(stubErrAddr, StubErrMsg),
		segment(stubStringAddr, StubString),
	}

	return concat(
		[]byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00},
		section(1, vec(types)),
		section(3, vec(funcs)),
		section(5, vec([][]byte{{0x00, 0x01}})),
		section(7, vec(exports)),
		section(10, vec(code)),
		section(11, vec(data)),
	)
}

func segment(addr int32, s string) []byte {
	return concat([]byte{0x00}, I32(addr), []byte{0x0b}, str(s+"\x00"))
}

func section(id byte, payload []byte) []byte {
	return concat([]byte{id}, uleb(uint64(len(payload))), payload)
}

func vec(items [][]byte) []byte {
	return concat(append([][]byte{uleb(uint64(len(items)))}, items...)...)
}

func bytesOf(b []byte) [][]byte {
	items := make([][]byte, len(b))
	for i := range b {
		items[i] = b[i : i+1]
	}
	return items
}

func str(s string) []byte {
	return concat(uleb(uint64(len(s))), []byte(s))
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		out = append(out, b)
		if done {
			return out
		}
	}
}
