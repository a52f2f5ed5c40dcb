package runtime

import (
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/nix-runtime/engine"
	"github.com/wippyai/nix-runtime/errors"
	"github.com/wippyai/nix-runtime/resource"
)

type storeKind uint8

const (
	storeAuto storeKind = iota
	storeDummy
	storeDaemon
	storeLocal
	storePath
	storeURI
)

// StoreType selects the store backend to open.
// The zero StoreType is StoreAuto.
type StoreType struct {
	location string
	kind     storeKind
}

var (
	// StoreAuto lets the engine pick the store, as the nix command does.
	StoreAuto = StoreType{kind: storeAuto}
	// StoreDummy is an in-memory store with no persistence.
	StoreDummy = StoreType{kind: storeDummy}
	// StoreDaemon connects to a running nix-daemon.
	StoreDaemon = StoreType{kind: storeDaemon}
	// StoreLocal opens the local store directly.
	StoreLocal = StoreType{kind: storeLocal}
)

// StorePath opens the store rooted at a filesystem path.
func StorePath(path string) StoreType {
	return StoreType{kind: storePath, location: path}
}

// StoreURI passes uri to the engine unchanged.
func StoreURI(uri string) StoreType {
	return StoreType{kind: storeURI, location: uri}
}

// ParseStoreType maps a textual store name to a StoreType. The keywords
// "auto", "dummy", "dummy://", "daemon" and "local" select the matching
// backend, strings starting with "/" or "." are paths, and anything else is
// passed through as a URI for the engine to accept or reject.
func ParseStoreType(s string) StoreType {
	switch s {
	case "", "auto":
		return StoreAuto
	case "dummy", "dummy://":
		return StoreDummy
	case "daemon":
		return StoreDaemon
	case "local":
		return StoreLocal
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, ".") {
		return StorePath(s)
	}
	return StoreURI(s)
}

// URI returns the store descriptor string understood by the engine.
func (t StoreType) URI() string {
	switch t.kind {
	case storeDummy:
		return "dummy://"
	case storeDaemon:
		return "daemon"
	case storeLocal:
		return "local"
	case storePath, storeURI:
		return t.location
	default:
		return "auto"
	}
}

func (t StoreType) String() string {
	return t.URI()
}

// Store owns a connection to a store backend.
// States created on the store hold a reference to it, so the engine store is
// freed only after every such state is closed.
type Store struct {
	ctx  *Context
	refs *shares
	typ  StoreType
	ptr  engine.Ptr
	id   resource.ID
}

// OpenStore opens a store on ctx. Opening may connect to a daemon or touch the
// filesystem, depending on the store type.
func OpenStore(ctx *Context, typ StoreType) (*Store, error) {
	if err := ctx.open(errors.PhaseStore); err != nil {
		return nil, err
	}
	if err := ctx.acquire(); err != nil {
		return nil, err
	}

	uri := typ.URI()
	raw, msg := ctx.create(func(c engine.Ptr) engine.Ptr {
		return ctx.engine.StoreOpen(c, uri)
	})
	if raw.IsNull() {
		ctx.release()
		return nil, errors.HandleCreation(errors.HandleStore, msg)
	}

	s := &Store{ctx: ctx, typ: typ, ptr: raw}
	s.refs = newShares(s.free)
	s.id = ctx.tracker.Created(resource.KindStore, uintptr(raw))
	ctx.logCreated(resource.KindStore, raw)
	return s, nil
}

// Type returns the store type the store was opened with.
func (s *Store) Type() StoreType {
	return s.typ
}

// URI returns the descriptor the store was opened with.
func (s *Store) URI() string {
	return s.typ.URI()
}

// Context returns the context the store was opened on.
func (s *Store) Context() *Context {
	return s.ctx
}

// Close releases the caller's reference to the store.
// Calling Close more than once has no effect.
func (s *Store) Close() error {
	return s.refs.closeOwner()
}

func (s *Store) free() error {
	s.ctx.mu.Lock()
	s.ctx.engine.StoreFree(s.ptr)
	s.ctx.mu.Unlock()
	s.ctx.tracker.Released(s.id)
	s.ctx.logReleased(resource.KindStore, s.ptr)
	s.ctx.release()
	return nil
}

func (s *Store) release() {
	if err := s.refs.release(); err != nil {
		Logger().Warn("store release failed", zap.String("session", s.ctx.label), zap.Error(err))
	}
}
