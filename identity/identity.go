// Package identity resolves the holder identifier a Lock uses when none is
// supplied explicitly.
//
// The teacher's own log/identity package keeps a package-level singleton
// set once via sync.Once with no way back; resetting it would take
// unsafe/reflection. Per spec.md §9's first design note,
// this package instead makes the default identifier an explicit,
// overridable, resettable dependency: a Source interface plus a
// lazily-derived process-wide default, with a real SetDefaultSource and
// ResetDefault in the public API. No reflection anywhere.
package identity

import (
	"sync"

	"github.com/rs/xid"
)

// Source generates holder identifiers. The zero value of xidSource (the
// package default) is safe and stateless; callers may substitute their own
// for testing or to tag identifiers with process metadata.
type Source interface {
	NewID() string
}

type xidSource struct{}

func (xidSource) NewID() string { return xid.New().String() }

var (
	mu        sync.Mutex
	source    Source = xidSource{}
	cached    string
	hasCached bool
)

// Default returns the process-wide default identifier, deriving it from
// the current Source on first call and caching it thereafter. Per
// spec.md §4.9, every Lock that doesn't set its own identifier shares this
// value, so repeated acquires in one process collapse onto one holder
// slot instead of accumulating distinct entries.
func Default() string {
	mu.Lock()
	defer mu.Unlock()
	if !hasCached {
		cached = source.NewID()
		hasCached = true
	}
	return cached
}

// SetDefaultSource overrides the Source used to derive the process-wide
// default identifier. Intended for bootstrap, not for use concurrently
// with active Lock handles (see spec.md §5's process-wide configuration
// policy). Does not affect an already-cached default; call ResetDefault
// afterwards if the new source should take effect immediately.
func SetDefaultSource(s Source) {
	mu.Lock()
	defer mu.Unlock()
	source = s
}

// ResetDefault clears the cached process-wide default identifier so the
// next call to Default re-derives it from the current Source. Exists
// primarily so tests can isolate the identifier a Lock resolves without
// reaching into package internals.
func ResetDefault() {
	mu.Lock()
	defer mu.Unlock()
	hasCached = false
	cached = ""
}
