// Package storage defines the port a lock set is persisted through: a
// small key-value contract with atomic compare-and-swap writes, backed in
// production by a strongly-consistent store (etcd, NATS JetStream KV) and
// in tests by storage/memstore.
package storage

import (
	"context"
	"errors"
)

// ErrUnavailable marks a failure as connectivity/availability related
// (timeouts, lost leader, no quorum) rather than a CAS mismatch or a
// programming error. Adapters join it into the errors they return, and
// lockset classifies any storage error carrying it as errclass.Transient
// so the availability-retry wrapper in package retry knows to retry it;
// anything else propagates immediately.
var ErrUnavailable = errors.New("storage: backend unavailable")

// Value is a witness of what a key held the last time it was observed: a
// payload plus an adapter-private CAS token. The zero Value is the
// "absent" marker (the key does not exist).
//
// The token lets an adapter whose native CAS primitive isn't
// value-equality (NATS JetStream KV compares by revision, not by byte
// content) still satisfy this value-witness interface without an extra
// round trip: the adapter stashes whatever it needs as the token and
// reads it back out of the Value it's handed as a witness.
type Value struct {
	present bool
	payload string
	token   any
}

// Absent is the witness for a key that does not exist.
func Absent() Value {
	return Value{}
}

// NewValue builds a present Value carrying payload and an adapter-private
// CAS token.
func NewValue(payload string, token any) Value {
	return Value{present: true, payload: payload, token: token}
}

// Present reports whether the key existed when this Value was observed.
func (v Value) Present() bool { return v.present }

// Payload returns the observed byte content. Only meaningful when Present.
func (v Value) Payload() string { return v.payload }

// Token returns the adapter-private CAS witness. Callers outside the
// adapter that produced it should treat this as opaque.
func (v Value) Token() any { return v.token }

// Store is a strongly-consistent key-value port with atomic CAS writes.
// Every method is safe for concurrent use.
type Store interface {
	// Get reads the current value of key, or storage.Absent() if it does
	// not exist. A non-nil error means the read could not be completed
	// (see ErrUnavailable); it never represents "key not found".
	Get(ctx context.Context, key string) (Value, error)

	// PutIf writes value under key iff the store's current value equals
	// witness (Absent() meaning "key must not exist yet").
	//
	// ok reports whether the write happened. When ok is true, current is
	// the new witness for the value just written (use it as the witness
	// for the *next* CAS call). When ok is false, current is populated
	// only if returnNewOnFail is true, and holds whatever the store's
	// current value actually is (or Absent() if the key was concurrently
	// deleted); otherwise current is the zero Value and must be ignored.
	PutIf(ctx context.Context, key, value string, witness Value, returnNewOnFail bool) (ok bool, current Value, err error)

	// DeleteIf removes key iff the store's current value equals witness.
	// Same ok/current contract as PutIf; on success current is Absent().
	DeleteIf(ctx context.Context, key string, witness Value, returnNewOnFail bool) (ok bool, current Value, err error)
}
