// Package natsstore adapts a NATS JetStream KV bucket to storage.Store.
// Unlike etcd, JetStream's native CAS primitive is revision-gated, not
// value-gated: Create fails iff the key already exists, Update/Delete take
// an expected revision instead of an expected byte string. This adapter
// keeps that revision as storage.Value's opaque token so the caller never
// needs to know the witness isn't a value comparison here.
package natsstore

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/kvlock/lockset/config"
	"github.com/kvlock/lockset/messagebus"
	"github.com/kvlock/lockset/storage"
)

// Store adapts a jetstream.KeyValue bucket to storage.Store.
type Store struct {
	kv jetstream.KeyValue
}

// New wraps an already-provisioned KV bucket.
func New(kv jetstream.KeyValue) *Store {
	return &Store{kv: kv}
}

// Provision connects to NATS per cfg, then creates (or binds to, if it
// already exists) bucket as a JetStream KV store, returning a ready Store.
// Bootstrap convenience over the lower-level messagebus connection helpers.
func Provision(ctx context.Context, cfg *config.Configuration, bucket string, opts ...messagebus.Option) (*Store, error) {
	_, js, err := messagebus.NewJetStreamConnection(cfg, opts...)
	if err != nil {
		return nil, err
	}

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket})
	}
	if err != nil {
		return nil, err
	}
	return New(kv), nil
}

func (s *Store) Get(ctx context.Context, key string) (storage.Value, error) {
	entry, err := s.kv.Get(ctx, key)
	switch {
	case errors.Is(err, jetstream.ErrKeyNotFound):
		return storage.Absent(), nil
	case err != nil:
		return storage.Value{}, classify(err)
	}
	return storage.NewValue(string(entry.Value()), entry.Revision()), nil
}

func (s *Store) PutIf(ctx context.Context, key, value string, witness storage.Value, returnNewOnFail bool) (bool, storage.Value, error) {
	if !witness.Present() {
		rev, err := s.kv.Create(ctx, key, []byte(value))
		switch {
		case errors.Is(err, jetstream.ErrKeyExists):
			return false, s.currentOrZero(ctx, key, returnNewOnFail), nil
		case err != nil:
			return false, storage.Value{}, classify(err)
		}
		return true, storage.NewValue(value, rev), nil
	}

	expected, ok := witness.Token().(uint64)
	if !ok {
		return false, storage.Value{}, errors.New("natsstore: witness was not produced by this adapter")
	}
	rev, err := s.kv.Update(ctx, key, []byte(value), expected)
	if err != nil {
		if wrapped := classify(err); errors.Is(wrapped, storage.ErrUnavailable) {
			return false, storage.Value{}, wrapped
		}
		// JetStream doesn't distinguish "wrong last revision" from other
		// write rejections with a dedicated sentinel (see singleton.Lock's
		// own refresh(), which treats any Update failure identically).
		// We follow that same reading: a non-connectivity Update error
		// here means someone else's write landed first.
		return false, s.currentOrZero(ctx, key, returnNewOnFail), nil
	}
	return true, storage.NewValue(value, rev), nil
}

func (s *Store) DeleteIf(ctx context.Context, key string, witness storage.Value, returnNewOnFail bool) (bool, storage.Value, error) {
	if !witness.Present() {
		// Nothing to delete; the key must already be absent to match.
		cur, err := s.Get(ctx, key)
		if err != nil {
			return false, storage.Value{}, err
		}
		if cur.Present() {
			if !returnNewOnFail {
				return false, storage.Value{}, nil
			}
			return false, cur, nil
		}
		return true, storage.Absent(), nil
	}

	expected, ok := witness.Token().(uint64)
	if !ok {
		return false, storage.Value{}, errors.New("natsstore: witness was not produced by this adapter")
	}
	err := s.kv.Delete(ctx, key, jetstream.LastRevision(expected))
	if err != nil {
		if wrapped := classify(err); errors.Is(wrapped, storage.ErrUnavailable) {
			return false, storage.Value{}, wrapped
		}
		return false, s.currentOrZero(ctx, key, returnNewOnFail), nil
	}
	return true, storage.Absent(), nil
}

func (s *Store) currentOrZero(ctx context.Context, key string, returnNewOnFail bool) storage.Value {
	if !returnNewOnFail {
		return storage.Value{}
	}
	v, err := s.Get(ctx, key)
	if err != nil {
		return storage.Value{}
	}
	return v
}

// classify wraps connectivity-class NATS errors with ErrUnavailable so the
// availability-retry wrapper treats them as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoResponders) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrConnectionDraining) ||
		errors.Is(err, nats.ErrNoServers) {
		return errors.Join(storage.ErrUnavailable, err)
	}
	return err
}
