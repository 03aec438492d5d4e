// Package memstore is an in-process storage.Store used by lockset's unit
// tests. It compares witnesses by value, same as storage/etcdstore, so
// tests exercise the same CAS semantics the etcd adapter provides in
// production.
package memstore

import (
	"context"
	"sync"

	"github.com/kvlock/lockset/storage"
)

// Store is a mutex-guarded map[string]string implementing storage.Store.
type Store struct {
	mu   sync.Mutex
	data map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string]string)}
}

func (s *Store) Get(_ context.Context, key string) (storage.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok {
		return storage.Absent(), nil
	}
	return storage.NewValue(v, v), nil
}

func (s *Store) PutIf(_ context.Context, key, value string, witness storage.Value, returnNewOnFail bool) (bool, storage.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.matches(key, witness) {
		return false, s.currentOrZero(key, returnNewOnFail), nil
	}
	s.data[key] = value
	return true, storage.NewValue(value, value), nil
}

func (s *Store) DeleteIf(_ context.Context, key string, witness storage.Value, returnNewOnFail bool) (bool, storage.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.matches(key, witness) {
		return false, s.currentOrZero(key, returnNewOnFail), nil
	}
	delete(s.data, key)
	return true, storage.Absent(), nil
}

// matches reports whether the stored value for key equals witness. Must be
// called with mu held.
func (s *Store) matches(key string, witness storage.Value) bool {
	cur, present := s.data[key]
	if !witness.Present() {
		return !present
	}
	return present && cur == witness.Payload()
}

// currentOrZero returns the current witness for key if returnNewOnFail,
// else the zero Value. Must be called with mu held.
func (s *Store) currentOrZero(key string, returnNewOnFail bool) storage.Value {
	if !returnNewOnFail {
		return storage.Value{}
	}
	cur, present := s.data[key]
	if !present {
		return storage.Absent()
	}
	return storage.NewValue(cur, cur)
}

// Seed sets key's raw stored value directly, bypassing CAS. Test-only:
// lets a test put the store into an arbitrary state (e.g. simulate a
// concurrent writer) before exercising a Lock against it.
func (s *Store) Seed(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}
