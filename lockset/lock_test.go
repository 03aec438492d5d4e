package lockset_test

import (
	"context"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvlock/lockset/identity"
	"github.com/kvlock/lockset/lockset"
	"github.com/kvlock/lockset/storage"
	"github.com/kvlock/lockset/storage/memstore"
)

// freshStore resets the process-wide identifier cache and wires a clean
// in-memory store, so each test is isolated despite lockset's process-wide
// configuration living in package-level state (spec.md §5).
func freshStore(t *testing.T) *memstore.Store {
	t.Helper()
	identity.ResetDefault()
	store := memstore.New()
	lockset.SetStore(store)
	return store
}

// Scenario 1: acquire / break round trip (spec.md §8.1).
func TestAcquireBreakRoundTrip(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		freshStore(t)
		ctx := context.Background()

		l := lockset.New("K1",
			lockset.WithIdentifier("A"),
			lockset.WithExclusive(false),
			lockset.WithTime(10*time.Second),
			lockset.WithWaitTime(0),
		)

		held, err := l.Acquire(ctx)
		require.NoError(t, err)
		assert.True(t, held)
		assert.GreaterOrEqual(t, l.RemainingLockDuration(), int64(8))

		require.NoError(t, l.Break(ctx))
		assert.False(t, l.IsLocked())
	})
}

// Scenario 2: auto-release on expiry, with no further call (spec.md §8.2).
func TestAutoRelease(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		freshStore(t)
		ctx := context.Background()

		l := lockset.New("K2",
			lockset.WithIdentifier("A"),
			lockset.WithTime(3*time.Second),
			lockset.WithWaitTime(0),
		)

		held, err := l.Acquire(ctx)
		require.NoError(t, err)
		require.True(t, held)

		time.Sleep(3 * time.Second)

		assert.False(t, l.IsLocked())
	})
}

// Scenario 3: multiple shared holders; one refreshes past the others'
// expiry (spec.md §8.3).
func TestMultipleSharedWithRefresh(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		freshStore(t)
		ctx := context.Background()

		newShared := func(id string) *lockset.Lock {
			return lockset.New("K3",
				lockset.WithIdentifier(id),
				lockset.WithExclusive(false),
				lockset.WithTime(3*time.Second),
				lockset.WithWaitTime(0),
			)
		}
		a, b, c := newShared("A"), newShared("B"), newShared("C")

		for _, l := range []*lockset.Lock{a, b, c} {
			held, err := l.Acquire(ctx)
			require.NoError(t, err)
			require.True(t, held)
		}
		assert.True(t, a.IsLocked())
		assert.True(t, b.IsLocked())
		assert.True(t, c.IsLocked())

		time.Sleep(1 * time.Second)

		a.SetRefreshTime(5 * time.Second)
		ok, err := a.Refresh(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		time.Sleep(2*time.Second + time.Millisecond)

		assert.True(t, a.IsLocked())
		assert.False(t, b.IsLocked())
		assert.False(t, c.IsLocked())
	})
}

// Scenario 4: an exclusive holder excludes a shared contender (spec.md §8.4).
func TestExclusiveExcludesShared(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		freshStore(t)
		ctx := context.Background()

		a := lockset.New("K4",
			lockset.WithIdentifier("A"),
			lockset.WithExclusive(true),
			lockset.WithTime(3*time.Second),
			lockset.WithWaitTime(0),
		)
		b := lockset.New("K4",
			lockset.WithIdentifier("B"),
			lockset.WithExclusive(false),
			lockset.WithWaitTime(0),
		)

		held, err := a.Acquire(ctx)
		require.NoError(t, err)
		require.True(t, held)

		held, err = b.Acquire(ctx)
		require.NoError(t, err)
		assert.False(t, held)
	})
}

// Scenario 5: an exclusive contender waits out several shared holders of
// differing durations (spec.md §8.5).
func TestWaitForMultipleSharedBeforeExclusive(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		freshStore(t)
		ctx := context.Background()

		newShared := func(id string, d time.Duration) *lockset.Lock {
			return lockset.New("K5",
				lockset.WithIdentifier(id),
				lockset.WithExclusive(false),
				lockset.WithTime(d),
				lockset.WithWaitTime(0),
			)
		}
		a := newShared("A", 3*time.Second)
		b := newShared("B", 5*time.Second)
		c := newShared("C", 8*time.Second)

		for _, l := range []*lockset.Lock{a, b, c} {
			held, err := l.Acquire(ctx)
			require.NoError(t, err)
			require.True(t, held)
		}

		d := lockset.New("K5",
			lockset.WithIdentifier("D"),
			lockset.WithExclusive(true),
			lockset.WithTime(10*time.Second),
			lockset.WithWaitTime(10*time.Second),
		)

		start := time.Now()
		held, err := d.Acquire(ctx)
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.True(t, held)
		assert.GreaterOrEqual(t, elapsed, 7*time.Second)
	})
}

// raceStore is a controllable storage double: its first PutIf seeds a
// conflicting payload directly into the underlying store (simulating a
// concurrent external writer) before delegating to the real CAS check, so
// that call observably loses the race. Grounds spec.md §8.6.
type raceStore struct {
	*memstore.Store
	mu       sync.Mutex
	injected bool
	conflict string
}

func (r *raceStore) PutIf(ctx context.Context, key, value string, witness storage.Value, returnNewOnFail bool) (bool, storage.Value, error) {
	r.mu.Lock()
	if !r.injected {
		r.injected = true
		r.Store.Seed(key, r.conflict)
	}
	r.mu.Unlock()
	return r.Store.PutIf(ctx, key, value, witness, returnNewOnFail)
}

// Scenario 6: a CAS race, proven via a controllable storage double
// (spec.md §8.6).
func TestCASRace(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		identity.ResetDefault()
		ctx := context.Background()
		now := time.Now()

		conflict := lockset.Set{
			{By: "A", Until: now.Add(10 * time.Second).Unix(), Exclusive: false},
			{By: "B", Until: now.Add(10 * time.Second).Unix(), Exclusive: false},
			{By: "C", Until: now.Add(10 * time.Second).Unix(), Exclusive: false},
		}.Encode()

		race := &raceStore{Store: memstore.New(), conflict: conflict}
		lockset.SetStore(race)

		a := lockset.New("K6", lockset.WithIdentifier("A"), lockset.WithExclusive(false), lockset.WithTime(10*time.Second), lockset.WithWaitTime(0))
		b := lockset.New("K6", lockset.WithIdentifier("B"), lockset.WithExclusive(false), lockset.WithTime(10*time.Second), lockset.WithWaitTime(0))

		held, err := a.Acquire(ctx)
		require.NoError(t, err)
		require.True(t, held)

		held, err = b.Acquire(ctx)
		require.NoError(t, err)
		require.True(t, held)

		// A's next write (here, its own Refresh) will lose the race to the
		// injected conflicting write and must transparently retry.
		ok, err := a.Refresh(ctx)
		require.NoError(t, err)
		assert.True(t, ok)

		stored, err := race.Get(ctx, "lock/K6")
		require.NoError(t, err)
		entries, malformed := lockset.DecodeSet(stored)
		require.False(t, malformed)

		count := 0
		for _, e := range entries {
			if e.By == "A" {
				count++
			}
		}
		assert.Equal(t, 1, count, "A's entry must not be duplicated after the retry")
	})
}

// Idempotence: consecutive Break calls after the first do no store
// operations (spec.md §8, universal invariants).
func TestBreakIdempotent(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := freshStore(t)
		ctx := context.Background()

		l := lockset.New("K7", lockset.WithIdentifier("A"), lockset.WithTime(10*time.Second), lockset.WithWaitTime(0))
		held, err := l.Acquire(ctx)
		require.NoError(t, err)
		require.True(t, held)

		require.NoError(t, l.Break(ctx))
		assert.False(t, l.IsLocked())

		store.Seed("sentinel", "untouched")
		require.NoError(t, l.Break(ctx))
		val, err := store.Get(ctx, "sentinel")
		require.NoError(t, err)
		assert.Equal(t, "untouched", val.Payload())
	})
}
