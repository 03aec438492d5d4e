// Package lockset implements the distributed exclusive/shared advisory
// lock state machine: optimistic compare-and-swap over a single encoded
// entry list per resource key, with availability-retry over the storage
// primitives and jittered back-off over CAS contention.
package lockset

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kvlock/lockset/identity"
	"github.com/kvlock/lockset/log"
	"github.com/kvlock/lockset/retry/jitter"
	"github.com/kvlock/lockset/storage"
	"github.com/kvlock/lockset/xerrors/errcontext"
	"github.com/kvlock/lockset/xerrors/stacktrace"
)

// delayModeThreshold is the retries count at which SaveLocks enters delay
// mode (spec.md §4.5 step 3).
const delayModeThreshold = 3

// errSaveRetry is an internal sentinel meaning "the CAS attempt lost the
// race; try again" — distinct from a real failure. It never escapes this
// package.
type errSaveRetry struct{}

func (errSaveRetry) Error() string { return "lockset: CAS attempt superseded, retry" }

// Lock is a caller-held handle bound to one resource key. Immutable after
// construction: key, keyInStore. Everything else (identifier, mode,
// timings, and the local view of the entry set) is mutable and guarded by
// mu. A Lock is safe for concurrent use, but per spec.md §5's
// single-threaded-per-handle scheduling model, concurrent Acquire/Refresh/
// Break calls on the *same* handle race for which one wins, not for
// memory safety.
type Lock struct {
	key        string
	keyInStore string

	mu               sync.Mutex
	identifier       string
	exclusive        bool
	time             time.Duration
	waitTime         time.Duration
	refreshTime      *time.Duration
	refreshThreshold time.Duration
	breakOnTeardown  bool

	entries  Set
	previous storage.Value
	retries  int

	logger *slog.Logger
}

// New constructs a Lock bound to key, applying defaults from spec.md §6
// and then any Options.
func New(key string, opts ...Option) *Lock {
	cfg := global.snapshot()
	l := &Lock{
		key:              key,
		keyInStore:       cfg.prefix + key,
		time:             defaultTime,
		waitTime:         defaultWaitTime,
		refreshThreshold: defaultRefreshThreshold,
		breakOnTeardown:  defaultBreakOnTeardown,
		logger:           cfg.logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger != nil {
		l.logger = l.logger.With(slog.String("key", key))
	}
	return l
}

// Key returns the caller-supplied key this handle is bound to.
func (l *Lock) Key() string { return l.key }

// Identifier returns this handle's holder identifier, resolving the
// process-wide default on first use if none was set explicitly
// (spec.md §4.9).
func (l *Lock) Identifier() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.identifierLocked()
}

func (l *Lock) identifierLocked() string {
	if l.identifier == "" {
		l.identifier = identity.Default()
	}
	return l.identifier
}

// SetIdentifier overrides this handle's holder identifier.
func (l *Lock) SetIdentifier(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.identifier = identifier
}

// SetExclusive sets whether this handle requests an exclusive hold.
func (l *Lock) SetExclusive(exclusive bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exclusive = exclusive
}

// SetTime sets the server-side hold duration.
func (l *Lock) SetTime(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.time = d
}

// SetWaitTime sets how long Acquire will wait for contention to clear.
func (l *Lock) SetWaitTime(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waitTime = d
}

// SetRefreshTime sets the hold duration Refresh grants.
func (l *Lock) SetRefreshTime(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshTime = &d
}

// SetRefreshThreshold sets Refresh's no-op threshold.
func (l *Lock) SetRefreshThreshold(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshThreshold = d
}

// SetBreakOnTeardown sets whether Close attempts a best-effort Break.
func (l *Lock) SetBreakOnTeardown(b bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.breakOnTeardown = b
}

// IsLocked reports whether the last local view has a non-expired entry
// for this handle's identifier.
func (l *Lock) IsLocked() bool {
	cfg := global.snapshot()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isLockedLocked(cfg.clock.Now())
}

func (l *Lock) isLockedLocked(now time.Time) bool {
	id := l.identifierLocked()
	i := l.entries.indexOf(id)
	return i >= 0 && !l.entries[i].expired(now)
}

// RemainingLockDuration returns until-now in seconds for this handle's own
// entry, or -1 if no own entry exists in the last local view.
func (l *Lock) RemainingLockDuration() int64 {
	cfg := global.snapshot()
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.identifierLocked()
	i := l.entries.indexOf(id)
	if i < 0 {
		return -1
	}
	return l.entries[i].remaining(cfg.clock.Now())
}

// IsLockedByOther reports whether the last local view has a non-expired
// entry held by someone other than this handle. Per spec.md §4.11, this is
// answered against the last local view; call Refresh first for a live
// answer.
func (l *Lock) IsLockedByOther() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cfg := global.snapshot()
	now := cfg.clock.Now()
	id := l.identifierLocked()
	for _, e := range l.entries {
		if e.By != id && !e.expired(now) {
			return true
		}
	}
	return false
}

// IsLockedByOtherExclusively reports whether the last local view has a
// non-expired exclusive entry held by someone other than this handle.
func (l *Lock) IsLockedByOtherExclusively() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cfg := global.snapshot()
	now := cfg.clock.Now()
	id := l.identifierLocked()
	for _, e := range l.entries {
		if e.By != id && !e.expired(now) && e.Exclusive {
			return true
		}
	}
	return false
}

// canLockLocked implements spec.md §4.3's CanLock predicate. Must be
// called with mu held.
func (l *Lock) canLockLocked(now time.Time) bool {
	id := l.identifierLocked()
	exclusive := l.exclusive
	for _, e := range l.entries {
		if e.By != id && !e.expired(now) && (e.Exclusive || exclusive) {
			return false
		}
	}
	return true
}

// Acquire implements spec.md §4.3. It returns true iff the handle holds a
// live entry when it returns; false means the wait timeout elapsed while
// the resource remained incompatible, which is not an error.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	l.retries = 0
	l.mu.Unlock()

	for {
		available, err := l.WaitForOtherLocks(ctx, 0)
		if err != nil {
			return false, err
		}
		if !available {
			return l.IsLocked(), nil
		}

		cfg := global.snapshot()
		l.mu.Lock()
		duration := l.time
		l.mu.Unlock()

		err = l.addOrUpdate(ctx, cfg, duration)
		if _, retry := err.(errSaveRetry); retry {
			continue
		}
		if err != nil {
			return false, err
		}
		return l.IsLocked(), nil
	}
}

// WaitForOtherLocks implements spec.md §4.3's waitForOtherLocks /
// caller-facing WaitForOtherLocks: it refreshes the view, then sleeps and
// refreshes again until CanLock holds or waitTime elapses. A waitTime of 0
// uses the handle's configured waitTime. Returns true iff CanLock holds
// when it returns.
func (l *Lock) WaitForOtherLocks(ctx context.Context, waitTime time.Duration) (bool, error) {
	cfg := global.snapshot()

	l.mu.Lock()
	if waitTime == 0 {
		waitTime = l.waitTime
	}
	interval := cfg.waitRetryInterval
	l.mu.Unlock()

	start := cfg.clock.Now()
	if err := l.refreshView(ctx, cfg); err != nil {
		return false, err
	}

	for {
		l.mu.Lock()
		canLock := l.canLockLocked(cfg.clock.Now())
		l.mu.Unlock()
		if canLock {
			return true, nil
		}
		if cfg.clock.Now().Sub(start) >= waitTime {
			return false, nil
		}
		if err := sleepCtx(ctx, cfg.clock, interval); err != nil {
			return false, err
		}
		if err := l.refreshView(ctx, cfg); err != nil {
			return false, err
		}
	}
}

// Refresh implements spec.md §4.4.
func (l *Lock) Refresh(ctx context.Context) (bool, error) {
	cfg := global.snapshot()

	l.mu.Lock()
	threshold := l.refreshThreshold
	l.mu.Unlock()

	if threshold > 0 {
		remaining := l.RemainingLockDuration()
		if remaining > int64(threshold/time.Second) {
			return true, nil
		}
	}

	if err := l.refreshView(ctx, cfg); err != nil {
		return false, err
	}
	l.mu.Lock()
	l.retries = 0
	canLock := l.canLockLocked(cfg.clock.Now())
	l.mu.Unlock()
	if !canLock {
		return false, nil
	}

	l.mu.Lock()
	duration := l.time
	if l.refreshTime != nil {
		duration = *l.refreshTime
	}
	l.mu.Unlock()

	for {
		err := l.addOrUpdate(ctx, cfg, duration)
		if _, retry := err.(errSaveRetry); retry {
			l.mu.Lock()
			stillCanLock := l.canLockLocked(cfg.clock.Now())
			l.mu.Unlock()
			if !stillCanLock {
				return false, nil
			}
			continue
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
}

// Break implements spec.md §4.8: idempotent release of this handle's own
// entry.
func (l *Lock) Break(ctx context.Context) error {
	cfg := global.snapshot()

	if !l.IsLocked() {
		return nil
	}

	if err := l.refreshView(ctx, cfg); err != nil {
		return err
	}
	l.mu.Lock()
	l.retries = 0
	l.mu.Unlock()

	for {
		err := l.removeOwn(ctx, cfg)
		if _, retry := err.(errSaveRetry); retry {
			continue
		}
		return err
	}
}

// Close implements spec.md §9's best-effort break-on-teardown: if
// breakOnTeardown is set and the handle currently holds a live entry, it
// attempts Break; a failure is logged as a warning and also returned to
// the caller.
func (l *Lock) Close(ctx context.Context) error {
	l.mu.Lock()
	shouldBreak := l.breakOnTeardown
	l.mu.Unlock()

	if !shouldBreak || !l.IsLocked() {
		return nil
	}
	if err := l.Break(ctx); err != nil {
		if l.logger != nil {
			l.logger.Warn("best-effort break on teardown failed", log.ErrAttr(err))
		}
		return err
	}
	return nil
}

// addOrUpdate implements spec.md §4.5's AddOrUpdate, followed by
// SaveLocks. Returns errSaveRetry if the caller should retry.
func (l *Lock) addOrUpdate(ctx context.Context, cfg configSnapshot, duration time.Duration) error {
	l.mu.Lock()
	now := cfg.clock.Now()
	id := l.identifierLocked()
	until := now.Add(duration).Unix()
	if i := l.entries.indexOf(id); i >= 0 {
		l.entries[i].Until = until
		l.entries[i].Exclusive = l.exclusive
	} else {
		l.entries = append(l.entries, Entry{By: id, Until: until, Exclusive: l.exclusive})
	}
	l.mu.Unlock()

	return l.saveLocks(ctx, cfg)
}

// removeOwn implements spec.md §4.5's RemoveOwn, followed by SaveLocks.
func (l *Lock) removeOwn(ctx context.Context, cfg configSnapshot) error {
	l.mu.Lock()
	id := l.identifierLocked()
	kept := make(Set, 0, len(l.entries))
	for _, e := range l.entries {
		if e.By != id {
			kept = append(kept, e)
		}
	}
	l.entries = kept
	l.mu.Unlock()

	return l.saveLocks(ctx, cfg)
}

// saveLocks implements spec.md §4.5's SaveLocks, the heart of the
// optimistic state machine.
func (l *Lock) saveLocks(ctx context.Context, cfg configSnapshot) error {
	l.mu.Lock()
	witness := l.previous
	now := cfg.clock.Now()
	l.entries = l.entries.purgeExpired(now)
	entries := l.entries
	retries := l.retries
	l.mu.Unlock()

	delay := retries >= delayModeThreshold
	returnNewOnFail := !delay

	var (
		ok     bool
		newVal storage.Value
		err    error
	)
	if len(entries) == 0 {
		ok, newVal, err = l.storageDeleteIf(ctx, cfg, witness, returnNewOnFail)
	} else {
		ok, newVal, err = l.storagePutIf(ctx, cfg, entries.Encode(), witness, returnNewOnFail)
	}
	if err != nil {
		return err
	}
	if ok {
		l.mu.Lock()
		l.previous = successWitness(entries, newVal)
		l.retries = 0
		l.mu.Unlock()
		return nil
	}

	if retries >= cfg.maxSaveRetries {
		return stacktrace.Wrap(errcontext.Add(ErrTooManySaveRetries,
			slog.String("key", l.key), slog.Int("retries", retries)))
	}

	if delay {
		sleepFor := jitter.Full()(cfg.maxDelayPerSaveRetry * time.Duration(retries))
		if l.logger != nil {
			l.logger.Debug("lock save contention, entering delay mode", slog.Int("retries", retries), slog.Duration("sleep", sleepFor))
		}
		if err := sleepCtx(ctx, cfg.clock, sleepFor); err != nil {
			return err
		}
		if err := l.refreshView(ctx, cfg); err != nil {
			return err
		}
	} else {
		l.installValue(newVal)
	}

	l.mu.Lock()
	l.retries++
	l.mu.Unlock()
	return errSaveRetry{}
}

// successWitness derives the next CAS witness after a successful write:
// the adapter-returned witness for a Put, or the absent marker for a
// Delete (entries became empty).
func successWitness(entries Set, newVal storage.Value) storage.Value {
	if len(entries) == 0 {
		return storage.Absent()
	}
	return newVal
}

// refreshView implements spec.md §4.6: fetch the current payload under the
// availability-retry wrapper, store it as previousPayload, and decode it
// into entries.
func (l *Lock) refreshView(ctx context.Context, cfg configSnapshot) error {
	val, err := l.storageGet(ctx, cfg)
	if err != nil {
		return err
	}
	l.installValue(val)
	return nil
}

func (l *Lock) installValue(v storage.Value) {
	entries, malformed := DecodeSet(v)
	if malformed && l.logger != nil {
		l.logger.Debug("lock payload could not be decoded, treating as empty", slog.String("key", l.key))
	}
	l.mu.Lock()
	l.previous = v
	l.entries = entries
	l.mu.Unlock()
}

func (l *Lock) storageGet(ctx context.Context, cfg configSnapshot) (storage.Value, error) {
	if cfg.store == nil {
		return storage.Value{}, stacktrace.Wrap(ErrNoStore)
	}
	retrier, err := availabilityRetrier(cfg.maxUnavailableRetries, cfg.delayPerUnavailableRetry, cfg.clock)
	if err != nil {
		return storage.Value{}, err
	}
	var val storage.Value
	err = retrier.Try(ctx, func() error {
		v, err := cfg.store.Get(ctx, l.keyInStore)
		if err != nil {
			return classifyStorageErr(err)
		}
		val = v
		return nil
	})
	if err != nil {
		return storage.Value{}, err
	}
	return val, nil
}

func (l *Lock) storagePutIf(ctx context.Context, cfg configSnapshot, value string, witness storage.Value, returnNewOnFail bool) (bool, storage.Value, error) {
	if cfg.store == nil {
		return false, storage.Value{}, stacktrace.Wrap(ErrNoStore)
	}
	retrier, err := availabilityRetrier(cfg.maxUnavailableRetries, cfg.delayPerUnavailableRetry, cfg.clock)
	if err != nil {
		return false, storage.Value{}, err
	}
	var (
		ok     bool
		newVal storage.Value
	)
	err = retrier.Try(ctx, func() error {
		o, nv, err := cfg.store.PutIf(ctx, l.keyInStore, value, witness, returnNewOnFail)
		if err != nil {
			return classifyStorageErr(err)
		}
		ok, newVal = o, nv
		return nil
	})
	if err != nil {
		return false, storage.Value{}, err
	}
	return ok, newVal, nil
}

func (l *Lock) storageDeleteIf(ctx context.Context, cfg configSnapshot, witness storage.Value, returnNewOnFail bool) (bool, storage.Value, error) {
	if cfg.store == nil {
		return false, storage.Value{}, stacktrace.Wrap(ErrNoStore)
	}
	retrier, err := availabilityRetrier(cfg.maxUnavailableRetries, cfg.delayPerUnavailableRetry, cfg.clock)
	if err != nil {
		return false, storage.Value{}, err
	}
	var (
		ok     bool
		newVal storage.Value
	)
	err = retrier.Try(ctx, func() error {
		o, nv, err := cfg.store.DeleteIf(ctx, l.keyInStore, witness, returnNewOnFail)
		if err != nil {
			return classifyStorageErr(err)
		}
		ok, newVal = o, nv
		return nil
	})
	if err != nil {
		return false, storage.Value{}, err
	}
	return ok, newVal, nil
}

// sleepCtx sleeps for d or returns early with ctx's error if it's done
// first, per spec.md §5's requirement that every sleep thread cancellation.
func sleepCtx(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return stacktrace.Wrap(ctx.Err())
		}
		return nil
	}
	timer := clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return stacktrace.Wrap(ctx.Err())
	}
}
