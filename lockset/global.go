package lockset

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kvlock/lockset/log"
	"github.com/kvlock/lockset/retry"
	"github.com/kvlock/lockset/retry/strategy"
	"github.com/kvlock/lockset/storage"
	"github.com/kvlock/lockset/xerrors/errclass"
	"github.com/kvlock/lockset/xerrors/stacktrace"
)

// process-wide, shared immutable-after-init configuration (spec.md §5):
// the storage adapter, key prefix, and the five retry/back-off knobs.
// Callers are expected to configure these during bootstrap, before any
// Lock handle starts operating, per spec.md's process-wide configuration
// policy — global therefore uses a plain mutex rather than anything
// lock-free, favoring correctness of the (rare, bootstrap-time) writes
// over read throughput.
var global = &globalConfig{
	prefix:                   "lock/",
	waitRetryInterval:        time.Second,
	maxSaveRetries:           100,
	maxDelayPerSaveRetry:     time.Microsecond * 1000,
	maxUnavailableRetries:    3,
	delayPerUnavailableRetry: time.Second,
	clock:                    clockwork.NewRealClock(),
	logger:                   log.NewNilLogger(),
}

type globalConfig struct {
	mu sync.RWMutex

	store storage.Store

	prefix string

	waitRetryInterval        time.Duration
	maxSaveRetries           int
	maxDelayPerSaveRetry     time.Duration
	maxUnavailableRetries    int
	delayPerUnavailableRetry time.Duration

	clock  clockwork.Clock
	logger *slog.Logger
}

// SetStore sets the process-wide storage.Store every Lock uses.
func SetStore(store storage.Store) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.store = store
}

// SetPrefix sets the process-wide key prefix prepended to every caller key
// (keyInStore = prefix || key). Defaults to "lock/".
func SetPrefix(prefix string) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.prefix = prefix
}

// SetWaitRetryInterval sets how long waitForOtherLocks sleeps between
// CanLock checks. Defaults to 1s.
func SetWaitRetryInterval(d time.Duration) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.waitRetryInterval = d
}

// SetMaxSaveRetries bounds the number of CAS-mismatch retries SaveLocks
// will attempt before returning ErrTooManySaveRetries. Defaults to 100.
func SetMaxSaveRetries(n int) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.maxSaveRetries = n
}

// SetMaxDelayPerSaveRetry sets the upper bound (before jitter) of the
// delay-mode back-off: sleepFor ~ Uniform[0, maxDelayPerSaveRetry*retries).
// Defaults to 1000µs.
func SetMaxDelayPerSaveRetry(d time.Duration) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.maxDelayPerSaveRetry = d
}

// SetMaxUnavailableRetries bounds how many times the availability-retry
// wrapper retries a transient storage error. Defaults to 3.
func SetMaxUnavailableRetries(n int) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.maxUnavailableRetries = n
}

// SetDelayPerUnavailableRetry sets the fixed sleep between
// availability-retry attempts. Defaults to 1s.
func SetDelayPerUnavailableRetry(d time.Duration) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.delayPerUnavailableRetry = d
}

// SetClock overrides the process-wide wall-clock source. Test-only hook —
// production callers never need this.
func SetClock(clock clockwork.Clock) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.clock = clock
}

// SetLogger sets the logger Lock handles use for lifecycle events (acquire
// attempts, CAS retries, delay-mode entry, break, lost-lock). Defaults to
// a nil logger, matching the teacher's own default.
func SetLogger(logger *slog.Logger) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.logger = logger
}

// configSnapshot is a consistent point-in-time read of every process-wide
// knob a single Lock operation needs.
type configSnapshot struct {
	store                    storage.Store
	prefix                   string
	waitRetryInterval        time.Duration
	maxSaveRetries           int
	maxDelayPerSaveRetry     time.Duration
	maxUnavailableRetries    int
	delayPerUnavailableRetry time.Duration
	clock                    clockwork.Clock
	logger                   *slog.Logger
}

func (g *globalConfig) snapshot() configSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return configSnapshot{
		store:                    g.store,
		prefix:                   g.prefix,
		waitRetryInterval:        g.waitRetryInterval,
		maxSaveRetries:           g.maxSaveRetries,
		maxDelayPerSaveRetry:     g.maxDelayPerSaveRetry,
		maxUnavailableRetries:    g.maxUnavailableRetries,
		delayPerUnavailableRetry: g.delayPerUnavailableRetry,
		clock:                    g.clock,
		logger:                   g.logger,
	}
}

// availabilityRetrier builds a fresh retry.Retrier from the current
// process-wide availability-retry knobs (spec.md §4.7): fixed delay,
// bounded count, and non-retryable (Unknown-or-worse) errors propagate
// immediately rather than being retried.
func availabilityRetrier(maxRetries int, delay time.Duration, clock clockwork.Clock) (*retry.Retrier, error) {
	factory, err := strategy.NewConstant(delay)
	if err != nil {
		return nil, stacktrace.Wrap(err)
	}
	return retry.NewRetrier(
		retry.WithStrategy(factory),
		retry.WithMaxAttempts(maxRetries+1),
		retry.WithUnknownErrorsAs(errclass.Persistent),
		retry.WithClock(clock),
	), nil
}

// classifyStorageErr maps a raw storage.Store error onto an errclass so
// the availability-retry wrapper above knows whether to retry it:
// storage.ErrUnavailable is Transient, everything else is Persistent.
func classifyStorageErr(err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return errclass.WrapAs(stacktrace.Wrap(err), errclass.Transient)
	}
	return errclass.WrapAs(stacktrace.Wrap(err), errclass.Persistent)
}

func isUnavailable(err error) bool {
	return errors.Is(err, storage.ErrUnavailable)
}
