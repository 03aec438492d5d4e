package lockset

import "time"

// Defaults per spec.md §6.
const (
	defaultTime             = 120 * time.Second
	defaultWaitTime         = 300 * time.Second
	defaultRefreshThreshold = 30 * time.Second
	defaultBreakOnTeardown  = true
)

// Option configures a Lock at construction time. Every field an Option can
// set also has a SetXxx mutator on *Lock (spec.md's "mutable configuration"),
// since a handle's identifier, mode, and timing may change after
// construction.
type Option func(*Lock)

// WithIdentifier sets the holder identifier this handle uses instead of
// the process-wide default (spec.md §4.9).
func WithIdentifier(identifier string) Option {
	return func(l *Lock) { l.identifier = identifier }
}

// WithExclusive sets whether this handle requests an exclusive hold.
func WithExclusive(exclusive bool) Option {
	return func(l *Lock) { l.exclusive = exclusive }
}

// WithTime sets the server-side hold duration (the lock auto-releases
// after this even if the holder vanishes).
func WithTime(d time.Duration) Option {
	return func(l *Lock) { l.time = d }
}

// WithWaitTime sets how long Acquire's wait loop will wait for
// incompatible foreign entries to clear before giving up.
func WithWaitTime(d time.Duration) Option {
	return func(l *Lock) { l.waitTime = d }
}

// WithRefreshTime sets the hold duration Refresh grants; nil (the
// default) falls back to time.
func WithRefreshTime(d time.Duration) Option {
	return func(l *Lock) { l.refreshTime = &d }
}

// WithRefreshThreshold sets the no-op threshold: Refresh is a no-op while
// RemainingLockDuration exceeds this.
func WithRefreshThreshold(d time.Duration) Option {
	return func(l *Lock) { l.refreshThreshold = d }
}

// WithBreakOnTeardown sets whether Close attempts a best-effort Break.
func WithBreakOnTeardown(b bool) Option {
	return func(l *Lock) { l.breakOnTeardown = b }
}
