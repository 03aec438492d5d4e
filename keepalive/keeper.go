// Package keepalive is a supplemental feature not named by spec.md's
// distilled core: a background refresh loop for a Lock that is already
// held, built from the teacher's own task.Manager/task/polling
// abstractions.
//
// spec.md §9 leaves "refresh without the lock" as an open question —
// whether losing the own entry during Refresh should silently re-acquire
// or fail. That case is settled inside Lock.Refresh: if the own entry has
// vanished and no conflicting entry blocks it, Refresh writes a fresh
// entry and the loop carries on. On the first refresh that errors or
// returns false (another holder's conflicting entry blocks the lock),
// Keeper stops the background loop and surfaces the loss on Lost(); it
// does not retry after that.
package keepalive

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kvlock/lockset/lockset"
	"github.com/kvlock/lockset/task"
	"github.com/kvlock/lockset/task/polling"
)

// ErrLost is reported on Lost() when Refresh returns false without an
// error: another holder's conflicting entry keeps this handle from holding
// the lock.
var ErrLost = errors.New("keepalive: lock was lost")

// Keeper refreshes a held Lock on an interval until Stop is called or a
// refresh reports the lock lost.
type Keeper struct {
	lock    *lockset.Lock
	manager *task.Manager

	lost     chan error
	lostOnce sync.Once
}

// Start begins refreshing lock every interval in the background. The
// caller must already hold lock (e.g. via a successful Acquire) before
// calling Start.
func Start(lock *lockset.Lock, interval time.Duration, opts ...polling.Option) *Keeper {
	k := &Keeper{
		lock: lock,
		lost: make(chan error, 1),
	}

	pollOpts := append([]polling.Option{
		polling.WithInterval(interval),
		polling.WithTerminateOnError(),
	}, opts...)

	pollTask := polling.NewTask("lockset-keepalive", &refreshAction{keeper: k}, pollOpts...)

	k.manager = task.NewManager()
	k.manager.RunTerminable(pollTask)
	return k
}

// Lost returns a channel that receives exactly once, when a refresh finds
// the lock blocked by another holder (ErrLost) or fails outright (the
// refresh error).
// The background loop has already stopped by the time a value is sent.
func (k *Keeper) Lost() <-chan error {
	return k.lost
}

// Stop halts the background refresh loop and attempts a best-effort
// Break of the underlying lock.
func (k *Keeper) Stop(ctx context.Context) error {
	_ = k.manager.Stop()
	return k.lock.Break(ctx)
}

func (k *Keeper) reportLost(err error) {
	k.lostOnce.Do(func() {
		k.lost <- err
	})
}

// refreshAction adapts Keeper's refresh step to polling.Action.
type refreshAction struct {
	keeper *Keeper
}

func (a *refreshAction) Run(ctx context.Context) error {
	held, err := a.keeper.lock.Refresh(ctx)
	if err != nil {
		a.keeper.reportLost(err)
		return err
	}
	if !held {
		a.keeper.reportLost(ErrLost)
		return ErrLost
	}
	return nil
}

func (a *refreshAction) Cleanup() {}
