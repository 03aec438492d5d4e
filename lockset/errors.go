package lockset

import "errors"

// ErrTooManySaveRetries is returned by SaveLocks (and therefore by Acquire,
// Refresh, and Break) when CAS contention on the stored entry set did not
// resolve within maxSaveRetries attempts.
var ErrTooManySaveRetries = errors.New("lockset: too many save retries")

// ErrNoStore is returned when a Lock operation runs before SetStore has
// configured a process-wide storage.Store.
var ErrNoStore = errors.New("lockset: no storage adapter configured; call SetStore during bootstrap")
