package lockset

import "time"

// Entry is one holder's claim within a lock's entry set: who holds it,
// until when, and whether that hold is exclusive.
type Entry struct {
	By        string `json:"by"`
	Until     int64  `json:"until"`
	Exclusive bool   `json:"exclusive"`
}

func (e Entry) expired(now time.Time) bool {
	return e.Until <= now.Unix()
}

// remaining returns until-now in whole seconds, matching RemainingLockDuration's
// integer-seconds contract. Zero or negative once expired.
func (e Entry) remaining(now time.Time) int64 {
	return e.Until - now.Unix()
}
