package strategy

import (
	"errors"
	"time"
)

// ErrInvalidInitialDelay is returned when a strategy is given an initial delay it does not accept.
var ErrInvalidInitialDelay = errors.New("invalid initial delay")

// Strategy abstracts how each delay is determined.
type Strategy interface {
	NextDelay() time.Duration
}

// Factory creates a new Strategy implementation.
type Factory func() Strategy
