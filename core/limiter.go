package core

import (
	"fmt"
	"sync"
)

// TurnLimiter enforces a maximum number of model calls within one turn.
type TurnLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewTurnLimiter creates a new limiter. If max == 0, unlimited calls are allowed.
func NewTurnLimiter(max int) *TurnLimiter {
	return &TurnLimiter{max: max}
}

// Increment increases the call counter and returns an error if the limit is exceeded.
func (l *TurnLimiter) Increment() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	if l.max > 0 && l.count > l.max {
		return fmt.Errorf("exceeded max model calls per turn: %d", l.max)
	}

	return nil
}

// Count returns the current number of calls made.
func (l *TurnLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}
