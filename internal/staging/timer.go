package staging

import (
	"sync"
	"time"
)

// CountdownTimer runs one callback after a confirmation window elapses,
// unless cancelled first. Exactly one of {fire, cancel} wins; Cancel is
// safe to call any number of times, including after the timer fired.
type CountdownTimer struct {
	mu       sync.Mutex
	timer    *time.Timer
	deadline time.Time
	settled  bool // fired or cancelled
}

// NewCountdownTimer starts a countdown of the given duration. The callback
// runs on the timer goroutine at most once.
func NewCountdownTimer(window time.Duration, onExpire func()) *CountdownTimer {
	c := &CountdownTimer{deadline: time.Now().Add(window)}
	c.timer = time.AfterFunc(window, func() {
		c.mu.Lock()
		if c.settled {
			c.mu.Unlock()
			return
		}
		c.settled = true
		c.mu.Unlock()
		onExpire()
	})
	return c
}

// Cancel stops the countdown. Idempotent; returns true only on the call
// that actually cancelled a live timer.
func (c *CountdownTimer) Cancel() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settled {
		return false
	}
	c.settled = true
	c.timer.Stop()
	return true
}

// Remaining reports the time left in the window, zero once settled.
func (c *CountdownTimer) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settled {
		return 0
	}
	if d := time.Until(c.deadline); d > 0 {
		return d
	}
	return 0
}
