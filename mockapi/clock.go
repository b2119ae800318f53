package mockapi

import (
	"sync"
	"time"
)

// Clock is a manually advanced time source for WithNowFunc.
type Clock struct {
	now time.Time
	mu  sync.Mutex
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
