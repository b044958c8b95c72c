package scheduler

import (
	"sync"
	"time"
)

// Clock returns monotonic time since arbitrary origin.
type Clock interface {
	Now() time.Duration
}

type monotonic struct{ start time.Time }

// NewMonotonicClock uses monotonic reading of time.Time, immune to wall clock jumps.
func NewMonotonicClock() Clock { return monotonic{start: time.Now()} }

func (self monotonic) Now() time.Duration { return time.Since(self.start) }

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Duration
}

func (self *ManualClock) Now() time.Duration {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.now
}

func (self *ManualClock) Set(d time.Duration) {
	self.mu.Lock()
	self.now = d
	self.mu.Unlock()
}

func (self *ManualClock) Advance(d time.Duration) {
	self.mu.Lock()
	self.now += d
	self.mu.Unlock()
}
