package ratelimit

import (
	"sync"
	"time"
)

// Limiter paces outbound requests.
type Limiter interface {
	// Wait blocks until the next request is allowed to fire.
	Wait()
	// Reset clears the limiter state.
	Reset()
}

// Interval enforces a minimum spacing between consecutive requests, keeping
// the client under a requests-per-second budget. The first request is never
// delayed.
type Interval struct {
	spacing time.Duration
	last    time.Time
	sleep   func(time.Duration)
	now     func() time.Time
	mu      sync.Mutex
}

// NewInterval creates a limiter from a requests-per-second budget. A budget
// of zero or less disables pacing.
func NewInterval(requestsPerSecond float64) *Interval {
	var spacing time.Duration
	if requestsPerSecond > 0 {
		spacing = time.Duration(float64(time.Second) / requestsPerSecond)
	}
	return &Interval{
		spacing: spacing,
		sleep:   time.Sleep,
		now:     time.Now,
	}
}

// Wait sleeps until at least the configured spacing has elapsed since the
// previous request, then records the current time as the last request.
func (i *Interval) Wait() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.spacing > 0 && !i.last.IsZero() {
		next := i.last.Add(i.spacing)
		if d := next.Sub(i.now()); d > 0 {
			i.sleep(d)
		}
	}
	i.last = i.now()
}

// Reset forgets the last request time.
func (i *Interval) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.last = time.Time{}
}

// None is a Limiter that never delays.
type None struct{}

func (None) Wait()  {}
func (None) Reset() {}
