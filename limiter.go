package blogconsole

import (
	"sync"
	"time"
)

// RateLimiter allows at most max events per key within a sliding window.
// The console keys it by client IP to bound writes.
type RateLimiter struct {
	mu     sync.Mutex
	events map[string][]time.Time
	max    int
	window time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a RateLimiter that allows max events per window.
// Call Stop to end its cleanup goroutine.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	l := &RateLimiter{
		events: make(map[string][]time.Time),
		max:    max,
		window: window,
		stop:   make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *RateLimiter) cleanup() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}
		cutoff := time.Now().Add(-l.window)
		l.mu.Lock()
		for key, hits := range l.events {
			kept := prune(hits, cutoff)
			if len(kept) == 0 {
				delete(l.events, key)
			} else {
				l.events[key] = kept
			}
		}
		l.mu.Unlock()
	}
}

func prune(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// Allow reports whether key is under the limit and, if so, records the event.
func (l *RateLimiter) Allow(key string) bool {
	cutoff := time.Now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := prune(l.events[key], cutoff)
	if len(kept) >= l.max {
		l.events[key] = kept
		return false
	}
	l.events[key] = append(kept, time.Now())
	return true
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (l *RateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
