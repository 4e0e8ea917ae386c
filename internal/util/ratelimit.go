package util

import (
	"context"
	"sync"
	"time"
)

// SlidingWindowLimiter allows at most limit requests per key within any
// window. State lives in process memory.
type SlidingWindowLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	requests map[string][]time.Time
}

func NewSlidingWindowLimiter(limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		requests: make(map[string][]time.Time),
	}
}

// Allow records a request for key unless the limit is reached, in which case
// it reports how long until the oldest request leaves the window.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	if l.limit <= 0 {
		return true, 0, nil
	}

	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	valid := pruneBefore(l.requests[key], cutoff)
	if len(valid) >= l.limit {
		l.requests[key] = valid
		return false, valid[0].Add(l.window).Sub(now), nil
	}

	l.requests[key] = append(valid, now)
	return true, 0, nil
}

// Cleanup drops keys with no requests inside the window.
func (l *SlidingWindowLimiter) Cleanup() {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, requests := range l.requests {
		valid := pruneBefore(requests, cutoff)
		if len(valid) == 0 {
			delete(l.requests, key)
		} else {
			l.requests[key] = valid
		}
	}
}

// Run calls Cleanup every interval until ctx is done.
func (l *SlidingWindowLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}
