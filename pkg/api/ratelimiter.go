package api

import (
	"sync"
	"time"
)

const rateWindow = time.Minute

// RateLimiter implements per-IP rate limiting with a sliding window.
type RateLimiter struct {
	limits          map[string]*rateLimitState
	maxPerWindow    int
	mu              sync.Mutex
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewRateLimiter creates a rate limiter allowing maxPerMinute requests per IP.
func NewRateLimiter(maxPerMinute int) *RateLimiter {
	rl := &RateLimiter{
		limits:          make(map[string]*rateLimitState),
		maxPerWindow:    maxPerMinute,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

// Allow reports whether a request from the given IP fits within the window
// and records it when it does.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	state, exists := rl.limits[ip]
	if !exists {
		state = &rateLimitState{}
		rl.limits[ip] = state
	}

	state.requests = pruneOlderThan(state.requests, now.Add(-rateWindow))
	if len(state.requests) >= rl.maxPerWindow {
		return false
	}
	state.requests = append(state.requests, now)
	return true
}

// RetryAfter returns the number of seconds until the window frees a slot.
func (rl *RateLimiter) RetryAfter(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, exists := rl.limits[ip]
	if !exists || len(state.requests) == 0 {
		return 0
	}

	remaining := rateWindow - time.Since(state.requests[0])
	if remaining < 0 {
		return 0
	}
	return int((remaining + time.Second - 1) / time.Second)
}

func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rateWindow)
	for ip, state := range rl.limits {
		state.requests = pruneOlderThan(state.requests, cutoff)
		if len(state.requests) == 0 {
			delete(rl.limits, ip)
		}
	}
}

// Stop stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

func pruneOlderThan(requests []time.Time, cutoff time.Time) []time.Time {
	valid := requests[:0]
	for _, t := range requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}
