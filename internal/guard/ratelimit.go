package guard

import (
	"fmt"
	"sync"
	"time"
)

const (
	DefaultMaxRequests = 10
	DefaultWindow      = 60 * time.Second
)

// RateLimiter is a per-identifier sliding window. State is process-local and
// lost on restart.
type RateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time
	now         func() time.Time
	lastSweep   time.Time
}

type RateLimiterOption func(*RateLimiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) RateLimiterOption {
	return func(l *RateLimiter) {
		l.now = now
	}
}

func NewRateLimiter(maxRequests int, window time.Duration, opts ...RateLimiterOption) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}

	l := &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit records the request and reports true when the identifier is under quota.
// A rejected request is not recorded.
func (l *RateLimiter) Admit(identifier string) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(now)
	}

	kept := l.requests[identifier][:0]
	for _, t := range l.requests[identifier] {
		if now.Sub(t) < l.window {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.maxRequests {
		l.requests[identifier] = kept
		return false, l.message()
	}

	l.requests[identifier] = append(kept, now)
	return true, ""
}

// sweep forgets identifiers with no request left in the window, so callers
// that appear once do not stay in memory. Caller holds mu.
func (l *RateLimiter) sweep(now time.Time) {
	for key, times := range l.requests {
		if len(times) == 0 || now.Sub(times[len(times)-1]) >= l.window {
			delete(l.requests, key)
		}
	}
	l.lastSweep = now
}

// Tracked is the number of identifiers currently held.
func (l *RateLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

// Allow is Admit in error form.
func (l *RateLimiter) Allow(identifier string) error {
	if ok, msg := l.Admit(identifier); !ok {
		return &RateLimitError{Identifier: identifier, Message: msg}
	}
	return nil
}

// Remaining reports how many requests the identifier may still make in the current window.
func (l *RateLimiter) Remaining(identifier string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	live := 0
	for _, t := range l.requests[identifier] {
		if now.Sub(t) < l.window {
			live++
		}
	}
	return max(l.maxRequests-live, 0)
}

func (l *RateLimiter) message() string {
	return fmt.Sprintf("Rate limit exceeded (%d requests per %s)", l.maxRequests, formatWindow(l.window))
}

func formatWindow(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", int(d/time.Second))
	}
	return d.String()
}
