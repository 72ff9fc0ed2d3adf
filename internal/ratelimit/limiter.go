// Package ratelimit implements the short-window vote throttle: a fixed
// 60-second window with at most 5 calls per user, backed by bounded in-memory
// state. It is a soft abuse throttle, not a security boundary; counters are
// lost on restart and that is acceptable.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/encorelive/encore/internal/metrics"
)

const (
	// DefaultWindow and DefaultLimit match the platform-wide vote throttle.
	DefaultWindow = 60 * time.Second
	DefaultLimit  = 5
)

type window struct {
	count     int
	startedAt time.Time
}

// Limiter is a fixed-window per-user rate limiter with TTL eviction.
type Limiter struct {
	mu      sync.Mutex
	windows map[uuid.UUID]*window
	clock   clockwork.Clock
	size    time.Duration
	limit   int
}

// New creates a limiter allowing limit calls per user within each window.
func New(clock clockwork.Clock, windowSize time.Duration, limit int) *Limiter {
	return &Limiter{
		windows: make(map[uuid.UUID]*window),
		clock:   clock,
		size:    windowSize,
		limit:   limit,
	}
}

// Allow reports whether the user may make another call in the current window
// and consumes one slot if so. An elapsed window resets the counter to 1.
func (l *Limiter) Allow(userID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()

	w, exists := l.windows[userID]
	if !exists || now.Sub(w.startedAt) >= l.size {
		l.windows[userID] = &window{count: 1, startedAt: now}
		return true
	}

	if w.count >= l.limit {
		return false
	}

	w.count++
	return true
}

// TrackedUsers returns the number of users with live window state.
func (l *Limiter) TrackedUsers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// evictExpired drops windows whose 60 seconds have elapsed and returns the
// number evicted. Expired entries carry no information: the next Allow call
// would reset them anyway.
func (l *Limiter) evictExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	evicted := 0

	for userID, w := range l.windows {
		if now.Sub(w.startedAt) >= l.size {
			delete(l.windows, userID)
			evicted++
		}
	}

	metrics.RateLimiterTrackedUsers.Set(float64(len(l.windows)))
	return evicted
}

// StartEvictionTimer runs a periodic goroutine that evicts expired windows.
// Returns a stop function that should be deferred.
func (l *Limiter) StartEvictionTimer(interval time.Duration) func() {
	ticker := l.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.Chan():
				evicted := l.evictExpired()
				if evicted > 0 {
					slog.Debug("Evicted expired rate limit windows", "count", evicted, "remaining", l.TrackedUsers())
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}
