package server

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ConnectionLimits guards the websocket endpoint with three layers: a global
// per-instance cap, a per-IP concurrency cap, and a per-IP token bucket on
// new connection attempts.
type ConnectionLimits struct {
	current   atomic.Int64
	globalMax int64

	mu       sync.Mutex
	perIP    map[string]int
	perIPMax int

	buckets     map[string]*bucketEntry
	rate        rate.Limit
	burst       int
	cleanupAt   time.Time
	cleanupStep time.Duration
}

type bucketEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LimitReason describes why a connection was rejected.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

const bucketCleanupInterval = 5 * time.Minute

func NewConnectionLimits(globalMax int64, perIPMax int, connectionsPerSecond float64, burst int) *ConnectionLimits {
	return &ConnectionLimits{
		globalMax:   globalMax,
		perIP:       make(map[string]int),
		perIPMax:    perIPMax,
		buckets:     make(map[string]*bucketEntry),
		rate:        rate.Limit(connectionsPerSecond),
		burst:       burst,
		cleanupAt:   time.Now().Add(bucketCleanupInterval),
		cleanupStep: bucketCleanupInterval,
	}
}

// Acquire attempts to take a slot for the given IP. On success the caller
// must Release the same IP exactly once when the connection ends.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.allowRate(ip) {
		return false, LimitReasonRate
	}

	if !l.acquireGlobal() {
		return false, LimitReasonGlobal
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.perIP[ip] >= l.perIPMax {
		l.current.Add(-1)
		return false, LimitReasonPerIP
	}
	l.perIP[ip]++
	return true, ""
}

// Release frees the slot taken by Acquire.
func (l *ConnectionLimits) Release(ip string) {
	l.mu.Lock()
	if count := l.perIP[ip]; count > 0 {
		l.perIP[ip] = count - 1
		if l.perIP[ip] == 0 {
			delete(l.perIP, ip)
		}
	}
	l.mu.Unlock()

	l.current.Add(-1)
}

// Current returns the number of held slots.
func (l *ConnectionLimits) Current() int64 {
	return l.current.Load()
}

func (l *ConnectionLimits) acquireGlobal() bool {
	for {
		current := l.current.Load()
		if current >= l.globalMax {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *ConnectionLimits) allowRate(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.After(l.cleanupAt) {
		l.cleanupBuckets(now)
		l.cleanupAt = now.Add(l.cleanupStep)
	}

	entry, exists := l.buckets[ip]
	if !exists {
		entry = &bucketEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[ip] = entry
	}
	entry.lastSeen = now

	return entry.limiter.Allow()
}

// cleanupBuckets drops token buckets idle for two cleanup intervals.
// Must be called with mu held.
func (l *ConnectionLimits) cleanupBuckets(now time.Time) {
	cutoff := now.Add(-2 * l.cleanupStep)
	for ip, entry := range l.buckets {
		if entry.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}
