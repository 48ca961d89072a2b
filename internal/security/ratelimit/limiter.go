package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter applies a token-bucket rate limit per key (user ID, or client
// address before authentication). Idle buckets are dropped by a background
// sweep so the map stays bounded.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	cleanup *time.Ticker
	done    chan struct{}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter allows maxRequests per window per key.
func NewLimiter(maxRequests int, window time.Duration) *Limiter {
	limiter := &Limiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(float64(maxRequests) / window.Seconds()),
		burst:   maxRequests,
		cleanup: time.NewTicker(5 * time.Minute),
		done:    make(chan struct{}),
	}
	go limiter.cleanupOldBuckets()
	return limiter
}

// Allow reports whether the key may issue another request now.
func (l *Limiter) Allow(key string) bool {
	if key == "" {
		return true
	}
	return l.bucketFor(key, l.limit, l.burst).Allow()
}

// AllowStrict applies a tighter limit for sensitive endpoints (sign-in,
// invite) under a separate key space.
func (l *Limiter) AllowStrict(key string, maxRequests int, window time.Duration) bool {
	if key == "" {
		return true
	}
	limit := rate.Limit(float64(maxRequests) / window.Seconds())
	return l.bucketFor("strict:"+key, limit, maxRequests).Allow()
}

func (l *Limiter) bucketFor(key string, limit rate.Limit, burst int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(limit, burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

func (l *Limiter) cleanupOldBuckets() {
	for {
		select {
		case <-l.done:
			return
		case <-l.cleanup.C:
			l.mu.Lock()
			staleThreshold := time.Now().Add(-15 * time.Minute)
			for key, b := range l.buckets {
				if b.lastSeen.Before(staleThreshold) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Stop halts the cleanup goroutine.
func (l *Limiter) Stop() {
	l.cleanup.Stop()
	close(l.done)
}
