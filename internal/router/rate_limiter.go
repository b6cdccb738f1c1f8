package router

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// idleExpiry is how long an unused producer bucket is kept
const idleExpiry = 10 * time.Minute

// FrameLimiter applies a token bucket per producer connection
type FrameLimiter struct {
	mu        sync.Mutex
	producers map[string]*producerLimit
	limit     rate.Limit
	burst     int
	clock     clockwork.Clock
	cleanupAt time.Time
}

type producerLimit struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewFrameLimiter allows framesPerSecond sustained with the given burst.
// A non-positive rate disables limiting. A nil clock uses real time.
func NewFrameLimiter(framesPerSecond float64, burst int, clock clockwork.Clock) *FrameLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	limit := rate.Limit(framesPerSecond)
	if framesPerSecond <= 0 {
		limit = rate.Inf
	}

	return &FrameLimiter{
		producers: make(map[string]*producerLimit),
		limit:     limit,
		burst:     burst,
		clock:     clock,
		cleanupAt: clock.Now().Add(idleExpiry),
	}
}

// Allow reports whether the producer may submit another frame now
func (fl *FrameLimiter) Allow(producerID string) bool {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	now := fl.clock.Now()
	if now.After(fl.cleanupAt) {
		fl.cleanup(now)
		fl.cleanupAt = now.Add(idleExpiry)
	}

	entry, exists := fl.producers[producerID]
	if !exists {
		entry = &producerLimit{limiter: rate.NewLimiter(fl.limit, fl.burst)}
		fl.producers[producerID] = entry
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}

// Forget drops the producer's bucket when its connection ends
func (fl *FrameLimiter) Forget(producerID string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	delete(fl.producers, producerID)
}

// cleanup removes buckets idle for longer than idleExpiry. Caller holds mu.
func (fl *FrameLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-idleExpiry)
	for id, entry := range fl.producers {
		if entry.lastSeen.Before(cutoff) {
			delete(fl.producers, id)
		}
	}
}

// Tracked returns the number of producers with a live bucket
func (fl *FrameLimiter) Tracked() int {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return len(fl.producers)
}
