package health

import (
	"sync"
	"time"
)

// logBudget is a token bucket adapted from the teacher's retry/budget.go,
// repurposed from gating HTTP retries (no longer meaningful once a proxied
// TCP byte stream can't be replayed) into per-backend log-rate limiting, so
// a backend flapping every tick doesn't flood the log with one warning per
// transition.
type logBudget struct {
	mu          sync.Mutex
	max         int
	refillEvery time.Duration
	tokens      map[uint8]int
	lastRefill  map[uint8]time.Time
}

func newLogBudget(max int, refillEvery time.Duration) *logBudget {
	return &logBudget{
		max:         max,
		refillEvery: refillEvery,
		tokens:      make(map[uint8]int),
		lastRefill:  make(map[uint8]time.Time),
	}
}

// Allow reports whether id may log once more right now, consuming a token
// if so. Each id starts with a full bucket and refills completely every
// refillEvery.
func (lb *logBudget) Allow(id uint8) bool {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	last, seen := lb.lastRefill[id]
	if !seen || time.Since(last) >= lb.refillEvery {
		lb.tokens[id] = lb.max
		lb.lastRefill[id] = time.Now()
	}

	if lb.tokens[id] <= 0 {
		return false
	}
	lb.tokens[id]--
	return true
}
