package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedKeys caps the limiter map so rotating source IPs cannot exhaust
// memory.
const maxTrackedKeys = 4096

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyLimiter rate-limits per key (remote IP) with a bounded table.
// Safe for concurrent use.
type KeyLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
}

// NewKeyLimiter allows ratePerSec requests per key with the given burst.
func NewKeyLimiter(ratePerSec float64, burst int) *KeyLimiter {
	return &KeyLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(ratePerSec),
		burst:   burst,
	}
}

// Allow reports whether the key is within its budget, pruning idle entries
// when the table approaches its cap.
func (k *KeyLimiter) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := time.Now()
	if len(k.entries) >= maxTrackedKeys {
		for id, e := range k.entries {
			if now.Sub(e.lastSeen) > time.Minute {
				delete(k.entries, id)
			}
		}
		// Hard eviction if pruning freed nothing.
		for len(k.entries) >= maxTrackedKeys {
			for id := range k.entries {
				delete(k.entries, id)
				break
			}
		}
	}

	e, ok := k.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.Allow()
}
