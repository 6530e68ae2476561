package rate

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter
type Limiter struct {
	keys map[string]*rate.Limiter
	mu   *sync.RWMutex
	r    rate.Limit
	b    int
}

var recipientLimiter *Limiter
var globalLimiter *rate.Limiter

// Start creates both per-recipient and global rate limiters.
func Start() {
	recipientLimiter = newKeyedRateLimiter(rate.Limit(0.5), 10)
	globalLimiter = rate.NewLimiter(rate.Limit(30), 30)
}

func newKeyedRateLimiter(r rate.Limit, b int) *Limiter {
	i := &Limiter{
		keys: make(map[string]*rate.Limiter),
		mu:   &sync.RWMutex{},
		r:    r,
		b:    b,
	}

	return i
}

// CheckLimit blocks until the outbound message to recipient is within both
// the global and the per-recipient rate.
func CheckLimit(recipient string) {
	if globalLimiter == nil {
		return
	}
	globalLimiter.Wait(context.Background())
	if len(recipient) > 0 {
		recipientLimiter.GetLimiter(recipient).Wait(context.Background())
	}
}

// Add creates a new rate limiter and adds it to the keys map,
// using the key
func (i *Limiter) Add(key string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	limiter := rate.NewLimiter(i.r, i.b)

	i.keys[key] = limiter

	return limiter
}

// GetLimiter returns the rate limiter for the provided key if it exists.
// Otherwise, calls Add to add key address to the map
func (i *Limiter) GetLimiter(key string) *rate.Limiter {
	i.mu.Lock()
	limiter, exists := i.keys[key]

	if !exists {
		i.mu.Unlock()
		return i.Add(key)
	}

	i.mu.Unlock()

	return limiter
}
