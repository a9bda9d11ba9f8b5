package channels

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedKeys caps the number of per-chat limiters kept in memory.
	maxTrackedKeys = 4096

	// idleEviction drops limiters that have not been used for this long once the cap is hit.
	idleEviction = 10 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// SendLimiter paces outbound sends per chat (Telegram allows about one message
// per second per chat). Safe for concurrent use.
type SendLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*limiterEntry
}

// NewSendLimiter allows perSecond sends per chat with the given burst.
func NewSendLimiter(perSecond float64, burst int) *SendLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &SendLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
	}
}

// Wait blocks until a send to key is allowed or ctx is done.
func (s *SendLimiter) Wait(ctx context.Context, key string) error {
	return s.get(key).Wait(ctx)
}

func (s *SendLimiter) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if e, ok := s.entries[key]; ok {
		e.lastUsed = now
		return e.limiter
	}

	if len(s.entries) >= maxTrackedKeys {
		for k, e := range s.entries {
			if now.Sub(e.lastUsed) >= idleEviction {
				delete(s.entries, k)
			}
		}
		// Hard eviction if still at cap (arbitrary via map iteration)
		for len(s.entries) >= maxTrackedKeys {
			for k := range s.entries {
				delete(s.entries, k)
				break
			}
		}
	}

	e := &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst), lastUsed: now}
	s.entries[key] = e
	return e.limiter
}

func (s *SendLimiter) tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
