package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate limit kinds.
const (
	// KindAuth limits authentication attempts per remote address.
	KindAuth = "auth"
	// KindChat limits chat messages per user.
	KindChat = "chat"
)

// RateLimitConfig holds configurable rate limits. A zero field selects the
// default; a negative one disables the kind.
type RateLimitConfig struct {
	AuthPerMin int `yaml:"auth_per_min"`
	ChatPerMin int `yaml:"chat_per_min"`
}

func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		AuthPerMin: 60,
		ChatPerMin: 30,
	}
}

// RateLimiter implements sliding window rate limiting keyed by kind and
// caller. Each bucket tracks timestamps of recent events within its window.
type RateLimiter struct {
	mu      sync.Mutex
	limits  map[string]int
	window  time.Duration
	buckets map[bucketKey]*bucket
	now     func() time.Time
}

type bucketKey struct {
	kind string
	key  string
}

type bucket struct {
	events []time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	if cfg.AuthPerMin == 0 {
		cfg.AuthPerMin = defaults.AuthPerMin
	}
	if cfg.ChatPerMin == 0 {
		cfg.ChatPerMin = defaults.ChatPerMin
	}

	limits := make(map[string]int, 2)
	if cfg.AuthPerMin > 0 {
		limits[KindAuth] = cfg.AuthPerMin
	}
	if cfg.ChatPerMin > 0 {
		limits[KindChat] = cfg.ChatPerMin
	}

	return &RateLimiter{
		limits:  limits,
		window:  time.Minute,
		buckets: make(map[bucketKey]*bucket),
		now:     time.Now,
	}
}

// Allow records one event of kind for key. It returns ErrRateLimited when
// key already reached the limit within the window. Kinds without a limit
// are always allowed.
func (rl *RateLimiter) Allow(kind, key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit, ok := rl.limits[kind]
	if !ok {
		return nil
	}

	now := rl.now()
	k := bucketKey{kind: kind, key: key}
	b, ok := rl.buckets[k]
	if !ok {
		b = &bucket{}
		rl.buckets[k] = b
	}
	b.evict(now.Add(-rl.window))

	if len(b.events) >= limit {
		return ErrRateLimited
	}
	b.events = append(b.events, now)
	return nil
}

// Sweep drops buckets with no event inside the window. It returns the
// number of buckets removed.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	removed := 0
	for k, b := range rl.buckets {
		b.evict(cutoff)
		if len(b.events) == 0 {
			delete(rl.buckets, k)
			removed++
		}
	}
	return removed
}

// evict removes events older than cutoff.
func (b *bucket) evict(cutoff time.Time) {
	// Events are chronologically ordered.
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
