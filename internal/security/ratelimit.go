package security

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/civilforms/internal/common"
)

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter caps attempts per key inside a sliding window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Reset(ctx context.Context, key string) error
}

// RateLimitError is returned to callers that need the wait time.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many attempts, try again in %d seconds", e.Seconds())
}

func (e *RateLimitError) Unwrap() error { return common.ErrRateLimited }

// Seconds rounds the wait up so the user is never told to retry too early.
func (e *RateLimitError) Seconds() int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// Check turns a denied Decision into a *RateLimitError.
func Check(ctx context.Context, l Limiter, key string) error {
	d, err := l.Allow(ctx, key)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if !d.Allowed {
		return &RateLimitError{RetryAfter: d.RetryAfter}
	}
	return nil
}

// NormalizeKey lower-cases the identifier and falls back to the anonymous key.
func NormalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return common.AnonymousKey
	}
	return key
}

// MemoryLimiter keeps attempt timestamps per key in process memory.
// State is lost on restart.
type MemoryLimiter struct {
	mu          sync.Mutex
	maxAttempts int
	window      time.Duration
	now         func() time.Time
	attempts    map[string][]time.Time
	lastSweep   time.Time
}

func NewMemoryLimiter(maxAttempts int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
		attempts:    make(map[string][]time.Time),
	}
}

// WithClock replaces the time source. Tests only.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	key = NormalizeKey(key)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	recent := prune(l.attempts[key], now.Add(-l.window))
	if len(recent) >= l.maxAttempts {
		l.attempts[key] = recent
		retry := recent[0].Add(l.window).Sub(now)
		if retry <= 0 {
			retry = time.Millisecond
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
	}

	recent = append(recent, now)
	l.attempts[key] = recent
	return Decision{Allowed: true, Remaining: l.maxAttempts - len(recent)}, nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.attempts, NormalizeKey(key))
	l.mu.Unlock()
	return nil
}

// sweep drops keys whose attempts have all expired, at most once per window.
func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	cutoff := now.Add(-l.window)
	for k, ts := range l.attempts {
		if len(prune(ts, cutoff)) == 0 {
			delete(l.attempts, k)
		}
	}
}

// prune returns the timestamps strictly after cutoff. ts is sorted.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}
