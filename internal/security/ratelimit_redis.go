package security

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// slidingWindow prunes the window, then records the attempt only when the
// window has room. Running as one script makes the check and the add a
// single step across replicas.
//
// KEYS[1] window key; ARGV: now (ms), window (ms), max attempts, member.
// Returns {allowed, remaining, retry after (ms)}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= max then
	local retry = 1
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if oldest[2] then
		retry = tonumber(oldest[2]) + window - now
	end
	if retry < 1 then
		retry = 1
	end
	return {0, 0, retry}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, max - count - 1, 0}
`)

// RedisLimiter shares the sliding window between server replicas. Each key
// is a sorted set of attempt timestamps (unix milliseconds).
type RedisLimiter struct {
	rdb         redis.Cmdable
	prefix      string
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

func NewRedisLimiter(rdb redis.Cmdable, maxAttempts int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		rdb:         rdb,
		prefix:      "ratelimit:",
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	k := l.prefix + NormalizeKey(key)
	res, err := slidingWindow.Run(ctx, l.rdb, []string{k},
		l.now().UnixMilli(), l.window.Milliseconds(), l.maxAttempts, uuid.NewString()).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis sliding window: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("redis sliding window: unexpected reply %v", res)
	}

	var v [3]int64
	for i, r := range res {
		n, ok := r.(int64)
		if !ok {
			return Decision{}, fmt.Errorf("redis sliding window: unexpected reply %v", res)
		}
		v[i] = n
	}

	if v[0] == 0 {
		return Decision{Allowed: false, RetryAfter: time.Duration(v[2]) * time.Millisecond}, nil
	}
	return Decision{Allowed: true, Remaining: int(v[1])}, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, l.prefix+NormalizeKey(key)).Err()
}
