package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// redisCounter is the subset of redis.UniversalClient the limiter needs.
type redisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisLimiter is a fixed-window limiter shared by every instance that
// points at the same Redis. Each identity may make Limit requests per
// Window. When Redis is unreachable requests are let through.
type RedisLimiter struct {
	client redisCounter
	limit  int64
	window time.Duration
	prefix string
	keyFn  keyFunc
	now    func() time.Time
}

// NewRedisLimiter builds a RedisLimiter. limit <= 0 is coerced to 1 and a
// non-positive window to one second.
func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration, keyFn keyFunc) *RedisLimiter {
	return newRedisLimiter(client, limit, window, keyFn)
}

func newRedisLimiter(client redisCounter, limit int, window time.Duration, keyFn keyFunc) *RedisLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &RedisLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: "ratelimit:",
		keyFn:  keyFn,
		now:    time.Now,
	}
}

// Handler returns the Gin middleware. Idempotent replays bypass it like the
// in-memory limiter.
func (rl *RedisLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		slot := rl.now().UnixNano() / int64(rl.window)
		key := rl.prefix + rl.keyFn(c) + ":" + strconv.FormatInt(slot, 10)

		n, err := rl.client.Incr(ctx, key).Result()
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if n == 1 {
			// The window key outlives its slot a little so late INCRs still expire.
			if err := rl.client.Expire(ctx, key, 2*rl.window).Err(); err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("rate limiter expire failed")
			}
		}
		if n > rl.limit {
			tooManyRequests(c, "redis", rl.window)
			return
		}
		c.Next()
	}
}
