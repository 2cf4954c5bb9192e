package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
	"github.com/noah-isme/hostel-api/pkg/response"
)

// Limiter decides whether another request from key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// TokenBucket is an in-process per-key limiter refilled at perMinute tokens a minute.
type TokenBucket struct {
	capacity  int
	perMinute int
	now       func() time.Time

	mu        sync.Mutex
	state     map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTokenBucket creates a limiter holding at most capacity tokens per key.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if perMinute <= 0 {
		perMinute = 1
	}
	if capacity <= 0 {
		capacity = perMinute
	}
	return &TokenBucket{capacity: capacity, perMinute: perMinute, now: time.Now, state: make(map[string]*bucket)}
}

// Allow consumes one token for key.
func (l *TokenBucket) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)
	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: float64(l.capacity - 1), last: now}
		return true, nil
	}
	b.tokens += now.Sub(b.last).Minutes() * float64(l.perMinute)
	if b.tokens > float64(l.capacity) {
		b.tokens = float64(l.capacity)
	}
	b.last = now
	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// refillTime is how long an empty bucket takes to fill back to capacity.
func (l *TokenBucket) refillTime() time.Duration {
	return time.Duration(float64(time.Minute) * float64(l.capacity) / float64(l.perMinute))
}

// sweep drops buckets that have refilled completely; they behave exactly like absent keys.
// It runs at most once per refill interval. Callers hold l.mu.
func (l *TokenBucket) sweep(now time.Time) {
	idle := l.refillTime()
	if now.Sub(l.lastSweep) < idle {
		return
	}
	l.lastSweep = now
	for key, b := range l.state {
		if now.Sub(b.last) >= idle {
			delete(l.state, key)
		}
	}
}

// RedisWindow counts requests per key in fixed one-minute windows shared by all instances.
type RedisWindow struct {
	client    *redis.Client
	perMinute int64
	now       func() time.Time
}

// NewRedisWindow creates a Redis-backed limiter.
func NewRedisWindow(client *redis.Client, perMinute int) *RedisWindow {
	return &RedisWindow{client: client, perMinute: int64(perMinute), now: time.Now}
}

// Allow increments the key's counter for the current window.
func (l *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	window := l.now().Unix() / 60
	redisKey := fmt.Sprintf("hostel:ratelimit:%s:%d", key, window)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("rate limit counter: %w", err)
	}
	return incr.Val() <= l.perMinute, nil
}

// RateLimit rejects clients exceeding the limiter, keyed by client IP and route.
// Limiter failures let the request through.
func RateLimit(limiter Limiter, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		key := c.ClientIP() + ":" + c.FullPath()
		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
		}
		if !allowed {
			c.Header("Retry-After", "60")
			response.Abort(c, appErrors.Clone(appErrors.ErrTooManyRequests, "too many requests, try again later"))
			return
		}
		c.Next()
	}
}
