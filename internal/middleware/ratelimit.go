package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const rateWindow = time.Minute

// RateLimit allows maxPerMin requests per client IP and scope each minute.
// Counters live in Redis when a client is given and in process memory
// otherwise. Redis errors fail open.
func RateLimit(rdb *redis.Client, scope string, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	local := newLocalCounter()
	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("rl:%s:%s", scope, c.IP())

		var count int64
		if rdb != nil {
			n, err := rdb.Incr(c.UserContext(), key).Result()
			if err != nil {
				return c.Next()
			}
			if n == 1 {
				rdb.Expire(c.UserContext(), key, rateWindow)
			}
			count = n
		} else {
			count = local.incr(key)
		}

		if count > int64(maxPerMin) {
			c.Set(fiber.HeaderRetryAfter, "60")
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}

type localCounter struct {
	mu     sync.Mutex
	counts *cache.Cache
}

func newLocalCounter() *localCounter {
	return &localCounter{counts: cache.New(rateWindow, 2*rateWindow)}
}

func (l *localCounter) incr(key string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.counts.Add(key, int64(1), cache.DefaultExpiration); err == nil {
		return 1
	}
	n, err := l.counts.IncrementInt64(key, 1)
	if err != nil {
		return 1
	}
	return n
}
