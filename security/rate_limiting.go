package security

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis     *redis.Client
	perMinute int
}

func NewRateLimiter(redisClient *redis.Client, perMinute int) *RateLimiter {
	return &RateLimiter{redis: redisClient, perMinute: perMinute}
}

// AllowEnqueue checks the per-user registration budget for the current
// minute window. Redis failures allow the request through; rate
// limiting is protection, not a correctness gate.
func (r *RateLimiter) AllowEnqueue(ctx context.Context, userID string) bool {
	if r.perMinute <= 0 {
		return true
	}

	key := fmt.Sprintf("ratelimit:enqueue:%s", userID)

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		r.redis.Expire(ctx, key, time.Minute)
	}

	return count <= int64(r.perMinute)
}
