package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// fixedWindow increments the counter and starts its window on the first hit, in one
// round trip so a crash between the two can never leave a counter without a TTL.
var fixedWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`)

// RateLimiter counts calls per key in fixed windows.
type RateLimiter struct {
	cli *redis.Client
}

func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{cli: c.cli}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	n, err := fixedWindow.Run(ctx, r.cli, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n <= int64(limit), nil
}

// UserRouteKey scopes a budget to one user on one route.
func UserRouteKey(userID, route string) string {
	return "ratelimit:" + route + ":" + userID
}
