// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Claims are owner-tagged keys with a TTL. The owner that holds a key can
// renew it; nobody else can take or release it until it expires.

var luaClaim = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if not cur then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
if cur == ARGV[1] then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
return 0`)

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (c *Client) claim(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	n, err := luaClaim.Run(ctx, c.cli, []string{key}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *Client) unlock(ctx context.Context, key, owner string) error {
	_, err := luaUnlock.Run(ctx, c.cli, []string{key}, owner).Result()
	return err
}
