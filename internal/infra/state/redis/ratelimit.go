package redisstate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// incrWindowScript 在同一个原子步骤中完成 INCR 与首次 PEXPIRE。
var incrWindowScript = redis.NewScript(`
local c = redis.call('INCR', KEYS[1])
if c == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return c
`)

// IncrementRate 对 rate:<roomId>:<actorId>:<action> 计数
func (r *RedisStateRepository) IncrementRate(ctx context.Context, roomID, actorID, action string, window time.Duration) (int64, error) {
	return r.IncrementKey(ctx, rateKey(roomID, actorID, action), window)
}

// IncrementKey 对任意 key 做窗口计数
func (r *RedisStateRepository) IncrementKey(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := incrWindowScript.Run(ctx, r.client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to increment rate counter %s: %w", key, err)
	}
	return count, nil
}
