package online

import (
	"context"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis hash holding username -> live connection count.
const DefaultKey = "dmchat:online"

// decrement drops the field once its count reaches zero so HGETALL only ever
// returns online users.
var decrement = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
if n <= 0 then
	redis.call('HDEL', KEYS[1], ARGV[1])
end
return n
`)

type RedisTracker struct {
	redis *redis.Client
	key   string
}

func NewRedisTracker(client *redis.Client, key string) *RedisTracker {
	if key == "" {
		key = DefaultKey
	}
	return &RedisTracker{redis: client, key: key}
}

func (t *RedisTracker) Connected(ctx context.Context, username string) error {
	return t.redis.HIncrBy(ctx, t.key, username, 1).Err()
}

func (t *RedisTracker) Disconnected(ctx context.Context, username string) error {
	return decrement.Run(ctx, t.redis, []string{t.key}, username).Err()
}

func (t *RedisTracker) Online(ctx context.Context) ([]string, error) {
	counts, err := t.redis.HGetAll(ctx, t.key).Result()
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(counts))
	for u, c := range counts {
		if n, err := strconv.Atoi(c); err == nil && n > 0 {
			users = append(users, u)
		}
	}
	sort.Strings(users)
	return users, nil
}

// Reset clears the hash. Counts from a previous process are stale because
// group membership does not survive a restart.
func (t *RedisTracker) Reset(ctx context.Context) error {
	return t.redis.Del(ctx, t.key).Err()
}
