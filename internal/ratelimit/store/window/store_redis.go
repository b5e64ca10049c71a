package window

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"bastion/internal/ratelimit/models"
	"bastion/pkg/platform/sentinel"
)

// incrementScript replaces a missing or expired window, then consumes one
// attempt unless the window is full. Times are unix milliseconds. The TTL is
// relative to the caller's clock so windows expire in step with it.
var incrementScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local dur = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local version = tonumber(ARGV[4])

local cur = redis.call('HMGET', KEYS[1], 'v', 'count', 'started', 'expires')
local v = tonumber(cur[1])
local count = tonumber(cur[2])
local started = tonumber(cur[3])
local expires = tonumber(cur[4])

if count == nil or expires == nil or now >= expires then
  v = version
  count = 0
  started = now
  expires = now + dur
end

if count >= max then
  return {0, v, count, started, expires}
end

count = count + 1
redis.call('HSET', KEYS[1], 'v', v, 'count', count, 'started', started, 'expires', expires)
redis.call('PEXPIRE', KEYS[1], expires - now)
return {1, v, count, started, expires}
`)

// RedisStore keeps each window in a hash. Increment runs as one Lua script so
// the read-check-write is atomic per key across every process sharing the
// Redis instance.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "bastion:"}
}

func (s *RedisStore) Increment(ctx context.Context, key string, limit models.Limit, now time.Time) (models.Window, bool, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{s.prefix + key},
		now.UnixMilli(),
		limit.Window.Milliseconds(),
		limit.MaxAttempts,
		models.WindowVersion,
	).Int64Slice()
	if err != nil {
		return models.Window{}, false, fmt.Errorf("increment window %s: %w", key, err)
	}
	if len(res) != 5 {
		return models.Window{}, false, fmt.Errorf("increment window %s: unexpected script reply of length %d", key, len(res))
	}
	w := models.Window{
		Version:   int(res[1]),
		Key:       key,
		Count:     int(res[2]),
		StartedAt: time.UnixMilli(res[3]).UTC(),
		ExpiresAt: time.UnixMilli(res[4]).UTC(),
	}
	if err := w.Validate(); err != nil {
		return models.Window{}, false, err
	}
	return w, res[0] == 1, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*models.Window, error) {
	vals, err := s.client.HMGet(ctx, s.prefix+key, "v", "count", "started", "expires").Result()
	if err != nil {
		return nil, fmt.Errorf("get window %s: %w", key, err)
	}
	if vals[0] == nil {
		return nil, sentinel.ErrNotFound
	}
	nums := make([]int64, len(vals))
	for i, raw := range vals {
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("get window %s: field %d missing: %w", key, i, sentinel.ErrCorrupt)
		}
		n, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("get window %s: %w", key, errors.Join(sentinel.ErrCorrupt, err))
		}
		nums[i] = n
	}
	w := models.Window{
		Version:   int(nums[0]),
		Key:       key,
		Count:     int(nums[1]),
		StartedAt: time.UnixMilli(nums[2]).UTC(),
		ExpiresAt: time.UnixMilli(nums[3]).UTC(),
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("reset window %s: %w", key, err)
	}
	return nil
}

// Marker reports the key count of the Redis database.
func (s *RedisStore) Marker(ctx context.Context) (string, error) {
	n, err := s.client.DBSize(ctx).Result()
	if err != nil {
		return "", fmt.Errorf("redis dbsize: %w", err)
	}
	return "keys=" + strconv.FormatInt(n, 10), nil
}
