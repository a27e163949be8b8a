// Package cooldown shares credential cooldown state between replicas via
// Redis. It is advisory: the in-process pool remains the source of truth and
// the gateway fails open when Redis is unavailable.
package cooldown

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore marks credentials as cooling with a TTL. Credentials are
// stored as digests; the raw key never reaches Redis.
type RedisStore struct {
	redis  *redis.Client
	script *redis.Script
}

// NewRedisStore wraps rdb; a nil client yields a nil store, which every
// method treats as a no-op.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	if rdb == nil {
		return nil
	}
	return &RedisStore{
		redis:  rdb,
		script: redis.NewScript(luaExtendCooldownScript),
	}
}

// luaExtendCooldownScript sets the cooldown TTL only when it is longer than
// whatever remains, so concurrent replicas can never shorten a cooldown.
const luaExtendCooldownScript = `
local key = KEYS[1]
local ttl_ms = tonumber(ARGV[1])

local remaining = redis.call("PTTL", key)
if remaining < ttl_ms then
  redis.call("SET", key, "1", "PX", ttl_ms)
end

return 1
`

func cooldownKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return "llm:cooldown:" + hex.EncodeToString(sum[:])
}

// SetCooldown records that credential was rate limited for d.
func (s *RedisStore) SetCooldown(ctx context.Context, credential string, d time.Duration) error {
	if s == nil || s.redis == nil || d <= 0 {
		return nil
	}
	key := cooldownKey(credential)
	if err := s.script.Run(ctx, s.redis, []string{key}, d.Milliseconds()).Err(); err != nil {
		slog.Error("cooldown store set failed", slog.Any("error", err))
		return err
	}
	return nil
}

// InCooldown reports whether another replica marked credential as cooling.
func (s *RedisStore) InCooldown(ctx context.Context, credential string) (bool, error) {
	if s == nil || s.redis == nil {
		return false, nil
	}
	n, err := s.redis.Exists(ctx, cooldownKey(credential)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
