package lockout

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	failPrefix = "lockout:fail:"
	lockPrefix = "lockout:lock:"
)

// KEYS: fail, lock. ARGV: window ms, limit. Returns the wait in ms, 0 when
// the slot was taken.
var reserveScript = redis.NewScript(`
local wait = redis.call('PTTL', KEYS[2])
if wait > 0 then return wait end
local held = tonumber(redis.call('GET', KEYS[1]) or '0')
if held >= tonumber(ARGV[2]) then
  local left = redis.call('PTTL', KEYS[1])
  if left > 0 then return left end
  return tonumber(ARGV[1])
end
redis.call('INCR', KEYS[1])
if held == 0 then redis.call('PEXPIRE', KEYS[1], ARGV[1]) end
return 0
`)

// KEYS: fail.
var releaseScript = redis.NewScript(`
local held = tonumber(redis.call('GET', KEYS[1]) or '0')
if held > 0 then redis.call('DECR', KEYS[1]) end
return 0
`)

// KEYS: fail, lock. ARGV: limit, lock ms.
var lockScript = redis.NewScript(`
local held = tonumber(redis.call('GET', KEYS[1]) or '0')
if held < tonumber(ARGV[1]) then return 0 end
redis.call('SET', KEYS[2], '1', 'PX', ARGV[2])
redis.call('DEL', KEYS[1])
return 1
`)

// Redis shares counters across server instances. Each key change runs as a
// script so replicas cannot interleave a check with its count. Both keys
// carry a TTL, so nothing needs purging.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Reserve(ctx context.Context, key string, window time.Duration, limit int) (time.Duration, error) {
	wait, err := reserveScript.Run(ctx, r.client,
		[]string{failPrefix + key, lockPrefix + key},
		window.Milliseconds(), limit,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("reserve login attempt: %w", err)
	}
	return time.Duration(wait) * time.Millisecond, nil
}

func (r *Redis) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, r.client, []string{failPrefix + key}).Err(); err != nil {
		return fmt.Errorf("release login attempt: %w", err)
	}
	return nil
}

func (r *Redis) LockIfExhausted(ctx context.Context, key string, limit int, d time.Duration) (bool, error) {
	locked, err := lockScript.Run(ctx, r.client,
		[]string{failPrefix + key, lockPrefix + key},
		limit, d.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("lock login: %w", err)
	}
	return locked == 1, nil
}

func (r *Redis) Clear(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, failPrefix+key, lockPrefix+key).Err(); err != nil {
		return fmt.Errorf("clear login failures: %w", err)
	}
	return nil
}
