// Package limits caps how many calls may be active at once. Slots live in
// Redis so every instance sees the same count; a TTL reclaims slots leaked
// by a crashed process.
package limits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLimitReached reports that every call slot is taken.
var ErrLimitReached = errors.New("limits: active call limit reached")

var slotAcquireScript = redis.NewScript(`
-- KEYS[1] = slot counter
-- ARGV[1] = max slots
-- ARGV[2] = ttl_ms
-- Returns 1 when a slot was taken, 0 when full.
local held = redis.call('INCR', KEYS[1])
if held == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
elseif redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if held > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return 0
end
return 1
`)

var slotReleaseScript = redis.NewScript(`
-- KEYS[1] = slot counter
local held = redis.call('DECR', KEYS[1])
if held <= 0 then
  redis.call('DEL', KEYS[1])
end
return 1
`)

// Limiter hands out call slots. Acquire and Release are atomic so a
// burst of simultaneous dials cannot overshoot the cap.
type Limiter struct {
	rdb *redis.Client
	key string
	max int
	ttl time.Duration
}

func NewLimiter(rdb *redis.Client, key string, max int, ttl time.Duration) (*Limiter, error) {
	if rdb == nil {
		return nil, errors.New("limits: redis client required")
	}
	if key == "" {
		return nil, errors.New("limits: key required")
	}
	if max <= 0 {
		return nil, errors.New("limits: max must be > 0")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Limiter{rdb: rdb, key: key, max: max, ttl: ttl}, nil
}

// Acquire takes one slot or returns ErrLimitReached.
func (l *Limiter) Acquire(ctx context.Context) error {
	res, err := slotAcquireScript.Run(ctx, l.rdb, []string{l.key}, l.max, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("limits: acquire: %w", err)
	}
	if res != 1 {
		return ErrLimitReached
	}
	return nil
}

// Release frees one slot. Best-effort at call teardown; the TTL covers
// releases lost to crashes.
func (l *Limiter) Release(ctx context.Context) error {
	if _, err := slotReleaseScript.Run(ctx, l.rdb, []string{l.key}).Result(); err != nil {
		return fmt.Errorf("limits: release: %w", err)
	}
	return nil
}
