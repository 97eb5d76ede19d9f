package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-pipeline/internal/clock"
	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"github.com/kursadbilgin/notification-pipeline/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec = 100
	rateWindow         = time.Second
)

// reserveScript counts one send in the channel's current window. The window
// opens with the first send and expires after ARGV[2] ms. It returns 0 when
// the send fits, otherwise the milliseconds left until the window closes.
var reserveScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if current <= tonumber(ARGV[1]) then
  return 0
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
return ttl
`)

var _ ratelimit.SendLimiter = (*SendRateLimiter)(nil)

// SendRateLimiter caps sends per channel within a one-second window shared by
// every sender process through Redis. A throttled Wait sleeps until the
// window closes instead of polling.
type SendRateLimiter struct {
	client *goredis.Client
	limits ratelimit.Limits
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewSendRateLimiter(client *goredis.Client, limits ratelimit.Limits) (*SendRateLimiter, error) {
	return newSendRateLimiter(client, limits, clock.Sleep)
}

func newSendRateLimiter(
	client *goredis.Client,
	limits ratelimit.Limits,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*SendRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limits.Default <= 0 {
		limits.Default = defaultLimitPerSec
	}
	if sleepFn == nil {
		sleepFn = clock.Sleep
	}

	return &SendRateLimiter{client: client, limits: limits, sleep: sleepFn}, nil
}

func (r *SendRateLimiter) Allow(ctx context.Context, channel domain.Channel) (bool, error) {
	retryIn, err := r.reserve(ctx, channel)
	if err != nil {
		return false, err
	}
	return retryIn == 0, nil
}

// Wait blocks until channel has room in its window or ctx is done.
func (r *SendRateLimiter) Wait(ctx context.Context, channel domain.Channel) error {
	for {
		retryIn, err := r.reserve(ctx, channel)
		if err != nil {
			return err
		}
		if retryIn == 0 {
			return nil
		}
		if err := r.sleep(ctx, retryIn); err != nil {
			return err
		}
	}
}

// reserve returns zero when the send is admitted, otherwise how long until
// the channel's window closes.
func (r *SendRateLimiter) reserve(ctx context.Context, channel domain.Channel) (time.Duration, error) {
	if r == nil || r.client == nil {
		return 0, fmt.Errorf("rate limiter is not initialized")
	}

	name := strings.ToLower(strings.TrimSpace(channel.String()))
	if name == "" {
		return 0, fmt.Errorf("channel is required")
	}

	key := defaultKeyPrefix + "sendrate:" + name
	limit := r.limits.For(domain.Channel(name))
	ms, err := reserveScript.Run(ctx, r.client, []string{key}, limit, rateWindow.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
