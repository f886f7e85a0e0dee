package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/hello-counter/internal/config"
)

// takeToken refills the bucket in KEYS[1] for the whole intervals elapsed
// since its last refill, then tries to take one token. Refill and take run
// as one script, so every replica sharing Redis sees the same bucket.
//
//	ARGV: now_ms, capacity, refill_tokens, interval_ms, ttl_ms
//	returns: {allowed (0|1), tokens left, wait_ms}
var takeToken = redis.NewScript(`
local now      = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill   = tonumber(ARGV[3])
local interval = tonumber(ARGV[4])
local ttl      = tonumber(ARGV[5])

local bucket = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(bucket[1]) or capacity
local ts     = tonumber(bucket[2]) or now

local steps = math.floor(math.max(0, now - ts) / interval)
if steps > 0 then
	tokens = math.min(capacity, tokens + steps * refill)
	ts = ts + steps * interval
end

local allowed, wait = 0, 0
if tokens >= 1 then
	allowed = 1
	tokens = tokens - 1
else
	wait = ts + interval - now
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', ts)
redis.call('PEXPIRE', KEYS[1], ttl)
return {allowed, tokens, wait}
`)

var errBadReply = errors.New("rate limiter: unexpected script reply")

// tokenBucket is the Redis state behind NewTokenBucket.
type tokenBucket struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
	log *zap.Logger
	now func() time.Time
}

// verdict is one decoded takeToken reply.
type verdict struct {
	allowed   bool
	remaining int64
	wait      time.Duration
}

// retryAfter is the Retry-After value in whole seconds, rounded up.
func (v verdict) retryAfter() int64 {
	return int64((v.wait + time.Second - 1) / time.Second)
}

func (b *tokenBucket) take(c echo.Context, key string) (verdict, error) {
	res, err := takeToken.Run(c.Request().Context(), b.rdb, []string{key},
		b.now().UnixMilli(),
		b.cfg.Capacity,
		b.cfg.RefillTokens,
		b.cfg.RefillInterval.Milliseconds(),
		b.cfg.TTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return verdict{}, err
	}
	if len(res) != 3 {
		return verdict{}, errBadReply
	}
	return verdict{
		allowed:   res[0] == 1,
		remaining: res[1],
		wait:      time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// NewTokenBucket limits requests per key (see config.RateLimitConfig) with a
// token bucket kept in Redis. With the limiter disabled or no client it is a
// pass-through. When Redis fails the request is let through and a warning
// logged; an outage of the limiter never blocks the counter.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, logger *zap.Logger) echo.MiddlewareFunc {
	return newTokenBucket(cfg, rdb, logger, time.Now)
}

func newTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, logger *zap.Logger, now func() time.Time) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &tokenBucket{cfg: cfg, rdb: rdb, log: logger, now: now}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			v, err := b.take(c, key)
			if err != nil {
				b.log.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(v.remaining, 10))
			if v.allowed {
				return next(c)
			}

			secs := v.retryAfter()
			h.Set("Retry-After", strconv.FormatInt(secs, 10))
			if cfg.Debug {
				b.log.Info("rate limited", zap.String("key", key), zap.Duration("wait", v.wait))
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

// buildRateKey names the bucket for c: <prefix>:ip:<ip>, <prefix>:route:<route>
// or, by default, both.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "route":
		parts = append(parts, "route", route)
	default:
		parts = append(parts, "ip", ip, "route", route)
	}
	return strings.Join(parts, ":")
}
