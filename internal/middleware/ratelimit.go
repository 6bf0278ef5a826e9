package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/auth-session-service/internal/config"
	"github.com/iliyamo/auth-session-service/internal/logging"
)

// bucketScript refills and takes one token atomically.
// KEYS[1] bucket hash; ARGV now_ms, capacity, refill, step_ms, ttl_s.
// Returns {allowed, tokens_left, wait_ms}.
var bucketScript = redis.NewScript(`
local b = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local now, cap = tonumber(ARGV[1]), tonumber(ARGV[2])
local refill, step = tonumber(ARGV[3]), tonumber(ARGV[4])
local tokens, ts = tonumber(b[1]), tonumber(b[2])
if tokens == nil or ts == nil then
	tokens, ts = cap, now
end
if step > 0 then
	local n = math.floor(math.max(0, now - ts) / step)
	if n > 0 then
		tokens = math.min(cap, tokens + n * refill)
		ts = ts + n * step
	end
end
local ok, wait = 0, 0
if tokens >= 1 then
	ok, tokens = 1, tokens - 1
else
	wait = math.max(0, step - (now - ts))
end
redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', ts)
redis.call('EXPIRE', KEYS[1], ARGV[5])
return {ok, tokens, wait}
`)

// decision is one evaluation of the bucket script.
type decision struct {
	allowed   bool
	remaining int64
	retry     time.Duration
}

func takeToken(c echo.Context, rdb redis.UniversalClient, cfg config.RateLimitConfig, key string, now time.Time) (decision, error) {
	vals, err := bucketScript.Run(c.Request().Context(), rdb, []string{key},
		now.UnixMilli(),                   // clock comes from the app, not Redis
		cfg.Capacity,                      // bucket size
		cfg.RefillTokens,                  // tokens added per step
		cfg.RefillInterval.Milliseconds(), // step length
		int64(cfg.TTL/time.Second),        // idle buckets expire
	).Int64Slice()
	if err != nil {
		return decision{}, err
	}
	if len(vals) != 3 {
		return decision{}, fmt.Errorf("unexpected script result %v", vals)
	}
	return decision{
		allowed:   vals[0] == 1,
		remaining: vals[1],
		retry:     time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// NewTokenBucket limits request rate per key (see rateKey) with a
// Redis-held token bucket. Redis errors let the request through; the login
// throttle in the session cache is the control that fails closed.
func NewTokenBucket(cfg config.RateLimitConfig, rdb redis.UniversalClient, log logging.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil { // disabled: plain pass-through
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key := rateKey(cfg, c)
			d, err := takeToken(c, rdb, cfg, key, time.Now())
			if err != nil { // fail open
				log.Warn(ctx, "ratelimit: bucket unavailable, allowing request", "key", key, "err", err)
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))
			if d.allowed {
				return next(c)
			}

			secs := int(math.Ceil(d.retry.Seconds())) // whole seconds, rounded up
			h.Set("Retry-After", strconv.Itoa(secs))
			log.Info(ctx, "ratelimit: rejected", "key", key, "retry_after", secs)
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too_many_requests",
				"message":     "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

// rateKey buckets by client IP, and by route too unless KeyStrategy is "ip".
// The limiter runs before authentication, so the caller is never known here.
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	if strings.EqualFold(cfg.KeyStrategy, "ip") {
		return cfg.Prefix + ":ip:" + ip
	}
	return cfg.Prefix + ":ip:" + ip + ":route:" + c.Request().Method + " " + c.Path()
}
