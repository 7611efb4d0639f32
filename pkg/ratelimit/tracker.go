package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	forumCooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forum_rate_limit_cooldowns_total",
		Help: "Total number of upstream rate-limit responses that started a cooldown",
	})

	forumCooldownSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forum_rate_limit_cooldown_seconds",
		Help: "Length of the most recent upstream cooldown in seconds",
	})
)

// extendCooldown stores the cooldown deadline only when it is later than the
// one already recorded by any process.
var extendCooldown = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if tonumber(ARGV[1]) > current then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
end
return 0
`)

// Tracker records upstream rate-limit signals.
// With a nil Redis client the state lives in process memory.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
	clock  func() time.Time

	mu    sync.Mutex
	local CooldownState
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		clock:  time.Now,
	}
}

// SetClock replaces the time source (for testing).
func (t *Tracker) SetClock(clock func() time.Time) {
	t.clock = clock
}

// GetState returns the current cooldown state.
func (t *Tracker) GetState(ctx context.Context) (*CooldownState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		s := t.local
		return &s, nil
	}

	untilUnixMs, err := t.redis.Get(ctx, RedisKeyCooldownUntil).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get cooldown until: %w", err)
	}
	lastStatus, err := t.redis.Get(ctx, RedisKeyLastStatus).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last status: %w", err)
	}
	hits, err := t.redis.Get(ctx, RedisKeyHits).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get hits: %w", err)
	}
	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	state := &CooldownState{
		LastStatus: lastStatus,
		Hits:       hits,
	}
	if untilUnixMs > 0 {
		state.Until = time.UnixMilli(untilUnixMs)
	}
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &state.LastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}
	return state, nil
}

// Observe inspects a response status and headers and starts a cooldown when
// the forum signals rate limiting. Other responses are ignored.
func (t *Tracker) Observe(ctx context.Context, status int, headers http.Header) error {
	if status != http.StatusTooManyRequests && headers.Get("Discourse-Rate-Limit-Error-Code") == "" {
		return nil
	}

	now := t.clock()
	wait := parseRetryAfter(headers.Get("Retry-After"), now)
	if wait <= 0 {
		wait = DefaultCooldown
	}
	if wait > MaxCooldown {
		wait = MaxCooldown
	}
	until := now.Add(wait)

	forumCooldownsTotal.Inc()
	forumCooldownSeconds.Set(wait.Seconds())

	t.logger.Warn().
		Int("status", status).
		Str("error_code", headers.Get("Discourse-Rate-Limit-Error-Code")).
		Dur("cooldown", wait).
		Msg("Forum rate limit hit - cooling down")

	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if until.After(t.local.Until) {
			t.local.Until = until
		}
		t.local.LastStatus = status
		t.local.Hits++
		t.local.LastUpdate = now
		return nil
	}

	lastUpdateJSON, err := json.Marshal(now)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	pipe := t.redis.TxPipeline()
	extendCooldown.Eval(ctx, pipe, []string{RedisKeyCooldownUntil}, until.UnixMilli(), MaxCooldown.Milliseconds())
	pipe.Set(ctx, RedisKeyLastStatus, status, 0)
	pipe.Incr(ctx, RedisKeyHits)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store cooldown state in redis: %w", err)
	}
	return nil
}

// Cooldown returns how long callers must wait before the next request.
func (t *Tracker) Cooldown(ctx context.Context) (time.Duration, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return 0, err
	}
	return state.Remaining(t.clock()), nil
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return at.Sub(now)
	}
	return 0
}
