package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/Sternrassler/forum-client/pkg/apierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	forumRateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "forum_rate_limit_wait_seconds",
		Help:    "Time callers spent waiting for a request slot",
		Buckets: []float64{0, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30},
	})

	forumRateLimitTokens = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forum_rate_limit_tokens",
		Help: "Request slots available in the token bucket after the last acquisition",
	})
)

// DefaultRequestsPerSecond keeps below the forum's anti-bot triggers.
const DefaultRequestsPerSecond = 3

// CooldownSource reports an externally imposed wait, such as an upstream 429.
type CooldownSource interface {
	Cooldown(ctx context.Context) (time.Duration, error)
}

// SleepFunc suspends the caller for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Governor is a token bucket limiting outbound requests per second.
//
// The bucket is a rate.Limiter driven by the injected clock. Its burst is
// the capacity, so tokens never exceed it. The clock seen by the limiter
// never moves backwards.
type Governor struct {
	limiter  *rate.Limiter
	capacity int

	mu   sync.Mutex
	last time.Time

	clock    func() time.Time
	sleep    SleepFunc
	cooldown CooldownSource
	logger   zerolog.Logger
}

// GovernorOption configures a Governor.
type GovernorOption func(*Governor)

// WithClock sets the time source.
func WithClock(clock func() time.Time) GovernorOption {
	return func(g *Governor) { g.clock = clock }
}

// WithSleep sets the suspension function.
func WithSleep(sleep SleepFunc) GovernorOption {
	return func(g *Governor) { g.sleep = sleep }
}

// WithCooldown makes Acquire wait out upstream cooldowns before taking a token.
func WithCooldown(src CooldownSource) GovernorOption {
	return func(g *Governor) { g.cooldown = src }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) GovernorOption {
	return func(g *Governor) { g.logger = logger }
}

// NewGovernor creates a Governor holding a single token, so a stream of
// back-to-back callers from startup never exceeds requestsPerSecond in any
// rolling second. Idle periods refill the bucket up to capacity.
func NewGovernor(requestsPerSecond float64, opts ...GovernorOption) *Governor {
	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultRequestsPerSecond
	}
	capacity := int(math.Ceil(requestsPerSecond))
	g := &Governor{
		limiter:  rate.NewLimiter(rate.Every(tokenInterval(requestsPerSecond)), capacity),
		capacity: capacity,
		clock:    time.Now,
		sleep:    Sleep,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.last = g.clock()
	if capacity > 1 {
		g.limiter.ReserveN(g.last, capacity-1)
	}
	return g
}

// tokenInterval is the refill interval for one token, rounded up to the next
// whole microsecond so float rounding inside the limiter cannot fit an extra
// request into a rolling second.
func tokenInterval(requestsPerSecond float64) time.Duration {
	us := math.Floor(float64(time.Second/time.Microsecond) / requestsPerSecond)
	return time.Duration(us+1) * time.Microsecond
}

// Capacity returns the bucket size.
func (g *Governor) Capacity() float64 {
	return float64(g.capacity)
}

// Tokens returns the currently available tokens.
func (g *Governor) Tokens() float64 {
	return g.limiter.TokensAt(g.now())
}

// now returns the injected clock, held at its latest reading when it
// moves backwards.
func (g *Governor) now() time.Time {
	t := g.clock()
	g.mu.Lock()
	defer g.mu.Unlock()
	if t.Before(g.last) {
		return g.last
	}
	g.last = t
	return t
}

// Acquire suspends the caller until one token is available, then consumes it.
// It only fails when ctx ends first; the reserved token is then returned.
func (g *Governor) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apierror.Wrap(apierror.KindCancelled, err, "waiting for request slot")
	}
	start := g.clock()
	defer func() {
		forumRateLimitWaitSeconds.Observe(g.clock().Sub(start).Seconds())
	}()

	if err := g.waitCooldown(ctx); err != nil {
		return err
	}

	now := g.now()
	r := g.limiter.ReserveN(now, 1)
	if wait := r.DelayFrom(now); wait > 0 {
		g.logger.Debug().Dur("wait", wait).Msg("Waiting for request slot")
		if err := g.sleep(ctx, wait); err != nil {
			r.CancelAt(g.now())
			return apierror.Wrap(apierror.KindCancelled, err, "waiting for request slot")
		}
	}
	forumRateLimitTokens.Set(g.limiter.TokensAt(g.now()))
	return nil
}

// tryTake consumes a token if one is available right now.
func (g *Governor) tryTake() bool {
	return g.limiter.AllowN(g.now(), 1)
}

func (g *Governor) waitCooldown(ctx context.Context) error {
	if g.cooldown == nil {
		return nil
	}
	wait, err := g.cooldown.Cooldown(ctx)
	if err != nil {
		// A broken cooldown store must not stop traffic; the token bucket still applies.
		g.logger.Warn().Err(err).Msg("Cooldown lookup failed")
		return nil
	}
	if wait <= 0 {
		return nil
	}
	g.logger.Info().Dur("cooldown", wait).Msg("Waiting out upstream cooldown")
	if err := g.sleep(ctx, wait); err != nil {
		return apierror.Wrap(apierror.KindCancelled, err, "waiting out upstream cooldown")
	}
	return nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
