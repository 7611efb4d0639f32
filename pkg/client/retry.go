package client

import (
	"context"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/Sternrassler/forum-client/pkg/apierror"
	"github.com/Sternrassler/forum-client/pkg/ratelimit"
	"github.com/Sternrassler/forum-client/pkg/transport"
	"github.com/rs/zerolog"
)

// RetryPolicy holds the configuration for retry logic.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration

	// MaxDelay caps any single wait.
	MaxDelay time.Duration

	// JitterRatio spreads each wait by ±ratio.
	JitterRatio float64

	// RetryableStatuses are HTTP statuses retried with backoff.
	RetryableStatuses []int
}

// DefaultRetryPolicy returns the default retry configuration.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		JitterRatio: 0.2,
		RetryableStatuses: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
			520, 521, 522, 523, 524,
		},
	}
}

// Backoff returns the un-jittered wait after failed attempt n (1-based):
// min(MaxDelay, BaseDelay * 2^(n-1)).
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		if d >= p.MaxDelay/2 {
			return p.MaxDelay
		}
		d *= 2
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Jittered spreads Backoff(n) by ±JitterRatio; rnd is uniform in [0, 1).
func (p RetryPolicy) Jittered(n int, rnd float64) time.Duration {
	d := p.Backoff(n)
	if p.JitterRatio <= 0 {
		return d
	}
	factor := 1 - p.JitterRatio + 2*p.JitterRatio*rnd
	return time.Duration(float64(d) * factor)
}

func (p RetryPolicy) retryableStatus(status int) bool {
	for _, s := range p.RetryableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Limiter hands out request slots.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Observer is told about every response so it can track upstream rate limits.
type Observer interface {
	Observe(ctx context.Context, status int, headers http.Header) error
}

// Executor sends attempts with retry, backoff and challenge handling.
//
// Every attempt, including replays after a solved challenge, first takes a
// slot from the Limiter. The challenge solver runs at most once until
// ResetChallenge; its clearance is applied to every later attempt.
type Executor struct {
	transport transport.Transport
	policy    RetryPolicy
	limiter   Limiter
	observer  Observer
	solver    ChallengeSolver
	baseURL   string
	sleep     ratelimit.SleepFunc
	rnd       func() float64
	logger    zerolog.Logger

	challengeMu        sync.Mutex
	challengeAttempted bool
	clearance          *Clearance
	clearanceGen       int
}

// ExecutorConfig configures an Executor. Only Transport is required.
type ExecutorConfig struct {
	Transport transport.Transport
	Policy    RetryPolicy
	Limiter   Limiter
	Observer  Observer
	Solver    ChallengeSolver
	BaseURL   string
	Sleep     ratelimit.SleepFunc
	Rand      func() float64
	Logger    zerolog.Logger
}

// NewExecutor creates an Executor. A zero Policy means DefaultRetryPolicy.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy = DefaultRetryPolicy()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = ratelimit.Sleep
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	return &Executor{
		transport: cfg.Transport,
		policy:    cfg.Policy,
		limiter:   cfg.Limiter,
		observer:  cfg.Observer,
		solver:    cfg.Solver,
		baseURL:   cfg.BaseURL,
		sleep:     cfg.Sleep,
		rnd:       cfg.Rand,
		logger:    cfg.Logger,
	}
}

// Policy returns the retry policy in use.
func (e *Executor) Policy() RetryPolicy {
	return e.policy
}

// ResetChallenge forgets the cached clearance so the next challenge invokes
// the solver again.
func (e *Executor) ResetChallenge() {
	e.challengeMu.Lock()
	defer e.challengeMu.Unlock()
	e.challengeAttempted = false
	e.clearance = nil
}

// currentClearance returns the clearance to apply and its generation.
func (e *Executor) currentClearance() (*Clearance, int) {
	e.challengeMu.Lock()
	defer e.challengeMu.Unlock()
	return e.clearance, e.clearanceGen
}

// resolveChallenge reports whether a fresh clearance is available for an
// attempt that was sent with generation seen.
func (e *Executor) resolveChallenge(ctx context.Context, seen int) bool {
	e.challengeMu.Lock()
	defer e.challengeMu.Unlock()

	if e.clearance != nil && e.clearanceGen > seen {
		return true
	}
	if e.challengeAttempted || e.solver == nil {
		forumChallengesTotal.WithLabelValues("skipped").Inc()
		return false
	}
	e.challengeAttempted = true

	e.logger.Info().Str("base_url", e.baseURL).Msg("Solving anti-bot challenge")
	clr, err := e.solver.Solve(ctx, e.transport, e.baseURL)
	if err != nil {
		forumChallengesTotal.WithLabelValues("failed").Inc()
		e.logger.Warn().Err(err).Msg("Challenge solver failed")
		return false
	}
	forumChallengesTotal.WithLabelValues("solved").Inc()
	e.clearance = clr
	e.clearanceGen++
	return true
}

// Execute sends the attempt until it succeeds, fails permanently or the
// attempt budget is spent. A 304 counts as success. Non-retryable statuses
// return an UpstreamRejected error carrying the status code.
func (e *Executor) Execute(ctx context.Context, attempt *transport.Attempt) (*transport.Response, error) {
	var (
		lastErr    *apierror.Error
		lastStatus int
		replayed   bool
	)

	for n := 1; ; {
		if err := ctx.Err(); err != nil {
			return nil, e.cancelled(attempt, n-1, err)
		}
		if e.limiter != nil {
			if err := e.limiter.Acquire(ctx); err != nil {
				return nil, e.cancelled(attempt, n-1, err)
			}
		}

		clearance, gen := e.currentClearance()
		a := clearance.Apply(attempt.WithNumber(n))

		e.logger.Debug().
			Str("method", a.Method).
			Str("path", a.Path).
			Int("attempt", n).
			Msg("Sending forum request")

		resp, sendErr := e.transport.Send(ctx, a)

		var kind apierror.Kind
		switch {
		case sendErr != nil:
			kind = classifySendError(ctx, sendErr)
			lastErr = &apierror.Error{
				Kind: kind, Method: a.Method, Endpoint: a.Path, Attempts: n,
				Message: "request failed", Err: sendErr,
			}
			if kind == apierror.KindCancelled {
				return nil, lastErr
			}

		case IsChallenge(resp):
			kind = apierror.KindChallengeRequired
			lastStatus = resp.StatusCode
			forumChallengesTotal.WithLabelValues("detected").Inc()
			lastErr = statusError(kind, a, resp)
			lastErr.Message = "anti-bot challenge"
			if !replayed && e.resolveChallenge(ctx, gen) {
				replayed = true
				e.logger.Debug().Str("path", a.Path).Msg("Replaying request with clearance")
				continue
			}

		default:
			lastStatus = resp.StatusCode
			if e.observer != nil {
				if err := e.observer.Observe(ctx, resp.StatusCode, resp.Header); err != nil {
					e.logger.Warn().Err(err).Msg("Failed to record rate limit state")
				}
			}
			if completed(resp) {
				if n > 1 {
					e.logger.Info().Str("path", a.Path).Int("attempt", n).Msg("Request succeeded after retry")
				}
				return resp, nil
			}
			kind = classifyStatus(e.policy, resp)
			lastErr = statusError(kind, a, resp)
		}

		forumErrorsTotal.WithLabelValues(string(kind)).Inc()

		if !apierror.Retryable(kind) {
			return nil, lastErr
		}

		if n >= e.policy.MaxAttempts {
			forumRetryExhaustedTotal.WithLabelValues(string(kind)).Inc()
			e.logger.Warn().
				Str("path", attempt.Path).
				Str("kind", string(kind)).
				Int("attempts", n).
				Msg("Retry attempts exhausted")
			return nil, &apierror.Error{
				Kind:       apierror.KindExhaustedRetries,
				Method:     attempt.Method,
				Endpoint:   attempt.Path,
				StatusCode: lastStatus,
				Attempts:   n,
				Message:    "giving up",
				Err:        lastErr,
			}
		}

		wait := e.policy.Jittered(n, e.rnd())
		forumRetriesTotal.WithLabelValues(string(kind)).Inc()
		forumRetryBackoffSeconds.WithLabelValues(string(kind)).Observe(wait.Seconds())
		e.logger.Debug().
			Str("path", attempt.Path).
			Str("kind", string(kind)).
			Int("attempt", n).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		if err := e.sleep(ctx, wait); err != nil {
			return nil, e.cancelled(attempt, n, err)
		}
		n++
	}
}

func (e *Executor) cancelled(a *transport.Attempt, attempts int, cause error) *apierror.Error {
	if ae, ok := cause.(*apierror.Error); ok && ae.Kind == apierror.KindCancelled {
		c := ae.WithRequest(a.Method, a.Path)
		c.Attempts = attempts
		return c
	}
	return &apierror.Error{
		Kind:     apierror.KindCancelled,
		Method:   a.Method,
		Endpoint: a.Path,
		Attempts: attempts,
		Message:  "request cancelled",
		Err:      cause,
	}
}
