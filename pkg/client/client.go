// Package client is the forum access layer: a retry and challenge engine
// plus the dispatcher that composes it with the session manager, the rate
// governor and the response cache.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/forum-client/pkg/apierror"
	"github.com/Sternrassler/forum-client/pkg/cache"
	"github.com/Sternrassler/forum-client/pkg/logging"
	"github.com/Sternrassler/forum-client/pkg/ratelimit"
	"github.com/Sternrassler/forum-client/pkg/session"
	"github.com/Sternrassler/forum-client/pkg/transport"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultUserAgent identifies the client when none is configured.
const DefaultUserAgent = "forum-client/1.0 (+https://github.com/Sternrassler/forum-client)"

// Config holds the client configuration.
type Config struct {
	// BaseURL is the forum root, e.g. "https://www.uscardforum.com".
	BaseURL string

	UserAgent string

	// Timeout bounds a single network call.
	Timeout time.Duration

	// RequestsPerSecond sizes the token bucket.
	RequestsPerSecond float64

	// Retry is the retry policy. Zero value means DefaultRetryPolicy.
	Retry RetryPolicy

	// Redis, when set, shares upstream cooldowns across processes and
	// enables the response cache.
	Redis *redis.Client

	// CacheTTL is the cache lifetime for responses without freshness headers.
	CacheTTL time.Duration

	// DisableCache keeps Redis for cooldowns only.
	DisableCache bool

	// Transport overrides the HTTP transport (for testing).
	Transport transport.Transport

	// Solver answers anti-bot challenges. Nil means WarmupSolver.
	Solver ChallengeSolver

	// Clock and Sleep override time for the governor and retry backoff.
	Clock func() time.Time
	Sleep ratelimit.SleepFunc

	Logger *zerolog.Logger
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:           baseURL,
		UserAgent:         DefaultUserAgent,
		Timeout:           transport.DefaultTimeout,
		RequestsPerSecond: ratelimit.DefaultRequestsPerSecond,
		Retry:             DefaultRetryPolicy(),
		CacheTTL:          cache.DefaultTTL,
	}
}

// Client is the request dispatcher.
type Client struct {
	config   Config
	governor *ratelimit.Governor
	tracker  *ratelimit.Tracker
	executor *Executor
	session  *session.Manager
	cache    *cache.Manager
	logger   zerolog.Logger
}

// New creates a new forum client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests per second must be positive (got %v)", cfg.RequestsPerSecond)
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Retry.JitterRatio < 0 || cfg.Retry.JitterRatio > 1 {
		return nil, fmt.Errorf("jitter ratio must be within [0,1] (got %v)", cfg.Retry.JitterRatio)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	logger := logging.NewLogger("forum-client", cfg.Logger)

	tr := cfg.Transport
	if tr == nil {
		tr = transport.NewHTTPTransport(cfg.Timeout, cfg.UserAgent)
	}

	tracker := ratelimit.NewTracker(cfg.Redis, logger)
	govOpts := []ratelimit.GovernorOption{
		ratelimit.WithCooldown(tracker),
		ratelimit.WithLogger(logger),
	}
	if cfg.Clock != nil {
		tracker.SetClock(cfg.Clock)
		govOpts = append(govOpts, ratelimit.WithClock(cfg.Clock))
	}
	if cfg.Sleep != nil {
		govOpts = append(govOpts, ratelimit.WithSleep(cfg.Sleep))
	}
	governor := ratelimit.NewGovernor(cfg.RequestsPerSecond, govOpts...)

	solver := cfg.Solver
	if solver == nil {
		solver = WarmupSolver{}
	}

	c := &Client{
		config:   cfg,
		governor: governor,
		tracker:  tracker,
		logger:   logger,
		executor: NewExecutor(ExecutorConfig{
			Transport: tr,
			Policy:    cfg.Retry,
			Limiter:   governor,
			Observer:  tracker,
			Solver:    solver,
			BaseURL:   cfg.BaseURL,
			Sleep:     cfg.Sleep,
			Logger:    logger,
		}),
	}
	c.session = session.NewManager(c, cfg.BaseURL, logger)

	if cfg.Redis != nil && !cfg.DisableCache {
		c.cache = cache.NewManager(cfg.Redis, cfg.CacheTTL)
	}

	return c, nil
}

// Session returns the session manager.
func (c *Client) Session() *session.Manager {
	return c.session
}

// Governor returns the rate governor.
func (c *Client) Governor() *ratelimit.Governor {
	return c.governor
}

// Tracker returns the upstream cooldown tracker.
func (c *Client) Tracker() *ratelimit.Tracker {
	return c.tracker
}

// Executor returns the retry engine.
func (c *Client) Executor() *Executor {
	return c.executor
}

// BaseURL returns the configured forum root.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Dispatch sends one logical request.
//
// Requests marked RequiresAuth fail with ErrAuthenticationRequired before
// any network call when the session carries no credentials. Credentials are
// attached from the session on every call; the rate slot is taken inside
// the executor before each attempt.
func (c *Client) Dispatch(ctx context.Context, req transport.Request) (*transport.Response, error) {
	label := endpointLabel(req.Path)
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	if req.RequiresAuth {
		if err := c.session.Require(); err != nil {
			var ae *apierror.Error
			if errors.As(err, &ae) {
				err = ae.WithRequest(req.Method, req.Path)
			}
			forumRequestsTotal.WithLabelValues(label, "unauthenticated").Inc()
			return nil, err
		}
	}

	start := time.Now()
	defer func() {
		forumRequestDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	requestID := uuid.NewString()
	logger := c.logger.With().Str("request_id", requestID).Str("endpoint", req.Path).Logger()

	header := req.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if header.Get("Accept") == "" {
		header.Set("Accept", "application/json")
	}
	if req.ContentType != "" {
		header.Set("Content-Type", req.ContentType)
	}
	header.Set("X-Request-Id", requestID)
	c.session.Attach(header)

	attempt := &transport.Attempt{
		Method: req.Method,
		URL:    transport.ResolveURL(c.config.BaseURL, req.Path),
		Path:   req.Path,
		Query:  req.Query,
		Header: header,
		Body:   req.Body,
	}

	useCache := c.cache != nil && req.Cacheable && req.Method == http.MethodGet
	var (
		key   cache.CacheKey
		entry *cache.CacheEntry
	)
	if useCache {
		key = cache.CacheKey{Endpoint: req.Path, Query: req.Query, Identity: c.session.CacheIdentity()}
		cached, fresh, err := c.cache.Lookup(ctx, key)
		switch {
		case err != nil && !errors.Is(err, cache.ErrCacheMiss):
			logger.Warn().Err(err).Msg("Cache get error")
		case fresh:
			logger.Debug().Msg("Serving from cache")
			forumRequestsTotal.WithLabelValues(label, "cached").Inc()
			return cache.EntryToResponse(cached, attempt.FullURL()), nil
		case cache.ShouldMakeConditionalRequest(cached):
			entry = cached
			attempt = attempt.WithHeader(cache.ConditionalHeaders(cached))
		}
	}

	logger.Debug().Str("method", req.Method).Msg("Dispatching forum request")

	resp, err := c.executor.Execute(ctx, attempt)
	if err != nil {
		status := apierror.StatusOf(err)
		forumRequestsTotal.WithLabelValues(label, statusLabel(status, err)).Inc()
		if apiKeyRejected(status, req) && c.session.State() == session.APIKeyAuthenticated {
			c.session.Reject(strconv.Itoa(status))
			err = apierror.Wrap(apierror.KindAuthenticationFailed, err, "user api key rejected")
		}
		logger.Debug().Err(err).Msg("Forum request failed")
		return nil, err
	}
	forumRequestsTotal.WithLabelValues(label, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusNotModified && entry != nil {
		cache.NotModifiedResponses.Inc()
		refreshed, err := cache.ResponseToEntry(resp, c.cache.DefaultTTL())
		if err == nil {
			if err := c.cache.UpdateTTL(ctx, key, refreshed.Expires); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
				logger.Warn().Err(err).Msg("Failed to update cache TTL")
			}
		}
		logger.Debug().Msg("304 Not Modified - using cache")
		return cache.EntryToResponse(entry, resp.URL), nil
	}

	if useCache && cache.Storable(resp) {
		if e, err := cache.ResponseToEntry(resp, c.cache.DefaultTTL()); err == nil {
			if err := c.cache.Set(ctx, key, e); err != nil {
				logger.Warn().Err(err).Msg("Failed to cache response")
			}
		}
	}

	return resp, nil
}

// DispatchJSON sends req and decodes the JSON reply into out.
// An HTML or otherwise non-JSON 2xx reply is ErrInvalidResponse.
func (c *Client) DispatchJSON(ctx context.Context, req transport.Request, out any) error {
	resp, err := c.Dispatch(ctx, req)
	if err != nil {
		return err
	}
	if !resp.IsJSON() {
		return &apierror.Error{
			Kind:       apierror.KindInvalidResponse,
			Method:     req.Method,
			Endpoint:   req.Path,
			StatusCode: resp.StatusCode,
			Message:    "expected JSON, got " + mediaTypeOr(resp, "unknown content"),
		}
	}
	if out == nil {
		return nil
	}
	if err := resp.Decode(out); err != nil {
		return &apierror.Error{
			Kind:       apierror.KindInvalidResponse,
			Method:     req.Method,
			Endpoint:   req.Path,
			StatusCode: resp.StatusCode,
			Message:    "malformed JSON",
			Err:        err,
		}
	}
	return nil
}

// apiKeyRejected reports whether a failed status means the user api key
// itself was refused. A 403 on a public read only means that resource is
// restricted.
func apiKeyRejected(status int, req transport.Request) bool {
	switch status {
	case http.StatusUnauthorized:
		return true
	case http.StatusForbidden:
		return req.RequiresAuth
	}
	return false
}

// Close releases resources. The Redis client belongs to the caller.
func (c *Client) Close() error {
	return nil
}

func statusLabel(status int, err error) string {
	if status != 0 {
		return strconv.Itoa(status)
	}
	return string(apierror.KindOf(err))
}

func mediaTypeOr(resp *transport.Response, fallback string) string {
	if mt := resp.MediaType(); mt != "" {
		return mt
	}
	return fallback
}
