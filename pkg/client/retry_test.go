package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/forum-client/pkg/apierror"
	"github.com/Sternrassler/forum-client/pkg/transport"
	"github.com/rs/zerolog"
)

// scriptedTransport replays a fixed list of outcomes, repeating the last one.
type scriptedTransport struct {
	mu       sync.Mutex
	steps    []func(*transport.Attempt) (*transport.Response, error)
	attempts []*transport.Attempt
}

func (s *scriptedTransport) Send(_ context.Context, a *transport.Attempt) (*transport.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, a)
	i := len(s.attempts) - 1
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	return s.steps[i](a)
}

func (s *scriptedTransport) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

func status(code int, body string) func(*transport.Attempt) (*transport.Response, error) {
	return func(*transport.Attempt) (*transport.Response, error) {
		return &transport.Response{
			StatusCode: code,
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       []byte(body),
		}, nil
	}
}

func challengePage(*transport.Attempt) (*transport.Response, error) {
	return &transport.Response{
		StatusCode: http.StatusForbidden,
		Header:     http.Header{"Content-Type": {"text/html; charset=UTF-8"}},
		Body:       []byte("<!DOCTYPE html><title>Just a moment...</title><script src=/cdn-cgi/challenge-platform/x.js>"),
	}, nil
}

func netErr(*transport.Attempt) (*transport.Response, error) {
	return nil, errors.New("connection reset by peer")
}

// recordingSleep records waits without sleeping.
type recordingSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

func newTestExecutor(tr transport.Transport, solver ChallengeSolver, sleep *recordingSleep) *Executor {
	policy := DefaultRetryPolicy()
	policy.JitterRatio = 0
	return NewExecutor(ExecutorConfig{
		Transport: tr,
		Policy:    policy,
		Solver:    solver,
		BaseURL:   "https://forum.example",
		Sleep:     sleep.Sleep,
		Logger:    zerolog.Nop(),
	})
}

func getAttempt(path string) *transport.Attempt {
	return &transport.Attempt{
		Method: http.MethodGet,
		URL:    "https://forum.example" + path,
		Path:   path,
		Header: http.Header{},
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()

	if p.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", p.MaxAttempts)
	}
	if p.BaseDelay != 2*time.Second {
		t.Errorf("BaseDelay = %v, want 2s", p.BaseDelay)
	}
	if p.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay = %v, want 30s", p.MaxDelay)
	}
	if p.JitterRatio != 0.2 {
		t.Errorf("JitterRatio = %v, want 0.2", p.JitterRatio)
	}
	for _, code := range []int{429, 500, 502, 503, 504, 520, 521, 522, 523, 524} {
		if !p.retryableStatus(code) {
			t.Errorf("status %d not retryable", code)
		}
	}
	for _, code := range []int{400, 401, 403, 404, 422} {
		if p.retryableStatus(code) {
			t.Errorf("status %d retryable", code)
		}
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 30 * time.Second}

	tests := []struct {
		n    int
		want time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{7, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.n); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}

	// Strictly increasing until the cap, flat afterwards.
	prev := time.Duration(0)
	for n := 1; n <= 20; n++ {
		d := p.Backoff(n)
		if d < p.MaxDelay && d <= prev {
			t.Errorf("Backoff(%d) = %v, not greater than %v", n, d, prev)
		}
		if d > p.MaxDelay {
			t.Errorf("Backoff(%d) = %v exceeds cap", n, d)
		}
		prev = d
	}
}

func TestRetryPolicy_Jittered(t *testing.T) {
	p := RetryPolicy{BaseDelay: 10 * time.Second, MaxDelay: time.Minute, JitterRatio: 0.2}

	tests := []struct {
		rnd  float64
		want time.Duration
	}{
		{0, 8 * time.Second},
		{0.5, 10 * time.Second},
		{0.999999, 12 * time.Second},
	}
	for _, tt := range tests {
		got := p.Jittered(1, tt.rnd)
		if diff := got - tt.want; diff < -time.Millisecond || diff > time.Millisecond {
			t.Errorf("Jittered(1, %v) = %v, want ~%v", tt.rnd, got, tt.want)
		}
	}
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	tests := []struct {
		name      string
		first     func(*transport.Attempt) (*transport.Response, error)
		wantWaits []time.Duration
	}{
		{"server error", status(503, `{}`), []time.Duration{2 * time.Second}},
		{"rate limited", status(429, `{}`), []time.Duration{2 * time.Second}},
		{"cloudflare 522", status(522, ``), []time.Duration{2 * time.Second}},
		{"network error", netErr, []time.Duration{2 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &scriptedTransport{steps: []func(*transport.Attempt) (*transport.Response, error){
				tt.first, status(200, `{"ok":true}`),
			}}
			sleep := &recordingSleep{}
			e := newTestExecutor(tr, nil, sleep)

			resp, err := e.Execute(context.Background(), getAttempt("/latest.json"))
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if resp.StatusCode != 200 {
				t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
			}
			if tr.calls() != 2 {
				t.Errorf("calls = %d, want 2", tr.calls())
			}
			if len(sleep.waits) != 1 || sleep.waits[0] != tt.wantWaits[0] {
				t.Errorf("waits = %v, want %v", sleep.waits, tt.wantWaits)
			}
			if tr.attempts[1].Number != 2 {
				t.Errorf("second attempt Number = %d, want 2", tr.attempts[1].Number)
			}
		})
	}
}

func TestExecute_NoRetryOnClientError(t *testing.T) {
	tr := &scriptedTransport{steps: []func(*transport.Attempt) (*transport.Response, error){
		status(404, `{"errors":["The requested URL or resource could not be found."],"error_type":"not_found"}`),
	}}
	e := newTestExecutor(tr, nil, &recordingSleep{})

	_, err := e.Execute(context.Background(), getAttempt("/t/999.json"))
	if !errors.Is(err, apierror.ErrUpstreamRejected) {
		t.Fatalf("Execute() error = %v, want UpstreamRejected", err)
	}
	if apierror.StatusOf(err) != 404 {
		t.Errorf("StatusOf = %d, want 404", apierror.StatusOf(err))
	}
	if tr.calls() != 1 {
		t.Errorf("calls = %d, want 1", tr.calls())
	}
}

func TestExecute_BodyTooLargeNotRetried(t *testing.T) {
	tr := &scriptedTransport{steps: []func(*transport.Attempt) (*transport.Response, error){
		func(*transport.Attempt) (*transport.Response, error) {
			return nil, fmt.Errorf("%w: /t/1.json is over 32 bytes", transport.ErrBodyTooLarge)
		},
	}}
	e := newTestExecutor(tr, nil, &recordingSleep{})

	_, err := e.Execute(context.Background(), getAttempt("/t/1.json"))
	if !errors.Is(err, apierror.ErrInvalidResponse) {
		t.Fatalf("Execute() error = %v, want InvalidResponse", err)
	}
	if !errors.Is(err, transport.ErrBodyTooLarge) {
		t.Errorf("Execute() error = %v, want wrapped ErrBodyTooLarge", err)
	}
	if tr.calls() != 1 {
		t.Errorf("calls = %d, want 1", tr.calls())
	}
}

func TestExecute_Exhausted(t *testing.T) {
	tr := &scriptedTransport{steps: []func(*transport.Attempt) (*transport.Response, error){status(503, `{}`)}}
	sleep := &recordingSleep{}
	e := newTestExecutor(tr, nil, sleep)

	_, err := e.Execute(context.Background(), getAttempt("/latest.json"))
	if !errors.Is(err, apierror.ErrExhaustedRetries) {
		t.Fatalf("Execute() error = %v, want ExhaustedRetries", err)
	}
	var ae *apierror.Error
	if !errors.As(err, &ae) {
		t.Fatal("error is not *apierror.Error")
	}
	if ae.Attempts != 5 || ae.StatusCode != 503 || ae.Endpoint != "/latest.json" {
		t.Errorf("error context = %+v", ae)
	}
	if !errors.Is(err, apierror.ErrTransientNetwork) {
		t.Error("exhausted error does not carry the last cause")
	}
	if tr.calls() != 5 {
		t.Errorf("calls = %d, want 5", tr.calls())
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	if len(sleep.waits) != len(want) {
		t.Fatalf("waits = %v, want %v", sleep.waits, want)
	}
	for i := range want {
		if sleep.waits[i] != want[i] {
			t.Errorf("wait[%d] = %v, want %v", i, sleep.waits[i], want[i])
		}
	}
}

func TestExecute_CancelledDuringBackoff(t *testing.T) {
	tr := &scriptedTransport{steps: []func(*transport.Attempt) (*transport.Response, error){status(503, `{}`)}}
	ctx, cancel := context.WithCancel(context.Background())

	e := NewExecutor(ExecutorConfig{
		Transport: tr,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
		Logger: zerolog.Nop(),
	})

	_, err := e.Execute(ctx, getAttempt("/latest.json"))
	if !errors.Is(err, apierror.ErrCancelled) {
		t.Fatalf("Execute() error = %v, want Cancelled", err)
	}
	if tr.calls() != 1 {
		t.Errorf("calls = %d, want 1", tr.calls())
	}
}

func TestExecute_ChallengeSolvedOnce(t *testing.T) {
	var solves atomic.Int32
	solver := ChallengeSolverFunc(func(ctx context.Context, _ transport.Transport, baseURL string) (*Clearance, error) {
		solves.Add(1)
		return &Clearance{Cookies: []*http.Cookie{{Name: "cf_clearance", Value: "ok"}}}, nil
	})

	tr := &scriptedTransport{steps: []func(*transport.Attempt) (*transport.Response, error){
		challengePage,
		func(a *transport.Attempt) (*transport.Response, error) {
			if a.Header.Get("Cookie") != "cf_clearance=ok" {
				return challengePage(a)
			}
			return status(200, `{"ok":true}`)(a)
		},
	}}
	sleep := &recordingSleep{}
	e := newTestExecutor(tr, solver, sleep)

	resp, err := e.Execute(context.Background(), getAttempt("/latest.json"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("Body = %s", resp.Body)
	}
	if len(sleep.waits) != 0 {
		t.Errorf("challenge replay slept %v, want no backoff", sleep.waits)
	}
	if tr.attempts[1].Number != 1 {
		t.Errorf("replay Number = %d, want 1 (no attempt consumed)", tr.attempts[1].Number)
	}

	for i := 0; i < 10; i++ {
		if _, err := e.Execute(context.Background(), getAttempt("/latest.json")); err != nil {
			t.Fatalf("follow-up Execute() #%d error = %v", i, err)
		}
	}
	if got := solves.Load(); got != 1 {
		t.Errorf("solver invoked %d times, want 1", got)
	}
	if tr.calls() != 12 {
		t.Errorf("calls = %d, want 12", tr.calls())
	}
}

func TestExecute_ChallengeConcurrentSolvesOnce(t *testing.T) {
	var solves atomic.Int32
	solver := ChallengeSolverFunc(func(context.Context, transport.Transport, string) (*Clearance, error) {
		solves.Add(1)
		time.Sleep(10 * time.Millisecond)
		return &Clearance{Cookies: []*http.Cookie{{Name: "cf_clearance", Value: "ok"}}}, nil
	})
	tr := &scriptedTransport{steps: []func(*transport.Attempt) (*transport.Response, error){
		func(a *transport.Attempt) (*transport.Response, error) {
			if a.Header.Get("Cookie") != "cf_clearance=ok" {
				return challengePage(a)
			}
			return status(200, `{}`)(a)
		},
	}}
	e := newTestExecutor(tr, solver, &recordingSleep{})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Execute(context.Background(), getAttempt("/latest.json"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Execute() error = %v", err)
		}
	}
	if got := solves.Load(); got != 1 {
		t.Errorf("solver invoked %d times, want 1", got)
	}
}

func TestExecute_ChallengeSolverFails(t *testing.T) {
	var solves atomic.Int32
	solver := ChallengeSolverFunc(func(context.Context, transport.Transport, string) (*Clearance, error) {
		solves.Add(1)
		return nil, errors.New("no luck")
	})
	tr := &scriptedTransport{steps: []func(*transport.Attempt) (*transport.Response, error){challengePage}}
	e := newTestExecutor(tr, solver, &recordingSleep{})

	_, err := e.Execute(context.Background(), getAttempt("/latest.json"))
	if !errors.Is(err, apierror.ErrExhaustedRetries) || !errors.Is(err, apierror.ErrChallengeRequired) {
		t.Fatalf("Execute() error = %v, want ExhaustedRetries caused by ChallengeRequired", err)
	}
	if tr.calls() != 5 {
		t.Errorf("calls = %d, want 5", tr.calls())
	}
	if solves.Load() != 1 {
		t.Errorf("solver invoked %d times, want 1", solves.Load())
	}

	e.ResetChallenge()
	_, _ = e.Execute(context.Background(), getAttempt("/latest.json"))
	if solves.Load() != 2 {
		t.Errorf("solver invoked %d times after reset, want 2", solves.Load())
	}
}

type recordingObserver struct {
	statuses []int
}

func (r *recordingObserver) Observe(_ context.Context, status int, _ http.Header) error {
	r.statuses = append(r.statuses, status)
	return nil
}

type countingLimiter struct{ n atomic.Int32 }

func (c *countingLimiter) Acquire(context.Context) error {
	c.n.Add(1)
	return nil
}

func TestExecute_ObserverAndLimiter(t *testing.T) {
	tr := &scriptedTransport{steps: []func(*transport.Attempt) (*transport.Response, error){
		status(429, `{}`), status(200, `{}`),
	}}
	obs := &recordingObserver{}
	lim := &countingLimiter{}
	sleep := &recordingSleep{}
	e := NewExecutor(ExecutorConfig{
		Transport: tr,
		Observer:  obs,
		Limiter:   lim,
		Sleep:     sleep.Sleep,
		Logger:    zerolog.Nop(),
	})

	if _, err := e.Execute(context.Background(), getAttempt("/latest.json")); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(obs.statuses) != 2 || obs.statuses[0] != 429 || obs.statuses[1] != 200 {
		t.Errorf("observed = %v, want [429 200]", obs.statuses)
	}
	if lim.n.Load() != 2 {
		t.Errorf("limiter acquisitions = %d, want 2", lim.n.Load())
	}
}

func TestExecute_NotModifiedIsSuccess(t *testing.T) {
	tr := &scriptedTransport{steps: []func(*transport.Attempt) (*transport.Response, error){status(304, ``)}}
	e := newTestExecutor(tr, nil, &recordingSleep{})

	resp, err := e.Execute(context.Background(), getAttempt("/latest.json"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.StatusCode != 304 {
		t.Errorf("StatusCode = %d, want 304", resp.StatusCode)
	}
}
