package ratelimit

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestTracker(now time.Time) *Tracker {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(nil, logger)
	tracker.SetClock(func() time.Time { return now })
	return tracker
}

func TestTracker_ObserveIgnoresNormalResponses(t *testing.T) {
	now := time.Now()
	tracker := newTestTracker(now)

	for _, status := range []int{200, 304, 404, 500, 503} {
		if err := tracker.Observe(context.Background(), status, http.Header{}); err != nil {
			t.Fatalf("Observe(%d) error = %v", status, err)
		}
	}

	wait, err := tracker.Cooldown(context.Background())
	if err != nil {
		t.Fatalf("Cooldown() error = %v", err)
	}
	if wait != 0 {
		t.Errorf("Cooldown() = %v, want 0", wait)
	}
}

func TestTracker_ObserveRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name     string
		status   int
		headers  map[string]string
		wantWait time.Duration
	}{
		{
			name:     "retry-after seconds",
			status:   http.StatusTooManyRequests,
			headers:  map[string]string{"Retry-After": "12"},
			wantWait: 12 * time.Second,
		},
		{
			name:     "retry-after http date",
			status:   http.StatusTooManyRequests,
			headers:  map[string]string{"Retry-After": now.Add(30 * time.Second).Format(http.TimeFormat)},
			wantWait: 30 * time.Second,
		},
		{
			name:     "missing retry-after uses default",
			status:   http.StatusTooManyRequests,
			headers:  nil,
			wantWait: DefaultCooldown,
		},
		{
			name:     "garbage retry-after uses default",
			status:   http.StatusTooManyRequests,
			headers:  map[string]string{"Retry-After": "soon"},
			wantWait: DefaultCooldown,
		},
		{
			name:     "capped at max cooldown",
			status:   http.StatusTooManyRequests,
			headers:  map[string]string{"Retry-After": "3600"},
			wantWait: MaxCooldown,
		},
		{
			name:     "discourse error code on non-429",
			status:   http.StatusOK,
			headers:  map[string]string{"Discourse-Rate-Limit-Error-Code": "ip_10_secs_limit", "Retry-After": "10"},
			wantWait: 10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := newTestTracker(now)
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}

			if err := tracker.Observe(context.Background(), tt.status, h); err != nil {
				t.Fatalf("Observe() error = %v", err)
			}

			wait, err := tracker.Cooldown(context.Background())
			if err != nil {
				t.Fatalf("Cooldown() error = %v", err)
			}
			if wait != tt.wantWait {
				t.Errorf("Cooldown() = %v, want %v", wait, tt.wantWait)
			}

			state, _ := tracker.GetState(context.Background())
			if state.Hits != 1 {
				t.Errorf("Hits = %d, want 1", state.Hits)
			}
			if state.LastStatus != tt.status {
				t.Errorf("LastStatus = %d, want %d", state.LastStatus, tt.status)
			}
		})
	}
}

func TestTracker_CooldownNeverShrinks(t *testing.T) {
	now := time.Now()
	tracker := newTestTracker(now)
	ctx := context.Background()

	long := http.Header{"Retry-After": {"60"}}
	short := http.Header{"Retry-After": {"1"}}

	_ = tracker.Observe(ctx, http.StatusTooManyRequests, long)
	_ = tracker.Observe(ctx, http.StatusTooManyRequests, short)

	wait, _ := tracker.Cooldown(ctx)
	if wait != 60*time.Second {
		t.Errorf("Cooldown() = %v, want 60s", wait)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Now()
	if got := parseRetryAfter("", now); got != 0 {
		t.Errorf("parseRetryAfter(\"\") = %v, want 0", got)
	}
	if got := parseRetryAfter("7", now); got != 7*time.Second {
		t.Errorf("parseRetryAfter(\"7\") = %v, want 7s", got)
	}
}
