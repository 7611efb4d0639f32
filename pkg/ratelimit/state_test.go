package ratelimit

import (
	"testing"
	"time"
)

func TestCooldownState_IsStale(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		state    *CooldownState
		maxAge   time.Duration
		expected bool
	}{
		{
			name:     "fresh state",
			state:    &CooldownState{LastUpdate: now},
			maxAge:   5 * time.Minute,
			expected: false,
		},
		{
			name:     "stale state",
			state:    &CooldownState{LastUpdate: now.Add(-10 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: true,
		},
		{
			name:     "just under max age",
			state:    &CooldownState{LastUpdate: now.Add(-4 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsStale(now, tt.maxAge); got != tt.expected {
				t.Errorf("IsStale() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCooldownState_ActiveAndRemaining(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name          string
		until         time.Time
		wantActive    bool
		wantRemaining time.Duration
	}{
		{"no cooldown", time.Time{}, false, 0},
		{"expired", now.Add(-time.Second), false, 0},
		{"running", now.Add(3 * time.Second), true, 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &CooldownState{Until: tt.until}
			if got := s.Active(now); got != tt.wantActive {
				t.Errorf("Active() = %v, want %v", got, tt.wantActive)
			}
			if got := s.Remaining(now); got != tt.wantRemaining {
				t.Errorf("Remaining() = %v, want %v", got, tt.wantRemaining)
			}
		})
	}
}
