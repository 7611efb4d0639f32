// Package ratelimit paces outbound forum requests.
//
// The Governor is a token bucket that bounds the local request rate. The
// Tracker records upstream rate-limit signals (429 responses with Retry-After,
// Discourse rate-limit error codes) so every process sharing the same Redis
// backs off together while the forum cools down.
package ratelimit

import (
	"time"
)

// Redis keys for upstream cooldown state storage.
const (
	RedisKeyCooldownUntil = "forum:rate_limit:cooldown_until"
	RedisKeyLastStatus    = "forum:rate_limit:last_status"
	RedisKeyHits          = "forum:rate_limit:hits"
	RedisKeyLastUpdate    = "forum:rate_limit:last_update"
)

const (
	// DefaultCooldown applies when a 429 carries no usable Retry-After.
	DefaultCooldown = 5 * time.Second

	// MaxCooldown caps any advertised Retry-After.
	MaxCooldown = 2 * time.Minute
)

// CooldownState is the upstream rate-limit state shared across processes.
type CooldownState struct {
	// Until is when the forum is expected to accept requests again.
	Until time.Time `json:"until"`

	// LastStatus is the HTTP status that triggered the cooldown.
	LastStatus int `json:"last_status"`

	// Hits counts rate-limit responses observed.
	Hits int64 `json:"hits"`

	// LastUpdate is when this state was last written.
	LastUpdate time.Time `json:"last_update"`
}

// Active reports whether the cooldown is still running at now.
func (s *CooldownState) Active(now time.Time) bool {
	return now.Before(s.Until)
}

// Remaining returns how long the cooldown lasts past now, or 0.
func (s *CooldownState) Remaining(now time.Time) time.Duration {
	d := s.Until.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// IsStale returns true if the state data is older than the given duration.
func (s *CooldownState) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}
