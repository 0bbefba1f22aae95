// Package ratelimit tracks Strava API rate-limit usage and gates requests.
// It reads the X-RateLimit-Limit and X-RateLimit-Usage headers, which carry
// two comma-separated values each: the 15-minute window and the daily window.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Header names reported by the Strava API.
const (
	HeaderLimit = "X-RateLimit-Limit"
	HeaderUsage = "X-RateLimit-Usage"
)

// RedisKeyState is where the shared state lives when a Redis store is used.
const RedisKeyState = "clubrides:rate_limit:state"

// ShortWindow is the length of Strava's short rate-limit window. Windows
// start at natural quarter hours (0, 15, 30, 45 minutes past the hour).
const ShortWindow = 15 * time.Minute

// ThrottleRatio is the share of the short window budget after which
// requests are throttled.
const ThrottleRatio = 0.9

// RateLimitState represents the last observed rate-limit usage.
type RateLimitState struct {
	// ShortLimit and ShortUsage describe the 15-minute window.
	ShortLimit int `json:"short_limit"`
	ShortUsage int `json:"short_usage"`

	// DailyLimit and DailyUsage describe the UTC day window.
	DailyLimit int `json:"daily_limit"`
	DailyUsage int `json:"daily_usage"`

	// LastUpdate is when the headers were observed.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when neither throttling nor blocking applies.
	IsHealthy bool `json:"is_healthy"`
}

// DefaultState is the optimistic state used before any headers were seen.
func DefaultState() *RateLimitState {
	return &RateLimitState{LastUpdate: time.Now(), IsHealthy: true}
}

// ParseHeaders builds a state from response headers. It returns ok=false
// when the response carries no rate-limit headers at all.
func ParseHeaders(headers http.Header) (state *RateLimitState, ok bool, err error) {
	limitStr := headers.Get(HeaderLimit)
	usageStr := headers.Get(HeaderUsage)
	if limitStr == "" && usageStr == "" {
		return nil, false, nil
	}
	if limitStr == "" || usageStr == "" {
		return nil, false, fmt.Errorf("incomplete rate limit headers: limit=%q usage=%q", limitStr, usageStr)
	}

	limits, err := parsePair(limitStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderLimit, err)
	}
	usage, err := parsePair(usageStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderUsage, err)
	}

	state = &RateLimitState{
		ShortLimit: limits[0],
		DailyLimit: limits[1],
		ShortUsage: usage[0],
		DailyUsage: usage[1],
		LastUpdate: time.Now(),
	}
	state.UpdateHealth()
	return state, true, nil
}

func parsePair(value string) ([2]int, error) {
	var out [2]int
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return out, fmt.Errorf("expected two comma-separated values, got %q", value)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return out, err
		}
		if n < 0 {
			return out, fmt.Errorf("negative value %d", n)
		}
		out[i] = n
	}
	return out, nil
}

// StaleAfter is the age after which stored state no longer describes the
// current limits and is replaced by DefaultState.
const StaleAfter = 24 * time.Hour

// IsStale reports whether the state was last updated more than maxAge before now.
func (s *RateLimitState) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// At returns the state as it applies at now: usage of a window that has
// rolled over since LastUpdate is reset to zero.
func (s *RateLimitState) At(now time.Time) *RateLimitState {
	cur := *s
	if !now.UTC().Truncate(ShortWindow).Equal(s.LastUpdate.UTC().Truncate(ShortWindow)) {
		cur.ShortUsage = 0
	}
	ny, nm, nd := now.UTC().Date()
	ly, lm, ld := s.LastUpdate.UTC().Date()
	if ny != ly || nm != lm || nd != ld {
		cur.DailyUsage = 0
	}
	cur.UpdateHealth()
	return &cur
}

// ShortRemaining returns the requests left in the 15-minute window, or -1
// when the limit is unknown.
func (s *RateLimitState) ShortRemaining() int {
	if s.ShortLimit <= 0 {
		return -1
	}
	return max(s.ShortLimit-s.ShortUsage, 0)
}

// DailyRemaining returns the requests left today, or -1 when unknown.
func (s *RateLimitState) DailyRemaining() int {
	if s.DailyLimit <= 0 {
		return -1
	}
	return max(s.DailyLimit-s.DailyUsage, 0)
}

// NeedsCriticalBlock returns true when either window is used up.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.ShortRemaining() == 0 || s.DailyRemaining() == 0
}

// NeedsThrottling returns true once the short window is ThrottleRatio used.
func (s *RateLimitState) NeedsThrottling() bool {
	if s.ShortLimit <= 0 || s.NeedsCriticalBlock() {
		return false
	}
	return float64(s.ShortUsage) >= float64(s.ShortLimit)*ThrottleRatio
}

// TimeUntilReset returns the duration until the short window resets.
func (s *RateLimitState) TimeUntilReset(now time.Time) time.Duration {
	next := now.UTC().Truncate(ShortWindow).Add(ShortWindow)
	return next.Sub(now.UTC())
}

// UpdateHealth updates the IsHealthy field based on current usage.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = !s.NeedsCriticalBlock() && !s.NeedsThrottling()
}
