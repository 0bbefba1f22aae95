package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitUsage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "club_rides_rate_limit_usage",
		Help: "Last reported Strava API usage by window",
	}, []string{"window"})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "club_rides_rate_limit_blocks_total",
		Help: "Total number of requests blocked because a window was used up",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "club_rides_rate_limit_throttles_total",
		Help: "Total number of requests delayed because the short window is nearly used up",
	})
)

// DefaultThrottleDelay is how long a throttled request waits.
const DefaultThrottleDelay = time.Second

// Tracker monitors Strava rate-limit usage and gates requests.
type Tracker struct {
	store         Store
	logger        zerolog.Logger
	throttleDelay time.Duration
	now           func() time.Time
}

// NewTracker creates a new rate limit tracker. A nil store means in-memory state.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:         store,
		logger:        logger,
		throttleDelay: DefaultThrottleDelay,
		now:           time.Now,
	}
}

// SetThrottleDelay overrides the throttle delay (for testing).
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.throttleDelay = d
}

// GetState returns the current state with rolled-over windows reset.
// Returns a default healthy state if nothing was observed yet.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		t.logger.Debug().Msg("No rate limit state stored, assuming healthy")
		return DefaultState(), nil
	}
	now := t.now()
	if state.IsStale(now, StaleAfter) {
		t.logger.Debug().Time("last_update", state.LastUpdate).Msg("Stored rate limit state is stale, assuming healthy")
		return DefaultState(), nil
	}
	return state.At(now), nil
}

// UpdateFromHeaders parses rate limit headers and stores the new state.
// Responses without rate-limit headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, ok, err := ParseHeaders(headers)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := t.store.Save(ctx, state); err != nil {
		return err
	}

	rateLimitUsage.WithLabelValues("15m").Set(float64(state.ShortUsage))
	rateLimitUsage.WithLabelValues("daily").Set(float64(state.DailyUsage))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("short_usage", state.ShortUsage).
			Int("short_limit", state.ShortLimit).
			Int("daily_usage", state.DailyUsage).
			Int("daily_limit", state.DailyLimit).
			Msg("Strava rate limit exhausted - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("short_usage", state.ShortUsage).
			Int("short_limit", state.ShortLimit).
			Msg("Strava rate limit nearly used - requests will be throttled")
	default:
		t.logger.Debug().
			Int("short_usage", state.ShortUsage).
			Int("daily_usage", state.DailyUsage).
			Msg("Strava rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest reports whether a request may be sent now.
// Returns false if a window is used up. Returns true but sleeps for
// throttling if the short window is nearly used up.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("short_remaining", state.ShortRemaining()).
			Int("daily_remaining", state.DailyRemaining()).
			Dur("reset_in", state.TimeUntilReset(t.now())).
			Msg("Strava rate limit exhausted - blocking request")
		rateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("short_remaining", state.ShortRemaining()).
			Msg("Strava rate limit warning - throttling request")
		rateLimitThrottlesTotal.Inc()

		select {
		case <-time.After(t.throttleDelay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	return true, nil
}
