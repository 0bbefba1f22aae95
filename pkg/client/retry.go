package client

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	fetchAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "club_rides_fetch_attempts_total",
		Help: "Total number of club event fetch attempts by outcome",
	}, []string{"outcome"})

	fetchExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "club_rides_fetch_exhausted_total",
		Help: "Total number of clubs whose event fetch failed on every attempt",
	})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "club_rides_retry_backoff_seconds",
		Help:    "Backoff duration before a club event fetch retry",
		Buckets: []float64{0.5, 1, 2, 5},
	})
)

// MaxAttempts is the number of tries per club, including the first.
const MaxAttempts = 3

// Backoff returns the wait after failed attempt n (1-based): n seconds.
func Backoff(attempt int) time.Duration {
	return time.Duration(attempt) * time.Second
}

// EventSource fetches the events of one club in a single attempt.
type EventSource interface {
	GetClubEvents(ctx context.Context, token string, clubID int64) ([]ClubEvent, error)
}

// EventFetcher fetches club events with retries and never fails: a club
// whose events cannot be fetched yields an empty result.
type EventFetcher struct {
	source    EventSource
	directory *Directory
	sleep     func(time.Duration)
	logger    zerolog.Logger
}

// NewEventFetcher creates a fetcher. directory may be nil, in which case
// club names are left as returned by the source.
func NewEventFetcher(source EventSource, directory *Directory) *EventFetcher {
	return &EventFetcher{
		source:    source,
		directory: directory,
		sleep:     time.Sleep,
		logger:    log.With().Str("component", "event-fetcher").Logger(),
	}
}

// SetSleep replaces the backoff wait (for testing).
func (f *EventFetcher) SetSleep(sleep func(time.Duration)) {
	f.sleep = sleep
}

// Fetch returns the events of club. Up to MaxAttempts are made, waiting
// Backoff(n) after failed attempt n. The wait ignores ctx. A 404 is retried
// like any other failure. On success club_name is set from the directory.
func (f *EventFetcher) Fetch(ctx context.Context, token string, club Club) []ClubEvent {
	if token == "" || club.ID <= 0 {
		f.logger.Warn().Int64("club_id", club.ID).Msg("Skipping club: missing token or invalid club id")
		return []ClubEvent{}
	}

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		events, err := f.source.GetClubEvents(ctx, token, club.ID)
		if err == nil {
			fetchAttemptsTotal.WithLabelValues("success").Inc()
			f.attachClubName(club.ID, events)
			f.logger.Info().
				Int64("club_id", club.ID).
				Int("events", len(events)).
				Msg("Received events for club")
			if events == nil {
				return []ClubEvent{}
			}
			return events
		}

		lastErr = err
		fetchAttemptsTotal.WithLabelValues(string(ClassOf(err))).Inc()

		if attempt < MaxAttempts {
			wait := Backoff(attempt)
			f.logger.Info().
				Int64("club_id", club.ID).
				Int("attempt", attempt).
				Int("max_attempts", MaxAttempts).
				Err(err).
				Msg("Retrying club events")
			retryBackoffSeconds.Observe(wait.Seconds())
			f.sleep(wait)
		}
	}

	fetchExhaustedTotal.Inc()
	f.logger.Error().
		Int64("club_id", club.ID).
		Int("attempts", MaxAttempts).
		Msg("Failed to get events for club")

	switch {
	case errors.Is(lastErr, ErrNotFound):
		f.logger.Info().Int64("club_id", club.ID).Msg("Club might not have any upcoming events")
	case StatusCode(lastErr) != 0:
		f.logger.Error().Int64("club_id", club.ID).Int("status", StatusCode(lastErr)).Msg("Strava API error")
	}
	f.logger.Info().Int64("club_id", club.ID).Msg("Continuing without events from club")

	return []ClubEvent{}
}

func (f *EventFetcher) attachClubName(clubID int64, events []ClubEvent) {
	name, ok := f.directory.Name(clubID)
	if !ok {
		return
	}
	for i := range events {
		events[i].ClubName = name
	}
}
