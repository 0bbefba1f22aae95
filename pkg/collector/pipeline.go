// Package collector runs the per-club event fetch over all selected clubs.
package collector

import (
	"context"

	"github.com/Sternrassler/club-rides/pkg/batch"
	"github.com/Sternrassler/club-rides/pkg/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultConcurrency is the batch size used when none is configured.
const DefaultConcurrency = 3

// Fetcher returns the events of one club and never fails.
type Fetcher interface {
	Fetch(ctx context.Context, token string, club client.Club) []client.ClubEvent
}

// Pipeline fetches events for many clubs in sequential batches of
// concurrent fetches.
type Pipeline struct {
	fetcher     Fetcher
	concurrency int
	logger      zerolog.Logger
}

// New creates a pipeline. concurrency below one is treated as one.
func New(fetcher Fetcher, concurrency int) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{
		fetcher:     fetcher,
		concurrency: concurrency,
		logger:      log.With().Str("component", "collector").Logger(),
	}
}

// Concurrency returns the batch size.
func (p *Pipeline) Concurrency() int {
	return p.concurrency
}

// Collect fetches events for every club and returns them in club order.
// A club that cannot be fetched contributes nothing; the run never fails.
func (p *Pipeline) Collect(ctx context.Context, token string, clubs []client.Club) []client.ClubEvent {
	p.logger.Info().
		Int("clubs", len(clubs)).
		Int("concurrency", p.concurrency).
		Msg("Fetching events for clubs")

	out := batch.Run(ctx, clubs, p.concurrency, func(ctx context.Context, club client.Club) []client.ClubEvent {
		return p.fetcher.Fetch(ctx, token, club)
	}, batch.Options{
		OnBatch: func(b batch.BatchInfo) {
			p.logger.Info().
				Int("batch", b.Index+1).
				Msgf("Processing batch of %d clubs (%d to %d of %d)", b.Size(), b.Start+1, b.End, b.Total)
		},
	})

	p.logger.Info().Int("events", len(out)).Msg("Found events across all clubs")
	return out
}
