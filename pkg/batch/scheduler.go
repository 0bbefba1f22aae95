package batch

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

var (
	batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "club_rides_batches_total",
		Help: "Total number of batches processed by the scheduler",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "club_rides_batch_duration_seconds",
		Help:    "Wall-clock duration of one batch",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})
)

// BatchInfo describes one batch for progress reporting.
// Start and End are zero-based, End is exclusive.
type BatchInfo struct {
	Index int
	Start int
	End   int
	Total int
}

// Size returns the number of items in the batch.
func (b BatchInfo) Size() int {
	return b.End - b.Start
}

// Worker processes one item. It must not fail: failures are expected to be
// absorbed into an empty result.
type Worker[T, R any] func(ctx context.Context, item T) []R

// Options tunes a Run call.
type Options struct {
	// OnBatch is called before each batch starts.
	OnBatch func(BatchInfo)
}

// Partition splits items into consecutive slices of length size. The last
// slice may be shorter. A size below one is treated as one.
func Partition[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end])
	}
	return batches
}

// Run processes items in batches of size. Batches run strictly one after
// another; the items of a batch run concurrently and the batch completes only
// when every item has returned. Results are concatenated in item order, so
// the output is independent of completion order.
func Run[T, R any](ctx context.Context, items []T, size int, worker Worker[T, R], opts ...Options) []R {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}
	if size < 1 {
		size = 1
	}

	results := make([]R, 0, len(items))
	for i, chunk := range Partition(items, size) {
		start := i * size
		if opt.OnBatch != nil {
			opt.OnBatch(BatchInfo{Index: i, Start: start, End: start + len(chunk), Total: len(items)})
		}

		timer := prometheus.NewTimer(batchDuration)
		perItem := runChunk(ctx, chunk, worker)
		timer.ObserveDuration()
		batchesTotal.Inc()

		for _, r := range perItem {
			results = append(results, r...)
		}
	}
	return results
}

// runChunk fans out one batch and joins it. The group has no shared cancel
// context: one item finishing early or empty never affects its siblings.
func runChunk[T, R any](ctx context.Context, chunk []T, worker Worker[T, R]) [][]R {
	perItem := make([][]R, len(chunk))

	var g errgroup.Group
	for i, item := range chunk {
		i, item := i, item
		g.Go(func() error {
			perItem[i] = worker(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	return perItem
}
