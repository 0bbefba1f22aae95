// Package batch runs work items in fixed-size concurrent batches.
//
// The scheduler partitions the input into consecutive batches, fires every
// item of a batch at once, waits for all of them and only then moves on to
// the next batch. At most size calls are in flight at any moment.
//
// Example usage:
//
//	events := batch.Run(ctx, clubs, 3, func(ctx context.Context, c client.Club) []client.ClubEvent {
//		return fetcher.Fetch(ctx, token, c)
//	})
//
// The scheduler:
//   - Keeps batches strictly sequential (no cross-batch overlap)
//   - Never cancels siblings when one item comes back empty
//   - Concatenates per-item results in input order
//   - Reports progress through an optional OnBatch hook
package batch
