package ops

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/docsentry/backend/internal/settings"
)

// batches splits entries into chunks of size. The last chunk may be short.
func batches(entries []walkEntry, size int) [][]walkEntry {
	if size < 1 {
		size = 1
	}
	out := make([][]walkEntry, 0, (len(entries)+size-1)/size)
	for len(entries) > 0 {
		n := size
		if n > len(entries) {
			n = len(entries)
		}
		out = append(out, entries[:n])
		entries = entries[n:]
	}
	return out
}

// runBatches fans entries out to a bounded worker pool batch by batch.
// Workers do the CPU-bound part; apply runs serially in entry order so
// storage writes and counter updates need no locking. Cancellation is
// checked between batches only, which keeps stop semantics predictable.
func runBatches[R any](
	ctx context.Context,
	entries []walkEntry,
	threading settings.ThreadingSettings,
	cancelled func() bool,
	work func(walkEntry) R,
	apply func(walkEntry, R) error,
) (stopped bool, err error) {
	workers := threading.MaxWorkers
	if !threading.Enabled || workers < 1 {
		workers = 1
	}

	for _, batch := range batches(entries, threading.BatchSize) {
		if cancelled() {
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return true, nil
		}

		results := make([]R, len(batch))
		var g errgroup.Group
		g.SetLimit(workers)
		for i, entry := range batch {
			i, entry := i, entry
			g.Go(func() error {
				results[i] = work(entry)
				return nil
			})
		}
		// Workers never return errors; results are judged in apply.
		_ = g.Wait()

		for i, entry := range batch {
			if err := apply(entry, results[i]); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}
