// Package pool provides bounded-concurrency execution over a collection.
package pool

import "sync"

// Map runs fn once for every item with at most limit invocations in flight
// at any instant. A worker picks up the next queued item as soon as its
// current one finishes, so admission slides rather than running in rounds.
// Map returns after every item has completed; a failed item is just a value
// in the result slice. Result order is unrelated to input order, so callers
// needing correlation must carry the item identity inside R.
func Map[T, R any](items []T, limit int, fn func(T) R) []R {
	if len(items) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = 1
	}
	if limit > len(items) {
		limit = len(items)
	}

	jobs := make(chan T)
	results := make(chan R, len(items))

	var wg sync.WaitGroup
	for i := 0; i < limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				results <- fn(item)
			}
		}()
	}

	for _, item := range items {
		jobs <- item
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make([]R, 0, len(items))
	for r := range results {
		out = append(out, r)
	}
	return out
}
