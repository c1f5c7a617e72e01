// Package parallel runs index-range work over a bounded number of goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Workers resolves an n_jobs style setting: values <= 0 mean all CPUs.
func Workers(nJobs int) int {
	if nJobs <= 0 {
		return runtime.NumCPU()
	}
	return nJobs
}

// Parallelize divides items into contiguous ranges, one per worker, and runs fn
// on each range concurrently. The first non-nil error is returned after all
// workers finish.
func Parallelize(items, workers int, fn func(start, end int) error) error {
	if items == 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > items {
		workers = items
	}

	// ceiling division
	chunkSize := (items + workers - 1) / workers

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for i := 0; i < workers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			if err := fn(s, e); err != nil {
				once.Do(func() { firstErr = err })
			}
		}(start, end)
	}
	wg.Wait()
	return firstErr
}

// ParallelizeWithThreshold runs fn sequentially when items <= threshold.
func ParallelizeWithThreshold(items, threshold, workers int, fn func(start, end int) error) error {
	if items <= threshold || workers == 1 {
		if items == 0 {
			return nil
		}
		return fn(0, items)
	}
	return Parallelize(items, workers, fn)
}
