package reader

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BatchResult pairs one input buffer with its load outcome.
type BatchResult struct {
	Index  int
	Reader *Reader
	Err    error
}

type batchOptions struct {
	concurrency int64
	logf        func(format string, args ...interface{})
}

// BatchOption configures LoadAll.
type BatchOption func(*batchOptions)

// WithConcurrency bounds how many documents load at once. The default
// is GOMAXPROCS.
func WithConcurrency(n int) BatchOption {
	return func(o *batchOptions) {
		if n > 0 {
			o.concurrency = int64(n)
		}
	}
}

// WithLogFunc installs a printf-style logger for per-document load
// failures. nil disables logging.
func WithLogFunc(logf func(format string, args ...interface{})) BatchOption {
	return func(o *batchOptions) {
		o.logf = logf
	}
}

// LoadAll parses independent document buffers concurrently. Each buffer
// gets its own Reader, so loads share no mutable state and run fully in
// parallel up to the concurrency bound. Results arrive in input order;
// a buffer that fails to load carries its error in the matching result
// rather than aborting the batch. LoadAll itself returns an error only
// when the context ends before every document was admitted.
func LoadAll(ctx context.Context, buffers [][]byte, cfg Config, opts ...BatchOption) ([]BatchResult, error) {
	o := batchOptions{concurrency: int64(runtime.GOMAXPROCS(0))}
	for _, opt := range opts {
		opt(&o)
	}

	sem := semaphore.NewWeighted(o.concurrency)
	results := make([]BatchResult, len(buffers))
	var wg sync.WaitGroup

	for i, data := range buffers {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Mark everything not yet admitted, then wait for the
			// in-flight loads so the results slice is complete.
			for j := i; j < len(buffers); j++ {
				results[j] = BatchResult{Index: j, Err: ctx.Err()}
			}
			wg.Wait()
			return results, err
		}

		wg.Add(1)
		go func(i int, data []byte) {
			defer wg.Done()
			defer sem.Release(1)

			r, err := New(data, cfg)
			if err != nil && o.logf != nil {
				o.logf("document %d: load failed: %v", i, err)
			}
			results[i] = BatchResult{Index: i, Reader: r, Err: err}
		}(i, data)
	}

	wg.Wait()
	return results, nil
}
