package propagation

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// Result is the outcome of propagating one element set. Exactly one of
// State/Err is meaningful. Results are index-aligned with the batch's
// records, so callers can correlate without sorting.
type Result struct {
	Index         int
	CatalogNumber int
	Name          string
	State         State
	Err           error
}

// Pool fans propagation out across a bounded number of goroutines.
// Propagation is a pure function of (element set, time), so parallelism
// cannot change result values; each result is written into its own
// write-once slot to keep the output free of shared mutable state.
type Pool struct {
	workers int
	logger  *slog.Logger
}

// NewPool creates a pool with the given concurrency. workers <= 0 means
// runtime.NumCPU().
func NewPool(workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{workers: workers, logger: logger}
}

// Run propagates every record in the batch to time t.
// Returns index-aligned results plus success and error counts. Individual
// failures never abort the batch: a single bad record must not stop tracking
// of the remaining population.
func (p *Pool) Run(ctx context.Context, b *Batch, t time.Time) ([]Result, int, int) {
	n := b.Len()
	if n == 0 {
		return nil, 0, 0
	}

	results := make([]Result, n)
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	for i := range b.Sets {
		set := b.Sets[i]
		prop := b.props[i]

		results[i].Index = i
		results[i].CatalogNumber = set.CatalogNumber
		results[i].Name = set.Name

		if prop == nil {
			results[i].Err = ErrNumerical
			continue
		}

		wg.Add(1)
		go func(idx int, prop *SGP4Propagator) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx].Err = ctx.Err()
				return
			}

			st, err := prop.At(t)
			if err != nil {
				results[idx].Err = err
				return
			}
			results[idx].State = st
		}(i, prop)
	}

	wg.Wait()

	var success, failed int
	for i := range results {
		if results[i].Err != nil {
			failed++
		} else {
			success++
		}
	}

	if failed > 0 {
		p.logger.Debug("batch propagation finished with failures",
			"total", n,
			"failed", failed,
		)
	}

	return results, success, failed
}
