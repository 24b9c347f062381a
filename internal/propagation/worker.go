package propagation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// sampleJob is a unit of work for the worker pool.
type sampleJob struct {
	index int
	at    time.Time
}

// sampleResult is the outcome of a single grid point.
type sampleResult struct {
	index int
	err   error
}

// WorkerPool manages a fixed number of goroutines for parallel SGP4 evaluation
// of grid points.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// SampleGrid evaluates prop at every instant in times. The returned slice is
// index-aligned with times. The first point failure (or ctx cancellation)
// aborts the batch and is returned; the partial slice is discarded.
func (wp *WorkerPool) SampleGrid(ctx context.Context, prop *SGP4Propagator, times []time.Time) ([]Sample, error) {
	if len(times) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := wp.workers
	if workers > len(times) {
		workers = len(times)
	}

	samples := make([]Sample, len(times))
	jobs := make(chan sampleJob, workers*2)
	results := make(chan sampleResult, workers*2)

	// Each worker writes only to samples[job.index].
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				s, err := prop.Sample(job.at)
				if err == nil {
					samples[job.index] = s
				}
				select {
				case results <- sampleResult{index: job.index, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, at := range times {
			select {
			case jobs <- sampleJob{index: i, at: at}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	done := 0
	for result := range results {
		if result.err != nil && firstErr == nil {
			firstErr = result.err
			wp.logger.Warn("grid point propagation failed",
				"index", result.index,
				"error", result.err,
			)
			cancel()
			continue
		}
		done++
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if done != len(times) {
		// Only reachable when the caller's ctx was cancelled.
		return nil, context.Cause(ctx)
	}
	return samples, nil
}
