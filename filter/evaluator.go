package filter

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/s0up4200/strapcache/content"
)

// EvaluatorOption configures an evaluator
type EvaluatorOption func(*ConcurrentEvaluator)

// WithWorkers sets the maximum number of concurrent goroutines
func WithWorkers(workers int) EvaluatorOption {
	return func(e *ConcurrentEvaluator) {
		if workers > 0 {
			e.workerCount = workers
		}
	}
}

// WithBatchSize sets the chunk size below which evaluation stays sequential
func WithBatchSize(size int) EvaluatorOption {
	return func(e *ConcurrentEvaluator) {
		if size > 0 {
			e.batchSize = size
		}
	}
}

// ConcurrentEvaluator implements both Evaluator and BatchEvaluator interfaces
type ConcurrentEvaluator struct {
	workerCount int
	batchSize   int
}

// NewConcurrentEvaluator creates a new concurrent evaluator
func NewConcurrentEvaluator(opts ...EvaluatorOption) *ConcurrentEvaluator {
	e := &ConcurrentEvaluator{
		workerCount: runtime.GOMAXPROCS(0),
		batchSize:   100,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Evaluate returns the matching entities in their original order
func (e *ConcurrentEvaluator) Evaluate(ctx context.Context, filter CompiledFilter, entities []content.NormalizedEntity) ([]content.NormalizedEntity, error) {
	if len(entities) == 0 {
		return []content.NormalizedEntity{}, nil
	}

	if len(entities) < e.batchSize {
		return Apply(filter, entities), nil
	}

	return e.evaluateConcurrent(ctx, filter, entities)
}

// EvaluateBatch evaluates multiple filters against the same entities concurrently
func (e *ConcurrentEvaluator) EvaluateBatch(ctx context.Context, filters map[string]CompiledFilter, entities []content.NormalizedEntity) (map[string][]content.NormalizedEntity, error) {
	results := make(map[string][]content.NormalizedEntity, len(filters))
	if len(filters) == 0 {
		return results, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workerCount)

	for name, filter := range filters {
		g.Go(func() error {
			matches, err := e.Evaluate(gctx, filter, entities)
			if err != nil {
				return err
			}
			mu.Lock()
			results[name] = matches
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// evaluateConcurrent splits entities into chunks and reassembles matches in order
func (e *ConcurrentEvaluator) evaluateConcurrent(ctx context.Context, filter CompiledFilter, entities []content.NormalizedEntity) ([]content.NormalizedEntity, error) {
	chunkSize := max(len(entities)/e.workerCount, e.batchSize)
	chunks := (len(entities) + chunkSize - 1) / chunkSize
	results := make([][]content.NormalizedEntity, chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workerCount)

	for i := range chunks {
		start := i * chunkSize
		end := min(start+chunkSize, len(entities))

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = Apply(filter, entities[start:end])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	matches := make([]content.NormalizedEntity, 0, total)
	for _, r := range results {
		matches = append(matches, r...)
	}
	return matches, nil
}
