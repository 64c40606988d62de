package service

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/mmcdole/shelf/internal/domain"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is how many items are written concurrently
const DefaultBatchSize = 10

// BatchResult reports per-item outcomes of a batch operation
type BatchResult struct {
	Succeeded []string
	Failed    map[string]error
}

// outcome is the settled result of one item in a batch
type outcome[T any] struct {
	item  *domain.Item
	value T
	err   error
}

// partition splits items into consecutive chunks of at most size
func partition(items []*domain.Item, size int) [][]*domain.Item {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var batches [][]*domain.Item
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end])
	}
	return batches
}

// runBatches applies op to items batch by batch. Items within a batch run concurrently;
// the next batch starts only after every item of the previous one has settled.
// Started operations are not cancelled; a done ctx only prevents later batches from starting.
// settle is called with each batch's outcomes before the next batch begins.
func runBatches[T any](ctx context.Context, op string, items []*domain.Item, size int,
	fn func(context.Context, *domain.Item) (T, error), settle func([]outcome[T])) (BatchResult, error) {

	result := BatchResult{Failed: make(map[string]error)}
	var errs *multierror.Error
	record := func(o outcome[T]) {
		if o.err == nil {
			result.Succeeded = append(result.Succeeded, o.item.ID)
			return
		}
		result.Failed[o.item.ID] = o.err
		errs = multierror.Append(errs, &domain.ItemError{ItemID: o.item.ID, Op: op, Err: o.err})
	}

	opCtx := context.WithoutCancel(ctx)
	for _, batch := range partition(items, size) {
		outcomes := make([]outcome[T], len(batch))

		if err := ctx.Err(); err != nil {
			for i, item := range batch {
				outcomes[i] = outcome[T]{item: item, err: err}
			}
		} else {
			var g errgroup.Group
			for i, item := range batch {
				g.Go(func() error {
					value, err := fn(opCtx, item)
					outcomes[i] = outcome[T]{item: item, value: value, err: err}
					return nil
				})
			}
			g.Wait()
		}

		for _, o := range outcomes {
			record(o)
		}
		if settle != nil {
			settle(outcomes)
		}
	}
	return result, errs.ErrorOrNil()
}
