package cache

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/s0up4200/strapcache/content"
)

// PrefetchRequest names one collection to warm
type PrefetchRequest struct {
	Endpoint string
	Options  QueryOptions
}

// Prefetch fetches the collection into the cache unless a fresh entry exists
func (l *Layer) Prefetch(ctx context.Context, endpoint string, opts QueryOptions) error {
	key := content.BuildCacheKey(endpoint, opts.Params)
	if entry, ok := l.store.Get(key); ok && l.fresh(entry) && isCollection(entry.Data) {
		return nil
	}

	if _, err := l.revalidate(ctx, key, endpoint, l.collectionFetch(endpoint, opts.Params)); err != nil {
		return err
	}
	return nil
}

// PrefetchAll warms several collections with bounded concurrency and returns the first failure
func (l *Layer) PrefetchAll(ctx context.Context, requests []PrefetchRequest) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.prefetchLimit)

	for _, req := range requests {
		g.Go(func() error {
			return l.Prefetch(ctx, req.Endpoint, req.Options)
		})
	}

	if err := g.Wait(); err != nil {
		l.logger.Debug().Err(err).Int("requests", len(requests)).Msg("Prefetch failed")
		return err
	}
	return nil
}
