/*
Package cache keeps a reactive, deduplicated view of remote content.

# Architecture

A Layer sits in front of a Fetcher (normally *content.Client) and stores every
response in a Store under content.BuildCacheKey(endpoint, params).

  - Concurrent reads of one key share a single request.
  - An entry younger than the dedupe interval is served without a request.
  - Every fetch takes a per-key sequence number. A response older than the
    last applied write is discarded, so Update, Remove and Invalidate cannot
    be undone by a request that was already in flight.
  - A failed fetch records its error on the entry and keeps the previous data.

# Usage

	client, err := content.NewClient(cfg, logger)
	if err != nil {
		return err
	}
	layer := cache.New(client, logger)

	state := layer.Collection(ctx, "/articles", cache.QueryOptions{
		Params: content.Params{Sort: []content.SortField{content.Desc("publishedAt")}},
		Where:  `featured`,
	})
	if state.Error != nil {
		fmt.Println(state.Error.UserMessage())
	}

Watchers receive the cached state at once and the revalidated state later:

	stop := layer.WatchCollection(ctx, "/articles", cache.QueryOptions{}, func(s cache.CollectionState) {
		render(s.NormalizedData)
	})
	defer stop()

# Error Handling

Query primitives never return Go errors. Failures appear on the Error field of
the returned state as *content.Error. A caller whose context ends while waiting
gets a network-kind error, and the shared request still fills the cache.
*/
package cache
