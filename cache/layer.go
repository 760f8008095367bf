package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/s0up4200/strapcache/content"
	"github.com/s0up4200/strapcache/filter"
	"github.com/s0up4200/strapcache/metrics"
)

const (
	DefaultDedupeInterval = 2 * time.Second
	DefaultSearchDebounce = 300 * time.Millisecond
	DefaultPrefetchLimit  = 4
	DefaultPageSize       = 25
)

// Fetcher is the subset of the content client the cache reads through
type Fetcher interface {
	GetCollection(ctx context.Context, endpoint string, params content.Params) (*content.CollectionResponse, error)
	GetSingle(ctx context.Context, endpoint string, params content.Params) (*content.SingleResponse, error)
	GetByID(ctx context.Context, endpoint, id string, params content.Params) (*content.SingleResponse, error)
}

var _ Fetcher = (*content.Client)(nil)

// Option configures a Layer
type Option func(*Layer)

// WithDedupeInterval sets how long a fetched entry is served without a request
func WithDedupeInterval(d time.Duration) Option {
	return func(l *Layer) {
		if d >= 0 {
			l.dedupeInterval = d
		}
	}
}

// WithSearchDebounce sets the default debounce of Search queries
func WithSearchDebounce(d time.Duration) Option {
	return func(l *Layer) {
		if d >= 0 {
			l.searchDebounce = d
		}
	}
}

// WithPrefetchLimit bounds the concurrency of PrefetchAll
func WithPrefetchLimit(n int) Option {
	return func(l *Layer) {
		if n > 0 {
			l.prefetchLimit = n
		}
	}
}

// WithMetrics records cache hits, misses and dedupe on the collector
func WithMetrics(m *metrics.Collector) Option {
	return func(l *Layer) {
		l.metrics = m
	}
}

// WithCompiler sets the compiler used for QueryOptions.Where
func WithCompiler(c filter.Compiler) Option {
	return func(l *Layer) {
		if c != nil {
			l.compiler = c
		}
	}
}

// Layer is the reactive cache in front of a Fetcher
type Layer struct {
	client   Fetcher
	store    *Store
	group    singleflight.Group
	logger   zerolog.Logger
	metrics  *metrics.Collector
	compiler filter.Compiler

	dedupeInterval time.Duration
	searchDebounce time.Duration
	prefetchLimit  int

	mu      sync.Mutex
	watched map[string]*watch

	now func() time.Time
}

// watch tracks the live watchers of a key so invalidation can refetch it
type watch struct {
	count    int
	endpoint string
	fetch    fetchFunc
}

type fetchFunc func(ctx context.Context) (any, error)

// New creates a cache layer reading through client
func New(client Fetcher, logger zerolog.Logger, opts ...Option) *Layer {
	l := &Layer{
		client:         client,
		store:          NewStore(),
		logger:         logger.With().Str("component", "cache").Logger(),
		compiler:       filter.CompilerFunc(filter.CompileFilter),
		dedupeInterval: DefaultDedupeInterval,
		searchDebounce: DefaultSearchDebounce,
		prefetchLimit:  DefaultPrefetchLimit,
		watched:        make(map[string]*watch),
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Store returns the underlying store
func (l *Layer) Store() *Store {
	return l.store
}

func (l *Layer) fresh(e Entry) bool {
	return e.Data != nil &&
		e.Err == nil &&
		!e.Invalidated &&
		l.now().Sub(e.UpdatedAt) < l.dedupeInterval
}

// load returns the entry for key, fetching it unless a fresh entry of the wanted type exists
func (l *Layer) load(ctx context.Context, key, endpoint string, want func(any) bool, fetch fetchFunc) (Entry, *content.Error) {
	if entry, ok := l.store.Get(key); ok && l.fresh(entry) && want(entry.Data) {
		l.metrics.RecordCacheHit(endpoint)
		return entry, nil
	}
	l.metrics.RecordCacheMiss(endpoint)
	return l.revalidate(ctx, key, endpoint, fetch)
}

type fetchResult struct {
	data any
	err  *content.Error
}

// revalidate joins or starts the shared fetch for key and waits for it.
// The fetch itself is detached from ctx, so it lands in the store even when the caller gives up.
func (l *Layer) revalidate(ctx context.Context, key, endpoint string, fetch fetchFunc) (Entry, *content.Error) {
	ch := l.group.DoChan(key, func() (any, error) {
		seq := l.store.begin(key)
		l.logger.Debug().Str("key", key).Uint64("seq", seq).Msg("Revalidating cache entry")

		data, err := fetch(context.WithoutCancel(ctx))
		var cerr *content.Error
		if err != nil {
			cerr = content.Classify(content.Failure{Endpoint: endpoint, Method: "GET", Err: err})
			data = nil
		}

		if !l.store.commit(key, seq, data, cerr) {
			l.metrics.RecordStaleDiscard(endpoint)
			l.logger.Debug().Str("key", key).Uint64("seq", seq).Msg("Discarded stale cache write")
		} else if cerr != nil {
			l.logger.Debug().Str("key", key).Str("kind", string(cerr.Kind)).Msg("Cache revalidation failed")
		}
		l.metrics.SetCacheEntries(l.store.Len())

		return fetchResult{data: data, err: cerr}, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			l.metrics.RecordDedupeHit(endpoint)
		}
		result, _ := res.Val.(fetchResult)
		entry, ok := l.store.Get(key)
		if !ok && result.err == nil && result.data != nil {
			// The entry was removed after the fetch landed
			entry = Entry{Data: result.data, UpdatedAt: l.now()}
		}
		return entry, result.err
	case <-ctx.Done():
		entry, _ := l.store.Get(key)
		return entry, content.NewError(content.KindNetwork, "request canceled", content.Details{
			Endpoint: endpoint,
			Method:   "GET",
		}, ctx.Err())
	}
}

func (l *Layer) collectionFetch(endpoint string, params content.Params) fetchFunc {
	return func(ctx context.Context) (any, error) {
		return l.client.GetCollection(ctx, endpoint, params)
	}
}

func (l *Layer) singleFetch(endpoint string, params content.Params) fetchFunc {
	return func(ctx context.Context) (any, error) {
		return l.client.GetSingle(ctx, endpoint, params)
	}
}

func (l *Layer) byIDFetch(endpoint, id string, params content.Params) fetchFunc {
	return func(ctx context.Context) (any, error) {
		return l.client.GetByID(ctx, endpoint, id, params)
	}
}

func isCollection(v any) bool {
	_, ok := v.(*content.CollectionResponse)
	return ok
}

func isSingle(v any) bool {
	_, ok := v.(*content.SingleResponse)
	return ok
}

// Invalidate marks key stale and refetches it in the background when it is watched
func (l *Layer) Invalidate(key string) {
	l.store.Invalidate(key)
	l.group.Forget(key)
	l.refreshWatched([]string{key})
}

// InvalidateAll marks every entry stale
func (l *Layer) InvalidateAll() {
	keys := l.store.InvalidateAll()
	for _, key := range keys {
		l.group.Forget(key)
	}
	l.refreshWatched(keys)
}

// InvalidateEndpoint marks stale every key of endpoint: the bare endpoint,
// its parameterized variants and its by-id children.
func (l *Layer) InvalidateEndpoint(endpoint string) []string {
	endpoint = strings.TrimRight(endpoint, "/")
	var keys []string
	for _, key := range l.store.Keys() {
		if key == endpoint ||
			strings.HasPrefix(key, endpoint+"?") ||
			strings.HasPrefix(key, endpoint+"/") {
			if l.store.Invalidate(key) {
				keys = append(keys, key)
			}
			l.group.Forget(key)
		}
	}
	l.refreshWatched(keys)
	return keys
}

// Update writes data to key as a fresh entry, superseding fetches in flight
func (l *Layer) Update(key string, data any) {
	l.store.Set(key, data)
	l.group.Forget(key)
	l.metrics.SetCacheEntries(l.store.Len())
}

// Remove deletes key
func (l *Layer) Remove(key string) {
	l.store.Remove(key)
	l.group.Forget(key)
	l.metrics.SetCacheEntries(l.store.Len())
}

// Mutate runs fn and, when it succeeds, invalidates every key of endpoint
func (l *Layer) Mutate(ctx context.Context, endpoint string, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	keys := l.InvalidateEndpoint(endpoint)
	l.logger.Debug().Str("endpoint", endpoint).Int("keys", len(keys)).Msg("Invalidated after mutation")
	return nil
}

// Reset drops all entries and watchers
func (l *Layer) Reset() {
	for _, key := range l.store.Keys() {
		l.group.Forget(key)
	}
	l.store.Reset()

	l.mu.Lock()
	l.watched = make(map[string]*watch)
	l.mu.Unlock()

	l.metrics.SetCacheEntries(0)
}

func (l *Layer) addWatch(key, endpoint string, fetch fetchFunc) func() {
	l.mu.Lock()
	w, ok := l.watched[key]
	if !ok {
		w = &watch{endpoint: endpoint, fetch: fetch}
		l.watched[key] = w
	}
	w.count++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if cur, ok := l.watched[key]; ok && cur == w {
				cur.count--
				if cur.count <= 0 {
					delete(l.watched, key)
				}
			}
		})
	}
}

func (l *Layer) refreshWatched(keys []string) {
	l.mu.Lock()
	var pending []struct {
		key string
		w   watch
	}
	for _, key := range keys {
		if w, ok := l.watched[key]; ok {
			pending = append(pending, struct {
				key string
				w   watch
			}{key, *w})
		}
	}
	l.mu.Unlock()

	for _, p := range pending {
		go l.revalidate(context.Background(), p.key, p.w.endpoint, p.w.fetch)
	}
}
