package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/s0up4200/strapcache/content"
	"github.com/s0up4200/strapcache/filter"
)

// QueryOptions describes a cached read
type QueryOptions struct {
	Params content.Params
	// Where is an optional filter expression applied locally to NormalizedData
	Where string
	// Disabled reads the cache without ever fetching
	Disabled bool
}

// CollectionState is the view of a cached collection
type CollectionState struct {
	Key  string
	Data []content.RemoteEntity
	// NormalizedData is Data flattened, narrowed by QueryOptions.Where when set
	NormalizedData []content.NormalizedEntity
	Pagination     *content.PaginationInfo
	Error          *content.Error
	IsLoading      bool
	IsValidating   bool
	UpdatedAt      time.Time
}

// EntityState is the view of a cached single entity
type EntityState struct {
	Key            string
	Data           *content.RemoteEntity
	NormalizedData content.NormalizedEntity
	Error          *content.Error
	IsLoading      bool
	IsValidating   bool
	UpdatedAt      time.Time
}

// Collection returns the collection at endpoint, fetching it unless a fresh entry exists
func (l *Layer) Collection(ctx context.Context, endpoint string, opts QueryOptions) CollectionState {
	key := content.BuildCacheKey(endpoint, opts.Params)
	if opts.Disabled {
		entry, _ := l.store.Get(key)
		return l.collectionState(key, entry, nil, opts)
	}

	entry, err := l.load(ctx, key, endpoint, isCollection, l.collectionFetch(endpoint, opts.Params))
	state := l.collectionState(key, entry, err, opts)
	state.IsLoading = false
	return state
}

// Single returns the single type at endpoint
func (l *Layer) Single(ctx context.Context, endpoint string, opts QueryOptions) EntityState {
	key := content.BuildCacheKey(endpoint, opts.Params)
	return l.entity(ctx, key, endpoint, opts, l.singleFetch(endpoint, opts.Params))
}

// ByID returns one entry of the collection at endpoint
func (l *Layer) ByID(ctx context.Context, endpoint, id string, opts QueryOptions) EntityState {
	key := content.BuildCacheKey(strings.TrimRight(endpoint, "/")+"/"+id, opts.Params)
	return l.entity(ctx, key, endpoint, opts, l.byIDFetch(endpoint, id, opts.Params))
}

func (l *Layer) entity(ctx context.Context, key, endpoint string, opts QueryOptions, fetch fetchFunc) EntityState {
	if opts.Disabled {
		entry, _ := l.store.Get(key)
		return entityState(key, entry, nil)
	}

	entry, err := l.load(ctx, key, endpoint, isSingle, fetch)
	state := entityState(key, entry, err)
	state.IsLoading = false
	return state
}

func (l *Layer) collectionState(key string, entry Entry, err *content.Error, opts QueryOptions) CollectionState {
	state := CollectionState{
		Key:            key,
		Data:           []content.RemoteEntity{},
		NormalizedData: []content.NormalizedEntity{},
		Error:          err,
		IsValidating:   entry.Validating,
		UpdatedAt:      entry.UpdatedAt,
	}
	if state.Error == nil {
		state.Error = entry.Err
	}

	resp, ok := entry.Data.(*content.CollectionResponse)
	if !ok || resp == nil {
		state.IsLoading = entry.Validating
		return state
	}

	if resp.Data != nil {
		state.Data = resp.Data
	}
	state.NormalizedData = content.NormalizeEntities(resp.Data)
	state.Pagination = content.ExtractPagination(resp.Meta)

	if opts.Where != "" {
		compiled, cerr := l.compiler.Compile(opts.Where)
		if cerr != nil {
			state.Error = content.NewError(content.KindValidation, "invalid where expression", content.Details{
				Endpoint: key,
			}, cerr)
			return state
		}
		state.NormalizedData = filter.Apply(compiled, state.NormalizedData)
	}

	return state
}

func entityState(key string, entry Entry, err *content.Error) EntityState {
	state := EntityState{
		Key:          key,
		Error:        err,
		IsValidating: entry.Validating,
		UpdatedAt:    entry.UpdatedAt,
	}
	if state.Error == nil {
		state.Error = entry.Err
	}

	resp, ok := entry.Data.(*content.SingleResponse)
	if !ok || resp == nil {
		state.IsLoading = entry.Validating
		return state
	}
	state.Data = resp.Data
	state.NormalizedData = content.NormalizeEntity(resp.Data)
	return state
}

// WatchCollection emits the current state of the collection, revalidates it in
// the background when stale, and emits again after every write to its key.
// Emissions never go backwards. Call the returned function to stop watching.
func (l *Layer) WatchCollection(ctx context.Context, endpoint string, opts QueryOptions, fn func(CollectionState)) (unsubscribe func()) {
	key := content.BuildCacheKey(endpoint, opts.Params)
	fetch := l.collectionFetch(endpoint, opts.Params)
	render := func(entry Entry) {
		fn(l.collectionState(key, entry, nil, opts))
	}
	return l.watch(ctx, key, endpoint, opts.Disabled, isCollection, fetch, render)
}

// WatchSingle is WatchCollection for single types
func (l *Layer) WatchSingle(ctx context.Context, endpoint string, opts QueryOptions, fn func(EntityState)) (unsubscribe func()) {
	key := content.BuildCacheKey(endpoint, opts.Params)
	fetch := l.singleFetch(endpoint, opts.Params)
	render := func(entry Entry) {
		fn(entityState(key, entry, nil))
	}
	return l.watch(ctx, key, endpoint, opts.Disabled, isSingle, fetch, render)
}

func (l *Layer) watch(ctx context.Context, key, endpoint string, disabled bool, want func(any) bool, fetch fetchFunc, render func(Entry)) func() {
	var (
		mu   sync.Mutex
		last uint64
		done atomic.Bool
	)
	emit := func(entry Entry) {
		mu.Lock()
		defer mu.Unlock()
		if done.Load() || entry.Version < last {
			return
		}
		last = entry.Version
		render(entry)
	}

	entry, _, unsubscribe := l.store.subscribeSnapshot(key, func(e Entry, _ bool) {
		emit(e)
	})
	unwatch := func() {}
	if !disabled {
		unwatch = l.addWatch(key, endpoint, fetch)
	}

	stale := !disabled && !(l.fresh(entry) && want(entry.Data))
	if stale {
		// Validating is reported before the background fetch registers itself
		entry.Validating = true
	}
	emit(entry)

	if stale {
		l.metrics.RecordCacheMiss(endpoint)
		go l.revalidate(ctx, key, endpoint, fetch)
	} else if !disabled {
		l.metrics.RecordCacheHit(endpoint)
	}

	return func() {
		done.Store(true)
		unsubscribe()
		unwatch()
	}
}
