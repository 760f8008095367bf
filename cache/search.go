package cache

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/s0up4200/strapcache/content"
)

// SearchOptions configures a Search query
type SearchOptions struct {
	// Params are merged into every search request, e.g. sort and pagination
	Params content.Params
	// Debounce defaults to the layer's search debounce
	Debounce time.Duration
	// MinLength is the shortest trimmed term that triggers a request
	MinLength int
}

// SearchState is the view of a Search query
type SearchState struct {
	Term          string
	DebouncedTerm string
	Results       []content.NormalizedEntity
	Pagination    *content.PaginationInfo
	Error         *content.Error
	IsSearching   bool
}

// SearchQuery runs a debounced case-insensitive search over a collection
type SearchQuery struct {
	layer    *Layer
	endpoint string
	fields   []string
	opts     SearchOptions
	debounce time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	term       string
	debounced  string
	timer      *time.Timer
	generation uint64
	inflight   int
	results    []content.NormalizedEntity
	pagination *content.PaginationInfo
	err        *content.Error
	subs       map[uint64]func(SearchState)
	nextSub    uint64
	closed     bool
}

// Search creates a query that matches the term against fields with $containsi.
// Call Close when done with it.
func (l *Layer) Search(endpoint string, fields []string, opts SearchOptions) *SearchQuery {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = l.searchDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SearchQuery{
		layer:    l,
		endpoint: endpoint,
		fields:   slices.Clone(fields),
		opts:     opts,
		debounce: debounce,
		ctx:      ctx,
		cancel:   cancel,
		results:  []content.NormalizedEntity{},
		subs:     make(map[uint64]func(SearchState)),
	}
}

// SetTerm updates the live term. The request starts once the term has been
// stable for the debounce period; a blank term clears the results at once.
func (q *SearchQuery) SetTerm(term string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.term = term
	q.generation++
	generation := q.generation
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}

	trimmed := strings.TrimSpace(term)
	if trimmed == "" || len(trimmed) < q.opts.MinLength {
		q.debounced = term
		q.results = []content.NormalizedEntity{}
		q.pagination = nil
		q.err = nil
	} else {
		q.timer = time.AfterFunc(q.debounce, func() {
			q.run(generation)
		})
	}
	state, subs := q.snapshotLocked()
	q.mu.Unlock()

	notify(subs, state)
}

func (q *SearchQuery) run(generation uint64) {
	q.mu.Lock()
	if q.closed || generation != q.generation {
		q.mu.Unlock()
		return
	}
	q.debounced = q.term
	term := strings.TrimSpace(q.term)
	q.inflight++
	state, subs := q.snapshotLocked()
	q.mu.Unlock()

	notify(subs, state)

	var result CollectionState
	if len(q.fields) == 0 {
		result.Error = content.NewError(content.KindValidation, "search has no fields", content.Details{
			Endpoint: q.endpoint,
		}, nil)
	} else {
		or := make([]content.Filter, 0, len(q.fields))
		for _, field := range q.fields {
			or = append(or, content.ContainsI(field, term))
		}
		params := q.opts.Params.WithFilters(content.Or(or...))
		result = q.layer.Collection(q.ctx, q.endpoint, QueryOptions{Params: params})
	}

	q.mu.Lock()
	q.inflight--
	if q.closed {
		q.mu.Unlock()
		return
	}
	if generation == q.generation {
		q.err = result.Error
		if result.Error == nil {
			q.results = result.NormalizedData
			q.pagination = result.Pagination
		}
	}
	state, subs = q.snapshotLocked()
	q.mu.Unlock()

	notify(subs, state)
}

// State returns the current state
func (q *SearchQuery) State() SearchState {
	q.mu.Lock()
	defer q.mu.Unlock()
	state, _ := q.snapshotLocked()
	return state
}

// Subscribe calls fn after every state change until the returned function is called
func (q *SearchQuery) Subscribe(fn func(SearchState)) (unsubscribe func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextSub++
	id := q.nextSub
	q.subs[id] = fn
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.subs, id)
	}
}

// Close stops the pending debounce, cancels the waiting request and drops subscribers
func (q *SearchQuery) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.cancel()
	clear(q.subs)
}

func (q *SearchQuery) snapshotLocked() (SearchState, []func(SearchState)) {
	state := SearchState{
		Term:          q.term,
		DebouncedTerm: q.debounced,
		Results:       q.results,
		Pagination:    q.pagination,
		Error:         q.err,
		IsSearching:   q.term != q.debounced || q.inflight > 0,
	}

	ids := make([]uint64, 0, len(q.subs))
	for id := range q.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	subs := make([]func(SearchState), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, q.subs[id])
	}
	return state, subs
}

func notify(subs []func(SearchState), state SearchState) {
	for _, fn := range subs {
		fn(state)
	}
}
