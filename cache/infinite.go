package cache

import (
	"context"
	"sync"

	"github.com/s0up4200/strapcache/content"
)

// InfiniteState is the accumulated view of a paged collection
type InfiniteState struct {
	Items         []content.NormalizedEntity
	Pages         int
	HasMore       bool
	TotalItems    int
	IsLoadingMore bool
	Error         *content.Error
}

// InfiniteQuery loads a collection page by page. Every page is its own cache entry.
type InfiniteQuery struct {
	layer    *Layer
	endpoint string
	opts     QueryOptions
	pageSize int

	mu         sync.Mutex
	pages      [][]content.NormalizedEntity
	lastSize   int
	pagination *content.PaginationInfo
	loading    bool
	err        *content.Error
	generation uint64
}

// Infinite creates a paged query over endpoint. The page size comes from
// opts.Params.Pagination when set.
func (l *Layer) Infinite(endpoint string, opts QueryOptions) *InfiniteQuery {
	pageSize := DefaultPageSize
	if p := opts.Params.Pagination; p != nil && p.PageSize > 0 {
		pageSize = p.PageSize
	}
	return &InfiniteQuery{
		layer:    l,
		endpoint: endpoint,
		opts:     opts,
		pageSize: pageSize,
	}
}

// LoadMore fetches the next page and appends it. It does nothing while another
// page is loading or when no pages remain.
func (q *InfiniteQuery) LoadMore(ctx context.Context) InfiniteState {
	q.mu.Lock()
	if q.loading || !q.hasMoreLocked() {
		state := q.stateLocked()
		q.mu.Unlock()
		return state
	}
	q.loading = true
	page := len(q.pages) + 1
	generation := q.generation
	q.mu.Unlock()

	params := q.opts.Params.WithPagination(content.Pagination{Page: page, PageSize: q.pageSize})
	result := q.layer.Collection(ctx, q.endpoint, QueryOptions{
		Params:   params,
		Where:    q.opts.Where,
		Disabled: q.opts.Disabled,
	})

	q.mu.Lock()
	defer q.mu.Unlock()

	if generation != q.generation {
		// Reset while the page was loading
		return q.stateLocked()
	}
	q.loading = false

	if result.Error != nil {
		q.err = result.Error
		return q.stateLocked()
	}

	q.err = nil
	q.pages = append(q.pages, result.NormalizedData)
	q.lastSize = len(result.Data)
	q.pagination = result.Pagination
	return q.stateLocked()
}

// State returns the current accumulated state
func (q *InfiniteQuery) State() InfiniteState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stateLocked()
}

// Reset drops the loaded pages. A page still loading is discarded when it lands.
func (q *InfiniteQuery) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.generation++
	q.pages = nil
	q.lastSize = 0
	q.pagination = nil
	q.loading = false
	q.err = nil
}

func (q *InfiniteQuery) hasMoreLocked() bool {
	if len(q.pages) == 0 {
		return true
	}
	if q.pagination != nil {
		return q.pagination.HasNextPage
	}
	return q.lastSize >= q.pageSize
}

func (q *InfiniteQuery) stateLocked() InfiniteState {
	items := make([]content.NormalizedEntity, 0, len(q.pages)*q.pageSize)
	for _, page := range q.pages {
		items = append(items, page...)
	}

	total := len(items)
	if q.pagination != nil && q.pagination.Total > 0 {
		total = q.pagination.Total
	}

	return InfiniteState{
		Items:         items,
		Pages:         len(q.pages),
		HasMore:       q.hasMoreLocked(),
		TotalItems:    total,
		IsLoadingMore: q.loading,
		Error:         q.err,
	}
}
