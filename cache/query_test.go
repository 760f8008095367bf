package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/strapcache/content"
)

// pagedFetcher serves total articles in pages of the requested size
func pagedFetcher(total int) *fakeFetcher {
	return &fakeFetcher{collection: func(_ context.Context, _ string, params content.Params) (*content.CollectionResponse, error) {
		page, size := params.Pagination.Page, params.Pagination.PageSize
		var ids []int64
		for id := (page-1)*size + 1; id <= min(page*size, total); id++ {
			ids = append(ids, int64(id))
		}
		resp := articles(ids...)
		resp.Meta.Pagination = &content.PaginationMeta{Page: page, PageSize: size, Total: total}
		return resp, nil
	}}
}

func TestInfiniteQuery(t *testing.T) {
	f := pagedFetcher(5)
	l := newTestLayer(f)
	ctx := context.Background()

	q := l.Infinite("/articles", QueryOptions{
		Params: content.Params{Pagination: &content.Pagination{PageSize: 2}},
	})

	initial := q.State()
	assert.True(t, initial.HasMore)
	assert.Zero(t, initial.Pages)
	assert.NotNil(t, initial.Items)

	state := q.LoadMore(ctx)
	assert.Equal(t, 1, state.Pages)
	assert.Equal(t, 5, state.TotalItems)
	assert.True(t, state.HasMore)

	q.LoadMore(ctx)
	state = q.LoadMore(ctx)
	require.Nil(t, state.Error)
	assert.Equal(t, 3, state.Pages)
	assert.False(t, state.HasMore)
	assert.Equal(t, []string{"Article 1", "Article 2", "Article 3", "Article 4", "Article 5"}, titles(state.Items))

	q.LoadMore(ctx)
	assert.Equal(t, 3, f.total(), "no request once every page is loaded")

	q.Reset()
	state = q.State()
	assert.Zero(t, state.Pages)
	assert.Empty(t, state.Items)
	assert.True(t, state.HasMore)

	state = q.LoadMore(ctx)
	assert.Equal(t, 1, state.Pages)
	assert.Equal(t, 3, f.total(), "pages are cached per key")
}

func TestInfiniteQueryWithoutPaginationMeta(t *testing.T) {
	f := &fakeFetcher{collection: func(_ context.Context, _ string, params content.Params) (*content.CollectionResponse, error) {
		if params.Pagination.Page == 1 {
			return articles(1, 2), nil
		}
		return articles(3), nil
	}}
	l := newTestLayer(f)

	q := l.Infinite("/articles", QueryOptions{
		Params: content.Params{Pagination: &content.Pagination{PageSize: 2}},
	})
	ctx := context.Background()

	assert.True(t, q.LoadMore(ctx).HasMore, "a full page may have a successor")
	state := q.LoadMore(ctx)
	assert.False(t, state.HasMore)
	assert.Equal(t, 3, state.TotalItems)
}

func TestInfiniteLoadMoreWhileLoading(t *testing.T) {
	release := make(chan struct{})
	f := &fakeFetcher{collection: func(context.Context, string, content.Params) (*content.CollectionResponse, error) {
		<-release
		return articles(1), nil
	}}
	l := newTestLayer(f)
	q := l.Infinite("/articles", QueryOptions{})

	done := make(chan InfiniteState, 1)
	go func() {
		done <- q.LoadMore(context.Background())
	}()
	require.Eventually(t, func() bool { return q.State().IsLoadingMore }, time.Second, time.Millisecond)

	again := q.LoadMore(context.Background())
	assert.True(t, again.IsLoadingMore)
	assert.Equal(t, 1, f.total())

	close(release)
	state := <-done
	assert.False(t, state.IsLoadingMore)
	assert.Equal(t, 1, state.Pages)
	assert.False(t, state.HasMore, "short page ends the collection")
}

func TestInfiniteErrorKeepsPages(t *testing.T) {
	var fail atomic.Bool
	f := &fakeFetcher{collection: func(_ context.Context, _ string, params content.Params) (*content.CollectionResponse, error) {
		if fail.Load() {
			return nil, errors.New("reset by peer")
		}
		return articles(1, 2), nil
	}}
	l := newTestLayer(f)
	q := l.Infinite("/articles", QueryOptions{
		Params: content.Params{Pagination: &content.Pagination{PageSize: 2}},
	})
	ctx := context.Background()

	q.LoadMore(ctx)
	fail.Store(true)
	state := q.LoadMore(ctx)
	require.NotNil(t, state.Error)
	assert.Equal(t, content.KindNetwork, state.Error.Kind)
	assert.Equal(t, 1, state.Pages)

	fail.Store(false)
	state = q.LoadMore(ctx)
	assert.Nil(t, state.Error)
	assert.Equal(t, 2, state.Pages)
}

func TestSearchDebounce(t *testing.T) {
	f := &fakeFetcher{collection: func(context.Context, string, content.Params) (*content.CollectionResponse, error) {
		return articles(1), nil
	}}
	l := newTestLayer(f, WithSearchDebounce(20*time.Millisecond))

	q := l.Search("/articles", []string{"title", "body"}, SearchOptions{})
	defer q.Close()

	var mu sync.Mutex
	var seen []SearchState
	unsubscribe := q.Subscribe(func(s SearchState) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	})
	defer unsubscribe()

	q.SetTerm("go")
	q.SetTerm("gol")
	q.SetTerm("golang")
	assert.True(t, q.State().IsSearching)

	require.Eventually(t, func() bool {
		s := q.State()
		return s.DebouncedTerm == "golang" && !s.IsSearching
	}, time.Second, time.Millisecond)

	assert.Equal(t, 1, f.total(), "intermediate terms never reach the server")
	state := q.State()
	assert.Nil(t, state.Error)
	assert.Equal(t, []string{"Article 1"}, titles(state.Results))

	f.mu.Lock()
	require.Len(t, f.seen, 1)
	got := content.BuildQueryString(f.seen[0])
	f.mu.Unlock()
	want := content.BuildQueryString(content.Params{Filters: []content.Filter{
		content.Or(content.ContainsI("title", "golang"), content.ContainsI("body", "golang")),
	}})
	assert.Equal(t, want, got)

	q.SetTerm("   ")
	state = q.State()
	assert.False(t, state.IsSearching)
	assert.Empty(t, state.Results)
	assert.Equal(t, 1, f.total())

	mu.Lock()
	assert.NotEmpty(t, seen)
	assert.Empty(t, seen[len(seen)-1].Results)
	mu.Unlock()
}

func TestSearchMinLengthAndClose(t *testing.T) {
	f := &fakeFetcher{}
	l := newTestLayer(f)

	q := l.Search("/articles", []string{"title"}, SearchOptions{Debounce: 5 * time.Millisecond, MinLength: 3})
	q.SetTerm("go")
	assert.False(t, q.State().IsSearching)

	q.SetTerm("golang")
	q.Close()
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, f.total(), "closing cancels the pending debounce")

	q.SetTerm("rust")
	assert.Equal(t, "golang", q.State().Term)
}

func TestSearchWithoutFields(t *testing.T) {
	f := &fakeFetcher{}
	l := newTestLayer(f)

	q := l.Search("/articles", nil, SearchOptions{Debounce: time.Millisecond})
	defer q.Close()

	q.SetTerm("go")
	require.Eventually(t, func() bool { return q.State().Error != nil }, time.Second, time.Millisecond)
	assert.Equal(t, content.KindValidation, q.State().Error.Kind)
	assert.Zero(t, f.total())
}
