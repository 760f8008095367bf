package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/strapcache/content"
)

func TestStoreSetGet(t *testing.T) {
	s := NewStore()

	_, ok := s.Get("/articles")
	assert.False(t, ok)

	s.Set("/articles", "v1")
	entry, ok := s.Get("/articles")
	require.True(t, ok)
	assert.Equal(t, "v1", entry.Data)
	assert.False(t, entry.UpdatedAt.IsZero())
	assert.False(t, entry.Invalidated)
	assert.Equal(t, 1, s.Len())
}

func TestStoreCommitOrdering(t *testing.T) {
	tests := []struct {
		name     string
		run      func(s *Store) bool
		wantData any
		wantOK   bool
	}{
		{
			name: "newer fetch wins over older one landing later",
			run: func(s *Store) bool {
				older := s.begin("k")
				newer := s.begin("k")
				require.True(t, s.commit("k", newer, "new", nil))
				return s.commit("k", older, "old", nil)
			},
			wantData: "new",
			wantOK:   true,
		},
		{
			name: "set supersedes fetch in flight",
			run: func(s *Store) bool {
				seq := s.begin("k")
				s.Set("k", "manual")
				return s.commit("k", seq, "fetched", nil)
			},
			wantData: "manual",
			wantOK:   true,
		},
		{
			name: "remove supersedes fetch in flight",
			run: func(s *Store) bool {
				s.Set("k", "v1")
				seq := s.begin("k")
				s.Remove("k")
				return s.commit("k", seq, "fetched", nil)
			},
			wantOK: false,
		},
		{
			name: "invalidate supersedes fetch in flight",
			run: func(s *Store) bool {
				s.Set("k", "v1")
				seq := s.begin("k")
				s.Invalidate("k")
				return s.commit("k", seq, "fetched", nil)
			},
			wantData: "v1",
			wantOK:   true,
		},
		{
			name: "reset supersedes fetch in flight",
			run: func(s *Store) bool {
				s.Set("k", "v1")
				seq := s.begin("k")
				s.Reset()
				return s.commit("k", seq, "fetched", nil)
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			applied := tt.run(s)
			assert.False(t, applied, "stale commit must be discarded")

			entry, ok := s.Get("k")
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantData, entry.Data)
			}
			assert.False(t, entry.Validating)
		})
	}
}

func TestStoreFailedCommitKeepsData(t *testing.T) {
	s := NewStore()
	s.Set("k", "v1")
	before, _ := s.Get("k")

	seq := s.begin("k")
	entry, _ := s.Get("k")
	assert.True(t, entry.Validating)

	failure := content.NewError(content.KindServer, "boom", content.Details{}, nil)
	require.True(t, s.commit("k", seq, nil, failure))

	entry, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v1", entry.Data)
	assert.Equal(t, before.UpdatedAt, entry.UpdatedAt)
	assert.Same(t, failure, entry.Err)
	assert.False(t, entry.Validating)

	seq = s.begin("k")
	require.True(t, s.commit("k", seq, "v2", nil))
	entry, _ = s.Get("k")
	assert.Equal(t, "v2", entry.Data)
	assert.Nil(t, entry.Err)
}

func TestStoreUpdate(t *testing.T) {
	s := NewStore()
	assert.False(t, s.Update("missing", func(any) any { return 1 }))

	s.Set("count", 1)
	s.Invalidate("count")
	ok := s.Update("count", func(current any) any { return current.(int) + 1 })
	require.True(t, ok)

	entry, _ := s.Get("count")
	assert.Equal(t, 2, entry.Data)
	assert.False(t, entry.Invalidated)
}

func TestStoreInvalidate(t *testing.T) {
	s := NewStore()
	s.Set("/articles", 1)
	s.Set("/articles?sort=title", 2)
	s.Set("/authors", 3)

	assert.False(t, s.Invalidate("/missing"))

	keys := s.InvalidateMatching("/articles")
	assert.Equal(t, []string{"/articles", "/articles?sort=title"}, keys)

	entry, _ := s.Get("/articles")
	assert.True(t, entry.Invalidated)
	assert.Equal(t, 1, entry.Data)
	entry, _ = s.Get("/authors")
	assert.False(t, entry.Invalidated)

	assert.Equal(t, []string{"/articles", "/articles?sort=title", "/authors"}, s.InvalidateAll())
}

func TestStoreSubscribe(t *testing.T) {
	s := NewStore()

	var mu sync.Mutex
	var events []Entry
	var removed int
	unsubscribe := s.Subscribe("k", func(e Entry, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		if !ok {
			removed++
			return
		}
		events = append(events, e)
	})
	assert.Equal(t, 1, s.Subscribers("k"))

	s.Set("k", "a")
	s.Set("other", "ignored")
	s.Invalidate("k")
	s.Remove("k")

	mu.Lock()
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Data)
	assert.True(t, events[1].Invalidated)
	assert.Less(t, events[0].Version, events[1].Version)
	assert.Equal(t, 1, removed)
	mu.Unlock()

	unsubscribe()
	unsubscribe()
	assert.Zero(t, s.Subscribers("k"))

	s.Set("k", "b")
	mu.Lock()
	assert.Len(t, events, 2)
	mu.Unlock()
}

func TestStoreListenerMayUnsubscribe(t *testing.T) {
	s := NewStore()

	calls := 0
	var unsubscribe func()
	unsubscribe = s.Subscribe("k", func(Entry, bool) {
		calls++
		unsubscribe()
	})

	s.Set("k", 1)
	s.Set("k", 2)
	assert.Equal(t, 1, calls)
}

func TestStoreReset(t *testing.T) {
	s := NewStore()
	s.Set("b", 1)
	s.Set("a", 2)
	s.Subscribe("a", func(Entry, bool) {})

	assert.Equal(t, []string{"a", "b"}, s.Keys())

	s.Reset()
	assert.Zero(t, s.Len())
	assert.Empty(t, s.Keys())
	assert.Zero(t, s.Subscribers("a"))
}
