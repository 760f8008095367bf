package content

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQueryString(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   string
	}{
		{
			name:   "empty params",
			params: Params{},
			want:   "",
		},
		{
			name:   "single equality filter",
			params: Params{Filters: []Filter{Eq("slug", "hello")}},
			want:   "filters[slug][$eq]=hello",
		},
		{
			name: "values are escaped, keys are not",
			params: Params{
				Filters: []Filter{ContainsI("title", "a&b c")},
			},
			want: "filters[title][$containsi]=a%26b%20c",
		},
		{
			name: "in list and null",
			params: Params{
				Filters: []Filter{In("category", "news", "blog"), Null("deletedAt")},
			},
			want: "filters[category][$in][0]=news&filters[category][$in][1]=blog&filters[deletedAt][$null]=true",
		},
		{
			name: "logical groups and relations",
			params: Params{
				Filters: []Filter{
					Or(Eq("status", "draft"), Rel("author", Eq("name", "Kai"))),
					Not(Eq("hidden", true)),
				},
			},
			want: "filters[$or][0][status][$eq]=draft&filters[$or][1][author][name][$eq]=Kai&filters[$not][hidden][$eq]=true",
		},
		{
			name: "canonical group order",
			params: Params{
				Locale:           "en",
				PublicationState: PublicationPreview,
				Pagination:       &Pagination{Page: 2, PageSize: 25},
				Fields:           []string{"title", "slug"},
				Populate:         PopulateAll(),
				Sort:             []SortField{Desc("publishedAt"), Asc("title")},
				Filters:          []Filter{Gte("views", 10)},
				Extra:            map[string]string{"z": "1", "a": "2"},
			},
			want: "filters[views][$gte]=10" +
				"&sort[0]=publishedAt%3Adesc&sort[1]=title%3Aasc" +
				"&populate=%2A" +
				"&fields[0]=title&fields[1]=slug" +
				"&pagination[page]=2&pagination[pageSize]=25" +
				"&publicationState=preview&locale=en&a=2&z=1",
		},
		{
			name:   "populate several fields",
			params: Params{Populate: PopulateFields("cover", "author")},
			want:   "populate[0]=cover&populate[1]=author",
		},
		{
			name:   "populate one field",
			params: Params{Populate: PopulateFields("cover")},
			want:   "populate=cover",
		},
		{
			name:   "offset pagination",
			params: Params{Pagination: &Pagination{Start: 20, Limit: 10}},
			want:   "pagination[start]=20&pagination[limit]=10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildQueryString(tt.params))
		})
	}
}

func TestBuildQueryStringRoundTripsThroughURLParsing(t *testing.T) {
	qs := BuildQueryString(Params{
		Filters: []Filter{Eq("title", "Q&A: 100% + more")},
		Sort:    []SortField{Desc("createdAt")},
	})

	values, err := url.ParseQuery(qs)
	require.NoError(t, err)
	assert.Equal(t, "Q&A: 100% + more", values.Get("filters[title][$eq]"))
	assert.Equal(t, "createdAt:desc", values.Get("sort[0]"))
}

func TestFilterValueFormatting(t *testing.T) {
	when := time.Date(2024, 3, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))

	qs := BuildQueryString(Params{Filters: []Filter{
		Between("price", 9.5, 20),
		Eq("publishedAt", when),
		Eq("featured", false),
		Eq("id", int64(42)),
	}})

	values, err := url.ParseQuery(qs)
	require.NoError(t, err)
	assert.Equal(t, "9.5", values.Get("filters[price][$between][0]"))
	assert.Equal(t, "20", values.Get("filters[price][$between][1]"))
	assert.Equal(t, "2024-03-01T08:30:00Z", values.Get("filters[publishedAt][$eq]"))
	assert.Equal(t, "false", values.Get("filters[featured][$eq]"))
	assert.Equal(t, "42", values.Get("filters[id][$eq]"))
}

func TestBuildCacheKey(t *testing.T) {
	t.Run("declaration order does not matter", func(t *testing.T) {
		a := Params{
			Filters:    []Filter{Eq("a", 1), Eq("b", 2)},
			Pagination: &Pagination{Page: 1, PageSize: 10},
			Extra:      map[string]string{"x": "1", "y": "2"},
		}
		b := Params{
			Extra:      map[string]string{"y": "2", "x": "1"},
			Pagination: &Pagination{PageSize: 10, Page: 1},
			Filters:    []Filter{Eq("b", 2), Eq("a", 1)},
		}
		assert.Equal(t, BuildCacheKey("/x", a), BuildCacheKey("/x", b))
	})

	t.Run("different params differ", func(t *testing.T) {
		a := Params{Filters: []Filter{Eq("a", 1)}}
		b := Params{Filters: []Filter{Eq("a", 2)}}
		assert.NotEqual(t, BuildCacheKey("/x", a), BuildCacheKey("/x", b))
		assert.NotEqual(t, BuildCacheKey("/x", a), BuildCacheKey("/y", a))
	})

	t.Run("reserved characters in keys are escaped", func(t *testing.T) {
		joined := Params{Extra: map[string]string{"a=1&b": "2"}}
		split := Params{Extra: map[string]string{"a": "1", "b": "2"}}
		assert.NotEqual(t, BuildCacheKey("/x", joined), BuildCacheKey("/x", split))
		assert.Equal(t, "/x?a%3D1%26b=2", BuildCacheKey("/x", joined))

		values, err := url.ParseQuery(BuildQueryString(joined))
		require.NoError(t, err)
		assert.Equal(t, "2", values.Get("a=1&b"))
	})

	t.Run("filter field names are escaped", func(t *testing.T) {
		p := Params{Filters: []Filter{Eq("my field", "x")}}
		assert.Equal(t, "filters[my%20field][$eq]=x", BuildQueryString(p))
	})

	t.Run("empty params key is the endpoint", func(t *testing.T) {
		assert.Equal(t, "/articles", BuildCacheKey("/articles", Params{}))
	})
}

func TestWithFiltersDoesNotMutate(t *testing.T) {
	base := make([]Filter, 1, 4)
	base[0] = Eq("a", 1)
	p := Params{Filters: base}

	first := p.WithFilters(Eq("b", 2))
	second := p.WithFilters(Eq("c", 3))

	assert.Len(t, p.Filters, 1)
	assert.Equal(t, "filters[a][$eq]=1&filters[b][$eq]=2", BuildQueryString(first))
	assert.Equal(t, "filters[a][$eq]=1&filters[c][$eq]=3", BuildQueryString(second))
	assert.True(t, Params{}.IsZero())
	assert.False(t, first.IsZero())
}
