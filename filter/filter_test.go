package filter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/strapcache/content"
)

func testArticle() content.NormalizedEntity {
	return content.NormalizedEntity{
		"id":          int64(1),
		"title":       "Getting Started with Go",
		"slug":        "getting-started",
		"views":       float64(1200),
		"featured":    true,
		"tags":        []any{"Go", "tutorial"},
		"publishedAt": time.Now().AddDate(0, 0, -10).UTC().Format(time.RFC3339),
		"author":      map[string]any{"name": "Sam"},
		"summary":     nil,
	}
}

func generateTestEntities(count int) []content.NormalizedEntity {
	entities := make([]content.NormalizedEntity, count)
	for i := range count {
		entities[i] = content.NormalizedEntity{
			"id":       int64(i + 1),
			"title":    fmt.Sprintf("Article %d", i),
			"views":    float64(i * 10),
			"featured": i%3 == 0,
			"tags":     []any{"go", "news", "guide"}[:(i%3)+1],
		}
	}
	return entities
}

func TestCompileFilter(t *testing.T) {
	tests := []struct {
		name        string
		expression  string
		wantErr     bool
		errContains string
	}{
		{
			name:       "valid expression",
			expression: `featured == true`,
		},
		{
			name:        "empty expression",
			expression:  "   ",
			wantErr:     true,
			errContains: "empty expression",
		},
		{
			name:       "invalid syntax",
			expression: `icontains(title, "unclosed`,
			wantErr:    true,
		},
		{
			name:       "complex expression",
			expression: `featured and views > 100 and includes("tags", "go")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := CompileFilter(tt.expression)
			if tt.wantErr {
				require.Error(t, err)
				var cerr *CompilationError
				assert.ErrorAs(t, err, &cerr)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, filter)
		})
	}
}

func TestFilterEvaluation(t *testing.T) {
	article := testArticle()

	tests := []struct {
		name       string
		expression string
		expected   bool
	}{
		{"boolean field", `featured == true`, true},
		{"numeric comparison", `views > 1000`, true},
		{"numeric comparison fails", `views < 10`, false},
		{"case-insensitive contains", `icontains(title, "GO")`, true},
		{"starts with", `istartsWith(slug, "getting")`, true},
		{"ends with", `iendsWith(title, "rust")`, false},
		{"list membership", `includes("tags", "go")`, true},
		{"list membership miss", `includes("tags", "rust")`, false},
		{"nested field", `author.name == "Sam"`, true},
		{"has field", `has("title") and not has("summary")`, true},
		{"field helper", `field("slug") == "getting-started"`, true},
		{"date helper", `daysSince(publishedAt) < 30`, true},
		{"date comparison", `parseDate(publishedAt) > daysAgo(30)`, true},
		{"id", `id == 1`, true},
		{"combined", `featured and views >= 1200 and icontains(title, "started")`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := CompileFilter(tt.expression)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, filter.Match(article), tt.expression)
		})
	}
}

func TestEvaluationErrorIsNoMatch(t *testing.T) {
	filter, err := CompileFilter(`missing.deep == 1`)
	require.NoError(t, err)

	entity := content.NormalizedEntity{"id": int64(3)}
	_, evalErr := filter.Eval(entity)
	if evalErr != nil {
		var eerr *EvaluationError
		require.ErrorAs(t, evalErr, &eerr)
		assert.Equal(t, int64(3), eerr.EntityID)
	}
	assert.False(t, filter.Match(entity))
}

func TestApplyPreservesOrder(t *testing.T) {
	filter, err := CompileFilter(`featured`)
	require.NoError(t, err)

	got := Apply(filter, generateTestEntities(10))
	ids := make([]int64, 0, len(got))
	for _, e := range got {
		ids = append(ids, e.ID())
	}
	assert.Equal(t, []int64{1, 4, 7, 10}, ids)

	empty := Apply(filter, nil)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestConcurrentEvaluation(t *testing.T) {
	entities := generateTestEntities(1000)

	filter, err := CompileFilter(`includes("tags", "news") and views > 2000`)
	require.NoError(t, err)

	evaluator := NewConcurrentEvaluator(WithWorkers(4), WithBatchSize(50))
	matches, err := evaluator.Evaluate(context.Background(), filter, entities)
	require.NoError(t, err)

	assert.Equal(t, Apply(filter, entities), matches)
}

func TestConcurrentEvaluationCanceled(t *testing.T) {
	filter, err := CompileFilter(`featured`)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	evaluator := NewConcurrentEvaluator(WithWorkers(2), WithBatchSize(10))
	_, err = evaluator.Evaluate(ctx, filter, generateTestEntities(100))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchEvaluation(t *testing.T) {
	entities := generateTestEntities(500)

	filters := map[string]string{
		"featured": `featured`,
		"popular":  `views >= 4000`,
		"guides":   `includes("tags", "guide")`,
	}

	results, err := EvaluateFilters(context.Background(), filters, entities)
	require.NoError(t, err)
	require.Len(t, results, len(filters))
	assert.Len(t, results["popular"], 100)
	assert.Len(t, results["featured"], 167)
}

func TestFilterManager(t *testing.T) {
	manager := NewManager()
	ctx := context.Background()

	err := manager.RegisterFilters(map[string]string{
		"featured": `featured`,
		"popular":  `views > 50`,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"featured", "popular"}, manager.ListFilters())

	err = manager.RegisterFilters(map[string]string{"broken": `views >`})
	require.Error(t, err)
	assert.Equal(t, []string{"featured", "popular"}, manager.ListFilters())

	filter, exists := manager.GetFilter("featured")
	require.True(t, exists)
	assert.Equal(t, "featured", filter.Expression())

	matches, err := manager.EvaluateFilter(ctx, "popular", generateTestEntities(10))
	require.NoError(t, err)
	assert.Len(t, matches, 4)

	all, err := manager.EvaluateAll(ctx, generateTestEntities(10))
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = manager.EvaluateSelected(ctx, []string{"featured", "nope"}, nil)
	assert.ErrorIs(t, err, ErrUnknownFilter)

	manager.UnregisterFilter("featured")
	_, exists = manager.GetFilter("featured")
	assert.False(t, exists)

	_, err = manager.EvaluateFilter(ctx, "featured", nil)
	assert.ErrorIs(t, err, ErrUnknownFilter)
}

func TestCacheEffectiveness(t *testing.T) {
	compiler := NewExprCompiler(WithCache(2))

	first, err := compiler.Compile(`featured`)
	require.NoError(t, err)
	second, err := compiler.Compile(`  featured  `)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, compiler.Size())

	_, err = compiler.Compile(`views > 1`)
	require.NoError(t, err)
	_, err = compiler.Compile(`views > 2`)
	require.NoError(t, err)
	assert.Equal(t, 2, compiler.Size(), "oldest entry evicted")

	compiler.Clear()
	assert.Zero(t, compiler.Size())
}

func TestLRUCacheEviction(t *testing.T) {
	c := newLRUCache[int](2)
	c.Put("a", 1)
	c.Put("b", 2)

	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", 3)
	_, ok = c.Get("b")
	assert.False(t, ok, "b was least recently used")

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	c.Put("a", 10)
	v, _ = c.Get("a")
	assert.Equal(t, 10, v)
}
