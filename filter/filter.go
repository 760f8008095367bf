// Package filter evaluates expr-lang expressions against normalized content
// entities. Entity fields are available by name (title, views, publishedAt),
// alongside helpers such as icontains, istartsWith, includes, daysSince and
// daysAgo:
//
//	featured == true and daysSince(publishedAt) < 30 and icontains(title, "go")
//
// Filters run locally on data already fetched; server-side filtering goes
// through content.Params.
package filter

import (
	"context"

	"github.com/s0up4200/strapcache/content"
)

var defaultCompiler = NewExprCompiler(WithCache(100))

// CompileFilter compiles an expression with the shared caching compiler
func CompileFilter(expression string) (CompiledFilter, error) {
	return defaultCompiler.Compile(expression)
}

// CompilerFunc adapts a compile function to the Compiler interface
type CompilerFunc func(expression string) (CompiledFilter, error)

// Compile calls f(expression)
func (f CompilerFunc) Compile(expression string) (CompiledFilter, error) {
	return f(expression)
}

// Apply returns the entities matching m in their original order. It never returns nil.
func Apply(m Matcher, entities []content.NormalizedEntity) []content.NormalizedEntity {
	matches := make([]content.NormalizedEntity, 0, len(entities))
	for _, entity := range entities {
		if m.Match(entity) {
			matches = append(matches, entity)
		}
	}
	return matches
}

// EvaluateFilters compiles and evaluates several expressions concurrently
func EvaluateFilters(ctx context.Context, expressions map[string]string, entities []content.NormalizedEntity) (map[string][]content.NormalizedEntity, error) {
	compiled := make(map[string]CompiledFilter, len(expressions))
	for name, expression := range expressions {
		filter, err := CompileFilter(expression)
		if err != nil {
			return nil, err
		}
		compiled[name] = filter
	}

	return NewConcurrentEvaluator().EvaluateBatch(ctx, compiled, entities)
}
