package filter

import (
	"context"

	"github.com/s0up4200/strapcache/content"
)

// Matcher checks a single normalized entity
type Matcher interface {
	// Match reports whether the entity satisfies the filter. Evaluation errors count as no match.
	Match(entity content.NormalizedEntity) bool
}

// CompiledFilter represents a pre-compiled filter ready for evaluation
type CompiledFilter interface {
	Matcher

	// Eval is Match with the evaluation error surfaced
	Eval(entity content.NormalizedEntity) (bool, error)

	// Expression returns the original filter expression
	Expression() string
}

// Compiler compiles filter expressions into executable filters
type Compiler interface {
	Compile(expression string) (CompiledFilter, error)
}

// CachingCompiler provides caching for compiled filters
type CachingCompiler interface {
	Compiler

	// Clear removes all cached filters
	Clear()

	// Size returns the number of cached filters
	Size() int
}

// Evaluator evaluates a filter against a list of entities
type Evaluator interface {
	Evaluate(ctx context.Context, filter CompiledFilter, entities []content.NormalizedEntity) ([]content.NormalizedEntity, error)
}

// BatchEvaluator evaluates several named filters against the same entities
type BatchEvaluator interface {
	EvaluateBatch(ctx context.Context, filters map[string]CompiledFilter, entities []content.NormalizedEntity) (map[string][]content.NormalizedEntity, error)
}
