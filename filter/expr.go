package filter

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/s0up4200/strapcache/content"
)

// exprFilter implements CompiledFilter using the expr language
type exprFilter struct {
	expression string
	program    *vm.Program
	helpers    map[string]any
}

// ExprCompilerOption configures an expr compiler
type ExprCompilerOption func(*exprCompiler)

// WithCache enables filter caching with the specified size
func WithCache(size int) ExprCompilerOption {
	return func(c *exprCompiler) {
		if size > 0 {
			c.cache = newLRUCache[CompiledFilter](size)
		}
	}
}

// WithCustomFunctions adds custom helper functions
func WithCustomFunctions(funcs map[string]any) ExprCompilerOption {
	return func(c *exprCompiler) {
		maps.Copy(c.helperFuncs, funcs)
	}
}

// NewExprCompiler creates a new expr-based filter compiler
func NewExprCompiler(opts ...ExprCompilerOption) CachingCompiler {
	c := &exprCompiler{
		helperFuncs: createHelperFunctions(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// exprCompiler implements Compiler for expr-based filters
type exprCompiler struct {
	helperFuncs map[string]any
	cache       *lruCache[CompiledFilter]
}

// Compile compiles an expression into an executable filter
func (c *exprCompiler) Compile(expression string) (CompiledFilter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "empty expression",
		}
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(expression); ok {
			return cached, nil
		}
	}

	// Entity fields are only known at run time
	program, err := expr.Compile(expression,
		expr.Env(c.helperFuncs),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "failed to compile expression",
			Err:        err,
		}
	}

	filter := &exprFilter{
		expression: expression,
		program:    program,
		helpers:    c.helperFuncs,
	}

	if c.cache != nil {
		c.cache.Put(expression, filter)
	}

	return filter, nil
}

// Clear removes all cached filters
func (c *exprCompiler) Clear() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

// Size returns the number of cached filters
func (c *exprCompiler) Size() int {
	if c.cache != nil {
		return c.cache.Size()
	}
	return 0
}

// Match evaluates the filter, treating evaluation errors as no match
func (f *exprFilter) Match(entity content.NormalizedEntity) bool {
	ok, err := f.Eval(entity)
	return err == nil && ok
}

// Eval evaluates the filter against an entity
func (f *exprFilter) Eval(entity content.NormalizedEntity) (bool, error) {
	result, err := expr.Run(f.program, createRuntimeEnvironment(entity, f.helpers))
	if err != nil {
		return false, &EvaluationError{Expression: f.expression, EntityID: entity.ID(), Err: err}
	}
	// AsBool cannot check fields that are only known at run time
	matched, ok := result.(bool)
	if !ok {
		return false, &EvaluationError{
			Expression: f.expression,
			EntityID:   entity.ID(),
			Err:        fmt.Errorf("expression returned %T, not bool", result),
		}
	}
	return matched, nil
}

// Expression returns the original expression
func (f *exprFilter) Expression() string {
	return f.expression
}

func (f *exprFilter) String() string {
	return f.expression
}

// createHelperFunctions creates the static helper functions used during compilation
func createHelperFunctions() map[string]any {
	funcs := make(map[string]any, 16)

	// Date helpers
	funcs["daysSince"] = func(v any) int {
		t, ok := toTime(v)
		if !ok {
			return -1
		}
		return int(time.Since(t).Hours() / 24)
	}
	funcs["daysAgo"] = func(days int) time.Time {
		return time.Now().AddDate(0, 0, -days)
	}
	funcs["monthsAgo"] = func(months int) time.Time {
		return time.Now().AddDate(0, -months, 0)
	}
	funcs["yearsAgo"] = func(years int) time.Time {
		return time.Now().AddDate(-years, 0, 0)
	}
	funcs["parseDate"] = func(v any) time.Time {
		t, _ := toTime(v)
		return t
	}

	// Case-insensitive string helpers, matching the service's $containsi family.
	// lower, upper and now come from the expr builtins.
	funcs["icontains"] = func(v any, substr string) bool {
		return strings.Contains(strings.ToLower(toString(v)), strings.ToLower(substr))
	}
	funcs["istartsWith"] = func(v any, prefix string) bool {
		return strings.HasPrefix(strings.ToLower(toString(v)), strings.ToLower(prefix))
	}
	funcs["iendsWith"] = func(v any, suffix string) bool {
		return strings.HasSuffix(strings.ToLower(toString(v)), strings.ToLower(suffix))
	}

	// Typed placeholders, bound to the entity in createRuntimeEnvironment
	funcs["field"] = func(string) any { return nil }
	funcs["has"] = func(string) bool { return false }
	funcs["includes"] = func(string, any) bool { return false }

	return funcs
}

// createRuntimeEnvironment exposes entity fields at top level next to the helpers.
// Helpers win on a name clash; the field stays reachable through field() and Entity.
func createRuntimeEnvironment(entity content.NormalizedEntity, helpers map[string]any) map[string]any {
	env := make(map[string]any, len(entity)+len(helpers)+4)

	maps.Copy(env, entity)
	maps.Copy(env, helpers)

	env["Entity"] = map[string]any(entity)
	env["field"] = func(name string) any {
		return entity[name]
	}
	env["has"] = func(name string) bool {
		v, ok := entity[name]
		return ok && v != nil
	}
	env["includes"] = createIncludesFunc(entity)

	return env
}

// createIncludesFunc matches a value inside a list field, case-insensitively for strings
func createIncludesFunc(entity content.NormalizedEntity) func(string, any) bool {
	return func(name string, value any) bool {
		list, ok := entity[name].([]any)
		if !ok {
			return false
		}
		target := strings.ToLower(toString(value))
		return slices.ContainsFunc(list, func(item any) bool {
			return strings.ToLower(toString(item)) == target
		})
	}
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// toTime accepts time values and the ISO date formats the content service emits
func toTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
