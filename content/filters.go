package content

import (
	"fmt"
	"strconv"
	"time"
)

// Operator is a field comparison operator understood by the content service
type Operator string

const (
	OpEq           Operator = "$eq"
	OpEqi          Operator = "$eqi"
	OpNe           Operator = "$ne"
	OpLt           Operator = "$lt"
	OpLte          Operator = "$lte"
	OpGt           Operator = "$gt"
	OpGte          Operator = "$gte"
	OpIn           Operator = "$in"
	OpNotIn        Operator = "$notIn"
	OpContains     Operator = "$contains"
	OpNotContains  Operator = "$notContains"
	OpContainsi    Operator = "$containsi"
	OpNotContainsi Operator = "$notContainsi"
	OpNull         Operator = "$null"
	OpNotNull      Operator = "$notNull"
	OpBetween      Operator = "$between"
	OpStartsWith   Operator = "$startsWith"
	OpEndsWith     Operator = "$endsWith"
)

// Filter is one node of a filter expression tree.
// Implementations are FieldFilter, RelationFilter, AndFilter, OrFilter and NotFilter.
type Filter interface {
	appendPairs(prefix string, pairs *[]pair)
}

type pair struct {
	key   string
	value string
}

// FieldFilter compares a field against one value, or a list for $in, $notIn and $between
type FieldFilter struct {
	Field  string
	Op     Operator
	Value  any
	Values []any
}

func (f FieldFilter) appendPairs(prefix string, pairs *[]pair) {
	base := prefix + "[" + f.Field + "][" + string(f.Op) + "]"
	switch f.Op {
	case OpNull, OpNotNull:
		*pairs = append(*pairs, pair{base, "true"})
	case OpIn, OpNotIn, OpBetween:
		for i, v := range f.Values {
			*pairs = append(*pairs, pair{base + "[" + strconv.Itoa(i) + "]", formatValue(v)})
		}
	default:
		*pairs = append(*pairs, pair{base, formatValue(f.Value)})
	}
}

// RelationFilter applies a filter to the fields of a related entity
type RelationFilter struct {
	Field  string
	Filter Filter
}

func (r RelationFilter) appendPairs(prefix string, pairs *[]pair) {
	if r.Filter == nil {
		return
	}
	r.Filter.appendPairs(prefix+"["+r.Field+"]", pairs)
}

// AndFilter matches when every child matches
type AndFilter []Filter

func (a AndFilter) appendPairs(prefix string, pairs *[]pair) {
	appendGroup(prefix+"[$and]", []Filter(a), pairs)
}

// OrFilter matches when any child matches
type OrFilter []Filter

func (o OrFilter) appendPairs(prefix string, pairs *[]pair) {
	appendGroup(prefix+"[$or]", []Filter(o), pairs)
}

// NotFilter negates its child
type NotFilter struct {
	Filter Filter
}

func (n NotFilter) appendPairs(prefix string, pairs *[]pair) {
	if n.Filter == nil {
		return
	}
	n.Filter.appendPairs(prefix+"[$not]", pairs)
}

func appendGroup(prefix string, filters []Filter, pairs *[]pair) {
	i := 0
	for _, f := range filters {
		if f == nil {
			continue
		}
		f.appendPairs(prefix+"["+strconv.Itoa(i)+"]", pairs)
		i++
	}
}

// Eq matches field == value
func Eq(field string, value any) FieldFilter {
	return FieldFilter{Field: field, Op: OpEq, Value: value}
}

// EqI matches field == value, ignoring case
func EqI(field string, value any) FieldFilter {
	return FieldFilter{Field: field, Op: OpEqi, Value: value}
}

// Ne matches field != value
func Ne(field string, value any) FieldFilter {
	return FieldFilter{Field: field, Op: OpNe, Value: value}
}

// Lt matches field < value
func Lt(field string, value any) FieldFilter {
	return FieldFilter{Field: field, Op: OpLt, Value: value}
}

// Lte matches field <= value
func Lte(field string, value any) FieldFilter {
	return FieldFilter{Field: field, Op: OpLte, Value: value}
}

// Gt matches field > value
func Gt(field string, value any) FieldFilter {
	return FieldFilter{Field: field, Op: OpGt, Value: value}
}

// Gte matches field >= value
func Gte(field string, value any) FieldFilter {
	return FieldFilter{Field: field, Op: OpGte, Value: value}
}

// Contains is a case-sensitive substring match
func Contains(field string, value any) FieldFilter {
	return FieldFilter{Field: field, Op: OpContains, Value: value}
}

// NotContains excludes a case-sensitive substring
func NotContains(field string, value any) FieldFilter {
	return FieldFilter{Field: field, Op: OpNotContains, Value: value}
}

// ContainsI is a case-insensitive substring match
func ContainsI(field string, value any) FieldFilter {
	return FieldFilter{Field: field, Op: OpContainsi, Value: value}
}

// NotContainsI excludes a substring, ignoring case
func NotContainsI(field string, value any) FieldFilter {
	return FieldFilter{Field: field, Op: OpNotContainsi, Value: value}
}

// StartsWith matches a field prefix
func StartsWith(field string, value any) FieldFilter {
	return FieldFilter{Field: field, Op: OpStartsWith, Value: value}
}

// EndsWith matches a field suffix
func EndsWith(field string, value any) FieldFilter {
	return FieldFilter{Field: field, Op: OpEndsWith, Value: value}
}

// In matches when field equals any of values
func In(field string, values ...any) FieldFilter {
	return FieldFilter{Field: field, Op: OpIn, Values: values}
}

// NotIn matches when field equals none of values
func NotIn(field string, values ...any) FieldFilter {
	return FieldFilter{Field: field, Op: OpNotIn, Values: values}
}

// Between matches low <= field <= high
func Between(field string, low, high any) FieldFilter {
	return FieldFilter{Field: field, Op: OpBetween, Values: []any{low, high}}
}

// Null matches an unset field
func Null(field string) FieldFilter { return FieldFilter{Field: field, Op: OpNull} }

// NotNull matches a set field
func NotNull(field string) FieldFilter { return FieldFilter{Field: field, Op: OpNotNull} }

// Rel scopes a filter to a relation field
func Rel(field string, filter Filter) RelationFilter {
	return RelationFilter{Field: field, Filter: filter}
}

// And matches when every filter matches
func And(filters ...Filter) AndFilter { return AndFilter(filters) }

// Or matches when any filter matches
func Or(filters ...Filter) OrFilter { return OrFilter(filters) }

// Not negates filter
func Not(filter Filter) NotFilter { return NotFilter{Filter: filter} }

// formatValue renders a filter value the way the service parses it
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
