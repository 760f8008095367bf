package content

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// PublicationState selects published or draft content
type PublicationState string

const (
	PublicationLive    PublicationState = "live"
	PublicationPreview PublicationState = "preview"
)

// SortField orders results by one field
type SortField struct {
	Field string
	Desc  bool
}

// Asc sorts ascending by field
func Asc(field string) SortField { return SortField{Field: field} }

// Desc sorts descending by field
func Desc(field string) SortField { return SortField{Field: field, Desc: true} }

// Populate selects which relations the service embeds
type Populate struct {
	All    bool
	Fields []string
}

// PopulateAll embeds every first-level relation
func PopulateAll() *Populate { return &Populate{All: true} }

// PopulateFields embeds the named relations
func PopulateFields(fields ...string) *Populate { return &Populate{Fields: fields} }

// Pagination is either page based (Page, PageSize) or offset based (Start, Limit)
type Pagination struct {
	Page     int
	PageSize int
	Start    int
	Limit    int
}

// Params are the structured query parameters of a content request
type Params struct {
	Filters          []Filter
	Sort             []SortField
	Populate         *Populate
	Fields           []string
	Pagination       *Pagination
	PublicationState PublicationState
	Locale           string
	// Extra carries parameters without a typed representation
	Extra map[string]string
}

// WithFilters returns a copy of p with filters appended
func (p Params) WithFilters(filters ...Filter) Params {
	merged := make([]Filter, 0, len(p.Filters)+len(filters))
	merged = append(merged, p.Filters...)
	merged = append(merged, filters...)
	p.Filters = merged
	return p
}

// WithPagination returns a copy of p using pagination
func (p Params) WithPagination(pagination Pagination) Params {
	p.Pagination = &pagination
	return p
}

// IsZero reports whether p encodes to no parameters at all
func (p Params) IsZero() bool {
	return len(p.pairs()) == 0
}

// pairs encodes p in canonical group order
func (p Params) pairs() []pair {
	var out []pair

	for _, f := range p.Filters {
		if f != nil {
			f.appendPairs("filters", &out)
		}
	}

	for i, s := range p.Sort {
		if s.Field == "" {
			continue
		}
		dir := "asc"
		if s.Desc {
			dir = "desc"
		}
		out = append(out, pair{"sort[" + strconv.Itoa(i) + "]", s.Field + ":" + dir})
	}

	if p.Populate != nil {
		switch {
		case p.Populate.All:
			out = append(out, pair{"populate", "*"})
		case len(p.Populate.Fields) == 1:
			out = append(out, pair{"populate", p.Populate.Fields[0]})
		default:
			for i, f := range p.Populate.Fields {
				out = append(out, pair{"populate[" + strconv.Itoa(i) + "]", f})
			}
		}
	}

	for i, f := range p.Fields {
		out = append(out, pair{"fields[" + strconv.Itoa(i) + "]", f})
	}

	if pg := p.Pagination; pg != nil {
		if pg.Page > 0 {
			out = append(out, pair{"pagination[page]", strconv.Itoa(pg.Page)})
		}
		if pg.PageSize > 0 {
			out = append(out, pair{"pagination[pageSize]", strconv.Itoa(pg.PageSize)})
		}
		if pg.Start > 0 {
			out = append(out, pair{"pagination[start]", strconv.Itoa(pg.Start)})
		}
		if pg.Limit > 0 {
			out = append(out, pair{"pagination[limit]", strconv.Itoa(pg.Limit)})
		}
	}

	if p.PublicationState != "" {
		out = append(out, pair{"publicationState", string(p.PublicationState)})
	}
	if p.Locale != "" {
		out = append(out, pair{"locale", p.Locale})
	}

	if len(p.Extra) > 0 {
		keys := make([]string, 0, len(p.Extra))
		for k := range p.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, pair{k, p.Extra[k]})
		}
	}

	return out
}

// encodeValue escapes a value
func encodeValue(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}

var keyUnescaper = strings.NewReplacer("%5B", "[", "%5D", "]", "%24", "$")

// encodeKey escapes a key but keeps the bracket path and operator characters literal
func encodeKey(k string) string {
	return keyUnescaper.Replace(encodeValue(k))
}

func joinPairs(pairs []pair) string {
	var sb strings.Builder
	for i, p := range pairs {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(encodeKey(p.key))
		sb.WriteByte('=')
		sb.WriteString(encodeValue(p.value))
	}
	return sb.String()
}

// BuildQueryString encodes params without a leading "?". Empty params give "".
func BuildQueryString(p Params) string {
	return joinPairs(p.pairs())
}

// BuildCacheKey returns a key that is identical for logically identical queries,
// whatever order params were declared in.
func BuildCacheKey(endpoint string, p Params) string {
	pairs := p.pairs()
	if len(pairs) == 0 {
		return endpoint
	}

	encoded := make([]string, len(pairs))
	for i, pr := range pairs {
		encoded[i] = encodeKey(pr.key) + "=" + encodeValue(pr.value)
	}
	sort.Strings(encoded)
	return endpoint + "?" + strings.Join(encoded, "&")
}
