package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/s0up4200/strapcache/content"
)

// queryFlags are the request flags shared by the read commands
type queryFlags struct {
	eq       []string
	contains []string
	sort     []string
	populate string
	fields   []string
	page     int
	pageSize int
	locale   string
	preview  bool
}

func (q *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&q.eq, "eq", nil, "equality filter as field=value (repeatable)")
	cmd.Flags().StringArrayVar(&q.contains, "contains", nil, "case-insensitive substring filter as field=value (repeatable)")
	cmd.Flags().StringArrayVar(&q.sort, "sort", nil, "sort as field or field:desc (repeatable)")
	cmd.Flags().StringVar(&q.populate, "populate", "", `relations to populate, "*" for all or a comma separated list`)
	cmd.Flags().StringSliceVar(&q.fields, "fields", nil, "attributes to select")
	cmd.Flags().IntVar(&q.page, "page", 0, "page number")
	cmd.Flags().IntVar(&q.pageSize, "page-size", 0, "page size")
	cmd.Flags().StringVar(&q.locale, "locale", "", "locale")
	cmd.Flags().BoolVar(&q.preview, "preview", false, "include drafts")
}

// params converts the flags to request parameters
func (q *queryFlags) params() (content.Params, error) {
	var p content.Params

	for _, raw := range q.eq {
		field, value, err := splitAssignment(raw)
		if err != nil {
			return p, err
		}
		p.Filters = append(p.Filters, content.Eq(field, value))
	}
	for _, raw := range q.contains {
		field, value, err := splitAssignment(raw)
		if err != nil {
			return p, err
		}
		p.Filters = append(p.Filters, content.ContainsI(field, value))
	}

	for _, raw := range q.sort {
		sort, err := parseSort(raw)
		if err != nil {
			return p, err
		}
		p.Sort = append(p.Sort, sort)
	}

	switch q.populate {
	case "":
	case "*":
		p.Populate = content.PopulateAll()
	default:
		p.Populate = content.PopulateFields(splitList(q.populate)...)
	}

	p.Fields = q.fields

	if q.page < 0 || q.pageSize < 0 {
		return p, fmt.Errorf("page and page size must not be negative")
	}
	if q.page > 0 || q.pageSize > 0 {
		p.Pagination = &content.Pagination{Page: max(q.page, 1), PageSize: q.pageSize}
	}

	p.Locale = q.locale
	if q.preview {
		p.PublicationState = content.PublicationPreview
	}

	return p, nil
}

func splitAssignment(raw string) (string, string, error) {
	field, value, ok := strings.Cut(raw, "=")
	field = strings.TrimSpace(field)
	if !ok || field == "" {
		return "", "", fmt.Errorf("invalid filter %q, expected field=value", raw)
	}
	return field, value, nil
}

func parseSort(raw string) (content.SortField, error) {
	field, dir, _ := strings.Cut(strings.TrimSpace(raw), ":")
	if field == "" {
		return content.SortField{}, fmt.Errorf("invalid sort %q", raw)
	}
	switch strings.ToLower(dir) {
	case "", "asc":
		return content.Asc(field), nil
	case "desc":
		return content.Desc(field), nil
	default:
		return content.SortField{}, fmt.Errorf("invalid sort direction %q (must be 'asc' or 'desc')", dir)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
