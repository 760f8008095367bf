package cmd

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/s0up4200/strapcache/content"
)

// titleFields are tried in order to label an entity
var titleFields = []string{"title", "name", "slug", "username", "email"}

// FormatOptions controls console output
type FormatOptions struct {
	ShowDetails bool
	// Fields limits the detail lines to these attributes
	Fields []string
}

// ConsoleFormatter renders entities as a tree for terminal output
type ConsoleFormatter struct{}

// NewConsoleFormatter creates a new console formatter
func NewConsoleFormatter() *ConsoleFormatter {
	return &ConsoleFormatter{}
}

// FormatEntityList formats a list of entities with optional pagination footer
func (f *ConsoleFormatter) FormatEntityList(endpoint string, entities []content.NormalizedEntity, pagination *content.PaginationInfo, options FormatOptions) string {
	if len(entities) == 0 {
		return fmt.Sprintf("No entries found in %s", endpoint)
	}

	var sb strings.Builder

	sb.WriteString("\nEntr")
	if len(entities) != 1 {
		sb.WriteString("ies")
	} else {
		sb.WriteString("y")
	}
	fmt.Fprintf(&sb, " in %s (%d):\n\n", endpoint, len(entities))

	for i, entity := range entities {
		isLast := i == len(entities)-1
		f.formatEntity(&sb, entity, isLast, options)

		if !isLast {
			sb.WriteString("│\n")
		}
	}

	if pagination != nil {
		fmt.Fprintf(&sb, "\nPage %d of %d (%d total)", pagination.Page, pagination.PageCount, pagination.Total)
		if pagination.HasNextPage {
			sb.WriteString(", more available")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	return sb.String()
}

// FormatEntity formats a single entity with every attribute
func (f *ConsoleFormatter) FormatEntity(entity content.NormalizedEntity) string {
	if entity == nil {
		return "Not found"
	}

	var sb strings.Builder
	sb.WriteString("\n")
	f.formatEntity(&sb, entity, true, FormatOptions{ShowDetails: true})
	sb.WriteString("\n")
	return sb.String()
}

// FormatFilterResults formats the matches of each named filter
func (f *ConsoleFormatter) FormatFilterResults(results map[string][]content.NormalizedEntity) string {
	if len(results) == 0 {
		return "No filters configured"
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	slices.Sort(names)

	var sb strings.Builder
	for _, name := range names {
		matches := results[name]
		fmt.Fprintf(&sb, "\n%s (%d):\n", name, len(matches))
		for i, entity := range matches {
			prefix := "├"
			if i == len(matches)-1 {
				prefix = "╰"
			}
			fmt.Fprintf(&sb, "%s── %s\n", prefix, entityLabel(entity))
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

// formatEntity formats a single entity entry
func (f *ConsoleFormatter) formatEntity(sb *strings.Builder, entity content.NormalizedEntity, isLast bool, options FormatOptions) {
	prefix := "├"
	if isLast {
		prefix = "╰"
	}

	fmt.Fprintf(sb, "%s── %s\n", prefix, entityLabel(entity))

	if !options.ShowDetails {
		return
	}

	indent := "│   "
	if isLast {
		indent = "    "
	}

	for _, field := range detailFields(entity, options.Fields) {
		fmt.Fprintf(sb, "%s%s: %s\n", indent, field, formatAttribute(entity[field]))
	}
}

func entityLabel(entity content.NormalizedEntity) string {
	for _, field := range titleFields {
		if v := entity.String(field); v != "" {
			return fmt.Sprintf("%s (#%d)", v, entity.ID())
		}
	}
	return fmt.Sprintf("#%d", entity.ID())
}

func detailFields(entity content.NormalizedEntity, only []string) []string {
	if len(only) > 0 {
		out := make([]string, 0, len(only))
		for _, field := range only {
			if _, ok := entity[field]; ok {
				out = append(out, field)
			}
		}
		return out
	}

	out := make([]string, 0, len(entity))
	for field := range entity {
		if field == "id" {
			continue
		}
		out = append(out, field)
	}
	slices.Sort(out)
	return out
}

func formatAttribute(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case string:
		return val
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
