package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/s0up4200/strapcache/cache"
	"github.com/s0up4200/strapcache/content"
	"github.com/s0up4200/strapcache/filter"
)

var (
	listQuery   queryFlags
	findQuery   queryFlags
	searchQuery queryFlags

	whereExpr    string
	preset       string
	jsonOutput   bool
	showDetails  bool
	loadAll      bool
	searchFields []string
	filterNames  []string
	filterExprs  []string
)

func init() {
	listCmd.Flags().StringVarP(&whereExpr, "where", "w", "", "local filter expression")
	listCmd.Flags().StringVarP(&preset, "preset", "p", "", "use a named filter from config")
	listCmd.Flags().BoolVar(&loadAll, "all", false, "follow pagination and load every page")
	listQuery.register(listCmd)

	findQuery.register(findOneCmd)

	searchCmd.Flags().StringArrayVar(&searchFields, "field", []string{"title"}, "attribute to search (repeatable)")
	searchQuery.register(searchCmd)

	filtersCmd.Flags().StringArrayVar(&filterNames, "name", nil, "only evaluate these filters (repeatable)")
	filtersCmd.Flags().StringArrayVar(&filterExprs, "expr", nil, "evaluate an ad-hoc filter as name=expression instead of the presets (repeatable)")

	for _, c := range []*cobra.Command{listCmd, getCmd, findOneCmd, searchCmd, filtersCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "print JSON instead of a tree")
		c.Flags().BoolVar(&showDetails, "details", false, "print every attribute")
	}

	rootCmd.AddCommand(testCmd, listCmd, getCmd, findOneCmd, searchCmd, filtersCmd)
}

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test <endpoint>",
	Short: "Test the connection to the content API",
	Long:  `Request one entry of the given endpoint and report whether the content API answered successfully.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runTest,
}

func runTest(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Testing connection to %s%s...\n", cfg.Content.URL, args[0])

	if err := client.TestConnection(cmd.Context(), args[0]); err != nil {
		if cerr, ok := content.AsError(err); ok {
			logger.Debug().Msg(cerr.DebugInfo())
			fmt.Fprintf(out, "✗ %s\n", cerr.UserMessage())
		}
		return err
	}

	fmt.Fprintln(out, "✓ Connection successful!")
	return nil
}

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list <endpoint> [endpoint...]",
	Short: "List the entries of one or more collections",
	Long: `List collection entries through the cache. Several endpoints are prefetched
concurrently. Results can be narrowed locally with --where or --preset.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	params, err := listQuery.params()
	if err != nil {
		return err
	}

	where, err := getFilterExpression()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	opts := cache.QueryOptions{Params: params, Where: where}

	if len(args) > 1 && !loadAll {
		requests := make([]cache.PrefetchRequest, 0, len(args))
		for _, endpoint := range args {
			requests = append(requests, cache.PrefetchRequest{Endpoint: endpoint, Options: opts})
		}
		if err := layer.PrefetchAll(ctx, requests); err != nil {
			logger.Warn().Err(err).Msg("Prefetch failed")
		}
	}

	formatter := NewConsoleFormatter()
	for _, endpoint := range args {
		logger.Debug().Str("endpoint", endpoint).Str("where", where).Msg("Listing entries")

		var (
			entities   []content.NormalizedEntity
			pagination *content.PaginationInfo
			cerr       *content.Error
		)
		if loadAll {
			entities, cerr = loadAllPages(ctx, endpoint, opts)
		} else {
			state := layer.Collection(ctx, endpoint, opts)
			entities, pagination, cerr = state.NormalizedData, state.Pagination, state.Error
		}
		if cerr != nil {
			return reportError(cmd.OutOrStdout(), cerr)
		}

		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), entities); err != nil {
				return err
			}
			continue
		}
		fmt.Fprint(cmd.OutOrStdout(), formatter.FormatEntityList(endpoint, entities, pagination, FormatOptions{
			ShowDetails: showDetails,
			Fields:      params.Fields,
		}))
	}

	return nil
}

// loadAllPages follows pagination until the collection is exhausted
func loadAllPages(ctx context.Context, endpoint string, opts cache.QueryOptions) ([]content.NormalizedEntity, *content.Error) {
	query := layer.Infinite(endpoint, opts)
	for {
		state := query.LoadMore(ctx)
		if state.Error != nil {
			return nil, state.Error
		}
		logger.Debug().Int("pages", state.Pages).Int("items", len(state.Items)).Msg("Loaded page")
		if !state.HasMore {
			return state.Items, nil
		}
	}
}

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <endpoint> [id]",
	Short: "Show a single type or one collection entry",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var state cache.EntityState
	if len(args) == 2 {
		state = layer.ByID(ctx, args[0], args[1], cache.QueryOptions{})
	} else {
		state = layer.Single(ctx, args[0], cache.QueryOptions{})
	}
	if state.Error != nil {
		return reportError(cmd.OutOrStdout(), state.Error)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), state.NormalizedData)
	}
	fmt.Fprint(cmd.OutOrStdout(), NewConsoleFormatter().FormatEntity(state.NormalizedData))
	return nil
}

// findOneCmd represents the find-one command
var findOneCmd = &cobra.Command{
	Use:   "find-one <endpoint>",
	Short: "Show the first entry matching the filters",
	Args:  cobra.ExactArgs(1),
	RunE:  runFindOne,
}

func runFindOne(cmd *cobra.Command, args []string) error {
	params, err := findQuery.params()
	if err != nil {
		return err
	}

	entity, err := client.FindOne(cmd.Context(), args[0], nil, params)
	if err != nil {
		if cerr, ok := content.AsError(err); ok {
			return reportError(cmd.OutOrStdout(), cerr)
		}
		return err
	}

	normalized := content.NormalizeEntity(entity)
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), normalized)
	}
	fmt.Fprint(cmd.OutOrStdout(), NewConsoleFormatter().FormatEntity(normalized))
	return nil
}

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <endpoint> <term>",
	Short: "Search a collection case-insensitively",
	Args:  cobra.ExactArgs(2),
	RunE:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	params, err := searchQuery.params()
	if err != nil {
		return err
	}

	endpoint, term := args[0], args[1]
	query := layer.Search(endpoint, searchFields, cache.SearchOptions{Params: params})
	defer query.Close()

	done := make(chan cache.SearchState, 1)
	var once sync.Once
	unsubscribe := query.Subscribe(func(s cache.SearchState) {
		if s.DebouncedTerm == term && !s.IsSearching {
			once.Do(func() { done <- s })
		}
	})
	defer unsubscribe()

	query.SetTerm(term)

	var state cache.SearchState
	select {
	case state = <-done:
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}

	if state.Error != nil {
		return reportError(cmd.OutOrStdout(), state.Error)
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), state.Results)
	}
	fmt.Fprint(cmd.OutOrStdout(), NewConsoleFormatter().FormatEntityList(endpoint, state.Results, state.Pagination, FormatOptions{
		ShowDetails: showDetails,
	}))
	return nil
}

// filtersCmd represents the filters command
var filtersCmd = &cobra.Command{
	Use:   "filters [endpoint]",
	Short: "List the configured filters or evaluate them against a collection",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFilters,
}

func runFilters(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		names := filters.ListFilters()
		if len(names) == 0 {
			fmt.Fprintln(out, "No filters configured")
			return nil
		}
		for _, name := range names {
			f, _ := filters.GetFilter(name)
			fmt.Fprintf(out, "• %s: %s\n", name, f.Expression())
		}
		return nil
	}

	ctx := cmd.Context()
	state := layer.Collection(ctx, args[0], cache.QueryOptions{})
	if state.Error != nil {
		return reportError(out, state.Error)
	}

	var (
		results map[string][]content.NormalizedEntity
		err     error
	)
	switch {
	case len(filterExprs) > 0:
		expressions := make(map[string]string, len(filterExprs))
		for _, raw := range filterExprs {
			name, expression, err := splitAssignment(raw)
			if err != nil {
				return err
			}
			expressions[name] = expression
		}
		results, err = filter.EvaluateFilters(ctx, expressions, state.NormalizedData)
	case len(filterNames) > 0:
		results, err = filters.EvaluateSelected(ctx, filterNames, state.NormalizedData)
	default:
		results, err = filters.EvaluateAll(ctx, state.NormalizedData)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(out, results)
	}
	fmt.Fprint(out, NewConsoleFormatter().FormatFilterResults(results))
	return nil
}

// getFilterExpression determines the local filter expression to use
func getFilterExpression() (string, error) {
	// Priority: command line expression > preset > none
	if whereExpr != "" {
		return whereExpr, nil
	}

	if preset != "" {
		if f, ok := filters.GetFilter(preset); ok {
			return f.Expression(), nil
		}
		return "", fmt.Errorf("preset '%s' not found in config", preset)
	}

	return "", nil
}

// reportError prints the user-facing message and returns the error for the exit status
func reportError(out io.Writer, cerr *content.Error) error {
	logger.Debug().Msg(cerr.DebugInfo())
	fmt.Fprintf(out, "✗ %s\n", cerr.UserMessage())
	return cerr
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
