package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/s0up4200/strapcache/cache"
	"github.com/s0up4200/strapcache/config"
	"github.com/s0up4200/strapcache/content"
	"github.com/s0up4200/strapcache/filter"
	"github.com/s0up4200/strapcache/metrics"
)

var (
	version   = "dev"
	buildTime = "unknown"

	cfgFile  string
	debug    bool
	cfg      *config.Config
	logger   zerolog.Logger
	client   *content.Client
	layer    *cache.Layer
	filters  *filter.Manager
	registry *prometheus.Registry
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "strapcache",
	Short: "Inspect a content API through the strapcache client and cache",
	Long: `strapcache is a diagnostic CLI for the strapcache content client.

It queries collections and single entries with the same filters, retries,
error classification and cache the library uses, and can narrow results
locally with filter expressions or named presets from the config.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  initializeApp,
	PersistentPostRunE: dumpMetrics,
}

// SetVersion sets the version reported by --version
func SetVersion(v, built string) {
	version = v
	buildTime = built
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log every request and response")
}

// initializeApp loads the configuration and builds the client, cache and filters
func initializeApp(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("debug") {
		cfg.Content.Debug = debug
		if debug {
			cfg.Logging.Level = "debug"
		}
	}

	logger = setupLogger(cfg.Logging)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		collector = metrics.NewCollectorWithRegistry(registry)
	}

	opts := []content.Option{content.WithMetrics(collector)}
	if cfg.Content.RateLimit > 0 {
		opts = append(opts, content.WithRateLimit(rate.Limit(cfg.Content.RateLimit), cfg.Content.RateBurst))
	}
	client, err = content.NewClient(cfg.Client(), logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to create content client: %w", err)
	}
	content.SetDefault(client)

	layer = cache.New(client, logger,
		cache.WithMetrics(collector),
		cache.WithDedupeInterval(cfg.Cache.DedupeInterval),
		cache.WithSearchDebounce(cfg.Cache.SearchDebounce),
		cache.WithPrefetchLimit(cfg.Cache.PrefetchLimit),
	)

	filters = filter.NewManager()
	if err := filters.RegisterFilters(cfg.Filters); err != nil {
		return fmt.Errorf("invalid filter preset: %w", err)
	}

	logger.Debug().
		Str("url", cfg.Content.URL).
		Int("presets", len(cfg.Filters)).
		Bool("metrics", cfg.Metrics.Enabled).
		Msg("Initialized")

	return nil
}

// setupLogger configures the zerolog logger
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "trace":
		level = zerolog.TraceLevel
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !cfg.Color || !isatty.IsTerminal(os.Stderr.Fd()),
	}

	return zerolog.New(output).With().Timestamp().Logger()
}

// dumpMetrics writes the collected metrics to stderr when metrics are enabled
func dumpMetrics(cmd *cobra.Command, args []string) error {
	if registry == nil {
		return nil
	}

	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	w := cmd.ErrOrStderr()
	fmt.Fprintln(w)
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}
