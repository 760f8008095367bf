package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Built-in client defaults, lowest priority during resolution.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = 1 * time.Second
	DefaultDedupeInterval = 2 * time.Second
	DefaultSearchDebounce = 300 * time.Millisecond
)

// Environment variables consulted by Resolve.
const (
	EnvURL        = "CONTENT_API_URL"
	EnvAPIToken   = "CONTENT_API_TOKEN"
	EnvTimeout    = "CONTENT_API_TIMEOUT"
	EnvMaxRetries = "CONTENT_API_MAX_RETRIES"
	EnvRetryDelay = "CONTENT_API_RETRY_DELAY"
	EnvDebug      = "CONTENT_API_DEBUG"
)

// Override adjusts a resolved ClientConfig. Overrides win over environment and defaults.
type Override func(*ClientConfig)

// WithBaseURL overrides the content service base URL
func WithBaseURL(baseURL string) Override {
	return func(c *ClientConfig) {
		c.BaseURL = baseURL
	}
}

// WithAPIToken overrides the API token
func WithAPIToken(token string) Override {
	return func(c *ClientConfig) {
		c.APIToken = token
	}
}

// WithTimeout overrides the per-request timeout
func WithTimeout(timeout time.Duration) Override {
	return func(c *ClientConfig) {
		c.Timeout = timeout
	}
}

// WithMaxRetries overrides the retry cap
func WithMaxRetries(retries int) Override {
	return func(c *ClientConfig) {
		c.MaxRetries = retries
	}
}

// WithRetryDelay overrides the base backoff delay
func WithRetryDelay(delay time.Duration) Override {
	return func(c *ClientConfig) {
		c.RetryDelay = delay
	}
}

// WithHeader adds a header sent with every request
func WithHeader(key, value string) Override {
	return func(c *ClientConfig) {
		if c.Headers == nil {
			c.Headers = make(map[string]string)
		}
		c.Headers[key] = value
	}
}

// WithDebug toggles request/response debug logging
func WithDebug(debug bool) Override {
	return func(c *ClientConfig) {
		c.Debug = debug
	}
}

// Resolve builds a ClientConfig from defaults, the environment and overrides, in
// increasing priority. It fails with a *ConfigurationError when the result is unusable.
func Resolve(overrides ...Override) (ClientConfig, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	return ResolveFrom(v, overrides...)
}

// ResolveFrom resolves the content section of an existing viper instance.
func ResolveFrom(v *viper.Viper, overrides ...Override) (ClientConfig, error) {
	cfg := ClientConfig{
		BaseURL:  v.GetString("content.url"),
		APIToken: v.GetString("content.api_token"),
	}

	var err error
	if cfg.Timeout, err = durationValue(v, "content.timeout", "timeout"); err != nil {
		return cfg, err
	}
	if cfg.MaxRetries, err = intValue(v, "content.max_retries", "maxRetries"); err != nil {
		return cfg, err
	}
	if cfg.RetryDelay, err = durationValue(v, "content.retry_delay", "retryDelay"); err != nil {
		return cfg, err
	}
	if cfg.Debug, err = boolValue(v, "content.debug", "debug"); err != nil {
		return cfg, err
	}
	if headers := v.GetStringMapString("content.headers"); len(headers) > 0 {
		cfg.Headers = headers
	}

	for _, override := range overrides {
		override(&cfg)
	}

	return Validate(cfg)
}

// durationValue reads key as a duration. Strings must carry a unit, so "30000" is rejected
// instead of being taken as nanoseconds.
func durationValue(v *viper.Viper, key, field string) (time.Duration, error) {
	raw := v.Get(key)
	if raw == nil {
		return 0, nil
	}
	if s, ok := raw.(string); ok {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil {
			return 0, &ConfigurationError{Field: field, Value: s, Reason: "must be a duration such as 30s or 500ms", Err: err}
		}
		return d, nil
	}
	if d, ok := raw.(time.Duration); ok {
		return d, nil
	}
	// Bare numbers have no unit and would be read as nanoseconds
	return 0, &ConfigurationError{Field: field, Value: cast.ToString(raw), Reason: "must be a duration such as 30s or 500ms"}
}

func intValue(v *viper.Viper, key, field string) (int, error) {
	raw := v.Get(key)
	if s, ok := raw.(string); ok {
		raw = strings.TrimSpace(s)
	}
	n, err := cast.ToIntE(raw)
	if err != nil {
		return 0, &ConfigurationError{Field: field, Value: fmt.Sprint(raw), Reason: "must be an integer", Err: err}
	}
	return n, nil
}

func boolValue(v *viper.Viper, key, field string) (bool, error) {
	raw := v.Get(key)
	if raw == nil {
		return false, nil
	}
	if s, ok := raw.(string); ok {
		raw = strings.TrimSpace(s)
	}
	b, err := cast.ToBoolE(raw)
	if err != nil {
		return false, &ConfigurationError{Field: field, Value: fmt.Sprint(raw), Reason: "must be true or false", Err: err}
	}
	return b, nil
}

// Validate checks a ClientConfig and returns it with the base URL normalized.
func Validate(cfg ClientConfig) (ClientConfig, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return cfg, &ConfigurationError{Field: "baseURL", Reason: "is required"}
	}
	raw = strings.TrimRight(raw, "/")

	u, err := url.Parse(raw)
	if err != nil {
		return cfg, &ConfigurationError{Field: "baseURL", Value: cfg.BaseURL, Reason: "does not parse", Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return cfg, &ConfigurationError{Field: "baseURL", Value: cfg.BaseURL, Reason: "must be an absolute http or https URL"}
	}
	if u.Host == "" {
		return cfg, &ConfigurationError{Field: "baseURL", Value: cfg.BaseURL, Reason: "has no host"}
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return cfg, &ConfigurationError{Field: "baseURL", Value: cfg.BaseURL, Reason: "must not carry a query or fragment"}
	}

	if cfg.Timeout <= 0 {
		return cfg, &ConfigurationError{Field: "timeout", Value: cfg.Timeout.String(), Reason: "must be positive"}
	}
	if cfg.MaxRetries < 0 {
		return cfg, &ConfigurationError{Field: "maxRetries", Value: fmt.Sprint(cfg.MaxRetries), Reason: "must not be negative"}
	}
	if cfg.RetryDelay < 0 {
		return cfg, &ConfigurationError{Field: "retryDelay", Value: cfg.RetryDelay.String(), Reason: "must not be negative"}
	}

	out := cfg.Clone()
	out.BaseURL = raw
	return out, nil
}

// LoadDotEnv loads .env files into the process environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load loads the configuration from file. With an empty path the standard
// locations are searched and a missing file falls back to environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)
	bindEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".strapcache"))
		}
		v.AddConfigPath("/etc/strapcache/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Content service defaults
	v.SetDefault("content.timeout", DefaultTimeout)
	v.SetDefault("content.max_retries", DefaultMaxRetries)
	v.SetDefault("content.retry_delay", DefaultRetryDelay)
	v.SetDefault("content.debug", false)

	// Cache defaults
	v.SetDefault("cache.dedupe_interval", DefaultDedupeInterval)
	v.SetDefault("cache.search_debounce", DefaultSearchDebounce)
	v.SetDefault("cache.prefetch_limit", 4)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)
}

// bindEnv maps the environment variables onto their config keys
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("content.url", EnvURL)
	_ = v.BindEnv("content.api_token", EnvAPIToken)
	_ = v.BindEnv("content.timeout", EnvTimeout)
	_ = v.BindEnv("content.max_retries", EnvMaxRetries)
	_ = v.BindEnv("content.retry_delay", EnvRetryDelay)
	_ = v.BindEnv("content.debug", EnvDebug)
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	client, err := Validate(cfg.Client())
	if err != nil {
		return err
	}
	cfg.Content.URL = client.BaseURL

	if cfg.Content.RateLimit < 0 {
		return fmt.Errorf("content.rate_limit must not be negative")
	}
	if cfg.Cache.DedupeInterval < 0 {
		return fmt.Errorf("cache.dedupe_interval must not be negative")
	}
	if cfg.Cache.SearchDebounce < 0 {
		return fmt.Errorf("cache.search_debounce must not be negative")
	}

	// Validate logging level
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"console": true,
		"json":    true,
	}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	return nil
}
