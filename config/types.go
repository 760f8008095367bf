package config

import "time"

// Config represents the complete configuration structure
type Config struct {
	Content ContentConfig     `mapstructure:"content"`
	Cache   CacheConfig       `mapstructure:"cache"`
	Filters map[string]string `mapstructure:"filters"`
	Logging LoggingConfig     `mapstructure:"logging"`
	Metrics MetricsConfig     `mapstructure:"metrics"`
}

// ContentConfig holds content service connection details as read from file
type ContentConfig struct {
	URL        string            `mapstructure:"url"`
	APIToken   string            `mapstructure:"api_token"`
	Timeout    time.Duration     `mapstructure:"timeout"`
	MaxRetries int               `mapstructure:"max_retries"`
	RetryDelay time.Duration     `mapstructure:"retry_delay"`
	Headers    map[string]string `mapstructure:"headers"`
	Debug      bool              `mapstructure:"debug"`
	RateLimit  float64           `mapstructure:"rate_limit"`
	RateBurst  int               `mapstructure:"rate_burst"`
}

// CacheConfig contains reactive cache settings
type CacheConfig struct {
	DedupeInterval time.Duration `mapstructure:"dedupe_interval"`
	SearchDebounce time.Duration `mapstructure:"search_debounce"`
	PrefetchLimit  int           `mapstructure:"prefetch_limit"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}

// MetricsConfig toggles prometheus instrumentation
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ClientConfig is the resolved configuration of a content client.
type ClientConfig struct {
	// BaseURL is an absolute http(s) URL without a trailing slash.
	BaseURL    string
	APIToken   string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Headers    map[string]string
	Debug      bool
}

// Clone returns a deep copy, so callers never share the headers map.
func (c ClientConfig) Clone() ClientConfig {
	out := c
	if c.Headers != nil {
		out.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			out.Headers[k] = v
		}
	}
	return out
}

// Client converts the file-level content section to a ClientConfig.
func (c *Config) Client() ClientConfig {
	return ClientConfig{
		BaseURL:    c.Content.URL,
		APIToken:   c.Content.APIToken,
		Timeout:    c.Content.Timeout,
		MaxRetries: c.Content.MaxRetries,
		RetryDelay: c.Content.RetryDelay,
		Headers:    c.Content.Headers,
		Debug:      c.Content.Debug,
	}.Clone()
}
