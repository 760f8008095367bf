package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/s0up4200/strapcache/config"
	"github.com/s0up4200/strapcache/metrics"
)

// Client represents a content service API client
type Client struct {
	mu  sync.RWMutex
	cfg config.ClientConfig

	httpClient *http.Client
	logger     zerolog.Logger
	metrics    *metrics.Collector
	limiter    *rate.Limiter
	userAgent  string
}

// NewClient creates a new content client. The configuration is validated
// immediately; no request is made.
func NewClient(cfg config.ClientConfig, logger zerolog.Logger, opts ...Option) (*Client, error) {
	validated, err := config.Validate(cfg)
	if err != nil {
		return nil, err
	}

	client := &Client{
		cfg:        validated,
		httpClient: &http.Client{},
		logger:     logger,
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(client)
	}

	client.logger.Debug().
		Str("base_url", validated.BaseURL).
		Dur("timeout", validated.Timeout).
		Int("max_retries", validated.MaxRetries).
		Bool("auth", validated.APIToken != "").
		Msg("Content client created")

	return client, nil
}

// Config returns a copy of the current configuration
func (c *Client) Config() config.ClientConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Clone()
}

// UpdateConfig applies fn to a copy of the configuration and swaps it in if it
// still validates. Requests already running keep the configuration they started with.
func (c *Client) UpdateConfig(fn func(*config.ClientConfig)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.cfg.Clone()
	fn(&next)
	validated, err := config.Validate(next)
	if err != nil {
		return err
	}
	c.cfg = validated
	return nil
}

// SetAuthToken replaces the bearer token
func (c *Client) SetAuthToken(token string) {
	_ = c.UpdateConfig(func(cfg *config.ClientConfig) {
		cfg.APIToken = token
	})
}

// ClearAuthToken stops sending an Authorization header
func (c *Client) ClearAuthToken() {
	c.SetAuthToken("")
}

// Get performs a GET request and decodes the response into out, which may be nil
func (c *Client) Get(ctx context.Context, endpoint string, params Params, out any) error {
	return c.do(ctx, http.MethodGet, endpoint, params, nil, out)
}

// Post sends body as JSON and decodes the response into out
func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	return c.do(ctx, http.MethodPost, endpoint, Params{}, body, out)
}

// Put sends body as JSON and decodes the response into out
func (c *Client) Put(ctx context.Context, endpoint string, body, out any) error {
	return c.do(ctx, http.MethodPut, endpoint, Params{}, body, out)
}

// Delete performs a DELETE request
func (c *Client) Delete(ctx context.Context, endpoint string, out any) error {
	return c.do(ctx, http.MethodDelete, endpoint, Params{}, nil, out)
}

// GetCollection retrieves a list of entities. Data is never nil on success.
func (c *Client) GetCollection(ctx context.Context, endpoint string, params Params) (*CollectionResponse, error) {
	var resp CollectionResponse
	if err := c.Get(ctx, endpoint, params, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		resp.Data = []RemoteEntity{}
	}
	return &resp, nil
}

// GetSingle retrieves a single entity, such as a single type
func (c *Client) GetSingle(ctx context.Context, endpoint string, params Params) (*SingleResponse, error) {
	var resp SingleResponse
	if err := c.Get(ctx, endpoint, params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetByID retrieves one entity of a collection by id
func (c *Client) GetByID(ctx context.Context, endpoint, id string, params Params) (*SingleResponse, error) {
	if err := validateID(endpoint, id); err != nil {
		return nil, err
	}
	route := strings.TrimRight(endpoint, "/")
	path := route + "/" + url.PathEscape(strings.TrimSpace(id))

	// Metrics are labeled with the collection, not the entry path
	var resp SingleResponse
	if err := c.send(ctx, http.MethodGet, path, route, params, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Find retrieves a collection with filters added to params
func (c *Client) Find(ctx context.Context, endpoint string, filters []Filter, params Params) (*CollectionResponse, error) {
	return c.GetCollection(ctx, endpoint, params.WithFilters(filters...))
}

// FindOne returns the first match, or nil without an error when nothing matches.
// A 404 from the service is still an error.
func (c *Client) FindOne(ctx context.Context, endpoint string, filters []Filter, params Params) (*RemoteEntity, error) {
	params = params.WithFilters(filters...)
	params.Pagination = &Pagination{Page: 1, PageSize: 1}

	resp, err := c.GetCollection(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	entity := resp.Data[0]
	return &entity, nil
}

// TestConnection checks that endpoint answers with a successful status
func (c *Client) TestConnection(ctx context.Context, endpoint string) error {
	params := Params{Pagination: &Pagination{Page: 1, PageSize: 1}}
	if err := c.Get(ctx, endpoint, params, nil); err != nil {
		return fmt.Errorf("failed to connect to content service: %w", err)
	}
	return nil
}

func validateID(endpoint, id string) *Error {
	details := Details{Endpoint: endpoint, Method: http.MethodGet}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return newError(KindValidation, 0, "id is required", details, nil)
	}
	if strings.ContainsAny(trimmed, "/?#") {
		return newError(KindValidation, 0, fmt.Sprintf("invalid id %q", id), details, nil)
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil && n <= 0 {
		return newError(KindValidation, 0, fmt.Sprintf("id must be positive, got %d", n), details, nil)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, params Params, body, out any) error {
	return c.send(ctx, method, endpoint, endpoint, params, body, out)
}

// send performs the request at endpoint. route is the endpoint label used for metrics and retry logs.
func (c *Client) send(ctx context.Context, method, endpoint, route string, params Params, body, out any) error {
	cfg := c.Config()
	query := BuildQueryString(params)

	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			details := Details{Endpoint: endpoint, Method: method, Params: query}
			return newError(KindValidation, 0, "failed to encode request body", details, err)
		}
		payload = encoded
	}

	return c.withRetry(ctx, cfg, method, route, func(attempt int) *Error {
		return c.attempt(ctx, cfg, method, endpoint, route, query, payload, out, attempt)
	})
}

func (c *Client) buildURL(baseURL, endpoint, query string) string {
	u := baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if query != "" {
		u += "?" + query
	}
	return u
}

// attempt performs a single request bounded by cfg.Timeout
func (c *Client) attempt(ctx context.Context, cfg config.ClientConfig, method, endpoint, route, query string, payload []byte, out any, attempt int) *Error {
	attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	fail := Failure{Endpoint: endpoint, Method: method, Params: query}

	if c.limiter != nil {
		if err := c.limiter.Wait(attemptCtx); err != nil {
			fail.Err = c.transportErr(ctx, attemptCtx, cfg, fmt.Errorf("rate limiter: %w", err))
			return Classify(fail)
		}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	reqURL := c.buildURL(cfg.BaseURL, endpoint, query)
	req, err := http.NewRequestWithContext(attemptCtx, method, reqURL, reader)
	if err != nil {
		details := Details{Endpoint: endpoint, Method: method, Params: query}
		return newError(KindValidation, 0, "failed to create request", details, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIToken)
	}

	if cfg.Debug {
		c.logger.Debug().
			Str("method", method).
			Str("url", reqURL).
			Int("attempt", attempt+1).
			Bool("auth", cfg.APIToken != "").
			Int("body_bytes", len(payload)).
			Msg("Content API request")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordRequest(method, route, 0, time.Since(start))
		fail.Err = c.transportErr(ctx, attemptCtx, cfg, err)
		return Classify(fail)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	c.metrics.RecordRequest(method, route, resp.StatusCode, elapsed)

	if cfg.Debug {
		c.logger.Debug().
			Str("method", method).
			Str("url", reqURL).
			Int("status", resp.StatusCode).
			Int("bytes", len(respBody)).
			Dur("elapsed", elapsed).
			Msg("Content API response")
	}

	if err != nil {
		fail.Err = c.transportErr(ctx, attemptCtx, cfg, fmt.Errorf("failed to read response body: %w", err))
		return Classify(fail)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fail.Response = resp
		fail.Body = respBody
		return Classify(fail)
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			fail.Response = resp
			fail.Body = respBody
			fail.Err = err
			return Classify(fail)
		}
	}

	return nil
}

// transportErr marks failures caused by our own per-attempt deadline as timeouts
func (c *Client) transportErr(parent, attemptCtx context.Context, cfg config.ClientConfig, err error) error {
	if parent.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("request exceeded %s: %w", cfg.Timeout, context.DeadlineExceeded)
	}
	return err
}
