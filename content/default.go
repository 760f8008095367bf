package content

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/s0up4200/strapcache/config"
)

// Factory creates the client held by a Provider
type Factory func() (*Client, error)

// Provider owns one lazily created client. The zero value is not usable; use NewProvider.
type Provider struct {
	mu      sync.Mutex
	client  *Client
	factory Factory
}

// NewProvider creates a provider that builds its client with factory on first use
func NewProvider(factory Factory) *Provider {
	return &Provider{factory: factory}
}

// Client returns the current client, creating it if needed. A failed creation
// is not remembered, so a later call can succeed once the environment is fixed.
func (p *Provider) Client() (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	if p.factory == nil {
		return nil, fmt.Errorf("content client provider has no factory")
	}
	client, err := p.factory()
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

// Set replaces the held client, e.g. with one pointed at a test server
func (p *Provider) Set(client *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = client
}

// Configure updates the held client's configuration, creating the client first if needed
func (p *Provider) Configure(fn func(*config.ClientConfig)) error {
	client, err := p.Client()
	if err != nil {
		return err
	}
	return client.UpdateConfig(fn)
}

// Reset drops the held client; the next Client call creates a new one
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = nil
}

var defaultProvider = NewProvider(func() (*Client, error) {
	cfg, err := config.Resolve()
	if err != nil {
		return nil, err
	}
	return NewClient(cfg, log.Logger)
})

// Default returns the process-wide client, resolved from the environment on first use
func Default() (*Client, error) {
	return defaultProvider.Client()
}

// SetDefault replaces the process-wide client
func SetDefault(client *Client) {
	defaultProvider.Set(client)
}

// ResetDefault drops the process-wide client
func ResetDefault() {
	defaultProvider.Reset()
}
