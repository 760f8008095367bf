package content

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/strapcache/config"
)

func TestProviderLifecycle(t *testing.T) {
	created := 0
	p := NewProvider(func() (*Client, error) {
		created++
		return NewClient(testConfig("http://cms.local/api"), zerolog.Nop())
	})

	first, err := p.Client()
	require.NoError(t, err)
	second, err := p.Client()
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, created)

	require.NoError(t, p.Configure(func(c *config.ClientConfig) { c.APIToken = "t" }))
	assert.Equal(t, "t", first.Config().APIToken)

	override, err := NewClient(testConfig("http://other.local"), zerolog.Nop())
	require.NoError(t, err)
	p.Set(override)
	got, err := p.Client()
	require.NoError(t, err)
	assert.Same(t, override, got)

	p.Reset()
	fresh, err := p.Client()
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
	assert.Equal(t, 2, created)
}

func TestProviderDoesNotCacheFailure(t *testing.T) {
	fail := true
	p := NewProvider(func() (*Client, error) {
		if fail {
			return nil, errors.New("not yet")
		}
		return NewClient(testConfig("http://cms.local"), zerolog.Nop())
	})

	_, err := p.Client()
	require.Error(t, err)

	fail = false
	client, err := p.Client()
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestDefaultClientFromEnvironment(t *testing.T) {
	t.Cleanup(ResetDefault)
	ResetDefault()

	t.Setenv(config.EnvURL, "")
	_, err := Default()
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	t.Setenv(config.EnvURL, "https://cms.example.com/api/")
	t.Setenv(config.EnvAPIToken, "env-token")
	client, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "https://cms.example.com/api", client.Config().BaseURL)
	assert.Equal(t, "env-token", client.Config().APIToken)

	injected, err := NewClient(testConfig("http://localhost:1337"), zerolog.Nop())
	require.NoError(t, err)
	SetDefault(injected)
	got, err := Default()
	require.NoError(t, err)
	assert.Same(t, injected, got)
}
