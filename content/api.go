package content

import (
	"context"

	"github.com/s0up4200/strapcache/config"
)

// API is the full surface of Client, for callers that want to substitute it
type API interface {
	Get(ctx context.Context, endpoint string, params Params, out any) error
	Post(ctx context.Context, endpoint string, body, out any) error
	Put(ctx context.Context, endpoint string, body, out any) error
	Delete(ctx context.Context, endpoint string, out any) error

	GetCollection(ctx context.Context, endpoint string, params Params) (*CollectionResponse, error)
	GetSingle(ctx context.Context, endpoint string, params Params) (*SingleResponse, error)
	GetByID(ctx context.Context, endpoint, id string, params Params) (*SingleResponse, error)
	Find(ctx context.Context, endpoint string, filters []Filter, params Params) (*CollectionResponse, error)
	FindOne(ctx context.Context, endpoint string, filters []Filter, params Params) (*RemoteEntity, error)
	TestConnection(ctx context.Context, endpoint string) error

	Config() config.ClientConfig
	UpdateConfig(fn func(*config.ClientConfig)) error
	SetAuthToken(token string)
	ClearAuthToken()
}

var _ API = (*Client)(nil)
