package platform

import (
	"context"
	"net/http"
	"net/url"

	"github.com/opencall/opencall/internal/api"
)

// Client is the OpenCall domain API. Every call goes through the
// authenticated request pipeline.
type Client struct {
	api *api.Client
}

// NewClient wraps an authenticated pipeline
func NewClient(c *api.Client) *Client {
	return &Client{api: c}
}

func get[T any](ctx context.Context, c *Client, endpoint string, public bool) (T, error) {
	return api.Request[T](ctx, c.api, endpoint, api.Options{SkipAuth: public})
}

func post[T any](ctx context.Context, c *Client, endpoint string, body any) (T, error) {
	return api.Request[T](ctx, c.api, endpoint, api.Options{Method: http.MethodPost, Body: body})
}

// pathSegment escapes a user-supplied path component.
func pathSegment(s string) string {
	return url.PathEscape(s)
}
