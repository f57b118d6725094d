package providers

import (
	"context"
	"fmt"
	"net/http"
)

// Authenticator turns a credential into something that can sign a request.
// Backends differ in where the key goes:
// - header with a scheme prefix (OpenAI-compatible "Authorization: Bearer")
// - bare header (Anthropic "x-api-key")
// - query parameter (Google "key")
type Authenticator interface {
	Authenticate(ctx context.Context) (AuthContext, error)
}

// AuthContext applies authentication to one outgoing request
type AuthContext interface {
	ApplyToRequest(ctx context.Context, req *http.Request) error
}

// HeaderKeyAuth puts the API key in a request header
type HeaderKeyAuth struct {
	apiKey     string
	headerName string // e.g., "Authorization"
	prefix     string // e.g., "Bearer ", may be empty
}

// NewHeaderKeyAuth creates a header authenticator. An empty header name
// means "Authorization"; the prefix is used as given.
func NewHeaderKeyAuth(apiKey, headerName, prefix string) *HeaderKeyAuth {
	if headerName == "" {
		headerName = "Authorization"
	}

	return &HeaderKeyAuth{
		apiKey:     apiKey,
		headerName: headerName,
		prefix:     prefix,
	}
}

// NewBearerAuth is NewHeaderKeyAuth for "Authorization: Bearer <key>"
func NewBearerAuth(apiKey string) *HeaderKeyAuth {
	return NewHeaderKeyAuth(apiKey, "Authorization", "Bearer ")
}

// Authenticate returns an auth context with the API key
func (a *HeaderKeyAuth) Authenticate(ctx context.Context) (AuthContext, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	return &headerKeyAuthContext{
		apiKey:     a.apiKey,
		headerName: a.headerName,
		prefix:     a.prefix,
	}, nil
}

type headerKeyAuthContext struct {
	apiKey     string
	headerName string
	prefix     string
}

func (c *headerKeyAuthContext) ApplyToRequest(ctx context.Context, req *http.Request) error {
	req.Header.Set(c.headerName, c.prefix+c.apiKey)
	return nil
}

// QueryKeyAuth puts the API key in a URL query parameter
type QueryKeyAuth struct {
	apiKey string
	param  string
}

// NewQueryKeyAuth creates a query parameter authenticator
func NewQueryKeyAuth(apiKey, param string) *QueryKeyAuth {
	if param == "" {
		param = "key"
	}
	return &QueryKeyAuth{apiKey: apiKey, param: param}
}

// Authenticate returns an auth context with the API key
func (a *QueryKeyAuth) Authenticate(ctx context.Context) (AuthContext, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	return a, nil
}

func (a *QueryKeyAuth) ApplyToRequest(ctx context.Context, req *http.Request) error {
	q := req.URL.Query()
	q.Set(a.param, a.apiKey)
	req.URL.RawQuery = q.Encode()
	return nil
}

// noAuth is used by backends that take no credential on the wire
type noAuth struct{}

func (noAuth) Authenticate(ctx context.Context) (AuthContext, error) { return noAuth{}, nil }

func (noAuth) ApplyToRequest(ctx context.Context, req *http.Request) error { return nil }
