package signalr

import (
	"context"
	"io"
	"net/http"
	"sync"
)

// Doer is the *http.Client interface, matching httpconnection.go's Doer.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// AccessTokenProvider asynchronously produces a bearer token to attach to
// outgoing requests. An empty return value means "no token right now".
type AccessTokenProvider func(ctx context.Context) (string, error)

// constantAccessTokenProvider returns the same token every time, used once
// negotiate's accessToken field replaces the configured provider, per
// spec.md §4.I.
func constantAccessTokenProvider(token string) AccessTokenProvider {
	return func(context.Context) (string, error) { return token, nil }
}

// accessTokenHTTPClient wraps an inner Doer, attaching
// "Authorization: Bearer <token>" to every outgoing request when a
// provider is configured, and retrying once on a 401 by refreshing the
// token, per spec.md §4.I.
type accessTokenHTTPClient struct {
	inner    Doer
	mu       sync.RWMutex
	provider AccessTokenProvider
}

func newAccessTokenHTTPClient(inner Doer, provider AccessTokenProvider) *accessTokenHTTPClient {
	if inner == nil {
		inner = http.DefaultClient
	}
	return &accessTokenHTTPClient{inner: inner, provider: provider}
}

// setProvider replaces the token provider, used when negotiate's
// accessToken response field supersedes the caller-configured provider for
// the rest of the connection's lifetime.
func (c *accessTokenHTTPClient) setProvider(provider AccessTokenProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.provider = provider
}

func (c *accessTokenHTTPClient) currentProvider() AccessTokenProvider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.provider
}

// token fetches the current bearer token, if any, by invoking the current
// provider once. Used by transports that cannot route through Doer (e.g.
// the WebSocket transport sets its own Authorization header on dial), per
// spec.md §4.E ("access-token is fetched once per connect attempt").
func (c *accessTokenHTTPClient) token(ctx context.Context) (string, error) {
	provider := c.currentProvider()
	if provider == nil {
		return "", nil
	}
	return provider(ctx)
}

// Do implements Doer.
func (c *accessTokenHTTPClient) Do(req *http.Request) (*http.Response, error) {
	provider := c.currentProvider()
	carriedToken := false
	if provider != nil {
		token, err := provider(req.Context())
		if err != nil {
			return nil, err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
			carriedToken = true
		}
	}

	resp, err := c.inner.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || provider == nil {
		return resp, nil
	}

	// Refresh once and replay, per spec.md §4.I. Drain and close the first
	// response body before reusing the request.
	drainAndClose(resp.Body)
	token, err := provider(req.Context())
	if err != nil {
		return nil, err
	}
	replay, err := cloneRequestWithBody(req)
	if err != nil {
		return nil, err
	}
	if token != "" {
		replay.Header.Set("Authorization", "Bearer "+token)
	} else if carriedToken {
		replay.Header.Del("Authorization")
	}
	return c.inner.Do(replay)
}

// cloneRequestWithBody clones req so it can be replayed; GetBody must be
// set by the caller that constructed req for bodies that aren't nil.
func cloneRequestWithBody(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
