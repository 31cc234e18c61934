package signalr

import (
	"net/http"
	"time"
)

// ClientConfig holds the configuration options listed in spec.md §6. It is
// built via functional options, matching httpconnection.go's
// func(*httpConnection) error pattern.
type ClientConfig struct {
	logger               StructuredLogger
	logDebug             bool
	accessTokenFactory   AccessTokenProvider
	httpClient           Doer
	httpClientSet        bool
	transports           TransportType
	skipNegotiation      bool
	headers              func() http.Header
	withCredentials      bool
	timeout              time.Duration
	logMessageContent    bool
	useStatefulReconnect bool
}

// Option configures a ClientConfig.
type Option func(*ClientConfig) error

func defaultClientConfig() *ClientConfig {
	return &ClientConfig{
		logger:          nopLogger{},
		httpClient:      http.DefaultClient,
		transports:      transportAll,
		withCredentials: true,
		timeout:         100 * time.Second,
	}
}

// WithLogger sets the logger used to log info (and, if debug is true,
// debug) events, matching options.go's Logger option.
func WithLogger(logger StructuredLogger, debug bool) Option {
	return func(c *ClientConfig) error {
		if logger != nil {
			c.logger = logger
		}
		c.logDebug = debug
		return nil
	}
}

// WithAccessTokenProvider sets the async source of bearer tokens.
func WithAccessTokenProvider(provider AccessTokenProvider) Option {
	return func(c *ClientConfig) error {
		c.accessTokenFactory = provider
		return nil
	}
}

// WithHTTPClient overrides the default HTTP client used for negotiate and
// HTTP-based transports (SSE, LongPolling). It is not used for the
// WebSocket upgrade itself.
func WithHTTPClient(client Doer) Option {
	return func(c *ClientConfig) error {
		c.httpClient = client
		c.httpClientSet = true
		return nil
	}
}

// WithTransports restricts which transports the client will accept, by
// bitset. Default is every transport (WebSockets, ServerSentEvents and
// LongPolling); TransportNone also means "any".
func WithTransports(transports TransportType) Option {
	return func(c *ClientConfig) error {
		c.transports = transports
		return nil
	}
}

// WithSkipNegotiation skips the negotiate handshake entirely. Only valid
// together with WithTransports(TransportWebSockets), per spec.md §6.
func WithSkipNegotiation() Option {
	return func(c *ClientConfig) error {
		c.skipNegotiation = true
		return nil
	}
}

// WithHeaders sets the function providing per-connection request headers
// for negotiate and transport requests.
func WithHeaders(headers func() http.Header) Option {
	return func(c *ClientConfig) error {
		c.headers = headers
		return nil
	}
}

// WithCredentials sets whether the connection's own HTTP client persists
// cookies (e.g. a load balancer's session-affinity cookie) across negotiate
// and transport requests, mirroring the browser client's withCredentials
// flag. Only takes effect when no WithHTTPClient override is supplied, since
// an explicitly provided Doer's cookie handling is the caller's to control.
// Default true.
func WithCredentials(with bool) Option {
	return func(c *ClientConfig) error {
		c.withCredentials = with
		return nil
	}
}

// WithTimeout sets the negotiate timeout. Default 100 seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(c *ClientConfig) error {
		c.timeout = timeout
		return nil
	}
}

// WithLogMessageContent controls whether raw payload bytes are included in
// debug log lines. Default false.
func WithLogMessageContent(log bool) Option {
	return func(c *ClientConfig) error {
		c.logMessageContent = log
		return nil
	}
}

// WithStatefulReconnect requests the server-assisted stateful reconnect
// feature during negotiate.
func WithStatefulReconnect() Option {
	return func(c *ClientConfig) error {
		c.useStatefulReconnect = true
		return nil
	}
}
