package signalr

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"github.com/go-kit/log"
	"github.com/teivah/onecontext"
)

// ConnectionState is one of the four states of spec.md §3/§4.G.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Disconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	default:
		return "Disconnected"
	}
}

// Features records per-connection capabilities decided during Start,
// replacing the teacher's loosely-typed property bag per spec.md §9.
type Features struct {
	// Reconnect is true when the chosen transport is WebSockets and the
	// server granted stateful reconnect after the client requested it.
	Reconnect bool
}

// Connection is the client-side connection state machine of spec.md §4.G:
// it performs negotiate, transport selection, and start/stop orchestration.
// It knows nothing about hub messages - OnReceive/Send deal in raw
// transport payloads (string for Text, []byte for Binary). Parsing them
// into hub messages is the job of HubProtocol and its caller (e.g. a
// HubConnection built on top of Connection), per spec.md §1's scoping.
type Connection struct {
	cfg *ClientConfig

	// OnReceive and OnClose must be set before calling Start; they are read
	// without locking once Start begins, per spec.md §5.
	OnReceive func(payload interface{})
	OnClose   func(err error)

	mu                sync.Mutex
	state             ConnectionState
	baseURL           *url.URL
	transport         Transport
	connectionID      string
	features          Features
	connectionStarted bool
	startDone         chan struct{}
	cancelStart       context.CancelFunc
	stopError         error
	stopDone          chan struct{}
	sq                *sendQueue
	atClient          *accessTokenHTTPClient
	protocol          *JSONHubProtocol

	// transportFactory constructs a Transport for a given type. It defaults
	// to the real WebSocket/SSE/LongPolling dispatcher; tests in this
	// package substitute a fake one to exercise the state machine without
	// a network.
	transportFactory func(TransportType) Transport

	info, dbg log.Logger
}

// NewConnection builds a Connection against address, applying options. It
// does not perform any I/O; call Start to negotiate and connect.
func NewConnection(address string, opts ...Option) (*Connection, error) {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.skipNegotiation && cfg.transports != TransportWebSockets {
		return nil, fmt.Errorf("signalr: %w: skipNegotiation requires transports == TransportWebSockets", ErrInvalidState)
	}

	baseURL, err := url.Parse(address)
	if err != nil {
		return nil, err
	}

	if !cfg.httpClientSet && cfg.withCredentials {
		// No caller-supplied Doer: build our own client with a cookie jar so
		// Set-Cookie from negotiate (e.g. a load balancer's affinity cookie)
		// is carried on subsequent transport requests, per spec.md §6's
		// withCredentials option. With withCredentials false, fall through
		// to the jar-less default set by defaultClientConfig.
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		cfg.httpClient = &http.Client{Jar: jar}
	}

	info, dbg := buildInfoDebugLogger(cfg.logger, cfg.logDebug)
	atClient := newAccessTokenHTTPClient(cfg.httpClient, cfg.accessTokenFactory)

	protocol := NewJSONHubProtocol()
	protocol.SetDebugLogger(prefixLogger(dbg, "JSONHubProtocol"), cfg.logMessageContent)

	c := &Connection{
		cfg:      cfg,
		baseURL:  baseURL,
		state:    Disconnected,
		atClient: atClient,
		protocol: protocol,
		info:     prefixLogger(info, "Connection"),
		dbg:      prefixLogger(dbg, "Connection"),
	}
	c.transportFactory = func(t TransportType) Transport {
		return defaultTransportFactory(t, c.atClient, c.cfg.headers)
	}
	return c, nil
}

// defaultTransportFactory dispatches to the real transport constructors.
func defaultTransportFactory(t TransportType, atClient *accessTokenHTTPClient, headers func() http.Header) Transport {
	switch t {
	case TransportWebSockets:
		return newWebSocketTransport(atClient, headers)
	case TransportServerSentEvents:
		return newSSETransport(atClient, headers)
	case TransportLongPolling:
		return newLongPollingTransport(atClient, headers)
	default:
		return nil
	}
}

// State returns the connection's current state.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionID returns the server-assigned connection id, set once Start
// succeeds.
func (c *Connection) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectionID
}

// Features returns the capabilities decided during the last successful
// Start.
func (c *Connection) Features() Features {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.features
}

// Protocol returns the JSONHubProtocol constructed for this connection, with
// its debug logger and logMessageContent setting already wired from
// ClientConfig. A caller building hub messages on top of this Connection
// (e.g. a HubConnection) uses this instead of constructing its own.
func (c *Connection) Protocol() *JSONHubProtocol {
	return c.protocol
}

// Start performs negotiate (unless skipped), transport selection, and
// connects, per spec.md §4.G. It returns once the connection reaches
// Connected, or with an error (leaving the connection Disconnected).
func (c *Connection) Start(ctx context.Context, format TransferFormat) error {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return ErrInvalidState
	}
	// runCtx cancels if either the caller's ctx is done or Stop cancels the
	// connection's own internal lifetime context - the same dual-context
	// merge client.go performs for its loopCtx.
	internalCtx, internalCancel := context.WithCancel(context.Background())
	runCtx, cancelMerge := mergedContext(ctx, internalCtx)
	c.state = Connecting
	c.startDone = make(chan struct{})
	c.cancelStart = func() {
		internalCancel()
		cancelMerge()
	}
	c.stopError = nil
	startDone := c.startDone
	c.mu.Unlock()

	err := c.runStart(runCtx, format)

	c.mu.Lock()
	if err == nil {
		c.state = Connected
		c.connectionStarted = true
	} else {
		c.state = Disconnected
		c.transport = nil
	}
	close(startDone)
	c.mu.Unlock()

	return err
}

// runStart implements the body of spec.md §4.G's start algorithm.
func (c *Connection) runStart(ctx context.Context, format TransferFormat) error {
	var (
		nr  *negotiateResponse
		err error
	)

	if c.cfg.skipNegotiation {
		t := c.transportFactory(TransportWebSockets)
		if err := c.startTransport(ctx, t, c.baseURL.String(), format); err != nil {
			return translateCancellation(ctx, err)
		}
		c.mu.Lock()
		c.transport = t
		c.sq = newSendQueue(t.Send, format == TransferFormatBinary)
		c.mu.Unlock()
		return nil
	}

	negotiator := &negotiateClient{doer: c.atClient, headers: c.cfg.headers}
	currentURL := c.baseURL

	// The whole negotiate/redirect loop is bounded by cfg.timeout, per
	// spec.md §5/§6 ("negotiate honours the configured timeout").
	negotiateCtx, cancelNegotiate := context.WithTimeout(ctx, c.cfg.timeout)
	defer cancelNegotiate()

	for i := 0; ; i++ {
		if i >= 100 {
			return ErrRedirectLimit
		}
		if c.isStopping() {
			return ErrCancelled
		}
		nr, err = negotiator.negotiate(negotiateCtx, currentURL, c.cfg.useStatefulReconnect)
		if err != nil {
			return translateCancellation(negotiateCtx, err)
		}
		if nr.UseStatefulReconnect && !c.cfg.useStatefulReconnect {
			return ErrStatefulReconnectMismatch
		}
		if nr.URL != "" {
			redirected, parseErr := url.Parse(nr.URL)
			if parseErr != nil {
				return parseErr
			}
			currentURL = redirected
			if nr.AccessToken != "" {
				c.atClient.setProvider(constantAccessTokenProvider(nr.AccessToken))
			}
			continue
		}
		if nr.AccessToken != "" {
			c.atClient.setProvider(constantAccessTokenProvider(nr.AccessToken))
		}
		break
	}

	connectionToken := nr.ConnectionToken
	if connectionToken == "" {
		connectionToken = nr.ConnectionID
	}
	target := connectURL(currentURL, connectionToken)

	transport, _, err := c.selectAndStartTransport(ctx, nr, target, format)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.connectionID = nr.ConnectionID
	c.transport = transport
	c.sq = newSendQueue(transport.Send, format == TransferFormatBinary)
	c.mu.Unlock()

	return nil
}

// selectAndStartTransport implements spec.md §4.G step 4/5: try each
// server-advertised transport in order, skipping ones the client rejects,
// and returning the first that starts successfully.
func (c *Connection) selectAndStartTransport(ctx context.Context, nr *negotiateResponse, target *url.URL, format TransferFormat) (Transport, []error, error) {
	var failures []error

	for _, at := range nr.AvailableTransports {
		if c.isStopping() {
			return nil, failures, ErrCancelled
		}

		transportType, ok := parseTransportType(at.Transport)
		if !ok {
			failures = append(failures, transportRejection{Reason: fmt.Sprintf("unknown transport '%s'", at.Transport)})
			continue
		}
		if !c.cfg.transports.Has(transportType) {
			failures = append(failures, transportRejection{Transport: transportType})
			continue
		}
		if !transportOffersFormat(at, format) {
			failures = append(failures, transportRejection{Transport: transportType, Reason: fmt.Sprintf("'%s' does not support transfer format %s", transportType, format)})
			continue
		}

		transport := c.transportFactory(transportType)
		if transport == nil {
			failures = append(failures, transportRejection{Transport: transportType, Reason: "not implemented by this client"})
			continue
		}

		connectTarget := target
		if transportType == TransportWebSockets {
			connectTarget = promoteWebSocketScheme(target)
		}

		if err := c.startTransport(ctx, transport, connectTarget.String(), format); err != nil {
			if c.isStopping() {
				return nil, failures, ErrCancelled
			}
			failures = append(failures, err)
			continue
		}

		c.mu.Lock()
		c.features = Features{Reconnect: transportType == TransportWebSockets && nr.UseStatefulReconnect && c.cfg.useStatefulReconnect}
		c.mu.Unlock()

		return transport, failures, nil
	}

	return nil, failures, &NoTransportAvailableError{Inner: failures}
}

func transportOffersFormat(at availableTransport, format TransferFormat) bool {
	for _, f := range at.TransferFormats {
		if parsed, ok := parseTransferFormat(f); ok && parsed == format {
			return true
		}
	}
	return false
}

// startTransport attaches the connection's receive/close handlers and
// connects, per spec.md §4.G's startTransport step.
func (c *Connection) startTransport(ctx context.Context, t Transport, url string, format TransferFormat) error {
	t.SetReceiveHandler(func(payload interface{}) {
		if onReceive := c.OnReceive; onReceive != nil {
			onReceive(payload)
		}
	})
	t.SetCloseHandler(func(err error) {
		c.stopConnection(err)
	})
	return t.Connect(ctx, url, format)
}

// translateCancellation reports ErrCancelled instead of a raw
// context-cancellation error when ctx was cancelled, per spec.md §7
// ("Cancelled: state transitioned during an awaited op").
func translateCancellation(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	return err
}

func (c *Connection) isStopping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Disconnecting
}

// Send enqueues payload (string for Text, []byte for Binary) on the send
// queue and returns once it has reached the transport, per spec.md §4.H.
func (c *Connection) Send(ctx context.Context, payload interface{}) error {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return ErrInvalidState
	}
	sq := c.sq
	c.mu.Unlock()
	return sq.Send(ctx, payload)
}

// Stop stops the connection, per spec.md §4.G's stop algorithm. stopError,
// if non-nil, becomes the error delivered to OnClose in preference to any
// error the transport itself produced.
func (c *Connection) Stop(stopError error) error {
	c.mu.Lock()
	switch c.state {
	case Disconnected:
		c.mu.Unlock()
		return nil
	case Connecting:
		startDone := c.startDone
		c.state = Disconnecting
		c.stopError = stopError
		stopDone := make(chan struct{})
		c.stopDone = stopDone
		if c.cancelStart != nil {
			c.cancelStart()
		}
		c.mu.Unlock()
		<-startDone
		// The start path already transitioned to Disconnected and cleared
		// the transport on failure/cancellation; if it raced to success,
		// fall through to stop the transport it installed.
		c.mu.Lock()
		transport := c.transport
		if transport == nil {
			// No stopConnection will run, so wake concurrent Stop callers
			// awaiting this stop here.
			if c.stopDone == stopDone {
				c.stopDone = nil
			}
			close(stopDone)
		}
		c.mu.Unlock()
		if transport == nil {
			return nil
		}
		return c.stopTransport(transport, stopError)
	case Connected:
		c.state = Disconnecting
		c.stopError = stopError
		c.stopDone = make(chan struct{})
		transport := c.transport
		if c.cancelStart != nil {
			c.cancelStart()
		}
		c.mu.Unlock()
		return c.stopTransport(transport, stopError)
	default: // Disconnecting: a stop is already in flight, so await it
		// instead of returning immediately, per spec.md §4.G's
		// Disconnecting|stop transition.
		stopDone := c.stopDone
		c.mu.Unlock()
		if stopDone != nil {
			<-stopDone
		}
		return nil
	}
}

func (c *Connection) stopTransport(transport Transport, stopError error) error {
	if transport == nil {
		return nil
	}
	if err := transport.Stop(); err != nil {
		c.stopConnection(err)
		return err
	}
	c.stopConnection(stopError)
	return nil
}

// stopConnection is the single entry point for leaving Connected/
// Disconnecting, whether driven by Stop or by the transport's own close
// callback, per spec.md §4.G.
func (c *Connection) stopConnection(transportErr error) {
	c.mu.Lock()
	if c.state == Disconnected {
		c.mu.Unlock()
		return
	}
	if c.state == Connecting {
		// The start path owns this transition; it will move to
		// Disconnected itself once runStart returns.
		_ = c.dbg.Log("evt", "stopConnection", "msg", "ignored while Connecting")
		c.mu.Unlock()
		return
	}

	finalErr := c.stopError
	if finalErr == nil {
		finalErr = transportErr
	}
	if c.sq != nil {
		c.sq.Stop()
	}
	c.transport = nil
	c.state = Disconnected
	connectionStarted := c.connectionStarted
	onClose := c.OnClose
	stopDone := c.stopDone
	c.stopDone = nil
	c.mu.Unlock()

	_ = c.info.Log("evt", "stopConnection", "error", finalErr)

	if connectionStarted && onClose != nil {
		onClose(finalErr)
	}

	// Wake any concurrent Stop callers that are awaiting this in-flight
	// stop, per spec.md §4.G's Disconnecting|stop transition.
	if stopDone != nil {
		close(stopDone)
	}
}

// mergedContext merges ctx with the connection's internal lifetime context,
// matching client.go's use of onecontext.Merge for the analogous loopCtx.
func mergedContext(ctx, internalCtx context.Context) (context.Context, context.CancelFunc) {
	return onecontext.Merge(ctx, internalCtx)
}
