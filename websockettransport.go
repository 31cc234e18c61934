package signalr

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// webSocketTransport is the primary transport of spec.md §4.E, grounded on
// httpconnection.go's websocket.Dial path. The access token is fetched once
// per Connect call and attached as a header, since coder/websocket dials
// through its own HTTP client rather than through a Doer.
type webSocketTransport struct {
	atClient *accessTokenHTTPClient
	headers  func() http.Header

	mu        sync.Mutex
	state     TransportState
	conn      *websocket.Conn
	onReceive func(payload interface{})
	onClose   func(err error)
	readDone  chan struct{}
	closeOnce sync.Once
}

func newWebSocketTransport(atClient *accessTokenHTTPClient, headers func() http.Header) *webSocketTransport {
	return &webSocketTransport{atClient: atClient, headers: headers, state: TransportConnecting}
}

func (t *webSocketTransport) TransportType() TransportType { return TransportWebSockets }

func (t *webSocketTransport) SetReceiveHandler(handler func(payload interface{})) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReceive = handler
}

func (t *webSocketTransport) SetCloseHandler(handler func(err error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = handler
}

// Connect dials url, attaching the current bearer token and any configured
// headers, and starts the read loop. It returns once the upgrade completes,
// or a *TransportError{Kind: TransportHandshake} on failure, per spec.md
// §4.D/§4.E.
func (t *webSocketTransport) Connect(ctx context.Context, url string, format TransferFormat) error {
	header := http.Header{}
	if t.headers != nil {
		for k, vs := range t.headers() {
			header[k] = vs
		}
	}
	if token, err := t.atClient.token(ctx); err == nil && token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return &TransportError{Kind: TransportHandshake, Transport: TransportWebSockets, Err: err}
	}
	if format == TransferFormatBinary {
		conn.SetReadLimit(1 << 24)
	}

	t.mu.Lock()
	t.conn = conn
	t.state = TransportOpen
	t.readDone = make(chan struct{})
	t.mu.Unlock()

	go t.readLoop(format)
	return nil
}

func (t *webSocketTransport) readLoop(format TransferFormat) {
	defer close(t.readDone)
	ctx := context.Background()
	for {
		msgType, data, err := t.conn.Read(ctx)
		if err != nil {
			t.finish(closeErrorFromRead(err))
			return
		}
		payload := decodeWebSocketMessage(msgType, data)
		t.mu.Lock()
		onReceive := t.onReceive
		t.mu.Unlock()
		if onReceive != nil {
			onReceive(payload)
		}
	}
}

func decodeWebSocketMessage(msgType websocket.MessageType, data []byte) interface{} {
	if msgType == websocket.MessageBinary {
		return data
	}
	return string(data)
}

// closeErrorFromRead classifies a websocket.Read error as either a clean
// shutdown (nil) or a *TransportError{Kind: TransportClosed}.
func closeErrorFromRead(err error) error {
	if err == nil || err == io.EOF {
		return nil
	}
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		return nil
	}
	return &TransportError{Kind: TransportClosed, Transport: TransportWebSockets, Code: int(status), Reason: err.Error(), Err: err}
}

// Send writes payload as a single WebSocket message, per spec.md §4.E.
func (t *webSocketTransport) Send(ctx context.Context, payload interface{}) error {
	t.mu.Lock()
	conn := t.conn
	open := t.state == TransportOpen
	t.mu.Unlock()
	if !open || conn == nil {
		return ErrNotOpen
	}

	switch p := payload.(type) {
	case []byte:
		return conn.Write(ctx, websocket.MessageBinary, p)
	case string:
		return conn.Write(ctx, websocket.MessageText, []byte(p))
	default:
		return ErrProtocolMismatch
	}
}

// Stop closes the underlying connection cleanly and waits for the read loop
// to observe the close, guaranteeing OnClose fires exactly once.
func (t *webSocketTransport) Stop() error {
	t.mu.Lock()
	if t.state == TransportStateClosed || t.state == TransportClosing {
		t.mu.Unlock()
		return nil
	}
	t.state = TransportClosing
	conn := t.conn
	readDone := t.readDone
	t.mu.Unlock()

	var closeErr error
	if conn != nil {
		closeErr = conn.Close(websocket.StatusNormalClosure, "")
	}
	if readDone != nil {
		<-readDone
	}
	t.finish(nil)
	return closeErr
}

// finish transitions to Closed and fires onClose exactly once, whether
// triggered by Stop or by the read loop observing an unclean close.
func (t *webSocketTransport) finish(err error) {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.state = TransportStateClosed
		onClose := t.onClose
		t.mu.Unlock()
		if onClose != nil {
			onClose(err)
		}
	})
}
