package signalr

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"
)

// longPollingTransport is spec.md §4.L's secondary transport, built fresh
// (the teacher has no equivalent) over repeated GET/POST/DELETE against the
// connect URL, following httpconnection.go's negotiate-then-connect shape.
type longPollingTransport struct {
	atClient *accessTokenHTTPClient
	headers  func() http.Header

	pollTimeout time.Duration

	mu         sync.Mutex
	state      TransportState
	url        string
	format     TransferFormat
	onReceive  func(payload interface{})
	onClose    func(err error)
	cancelPoll context.CancelFunc
	pollDone   chan struct{}
	closeOnce  sync.Once
}

func newLongPollingTransport(atClient *accessTokenHTTPClient, headers func() http.Header) *longPollingTransport {
	return &longPollingTransport{atClient: atClient, headers: headers, state: TransportConnecting, pollTimeout: 90 * time.Second}
}

func (t *longPollingTransport) TransportType() TransportType { return TransportLongPolling }

func (t *longPollingTransport) SetReceiveHandler(handler func(payload interface{})) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReceive = handler
}

func (t *longPollingTransport) SetCloseHandler(handler func(err error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = handler
}

// Connect performs the priming GET (a 204 means "ready, poll again") and
// starts the background poll loop, per spec.md §4.L.
func (t *longPollingTransport) Connect(ctx context.Context, url string, format TransferFormat) error {
	status, _, err := t.poll(ctx, url)
	if err != nil {
		return &TransportError{Kind: TransportHandshake, Transport: TransportLongPolling, Err: err}
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return &TransportError{Kind: TransportHandshake, Transport: TransportLongPolling, Code: status}
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.url = url
	t.format = format
	t.state = TransportOpen
	t.cancelPoll = cancel
	t.pollDone = make(chan struct{})
	t.mu.Unlock()

	go t.pollLoop(pollCtx)
	return nil
}

func (t *longPollingTransport) pollLoop(ctx context.Context) {
	defer close(t.pollDone)
	for {
		if ctx.Err() != nil {
			return
		}
		reqCtx, cancel := context.WithTimeout(ctx, t.pollTimeout)
		status, body, err := t.poll(reqCtx, t.url)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.finish(&TransportError{Kind: TransportClosed, Transport: TransportLongPolling, Err: err})
			return
		}
		switch status {
		case http.StatusNoContent:
			continue
		case http.StatusOK:
			if len(body) == 0 {
				continue
			}
			t.mu.Lock()
			onReceive := t.onReceive
			format := t.format
			t.mu.Unlock()
			if onReceive != nil {
				onReceive(decodeLongPollingPayload(body, format))
			}
		default:
			t.finish(&TransportError{Kind: TransportClosed, Transport: TransportLongPolling, Code: status})
			return
		}
	}
}

func decodeLongPollingPayload(body []byte, format TransferFormat) interface{} {
	if format == TransferFormatBinary {
		return body
	}
	return string(body)
}

// poll issues a single GET against url and returns the status and body.
func (t *longPollingTransport) poll(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	if t.headers != nil {
		for k, vs := range t.headers() {
			req.Header[k] = vs
		}
	}
	resp, err := t.atClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer drainAndClose(resp.Body)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// Send issues a POST with payload as the body, per spec.md §4.L.
func (t *longPollingTransport) Send(ctx context.Context, payload interface{}) error {
	t.mu.Lock()
	open := t.state == TransportOpen
	url := t.url
	t.mu.Unlock()
	if !open {
		return ErrNotOpen
	}

	var body io.Reader
	switch p := payload.(type) {
	case []byte:
		body = bytes.NewReader(p)
	case string:
		body = bytes.NewReader([]byte(p))
	default:
		return ErrProtocolMismatch
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	if t.headers != nil {
		for k, vs := range t.headers() {
			req.Header[k] = vs
		}
	}
	resp, err := t.atClient.Do(req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return &TransportError{Kind: TransportClosed, Transport: TransportLongPolling, Code: resp.StatusCode, Reason: resp.Status}
	}
	return nil
}

// Stop cancels the poll loop and issues a best-effort DELETE, per spec.md
// §4.L; errors from the DELETE are not surfaced.
func (t *longPollingTransport) Stop() error {
	t.mu.Lock()
	if t.state == TransportStateClosed || t.state == TransportClosing {
		t.mu.Unlock()
		return nil
	}
	t.state = TransportClosing
	url := t.url
	cancelPoll := t.cancelPoll
	pollDone := t.pollDone
	t.mu.Unlock()

	if cancelPoll != nil {
		cancelPoll()
	}
	if pollDone != nil {
		<-pollDone
	}

	if url != "" {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodDelete, url, nil)
		if err == nil {
			if t.headers != nil {
				for k, vs := range t.headers() {
					req.Header[k] = vs
				}
			}
			if resp, err := t.atClient.Do(req); err == nil {
				drainAndClose(resp.Body)
			}
		}
	}

	t.finish(nil)
	return nil
}

func (t *longPollingTransport) finish(err error) {
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
