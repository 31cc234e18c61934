package signalr

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
)

// sseTransport is spec.md §4.K's Server-Sent Events transport, grounded on
// clientsseconnection.go. Unlike the teacher's raw-chunk strings.Split,
// event lines are reassembled with bufio.Scanner so a "data:" line split
// across two HTTP reads is never mistaken for two separate lines. SSE only
// carries text frames; Binary is rejected during Connect.
type sseTransport struct {
	atClient *accessTokenHTTPClient
	headers  func() http.Header

	mu        sync.Mutex
	state     TransportState
	postURL   string
	onReceive func(payload interface{})
	onClose   func(err error)
	body      io.ReadCloser
	readDone  chan struct{}
	closeOnce sync.Once
}

func newSSETransport(atClient *accessTokenHTTPClient, headers func() http.Header) *sseTransport {
	return &sseTransport{atClient: atClient, headers: headers, state: TransportConnecting}
}

func (t *sseTransport) TransportType() TransportType { return TransportServerSentEvents }

func (t *sseTransport) SetReceiveHandler(handler func(payload interface{})) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReceive = handler
}

func (t *sseTransport) SetCloseHandler(handler func(err error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = handler
}

func (t *sseTransport) Connect(ctx context.Context, url string, format TransferFormat) error {
	if format == TransferFormatBinary {
		return &TransportError{Kind: TransportHandshake, Transport: TransportServerSentEvents, Reason: "ServerSentEvents does not support the Binary transfer format"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &TransportError{Kind: TransportHandshake, Transport: TransportServerSentEvents, Err: err}
	}
	if t.headers != nil {
		for k, vs := range t.headers() {
			req.Header[k] = vs
		}
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.atClient.Do(req)
	if err != nil {
		return &TransportError{Kind: TransportHandshake, Transport: TransportServerSentEvents, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		drainAndClose(resp.Body)
		return &TransportError{Kind: TransportHandshake, Transport: TransportServerSentEvents, Code: resp.StatusCode, Reason: resp.Status}
	}

	t.mu.Lock()
	t.postURL = url
	t.body = resp.Body
	t.state = TransportOpen
	t.readDone = make(chan struct{})
	t.mu.Unlock()

	go t.readLoop(resp.Body)
	return nil
}

func (t *sseTransport) readLoop(body io.ReadCloser) {
	defer close(t.readDone)
	defer drainAndClose(body)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<24)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimPrefix(line, "data:")
		if strings.HasPrefix(payload, " ") {
			payload = payload[1:]
		}

		t.mu.Lock()
		onReceive := t.onReceive
		t.mu.Unlock()
		if onReceive != nil {
			onReceive(payload)
		}
	}

	var closeErr error
	if err := scanner.Err(); err != nil {
		// A read error caused by Stop closing the body is a clean close.
		t.mu.Lock()
		stopping := t.state == TransportClosing
		t.mu.Unlock()
		if !stopping {
			closeErr = &TransportError{Kind: TransportClosed, Transport: TransportServerSentEvents, Reason: err.Error(), Err: err}
		}
	}
	t.finish(closeErr)
}

// Send POSTs payload to the same endpoint the SSE GET was opened against,
// per spec.md §4.K. Only Text (string) payloads are valid.
func (t *sseTransport) Send(ctx context.Context, payload interface{}) error {
	t.mu.Lock()
	open := t.state == TransportOpen
	url := t.postURL
	t.mu.Unlock()
	if !open {
		return ErrNotOpen
	}

	s, ok := payload.(string)
	if !ok {
		return ErrProtocolMismatch
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(s)))
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
		return &TransportError{Kind: TransportClosed, Transport: TransportServerSentEvents, Code: resp.StatusCode, Reason: resp.Status}
	}
	return nil
}

func (t *sseTransport) Stop() error {
	t.mu.Lock()
	if t.state == TransportStateClosed || t.state == TransportClosing {
		t.mu.Unlock()
		return nil
	}
	t.state = TransportClosing
	body := t.body
	readDone := t.readDone
	t.mu.Unlock()

	if body != nil {
		_ = body.Close()
	}
	if readDone != nil {
		<-readDone
	}
	t.finish(nil)
	return nil
}

func (t *sseTransport) finish(err error) {
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
