package signalr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// sseServer streams the given data frames as "data: <frame>\n\n" events on
// GET and records POSTed bodies.
type sseServer struct {
	mu     sync.Mutex
	posted []string
	server *httptest.Server
}

func newSSEServer(frames []string) *sseServer {
	s := &sseServer{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			flusher, _ := w.(http.Flusher)
			if flusher != nil {
				flusher.Flush()
			}
			for _, f := range frames {
				_, _ = fmt.Fprintf(w, "data: %s\n\n", f)
				if flusher != nil {
					flusher.Flush()
				}
			}
			<-r.Context().Done()
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			s.mu.Lock()
			s.posted = append(s.posted, string(body))
			s.mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}
	}))
	return s
}

func (s *sseServer) Close() { s.server.Close() }

var _ = Describe("sseTransport", func() {

	It("delivers each data: line to the receive handler", func() {
		srv := newSSEServer([]string{`{"type":6}`})
		defer srv.Close()

		tr := newSSETransport(newAccessTokenHTTPClient(http.DefaultClient, nil), nil)
		received := make(chan interface{}, 1)
		tr.SetReceiveHandler(func(payload interface{}) { received <- payload })
		tr.SetCloseHandler(func(error) {})

		Expect(tr.Connect(context.Background(), srv.server.URL, TransferFormatText)).NotTo(HaveOccurred())
		defer tr.Stop()

		Eventually(received, time.Second).Should(Receive(Equal(`{"type":6}`)))
	})

	It("POSTs sent payloads to the same URL the stream was opened against", func() {
		srv := newSSEServer(nil)
		defer srv.Close()

		tr := newSSETransport(newAccessTokenHTTPClient(http.DefaultClient, nil), nil)
		tr.SetReceiveHandler(func(interface{}) {})
		tr.SetCloseHandler(func(error) {})
		Expect(tr.Connect(context.Background(), srv.server.URL, TransferFormatText)).NotTo(HaveOccurred())
		defer tr.Stop()

		Expect(tr.Send(context.Background(), `{"type":6}`)).NotTo(HaveOccurred())
		Eventually(func() []string {
			srv.mu.Lock()
			defer srv.mu.Unlock()
			return srv.posted
		}, time.Second).Should(Equal([]string{`{"type":6}`}))
	})

	It("rejects the Binary transfer format during Connect", func() {
		tr := newSSETransport(newAccessTokenHTTPClient(http.DefaultClient, nil), nil)
		err := tr.Connect(context.Background(), "http://example.invalid", TransferFormatBinary)
		transportErr, ok := err.(*TransportError)
		Expect(ok).To(BeTrue())
		Expect(transportErr.Kind).To(Equal(TransportHandshake))
	})

	It("rejects a non-string Send payload", func() {
		srv := newSSEServer(nil)
		defer srv.Close()
		tr := newSSETransport(newAccessTokenHTTPClient(http.DefaultClient, nil), nil)
		tr.SetReceiveHandler(func(interface{}) {})
		tr.SetCloseHandler(func(error) {})
		Expect(tr.Connect(context.Background(), srv.server.URL, TransferFormatText)).NotTo(HaveOccurred())
		defer tr.Stop()

		Expect(tr.Send(context.Background(), []byte{1})).To(MatchError(ErrProtocolMismatch))
	})

	It("rejects Send before Connect completes", func() {
		tr := newSSETransport(newAccessTokenHTTPClient(http.DefaultClient, nil), nil)
		Expect(tr.Send(context.Background(), "x")).To(MatchError(ErrNotOpen))
	})
})
