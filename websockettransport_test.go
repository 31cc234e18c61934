package signalr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// wsEchoServer upgrades every request and echoes back whatever it reads,
// prefixed with "echo:", until the client closes the connection.
func wsEchoServer(capturedAuth *string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capturedAuth != nil {
			*capturedAuth = r.Header.Get("Authorization")
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.WriteMessage(mt, append([]byte("echo:"), data...))
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

var _ = Describe("webSocketTransport", func() {

	It("connects, sends and receives text frames", func() {
		server := wsEchoServer(nil)
		defer server.Close()

		tr := newWebSocketTransport(newAccessTokenHTTPClient(http.DefaultClient, nil), nil)
		received := make(chan interface{}, 1)
		tr.SetReceiveHandler(func(payload interface{}) { received <- payload })
		tr.SetCloseHandler(func(err error) {})

		Expect(tr.Connect(context.Background(), wsURL(server), TransferFormatText)).NotTo(HaveOccurred())
		defer tr.Stop()

		Expect(tr.Send(context.Background(), "hi")).NotTo(HaveOccurred())
		Eventually(received, time.Second).Should(Receive(Equal("echo:hi")))
	})

	It("connects and exchanges binary frames", func() {
		server := wsEchoServer(nil)
		defer server.Close()

		tr := newWebSocketTransport(newAccessTokenHTTPClient(http.DefaultClient, nil), nil)
		received := make(chan interface{}, 1)
		tr.SetReceiveHandler(func(payload interface{}) { received <- payload })
		tr.SetCloseHandler(func(err error) {})

		Expect(tr.Connect(context.Background(), wsURL(server), TransferFormatBinary)).NotTo(HaveOccurred())
		defer tr.Stop()

		Expect(tr.Send(context.Background(), []byte{1, 2, 3})).NotTo(HaveOccurred())
		Eventually(received, time.Second).Should(Receive(Equal(append([]byte("echo:"), 1, 2, 3))))
	})

	It("attaches the bearer token as an Authorization header on dial", func() {
		var auth string
		server := wsEchoServer(&auth)
		defer server.Close()

		tr := newWebSocketTransport(newAccessTokenHTTPClient(http.DefaultClient, constantAccessTokenProvider("tok")), nil)
		tr.SetReceiveHandler(func(interface{}) {})
		tr.SetCloseHandler(func(error) {})
		Expect(tr.Connect(context.Background(), wsURL(server), TransferFormatText)).NotTo(HaveOccurred())
		defer tr.Stop()

		Expect(auth).To(Equal("Bearer tok"))
	})

	It("fails Connect against a non-websocket endpoint with a TransportError", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		tr := newWebSocketTransport(newAccessTokenHTTPClient(http.DefaultClient, nil), nil)
		tr.SetReceiveHandler(func(interface{}) {})
		tr.SetCloseHandler(func(error) {})

		err := tr.Connect(context.Background(), wsURL(server), TransferFormatText)
		transportErr, ok := err.(*TransportError)
		Expect(ok).To(BeTrue())
		Expect(transportErr.Kind).To(Equal(TransportHandshake))
	})

	It("fires the close handler exactly once when Stop is called", func() {
		server := wsEchoServer(nil)
		defer server.Close()

		tr := newWebSocketTransport(newAccessTokenHTTPClient(http.DefaultClient, nil), nil)
		tr.SetReceiveHandler(func(interface{}) {})
		closed := make(chan error, 5)
		tr.SetCloseHandler(func(err error) { closed <- err })
		Expect(tr.Connect(context.Background(), wsURL(server), TransferFormatText)).NotTo(HaveOccurred())

		Expect(tr.Stop()).NotTo(HaveOccurred())
		Expect(<-closed).NotTo(HaveOccurred())
		Consistently(closed).ShouldNot(Receive())
	})

	It("rejects Send before Connect completes", func() {
		tr := newWebSocketTransport(newAccessTokenHTTPClient(http.DefaultClient, nil), nil)
		Expect(tr.Send(context.Background(), "x")).To(MatchError(ErrNotOpen))
	})
})
