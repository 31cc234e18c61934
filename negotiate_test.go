package signalr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("negotiateClient", func() {

	var server *httptest.Server

	AfterEach(func() {
		if server != nil {
			server.Close()
		}
	})

	It("decodes a successful negotiate response", func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Method).To(Equal(http.MethodPost))
			Expect(r.URL.Path).To(Equal("/negotiate"))
			Expect(r.URL.Query().Get("negotiateVersion")).To(Equal("1"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"connectionId":"abc","connectionToken":"abc","negotiateVersion":1,"availableTransports":[{"transport":"WebSockets","transferFormats":["Text","Binary"]}]}`))
		}))
		base, _ := url.Parse(server.URL)
		n := &negotiateClient{doer: http.DefaultClient}
		nr, err := n.negotiate(context.Background(), base, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(nr.ConnectionID).To(Equal("abc"))
		Expect(nr.AvailableTransports).To(HaveLen(1))
	})

	It("normalizes connectionToken from connectionId when negotiateVersion < 1", func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"connectionId":"legacy"}`))
		}))
		base, _ := url.Parse(server.URL)
		n := &negotiateClient{doer: http.DefaultClient}
		nr, err := n.negotiate(context.Background(), base, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(nr.ConnectionToken).To(Equal("legacy"))
	})

	It("returns NegotiateStatusError on a non-200 response", func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		base, _ := url.Parse(server.URL)
		n := &negotiateClient{doer: http.DefaultClient}
		_, err := n.negotiate(context.Background(), base, false)
		statusErr, ok := err.(*NegotiateStatusError)
		Expect(ok).To(BeTrue())
		Expect(statusErr.StatusCode).To(Equal(http.StatusNotFound))
		Expect(statusErr.Hint).NotTo(BeEmpty())
	})

	It("returns NegotiateDecodeError when the server reports an error field", func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":"too many connections"}`))
		}))
		base, _ := url.Parse(server.URL)
		n := &negotiateClient{doer: http.DefaultClient}
		_, err := n.negotiate(context.Background(), base, false)
		decodeErr, ok := err.(*NegotiateDecodeError)
		Expect(ok).To(BeTrue())
		Expect(decodeErr.Reason).To(Equal("too many connections"))
	})

	It("sends useStatefulReconnect=true when requested", func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Query().Get("useStatefulReconnect")).To(Equal("true"))
			_, _ = w.Write([]byte(`{"connectionId":"abc","negotiateVersion":1}`))
		}))
		base, _ := url.Parse(server.URL)
		n := &negotiateClient{doer: http.DefaultClient}
		_, err := n.negotiate(context.Background(), base, true)
		Expect(err).NotTo(HaveOccurred())
	})

	It("forwards caller headers and a User-Agent", func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Header.Get("X-Tenant")).To(Equal("acme"))
			Expect(r.Header.Get("User-Agent")).To(ContainSubstring("SignalR-Client-go"))
			_, _ = w.Write([]byte(`{"connectionId":"abc","negotiateVersion":1}`))
		}))
		base, _ := url.Parse(server.URL)
		n := &negotiateClient{doer: http.DefaultClient, headers: func() http.Header {
			return http.Header{"X-Tenant": []string{"acme"}}
		}}
		_, err := n.negotiate(context.Background(), base, false)
		Expect(err).NotTo(HaveOccurred())
	})
})
