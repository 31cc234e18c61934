package signalr

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("ClientConfig options", func() {

	It("has sane defaults", func() {
		cfg := defaultClientConfig()
		Expect(cfg.transports).To(Equal(transportAll))
		Expect(cfg.withCredentials).To(BeTrue())
		Expect(cfg.skipNegotiation).To(BeFalse())
	})

	It("WithSkipNegotiation requires TransportWebSockets only, enforced by NewConnection", func() {
		_, err := NewConnection("http://example.com", WithSkipNegotiation())
		Expect(err).To(HaveOccurred())

		_, err = NewConnection("http://example.com", WithSkipNegotiation(), WithTransports(TransportWebSockets))
		Expect(err).NotTo(HaveOccurred())
	})

	It("WithLogger threads the debug flag into the config", func() {
		cfg := defaultClientConfig()
		Expect(WithLogger(nopLogger{}, true)(cfg)).NotTo(HaveOccurred())
		Expect(cfg.logDebug).To(BeTrue())
	})

	It("WithTransports restricts the allowed transport bitset", func() {
		cfg := defaultClientConfig()
		Expect(WithTransports(TransportWebSockets | TransportServerSentEvents)(cfg)).NotTo(HaveOccurred())
		Expect(cfg.transports.Has(TransportLongPolling)).To(BeFalse())
	})
})
