package signalr

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("TransportType", func() {

	It("parses known transport names case-insensitively", func() {
		t, ok := parseTransportType("websockets")
		Expect(ok).To(BeTrue())
		Expect(t).To(Equal(TransportWebSockets))

		t, ok = parseTransportType("ServerSentEvents")
		Expect(ok).To(BeTrue())
		Expect(t).To(Equal(TransportServerSentEvents))
	})

	It("rejects unknown transport names", func() {
		_, ok := parseTransportType("WebTransport")
		Expect(ok).To(BeFalse())
	})

	It("treats TransportNone as matching any candidate", func() {
		Expect(TransportNone.Has(TransportWebSockets)).To(BeTrue())
		Expect(TransportNone.Has(TransportLongPolling)).To(BeTrue())
	})

	It("matches only the bits actually set", func() {
		allowed := TransportWebSockets | TransportServerSentEvents
		Expect(allowed.Has(TransportWebSockets)).To(BeTrue())
		Expect(allowed.Has(TransportLongPolling)).To(BeFalse())
	})
})

var _ = Describe("TransferFormat", func() {

	It("parses Text and Binary case-insensitively", func() {
		f, ok := parseTransferFormat("TEXT")
		Expect(ok).To(BeTrue())
		Expect(f).To(Equal(TransferFormatText))

		f, ok = parseTransferFormat("binary")
		Expect(ok).To(BeTrue())
		Expect(f).To(Equal(TransferFormatBinary))
	})

	It("rejects unknown formats", func() {
		_, ok := parseTransferFormat("msgpack")
		Expect(ok).To(BeFalse())
	})
})
