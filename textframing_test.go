package signalr

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Text framing", func() {

	Describe("writeFrame", func() {
		It("appends the record separator", func() {
			Expect(writeFrame([]byte(`{"type":6}`))).To(Equal(append([]byte(`{"type":6}`), recordSeparator)))
		})

		It("works on an empty payload", func() {
			Expect(writeFrame(nil)).To(Equal([]byte{recordSeparator}))
		})
	})

	Describe("splitFrames", func() {
		It("returns nil for empty input", func() {
			frames, err := splitFrames(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(frames).To(BeNil())
		})

		It("splits a single frame", func() {
			frames, err := splitFrames([]byte("{\"type\":6}\x1e"))
			Expect(err).NotTo(HaveOccurred())
			Expect(frames).To(HaveLen(1))
			Expect(string(frames[0])).To(Equal(`{"type":6}`))
		})

		It("splits several concatenated frames in order", func() {
			data := []byte("{\"type\":6}\x1e{\"type\":3,\"invocationId\":\"1\"}\x1e")
			frames, err := splitFrames(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(frames).To(HaveLen(2))
			Expect(string(frames[0])).To(Equal(`{"type":6}`))
			Expect(string(frames[1])).To(Equal(`{"type":3,"invocationId":"1"}`))
		})

		It("rejects a buffer missing its trailing separator", func() {
			_, err := splitFrames([]byte(`{"type":6}`))
			Expect(err).To(MatchError(ErrIncompleteFrame))
		})

		It("does not produce a trailing empty frame", func() {
			frames, err := splitFrames([]byte("{\"type\":6}\x1e"))
			Expect(err).NotTo(HaveOccurred())
			Expect(frames).To(HaveLen(1))
		})
	})
})
