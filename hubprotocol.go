package signalr

// HubProtocol is the interface implemented by a hub message framing/codec.
// JSONHubProtocol is the only variant specified (spec.md §1 Non-goals
// excludes MessagePack).
type HubProtocol interface {
	// Name is the protocol name negotiated during the handshake, e.g. "json".
	Name() string
	// Version is the protocol version negotiated during the handshake.
	Version() int
	// TransferFormat is the transfer format this protocol requires from its
	// transport.
	TransferFormat() TransferFormat
	// Parse decodes payload (a string for Text, []byte for Binary) into zero
	// or more hub messages, in order. Messages with an unrecognized type
	// discriminator are silently dropped, not treated as an error, per
	// spec.md §4.B.
	Parse(payload interface{}) ([]interface{}, error)
	// Write encodes message (one of the *Message types in hubmessage.go) as
	// a complete wire frame, including the trailing record separator.
	Write(message interface{}) ([]byte, error)
}
