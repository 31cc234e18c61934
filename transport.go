package signalr

import (
	"context"
	"strings"
)

// TransferFormat is the declared encoding of payload bytes over a
// transport, per spec.md §3.
type TransferFormat int

const (
	TransferFormatText TransferFormat = iota
	TransferFormatBinary
)

func (f TransferFormat) String() string {
	if f == TransferFormatBinary {
		return "Binary"
	}
	return "Text"
}

// parseTransferFormat matches s case-insensitively against "text"/"binary",
// per spec.md §4.G step 4.
func parseTransferFormat(s string) (TransferFormat, bool) {
	switch {
	case strings.EqualFold(s, "Text"):
		return TransferFormatText, true
	case strings.EqualFold(s, "Binary"):
		return TransferFormatBinary, true
	default:
		return 0, false
	}
}

// TransportType is a bitset over the transports a client may use or a
// server may offer, per spec.md §3. Zero means "no preference".
type TransportType int

const (
	TransportNone             TransportType = 0
	TransportWebSockets       TransportType = 1 << 0
	TransportServerSentEvents TransportType = 1 << 1
	TransportLongPolling      TransportType = 1 << 2
	transportAll              TransportType = TransportWebSockets | TransportServerSentEvents | TransportLongPolling
)

func (t TransportType) String() string {
	switch t {
	case TransportWebSockets:
		return "WebSockets"
	case TransportServerSentEvents:
		return "ServerSentEvents"
	case TransportLongPolling:
		return "LongPolling"
	default:
		return "Unknown"
	}
}

// Has reports whether t includes candidate (candidate must be a single bit).
func (t TransportType) Has(candidate TransportType) bool {
	return t == TransportNone || t&candidate != 0
}

// parseTransportType matches name against the three known transport names,
// per spec.md §4.G step 4 ("reject if unknown name").
func parseTransportType(name string) (TransportType, bool) {
	switch {
	case strings.EqualFold(name, "WebSockets"):
		return TransportWebSockets, true
	case strings.EqualFold(name, "ServerSentEvents"):
		return TransportServerSentEvents, true
	case strings.EqualFold(name, "LongPolling"):
		return TransportLongPolling, true
	default:
		return 0, false
	}
}

// TransportState mirrors spec.md §4.D's Connecting -> Open -> Closing ->
// Closed state machine, shared by every Transport implementation.
type TransportState int

const (
	TransportConnecting TransportState = iota
	TransportOpen
	TransportClosing
	TransportStateClosed
)

// Transport is the uniform capability set exposed by any concrete
// transport, per spec.md §4.D.
type Transport interface {
	// Connect establishes the transport against url using the given
	// transfer format. It returns only once the transport has reached the
	// Open state, or with a *TransportError{Kind: TransportHandshake} on
	// failure.
	Connect(ctx context.Context, url string, format TransferFormat) error
	// Send writes payload (a string for Text, []byte for Binary) to the
	// transport. It fails with ErrNotOpen outside the Open state.
	Send(ctx context.Context, payload interface{}) error
	// Stop idempotently closes the transport, guaranteeing OnClose fires
	// exactly once.
	Stop() error
	// SetReceiveHandler installs the callback invoked once per inbound
	// message, in order. Must be called before Connect.
	SetReceiveHandler(func(payload interface{}))
	// SetCloseHandler installs the callback invoked exactly once when the
	// transport leaves Open, with the causing error if any. Must be called
	// before Connect.
	SetCloseHandler(func(err error))
	// TransportType identifies which concrete transport this is, for error
	// reporting and the features.reconnect decision in spec.md §4.G step 4.
	TransportType() TransportType
}
