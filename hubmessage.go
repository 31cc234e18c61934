package signalr

import "encoding/json"

// Hub message type discriminators, per spec.md §3.
const (
	messageTypeInvocation        = 1
	messageTypeStreamItem        = 2
	messageTypeCompletion        = 3
	messageTypeStreamInvocation  = 4
	messageTypeCancelInvocation  = 5
	messageTypePing              = 6
	messageTypeClose             = 7
	messageTypeAck               = 8
	messageTypeSequence          = 9
)

// rawHubMessage is used only to peek the discriminator before dispatching to
// a variant-specific type. Grounded on hubprotocol.go's hubMessage.
type rawHubMessage struct {
	Type int `json:"type"`
}

// InvocationMessage is hub message type 1: a request to invoke a method on
// the other party, optionally expecting a Completion.
type InvocationMessage struct {
	InvocationID string            `json:"invocationId,omitempty"`
	Target       string            `json:"target"`
	Arguments    []json.RawMessage `json:"arguments"`
	StreamIds    []string          `json:"streamIds,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// StreamItemMessage is hub message type 2: one item of a server-to-client
// stream.
type StreamItemMessage struct {
	InvocationID string          `json:"invocationId"`
	Item         json.RawMessage `json:"item"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// CompletionMessage is hub message type 3: the terminal response to an
// Invocation or StreamInvocation. At most one of Result/Error is set, per
// spec.md §3; neither set means a void return.
type CompletionMessage struct {
	InvocationID string            `json:"invocationId"`
	Result       json.RawMessage   `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// HasResult reports whether the completion carried a result payload.
func (m CompletionMessage) HasResult() bool { return len(m.Result) > 0 }

// HasError reports whether the completion carried an error string.
func (m CompletionMessage) HasError() bool { return m.Error != "" }

// StreamInvocationMessage is hub message type 4: a request to invoke a
// method whose result is a stream of items rather than a single value.
type StreamInvocationMessage struct {
	InvocationID string            `json:"invocationId"`
	Target       string            `json:"target"`
	Arguments    []json.RawMessage `json:"arguments"`
	StreamIds    []string          `json:"streamIds,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// CancelInvocationMessage is hub message type 5: a request to cancel a
// previously started stream invocation.
type CancelInvocationMessage struct {
	InvocationID string `json:"invocationId"`
}

// PingMessage is hub message type 6: a keep-alive with no payload.
type PingMessage struct{}

// CloseMessage is hub message type 7: server-initiated connection teardown.
// Per spec.md §6, receiving this does not itself close the transport; it is
// surfaced like any other inbound hub message.
type CloseMessage struct {
	Error          string `json:"error,omitempty"`
	AllowReconnect bool   `json:"allowReconnect,omitempty"`
}

// AckMessage is hub message type 8: acknowledges receipt up to SequenceID,
// part of the stateful reconnect protocol.
type AckMessage struct {
	SequenceID uint64 `json:"sequenceId"`
}

// SequenceMessage is hub message type 9: establishes the sequence id of the
// next message to be sent, part of the stateful reconnect protocol.
type SequenceMessage struct {
	SequenceID uint64 `json:"sequenceId"`
}
