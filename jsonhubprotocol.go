package signalr

import (
	"encoding/json"
	"fmt"

	"github.com/go-kit/log"
)

// JSONHubProtocol is the JSON based SignalR hub protocol. It implements
// HubProtocol. Grounded on jsonhubprotocol.go's jsonInvocationMessage
// raw-argument decoding technique; unlike the teacher, it uses
// encoding/json directly rather than generated easyjson marshalers - see
// DESIGN.md.
type JSONHubProtocol struct {
	dbg        StructuredLogger
	logContent bool
}

// NewJSONHubProtocol creates a JSONHubProtocol with a no-op debug logger.
// Use SetDebugLogger to attach one.
func NewJSONHubProtocol() *JSONHubProtocol {
	return &JSONHubProtocol{dbg: nopLogger{}}
}

func (j *JSONHubProtocol) Name() string                  { return "json" }
func (j *JSONHubProtocol) Version() int                   { return 2 }
func (j *JSONHubProtocol) TransferFormat() TransferFormat { return TransferFormatText }

// SetDebugLogger attaches a component-prefixed debug logger, mirroring
// jsonhubprotocol.go's setDebugLogger. logContent gates whether raw frame
// bytes are included in the emitted debug lines, per spec.md §6's
// logMessageContent option - off by default since frames may carry
// application payloads the caller does not want in logs.
func (j *JSONHubProtocol) SetDebugLogger(logger StructuredLogger, logContent bool) {
	j.dbg = log.WithPrefix(logger, "ts", log.DefaultTimestampUTC, "protocol", "json")
	j.logContent = logContent
}

// Parse implements HubProtocol. A []byte payload (Binary transfer format)
// is rejected per spec.md §4.C: the JSON protocol only accepts Text.
func (j *JSONHubProtocol) Parse(payload interface{}) ([]interface{}, error) {
	var data []byte
	switch p := payload.(type) {
	case string:
		data = []byte(p)
	case []byte:
		return nil, ErrProtocolMismatch
	default:
		return nil, fmt.Errorf("signalr: unsupported payload type %T", p)
	}
	frames, err := splitFrames(data)
	if err != nil {
		return nil, err
	}
	messages := make([]interface{}, 0, len(frames))
	for _, frame := range frames {
		msg, ok, err := j.parseFrame(frame)
		if err != nil {
			return nil, err
		}
		if ok {
			messages = append(messages, msg)
		}
		if j.logContent {
			_ = j.dbg.Log("evt", "parse", "frame", string(frame))
		} else {
			_ = j.dbg.Log("evt", "parse")
		}
	}
	return messages, nil
}

// parseFrame decodes a single frame (without its trailing separator) into a
// hub message. ok is false when the frame's type discriminator is unknown,
// in which case the frame is silently dropped per spec.md §4.B.
func (j *JSONHubProtocol) parseFrame(frame []byte) (interface{}, bool, error) {
	if len(frame) == 0 {
		return nil, false, nil
	}
	var head rawHubMessage
	if err := json.Unmarshal(frame, &head); err != nil {
		return nil, false, &jsonDecodeError{raw: string(frame), err: err}
	}
	switch head.Type {
	case messageTypeInvocation:
		var m InvocationMessage
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, false, &jsonDecodeError{raw: string(frame), err: err}
		}
		return m, true, nil
	case messageTypeStreamItem:
		var m StreamItemMessage
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, false, &jsonDecodeError{raw: string(frame), err: err}
		}
		return m, true, nil
	case messageTypeCompletion:
		var m CompletionMessage
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, false, &jsonDecodeError{raw: string(frame), err: err}
		}
		return m, true, nil
	case messageTypeStreamInvocation:
		var m StreamInvocationMessage
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, false, &jsonDecodeError{raw: string(frame), err: err}
		}
		return m, true, nil
	case messageTypeCancelInvocation:
		var m CancelInvocationMessage
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, false, &jsonDecodeError{raw: string(frame), err: err}
		}
		return m, true, nil
	case messageTypePing:
		return PingMessage{}, true, nil
	case messageTypeClose:
		var m CloseMessage
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, false, &jsonDecodeError{raw: string(frame), err: err}
		}
		return m, true, nil
	case messageTypeAck:
		var m AckMessage
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, false, &jsonDecodeError{raw: string(frame), err: err}
		}
		return m, true, nil
	case messageTypeSequence:
		var m SequenceMessage
		if err := json.Unmarshal(frame, &m); err != nil {
			return nil, false, &jsonDecodeError{raw: string(frame), err: err}
		}
		return m, true, nil
	default:
		// Forward compatibility with newer server-side message kinds.
		return nil, false, nil
	}
}

// Write implements HubProtocol. It type-switches on message and marshals it
// together with the numeric type discriminator, then appends the record
// separator.
func (j *JSONHubProtocol) Write(message interface{}) ([]byte, error) {
	var (
		payload []byte
		err     error
	)
	switch m := message.(type) {
	case InvocationMessage:
		payload, err = marshalTyped(messageTypeInvocation, m)
	case StreamItemMessage:
		payload, err = marshalTyped(messageTypeStreamItem, m)
	case CompletionMessage:
		payload, err = marshalTyped(messageTypeCompletion, m)
	case StreamInvocationMessage:
		payload, err = marshalTyped(messageTypeStreamInvocation, m)
	case CancelInvocationMessage:
		payload, err = marshalTyped(messageTypeCancelInvocation, m)
	case PingMessage:
		payload, err = json.Marshal(rawHubMessage{Type: messageTypePing})
	case CloseMessage:
		payload, err = marshalTyped(messageTypeClose, m)
	case AckMessage:
		payload, err = marshalTyped(messageTypeAck, m)
	case SequenceMessage:
		payload, err = marshalTyped(messageTypeSequence, m)
	default:
		return nil, fmt.Errorf("signalr: %T does not implement a known hub message type", message)
	}
	if err != nil {
		return nil, err
	}
	if j.logContent {
		_ = j.dbg.Log("evt", "write", "frame", string(payload))
	} else {
		_ = j.dbg.Log("evt", "write")
	}
	return writeFrame(payload), nil
}

// marshalTyped marshals v with an additional leading "type" field, by
// embedding v anonymously in a wrapper struct - encoding/json flattens
// anonymous struct fields into the parent object.
func marshalTyped(t int, v interface{}) ([]byte, error) {
	switch m := v.(type) {
	case InvocationMessage:
		return json.Marshal(struct {
			Type int `json:"type"`
			InvocationMessage
		}{t, m})
	case StreamItemMessage:
		return json.Marshal(struct {
			Type int `json:"type"`
			StreamItemMessage
		}{t, m})
	case CompletionMessage:
		return json.Marshal(struct {
			Type int `json:"type"`
			CompletionMessage
		}{t, m})
	case StreamInvocationMessage:
		return json.Marshal(struct {
			Type int `json:"type"`
			StreamInvocationMessage
		}{t, m})
	case CancelInvocationMessage:
		return json.Marshal(struct {
			Type int `json:"type"`
			CancelInvocationMessage
		}{t, m})
	case CloseMessage:
		return json.Marshal(struct {
			Type int `json:"type"`
			CloseMessage
		}{t, m})
	case AckMessage:
		return json.Marshal(struct {
			Type int `json:"type"`
			AckMessage
		}{t, m})
	case SequenceMessage:
		return json.Marshal(struct {
			Type int `json:"type"`
			SequenceMessage
		}{t, m})
	default:
		return nil, fmt.Errorf("signalr: cannot marshal %T", v)
	}
}

// jsonDecodeError wraps a JSON decode failure with the raw frame that
// caused it, matching jsonhubprotocol.go's jsonError.
type jsonDecodeError struct {
	raw string
	err error
}

func (e *jsonDecodeError) Error() string {
	return fmt.Sprintf("%v (source: %v)", e.err, e.raw)
}

func (e *jsonDecodeError) Unwrap() error { return e.err }

// UnmarshalArgument unmarshals a json.RawMessage argument into value,
// mirroring jsonhubprotocol.go's UnmarshalArgument.
func (j *JSONHubProtocol) UnmarshalArgument(argument json.RawMessage, value interface{}) error {
	if err := json.Unmarshal(argument, value); err != nil {
		return &jsonDecodeError{raw: string(argument), err: err}
	}
	return nil
}
