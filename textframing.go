package signalr

import "bytes"

// recordSeparator is the single byte (ASCII RS) that terminates every JSON
// hub frame, per spec.md §3/§6.
const recordSeparator byte = 0x1E

// writeFrame appends the record separator to payload, producing a complete
// wire frame. Grounded on jsonhubprotocol.go's WriteMessage, which appends
// the same byte (30) after marshaling.
func writeFrame(payload []byte) []byte {
	out := make([]byte, len(payload)+1)
	copy(out, payload)
	out[len(payload)] = recordSeparator
	return out
}

// splitFrames splits a buffer of one or more record-separator-terminated
// frames into their payloads, in order. Per spec.md §4.A:
//   - empty input yields an empty slice without error
//   - input is a complete set of frames or it is not: partial frames are
//     never produced by a caller at this layer (the WebSocket transport
//     already preserves message boundaries), so a buffer that doesn't end
//     in the record separator is rejected outright with ErrIncompleteFrame
//   - a trailing empty segment (the one after the final separator) is
//     discarded, not returned as an empty frame
func splitFrames(data []byte) ([][]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if data[len(data)-1] != recordSeparator {
		return nil, ErrIncompleteFrame
	}
	parts := bytes.Split(data[:len(data)-1], []byte{recordSeparator})
	frames := make([][]byte, len(parts))
	copy(frames, parts)
	return frames, nil
}
