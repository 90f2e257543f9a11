// internal/stream/protocol.go
package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// The hub speaks the SignalR JSON protocol: every frame is a JSON
// object terminated by a 0x1E record separator, and one websocket
// message may carry several frames.

const recordSeparator = 0x1e

// Message type constants from the SignalR hub protocol.
const (
	msgTypeInvocation = 1
	msgTypePing       = 6
	msgTypeClose      = 7
)

type hubMessage struct {
	Type      int               `json:"type"`
	Target    string            `json:"target,omitempty"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
	Error     string            `json:"error,omitempty"`
}

type handshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

type handshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// encodeFrame appends the record separator to a marshalled payload.
func encodeFrame(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, recordSeparator), nil
}

// splitFrames splits one websocket message into its JSON frames,
// dropping a trailing empty chunk after the final separator.
func splitFrames(data []byte) [][]byte {
	var frames [][]byte
	for _, chunk := range bytes.Split(data, []byte{recordSeparator}) {
		if len(chunk) == 0 {
			continue
		}
		frames = append(frames, chunk)
	}
	return frames
}

// invocation builds a client-to-server invocation frame.
func invocation(target string, args ...interface{}) ([]byte, error) {
	rawArgs := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal argument for %s: %w", target, err)
		}
		rawArgs = append(rawArgs, data)
	}
	return encodeFrame(hubMessage{Type: msgTypeInvocation, Target: target, Arguments: rawArgs})
}

func pingFrame() []byte {
	// Static frame; cannot fail.
	data, _ := encodeFrame(hubMessage{Type: msgTypePing})
	return data
}
