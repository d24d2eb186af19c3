// ABOUTME: JSON frames exchanged with the engine's command server
// ABOUTME: Outbound command frames, inbound replies and events, and handshake frames

package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Frame type and status values.
const (
	frameTypeCommand = "command"
	frameTypeHello   = "hello"
	frameTypeWelcome = "welcome"
	frameTypeReject  = "reject"

	StatusSuccess = "success"
	StatusError   = "error"
)

// ClientName identifies the bridge in the handshake.
const ClientName = "engine-bridge"

// commandFrame is written for every dispatched command.
type commandFrame struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

// inboundFrame is anything the engine sends. Frames without an ID are events.
type inboundFrame struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

func decodeInbound(data []byte) (inboundFrame, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("decoding engine frame: %w", err)
	}
	return f, nil
}

type helloFrame struct {
	Type     string `json:"type"`
	Client   string `json:"client"`
	Protocol string `json:"protocol"`
}

type handshakeReply struct {
	Type     string `json:"type"`
	Protocol string `json:"protocol"`
	Reason   string `json:"reason"`
}

// Reply is the engine's answer to one command. A reply whose Status is
// "error" is still a successful dispatch.
type Reply struct {
	ID     string
	Status string
	Result json.RawMessage
	Error  json.RawMessage
	// Raw is the complete frame as received.
	Raw json.RawMessage
}

// OK reports whether the engine reported success.
func (r *Reply) OK() bool {
	return r.Status != StatusError
}

// ErrorMessage returns the engine's error as text. String errors are
// unquoted; structured errors are returned as JSON.
func (r *Reply) ErrorMessage() string {
	if len(r.Error) == 0 || string(r.Error) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Error, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(r.Error))
}

func newReply(f inboundFrame, raw []byte) *Reply {
	return &Reply{
		ID:     f.ID,
		Status: f.Status,
		Result: f.Result,
		Error:  f.Error,
		Raw:    append(json.RawMessage(nil), raw...),
	}
}
