// Package wire defines the JSON frame contract of the operator channel.
// Frames are the sole wire format between the agent and the relay.
package wire

import "encoding/json"

// Frame types. A frame with any other type is dropped by both sides.
const (
	TypeOnline       = "online"
	TypeHeartbeat    = "heartbeat"
	TypeUserMessage  = "user_message"
	TypeAdminMessage = "admin_message"
	TypeHistory      = "history"
	TypeOffline      = "offline"
)

// Frame is one discriminated JSON message on the operator channel.
type Frame struct {
	Type      string    `json:"type"`
	Username  string    `json:"username,omitempty"`
	Page      string    `json:"page,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Content   string    `json:"content,omitempty"`
	Time      string    `json:"time,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
}

// Message is one transcript entry, as carried by history frames.
type Message struct {
	Content string `json:"content"`
	IsAdmin bool   `json:"is_admin"`
	Time    string `json:"time"`
}

// Report is the telemetry ingest payload.
type Report struct {
	Username string          `json:"username"`
	Data     json.RawMessage `json:"data"`
}

// Decode parses a frame, requiring a known type.
func Decode(raw []byte) (Frame, bool) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, false
	}
	switch f.Type {
	case TypeOnline, TypeHeartbeat, TypeUserMessage, TypeAdminMessage, TypeHistory, TypeOffline:
		return f, true
	default:
		return Frame{}, false
	}
}
