package api

import (
	"github.com/skobkin/benchmarco/internal/telemetry"
)

// HelloMessage is the initial payload sent on WebSocket connection.
type HelloMessage struct {
	Type       string          `json:"type"`
	SessionID  string          `json:"session_id"`
	IntervalMS int             `json:"interval_ms"`
	Features   map[string]bool `json:"features"`
}

// NewHelloMessage constructs a hello payload.
func NewHelloMessage(sessionID string, intervalMS int, features map[string]bool) HelloMessage {
	return HelloMessage{
		Type:       "hello",
		SessionID:  sessionID,
		IntervalMS: intervalMS,
		Features:   features,
	}
}

// SnapshotMessage carries one published snapshot together with its
// formatted report.
type SnapshotMessage struct {
	Type string `json:"type"`
	telemetry.Snapshot
	Report string `json:"report"`
}

// NewSnapshotMessage constructs a snapshot payload.
func NewSnapshotMessage(snap telemetry.Snapshot) SnapshotMessage {
	return SnapshotMessage{
		Type:     "snapshot",
		Snapshot: snap,
		Report:   telemetry.Format(snap),
	}
}

// ErrorMessage communicates an error condition to the client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ClientMessage is a generic envelope used for decoding inbound client messages.
type ClientMessage struct {
	Type string `json:"type"`
}

// PongMessage is the response to a ping.
type PongMessage struct {
	Type string `json:"type"`
}
