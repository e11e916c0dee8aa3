// Package protocol defines the wire format of the dashboard WebSocket feed.
package protocol

// ProtocolVersion is bumped on breaking changes to the WS frame format.
const ProtocolVersion = 1

// Event names pushed from the gateway to dashboard clients.
const (
	EventDesktopDelivery = "desktop_delivery"
	EventTaskProcessed   = "task_processed"
	EventProcessingError = "processing_error"
	EventStats           = "stats"
	EventShutdown        = "shutdown"
)

// EventFrame is one server→client push.
type EventFrame struct {
	Type    string `json:"type"` // always "event"
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// NewEvent wraps a payload in an EventFrame.
func NewEvent(event string, payload any) *EventFrame {
	return &EventFrame{Type: "event", Event: event, Payload: payload}
}
