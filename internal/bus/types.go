package bus

import "time"

// Priority orders notification urgency across every delivery surface.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// DesktopDelivery asks the in-app dashboard to raise a notification.
type DesktopDelivery struct {
	TaskID          string         `json:"task_id"`
	Assignee        string         `json:"assignee,omitempty"`
	TaskSummary     string         `json:"task_summary"`
	Urgency         string         `json:"urgency"`
	Recommendations map[string]any `json:"recommendations,omitempty"`
	Priority        Priority       `json:"priority"`
}

// SlackDMDelivery asks the Slack collaborator to DM the resolved assignee.
type SlackDMDelivery struct {
	TaskID          string         `json:"task_id"`
	Assignee        string         `json:"assignee,omitempty"`
	TargetUser      string         `json:"target_user"`
	TaskSummary     string         `json:"task_summary"`
	Urgency         string         `json:"urgency"`
	Recommendations map[string]any `json:"recommendations,omitempty"`
	Priority        Priority       `json:"priority"`
}

// SlackThreadDelivery asks the Slack collaborator to reply in the
// originating conversation thread.
type SlackThreadDelivery struct {
	TaskID          string         `json:"task_id"`
	ChannelID       string         `json:"channel_id"`
	ThreadTS        string         `json:"thread_ts,omitempty"`
	TaskSummary     string         `json:"task_summary"`
	Recommendations map[string]any `json:"recommendations,omitempty"`
	Priority        Priority       `json:"priority"`
}

// DeliveryOutcome is the per-channel slice of a TaskProcessed event.
type DeliveryOutcome struct {
	Channel   string    `json:"channel"`
	Target    string    `json:"target,omitempty"`
	Success   bool      `json:"success"`
	MessageID string    `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskProcessed is the terminal event for a message that went through the
// full pipeline, whether or not any delivery succeeded.
type TaskProcessed struct {
	MessageID          string            `json:"message_id"`
	TaskID             string            `json:"task_id"`
	Processed          bool              `json:"processed"`
	IsTask             bool              `json:"is_task"`
	ConfidenceScore    float64           `json:"confidence_score"`
	HasRecommendations bool              `json:"has_recommendations"`
	DeliveryResults    []DeliveryOutcome `json:"delivery_results"`
	ProcessedAt        time.Time         `json:"processed_at"`
	ProcessingTimeMS   int64             `json:"processing_time_ms"`
}

// ProcessingError reports an unexpected pipeline failure for one message.
type ProcessingError struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// Publisher is the outbound side of the pipeline. One method per event kind
// so payloads stay strongly typed; no stringly event dispatch on the hot
// path. Delivery publishes return an error when the emission itself fails,
// which the dispatcher records as a failed delivery.
type Publisher interface {
	PublishDesktopDelivery(ev DesktopDelivery) error
	PublishSlackDM(ev SlackDMDelivery) error
	PublishSlackThread(ev SlackThreadDelivery) error
	PublishTaskProcessed(ev TaskProcessed)
	PublishProcessingError(ev ProcessingError)
}
