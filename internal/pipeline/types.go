package pipeline

import (
	"strings"
	"time"

	"github.com/nextlevelbuilder/taskpulse/internal/bus"
)

// Urgency levels assigned by the task-analysis service.
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// Terminal reject reasons surfaced in Result.Reason.
const (
	ReasonNoTaskKeywords = "no_task_keywords"
	ReasonNotATask       = "not_a_task"
)

// MessageContext carries where a message came from. Owned by the caller,
// never mutated or retained by the pipeline.
type MessageContext struct {
	ChannelID      string `json:"channel_id"`
	ChannelName    string `json:"channel_name"`
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Timestamp      string `json:"timestamp"`
	ThreadTS       string `json:"thread_ts,omitempty"`
	MessageTS      string `json:"message_ts,omitempty"`
}

// RawMessage is the text of one chat message as received from the intake
// channel.
type RawMessage struct {
	Text     string `json:"text"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

// EnrichedContext is the classifier-derived metadata attached to a task.
type EnrichedContext struct {
	Assignee        string `json:"assignee,omitempty"`
	ActionRequired  string `json:"action_required,omitempty"`
	Urgency         string `json:"urgency"`
	OriginalMessage string `json:"original_message,omitempty"`
}

// TaskRecord is the classification result for one message. TaskID is
// assigned by the external classifier and is the durable identity of a
// detected task. Never mutated after creation.
type TaskRecord struct {
	Success         bool            `json:"success"`
	IsTask          bool            `json:"is_task"`
	ConfidenceScore float64         `json:"confidence_score"`
	TaskID          string          `json:"task_id"`
	EnrichedContext EnrichedContext `json:"enriched_context"`
	Recommendations map[string]any  `json:"recommendations,omitempty"`
}

// Result is what ProcessMessage hands back to the caller. Rejections are
// data, not errors: branch on Processed and Reason.
type Result struct {
	Processed       bool                  `json:"processed"`
	Reason          string                `json:"reason,omitempty"`
	MessageID       string                `json:"message_id"`
	TaskID          string                `json:"task_id,omitempty"`
	Analysis        *TaskRecord           `json:"analysis,omitempty"`
	Recommendations map[string]any        `json:"recommendations,omitempty"`
	DeliveryResults []bus.DeliveryOutcome `json:"delivery_results,omitempty"`
	ProcessedAt     time.Time             `json:"processed_at"`
	ProcessingTime  time.Duration         `json:"processing_time"`
}

// MessageID derives the deterministic in-flight key for a message from its
// timestamp, channel and author. Identical inputs always yield the same id;
// the pipeline does not deduplicate across restarts on it.
func MessageID(ts, channelID, userID string) string {
	raw := ts + "_" + channelID + "_" + userID
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
