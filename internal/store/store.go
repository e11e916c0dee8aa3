package store

import (
	"context"
	"errors"
	"time"

	"github.com/nextlevelbuilder/taskpulse/internal/bus"
)

// ErrNotFound is returned when a task id has no stored record.
var ErrNotFound = errors.New("task not found")

// ProcessedTask is the durable record written once per message that
// completed the pipeline. TaskID comes from the classifier and is the
// primary key; the record is never updated after insert.
type ProcessedTask struct {
	TaskID          string                `json:"task_id"`
	MessageID       string                `json:"message_id"`
	OrganizationID  string                `json:"organization_id"`
	ChannelID       string                `json:"channel_id"`
	ChannelName     string                `json:"channel_name"`
	Assignee        string                `json:"assignee,omitempty"`
	Urgency         string                `json:"urgency"`
	Confidence      float64               `json:"confidence"`
	Summary         string                `json:"summary"`
	ActionRequired  string                `json:"action_required,omitempty"`
	Recommendations map[string]any        `json:"recommendations,omitempty"`
	DeliveryResults []bus.DeliveryOutcome `json:"delivery_results"`
	ProcessedAt     time.Time             `json:"processed_at"`
}

// TaskStore persists processed tasks for the dashboard and the HTTP API.
type TaskStore interface {
	SaveTask(ctx context.Context, task *ProcessedTask) error
	GetTask(ctx context.Context, taskID string) (*ProcessedTask, error)
	ListRecent(ctx context.Context, limit int) ([]ProcessedTask, error)
	Close() error
}
