package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the TaskPulse gateway.
type Config struct {
	TaskService TaskServiceConfig `json:"task_service"`
	Pipeline    PipelineConfig    `json:"pipeline"`
	Delivery    DeliveryConfig    `json:"delivery"`
	Slack       SlackConfig       `json:"slack"`
	Gateway     GatewayConfig     `json:"gateway"`
	Database    DatabaseConfig    `json:"database,omitempty"`
	Telemetry   TelemetryConfig   `json:"telemetry,omitempty"`
}

// TaskServiceConfig points at the external AI task-analysis service.
type TaskServiceConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"-"` // from env TASKPULSE_TASK_SERVICE_API_KEY only
}

// PipelineConfig tunes the detection pipeline.
type PipelineConfig struct {
	// MinConfidenceThreshold gates recommendation generation (not delivery).
	MinConfidenceThreshold float64 `json:"min_confidence_threshold,omitempty"`
	// ProcessingTimeoutSec bounds each external AI call.
	ProcessingTimeoutSec int `json:"processing_timeout_sec,omitempty"`
	// DispatchWorkers bounds concurrent channel dispatches per message.
	DispatchWorkers int `json:"dispatch_workers,omitempty"`
	// SweepSchedule is a cron expression for the stale in-flight sweeper.
	SweepSchedule string `json:"sweep_schedule,omitempty"`
}

// DeliveryConfig toggles the delivery surfaces.
type DeliveryConfig struct {
	DesktopEnabled bool `json:"desktop_enabled"`
	SlackEnabled   bool `json:"slack_enabled"`
}

// SlackConfig configures Slack intake and the Slack delivery collaborator.
// Secrets come from env only (never persisted in the config file).
type SlackConfig struct {
	BotToken      string `json:"-"` // env TASKPULSE_SLACK_BOT_TOKEN
	SigningSecret string `json:"-"` // env TASKPULSE_SLACK_SIGNING_SECRET
	// OrganizationID overrides the workspace team_id on classified messages.
	OrganizationID string `json:"organization_id,omitempty"`
	EventPath      string `json:"event_path,omitempty"`
	APIRoot       string `json:"api_root,omitempty"` // override for tests
	// IntakeRatePerSec / IntakeBurst bound webhook intake.
	IntakeRatePerSec float64 `json:"intake_rate_per_sec,omitempty"`
	IntakeBurst      int     `json:"intake_burst,omitempty"`
}

// GatewayConfig configures the HTTP/WebSocket server.
type GatewayConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	Token          string   `json:"-"` // env TASKPULSE_GATEWAY_TOKEN
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// DatabaseConfig selects the task store backend.
// PostgresDSN is never read from the config file (secret); env only.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`                     // env TASKPULSE_POSTGRES_DSN
	SQLitePath  string `json:"sqlite_path,omitempty"` // standalone mode
}

// TelemetryConfig configures optional OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	Protocol    string `json:"protocol,omitempty"` // "grpc" (default) or "http"
	ServiceName string `json:"service_name,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}

// ProcessingTimeout returns the AI call deadline as a duration.
func (c *Config) ProcessingTimeout() time.Duration {
	if c.Pipeline.ProcessingTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Pipeline.ProcessingTimeoutSec) * time.Second
}

// UsesPostgres reports whether the gateway runs against Postgres.
func (c *Config) UsesPostgres() bool { return c.Database.PostgresDSN != "" }

// Validate rejects configs the gateway cannot start with.
func (c *Config) Validate() error {
	if c.TaskService.URL == "" {
		return fmt.Errorf("task_service.url is required")
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port %d out of range", c.Gateway.Port)
	}
	if c.Pipeline.MinConfidenceThreshold < 0 || c.Pipeline.MinConfidenceThreshold > 1 {
		return fmt.Errorf("pipeline.min_confidence_threshold must be within [0,1]")
	}
	if c.Delivery.SlackEnabled && c.Slack.BotToken == "" {
		return fmt.Errorf("slack delivery enabled but TASKPULSE_SLACK_BOT_TOKEN is not set")
	}
	return nil
}
