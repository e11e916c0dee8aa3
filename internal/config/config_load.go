package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			MinConfidenceThreshold: 0.4,
			ProcessingTimeoutSec:   30,
			DispatchWorkers:        3,
			SweepSchedule:          "*/5 * * * *",
		},
		Delivery: DeliveryConfig{
			DesktopEnabled: true,
		},
		Slack: SlackConfig{
			EventPath:        "/events/slack",
			IntakeRatePerSec: 10,
			IntakeBurst:      20,
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 18920,
		},
		Database: DatabaseConfig{
			SQLitePath: "~/.taskpulse/tasks.db",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "taskpulse",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error; env-only operation is supported.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values; secrets are env-only.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("TASKPULSE_TASK_SERVICE_URL", &c.TaskService.URL)
	envStr("TASKPULSE_TASK_SERVICE_API_KEY", &c.TaskService.APIKey)

	envStr("TASKPULSE_SLACK_BOT_TOKEN", &c.Slack.BotToken)
	envStr("TASKPULSE_ORGANIZATION_ID", &c.Slack.OrganizationID)
	envStr("TASKPULSE_SLACK_SIGNING_SECRET", &c.Slack.SigningSecret)
	envStr("TASKPULSE_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("TASKPULSE_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("TASKPULSE_SQLITE_PATH", &c.Database.SQLitePath)

	envStr("TASKPULSE_HOST", &c.Gateway.Host)
	if v := os.Getenv("TASKPULSE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}

	if v := os.Getenv("TASKPULSE_MIN_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.Pipeline.MinConfidenceThreshold = f
		}
	}
	if v := os.Getenv("TASKPULSE_PROCESSING_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pipeline.ProcessingTimeoutSec = n
		}
	}

	if v := os.Getenv("TASKPULSE_DESKTOP_DELIVERY"); v != "" {
		c.Delivery.DesktopEnabled = v == "true" || v == "1"
	}
	// Auto-enable Slack delivery when a bot token arrives via env.
	if v := os.Getenv("TASKPULSE_SLACK_DELIVERY"); v != "" {
		c.Delivery.SlackEnabled = v == "true" || v == "1"
	} else if c.Slack.BotToken != "" {
		c.Delivery.SlackEnabled = true
	}

	envStr("TASKPULSE_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("TASKPULSE_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("TASKPULSE_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("TASKPULSE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TASKPULSE_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}

	if v := os.Getenv("TASKPULSE_ALLOWED_ORIGINS"); v != "" {
		c.Gateway.AllowedOrigins = strings.Split(v, ",")
	}
}
