package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Classifier calls the external task-analysis service. It never returns an
// error from Classify: any transport, status or parse failure degrades to a
// non-task record so the pipeline always has a value to branch on. An
// undetected task is preferable to a crashed pipeline.
type Classifier struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

// NewClassifier creates a classifier client for the task service at baseURL.
// timeout bounds each call as a hard deadline; zero means 30s.
func NewClassifier(baseURL, apiKey string, timeout time.Duration) *Classifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Classifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		// Transport-level ceiling; per-call deadlines come from context.
		client: &http.Client{Timeout: timeout + 5*time.Second},
	}
}

type classifyRequest struct {
	TaskMessage    string         `json:"task_message"`
	MessageContext MessageContext `json:"message_context"`
	OrganizationID string         `json:"organization_id"`
}

type recommendRequest struct {
	EnrichedTaskContext EnrichedContext `json:"enriched_task_context"`
}

type recommendResponse struct {
	Recommendations map[string]any `json:"recommendations"`
}

// degraded is the fail-open classification value.
func degraded() TaskRecord {
	return TaskRecord{Success: false, IsTask: false, ConfidenceScore: 0}
}

// Classify sends one message to POST /tasks/process and parses the verdict.
// Failures are logged as warnings and degrade to a non-task record.
func (c *Classifier) Classify(ctx context.Context, msg RawMessage, mc MessageContext) TaskRecord {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := classifyRequest{
		TaskMessage:    msg.Text,
		MessageContext: mc,
		OrganizationID: mc.OrganizationID,
	}

	var record TaskRecord
	if err := c.post(ctx, "/tasks/process", body, &record); err != nil {
		slog.Warn("task classification degraded", "channel", mc.ChannelID, "error", err)
		return degraded()
	}
	if record.TaskID == "" && record.IsTask {
		slog.Warn("task classification degraded", "channel", mc.ChannelID, "error", "response missing task_id")
		return degraded()
	}
	return record
}

// Recommendations requests AI recommendations for an already-classified
// task via POST /tasks/recommendations. Unlike Classify it returns the
// error; the caller treats it as non-fatal.
func (c *Classifier) Recommendations(ctx context.Context, enriched EnrichedContext) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp recommendResponse
	if err := c.post(ctx, "/tasks/recommendations", recommendRequest{EnrichedTaskContext: enriched}, &resp); err != nil {
		return nil, err
	}
	return resp.Recommendations, nil
}

func (c *Classifier) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("task service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("task service: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("task service: decode response: %w", err)
	}
	return nil
}
