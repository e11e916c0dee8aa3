package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/taskpulse/internal/bus"
)

const defaultAPIRoot = "https://slack.com/api"

// Sender is the Slack delivery collaborator. It subscribes to the typed
// delivery events and posts them through chat.postMessage; DMs go through
// conversations.open first to resolve the IM channel.
type Sender struct {
	botToken string
	apiRoot  string
	client   *http.Client
}

// NewSender creates a Slack sender. apiRoot is overridable for tests.
func NewSender(botToken, apiRoot string) *Sender {
	if strings.TrimSpace(apiRoot) == "" {
		apiRoot = defaultAPIRoot
	}
	return &Sender{
		botToken: botToken,
		apiRoot:  strings.TrimRight(apiRoot, "/"),
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Handlers returns the bus registration for this sender.
func (s *Sender) Handlers() bus.Handlers {
	return bus.Handlers{
		SlackDM:     s.sendDM,
		SlackThread: s.sendThread,
	}
}

func (s *Sender) sendDM(ev bus.SlackDMDelivery) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	imChannel, err := s.openIM(ctx, ev.TargetUser)
	if err != nil {
		return fmt.Errorf("open dm with %s: %w", ev.TargetUser, err)
	}

	text := formatDM(ev)
	return s.postMessage(ctx, imChannel, "", text)
}

func (s *Sender) sendThread(ev bus.SlackThreadDelivery) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	text := formatThread(ev)
	return s.postMessage(ctx, ev.ChannelID, ev.ThreadTS, text)
}

func formatDM(ev bus.SlackDMDelivery) string {
	var b strings.Builder
	b.WriteString(priorityMarker(ev.Priority))
	b.WriteString("New task detected for you: ")
	b.WriteString(ev.TaskSummary)
	if ev.Urgency != "" {
		fmt.Fprintf(&b, " (urgency: %s)", ev.Urgency)
	}
	appendRecommendations(&b, ev.Recommendations)
	return b.String()
}

func formatThread(ev bus.SlackThreadDelivery) string {
	var b strings.Builder
	b.WriteString("Tracked as a task: ")
	b.WriteString(ev.TaskSummary)
	appendRecommendations(&b, ev.Recommendations)
	return b.String()
}

func priorityMarker(p bus.Priority) string {
	if p == bus.PriorityHigh {
		return ":rotating_light: "
	}
	return ""
}

func appendRecommendations(b *strings.Builder, recs map[string]any) {
	tools, ok := recs["tool_recommendations"].([]any)
	if !ok || len(tools) == 0 {
		return
	}
	b.WriteString("\nSuggested next steps:")
	for _, t := range tools {
		fmt.Fprintf(b, "\n• %v", t)
	}
}

type apiResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel,omitempty"`
}

func (s *Sender) openIM(ctx context.Context, userID string) (string, error) {
	resp, err := s.call(ctx, "conversations.open", map[string]any{"users": userID})
	if err != nil {
		return "", err
	}
	if resp.Channel.ID == "" {
		return "", fmt.Errorf("conversations.open returned no channel")
	}
	return resp.Channel.ID, nil
}

func (s *Sender) postMessage(ctx context.Context, channel, threadTS, text string) error {
	payload := map[string]any{
		"channel": channel,
		"text":    text,
	}
	if threadTS != "" {
		payload["thread_ts"] = threadTS
	}
	_, err := s.call(ctx, "chat.postMessage", payload)
	return err
}

func (s *Sender) call(ctx context.Context, method string, payload map[string]any) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiRoot+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+s.botToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("slack %s: %w", method, err)
	}
	defer resp.Body.Close()

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return nil, fmt.Errorf("slack %s: decode: %w", method, err)
	}
	if !api.OK {
		return nil, fmt.Errorf("slack %s: %s", method, api.Error)
	}
	return &api, nil
}
