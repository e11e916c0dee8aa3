// Package slack implements Slack intake (Events API webhook) and the Slack
// delivery collaborator (DM and thread replies via chat.postMessage).
package slack

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/taskpulse/internal/pipeline"
)

// signatureSkew is the maximum accepted age of a signed Slack request.
const signatureSkew = 5 * time.Minute

// Processor is the pipeline surface the intake channel needs.
type Processor interface {
	ProcessMessage(ctx context.Context, msg pipeline.RawMessage, mc pipeline.MessageContext) (*pipeline.Result, error)
}

// IntakeConfig configures the Events API webhook.
type IntakeConfig struct {
	SigningSecret  string
	OrganizationID string
	RatePerSec     float64
	Burst          int
}

// Intake receives Slack Events API callbacks and feeds message events into
// the pipeline, one goroutine per message.
type Intake struct {
	cfg     IntakeConfig
	proc    Processor
	limiter *rate.Limiter
	running atomic.Bool

	baseCtx context.Context
}

// NewIntake creates the Slack intake channel.
func NewIntake(cfg IntakeConfig, proc Processor) *Intake {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	return &Intake{
		cfg:     cfg,
		proc:    proc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		baseCtx: context.Background(),
	}
}

func (c *Intake) Name() string { return "slack" }

// Start marks the channel as accepting events. The HTTP transport is the
// gateway mux; see Handler.
func (c *Intake) Start(ctx context.Context) error {
	c.baseCtx = ctx
	c.running.Store(true)
	return nil
}

func (c *Intake) Stop(context.Context) error {
	c.running.Store(false)
	return nil
}

func (c *Intake) IsRunning() bool { return c.running.Load() }

// eventEnvelope is the outer Events API payload.
type eventEnvelope struct {
	Type      string       `json:"type"`
	Challenge string       `json:"challenge,omitempty"`
	TeamID    string       `json:"team_id,omitempty"`
	Event     messageEvent `json:"event,omitempty"`
}

type messageEvent struct {
	Type        string `json:"type"`
	Subtype     string `json:"subtype,omitempty"`
	BotID       string `json:"bot_id,omitempty"`
	User        string `json:"user,omitempty"`
	Text        string `json:"text,omitempty"`
	TS          string `json:"ts,omitempty"`
	ThreadTS    string `json:"thread_ts,omitempty"`
	Channel     string `json:"channel,omitempty"`
	ChannelName string `json:"channel_name,omitempty"`
}

// Handler returns the webhook handler for the gateway mux.
func (c *Intake) Handler() http.Handler {
	return http.HandlerFunc(c.handleEvent)
}

func (c *Intake) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !c.limiter.Allow() {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if !c.verifySignature(r.Header, body) {
		slog.Warn("slack signature rejected", "remote", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	switch env.Type {
	case "url_verification":
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"challenge": env.Challenge})
		return
	case "event_callback":
		// Ack immediately; Slack retries slow responses.
		w.WriteHeader(http.StatusOK)
		c.submit(env)
		return
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (c *Intake) submit(env eventEnvelope) {
	ev := env.Event
	if ev.Type != "message" || ev.Subtype != "" || ev.BotID != "" || ev.Text == "" {
		return
	}
	if !c.running.Load() {
		return
	}

	msg := pipeline.RawMessage{Text: ev.Text, TS: ev.TS, ThreadTS: ev.ThreadTS}
	mc := pipeline.MessageContext{
		ChannelID:      ev.Channel,
		ChannelName:    ev.ChannelName,
		UserID:         ev.User,
		OrganizationID: pickOrg(c.cfg.OrganizationID, env.TeamID),
		Timestamp:      ev.TS,
		ThreadTS:       ev.ThreadTS,
		MessageTS:      ev.TS,
	}

	go func() {
		res, err := c.proc.ProcessMessage(c.baseCtx, msg, mc)
		if err != nil {
			// Already counted and logged by the pipeline.
			return
		}
		slog.Debug("slack message processed",
			"message_id", res.MessageID, "processed", res.Processed, "reason", res.Reason)
	}()
}

func pickOrg(configured, teamID string) string {
	if configured != "" {
		return configured
	}
	return teamID
}

// verifySignature checks Slack's v0 HMAC-SHA256 request signature and
// rejects stale timestamps to block replays.
func (c *Intake) verifySignature(h http.Header, body []byte) bool {
	if c.cfg.SigningSecret == "" {
		return true // verification disabled (local dev, tests)
	}

	tsHeader := h.Get("X-Slack-Request-Timestamp")
	sigHeader := h.Get("X-Slack-Signature")
	if tsHeader == "" || sigHeader == "" {
		return false
	}

	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return false
	}
	if math.Abs(time.Since(time.Unix(ts, 0)).Seconds()) > signatureSkew.Seconds() {
		return false
	}

	mac := hmac.New(sha256.New, []byte(c.cfg.SigningSecret))
	mac.Write([]byte("v0:" + tsHeader + ":"))
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sigHeader))
}
