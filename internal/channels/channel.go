// Package channels provides the intake abstraction connecting external chat
// platforms to the task-detection pipeline. A channel turns platform
// webhooks into RawMessage/MessageContext pairs and submits each one to the
// pipeline on its own goroutine.
package channels

import (
	"context"
	"log/slog"
	"sync"
)

// Channel is one message source (currently Slack; the interface exists so
// Teams or Google Chat intake can be added without touching the pipeline).
type Channel interface {
	// Name returns the channel identifier (e.g. "slack").
	Name() string

	// Start begins accepting messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts the channel down.
	Stop(ctx context.Context) error

	// IsRunning reports whether the channel is accepting messages.
	IsRunning() bool
}

// Manager owns the registered intake channels and their lifecycle.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewManager creates an empty channel manager.
func NewManager() *Manager {
	return &Manager{channels: make(map[string]Channel)}
}

// Register adds a channel. Later registrations with the same name replace
// earlier ones.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// StartAll starts every registered channel. A channel that fails to start
// is logged and skipped; the others still come up.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.channels) == 0 {
		slog.Warn("no intake channels enabled")
		return
	}
	for name, ch := range m.channels {
		slog.Info("starting channel", "channel", name)
		if err := ch.Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", name, "error", err)
		}
	}
}

// StopAll stops every registered channel.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, ch := range m.channels {
		slog.Info("stopping channel", "channel", name)
		if err := ch.Stop(ctx); err != nil {
			slog.Warn("channel stop failed", "channel", name, "error", err)
		}
	}
}
