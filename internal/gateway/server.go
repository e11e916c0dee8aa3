package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/taskpulse/internal/bus"
	"github.com/nextlevelbuilder/taskpulse/internal/config"
	"github.com/nextlevelbuilder/taskpulse/internal/pipeline"
	"github.com/nextlevelbuilder/taskpulse/internal/store"
	"github.com/nextlevelbuilder/taskpulse/pkg/protocol"
)

// Server is the gateway's HTTP surface: the Slack webhook mount, the task
// and stats API, and the WebSocket feed the desktop dashboard subscribes
// to. Desktop delivery is this feed; the dashboard renders the
// desktop_delivery events it receives as native notifications.
type Server struct {
	cfg   *config.Config
	bus   *bus.Bus
	pipe  *pipeline.Pipeline
	tasks store.TaskStore

	slackWebhook http.Handler

	upgrader websocket.Upgrader
	limiter  *KeyLimiter
	clients  map[string]*Client
	mu       sync.RWMutex

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a gateway server. slackWebhook may be nil when Slack
// intake is disabled.
func NewServer(cfg *config.Config, b *bus.Bus, pipe *pipeline.Pipeline, tasks store.TaskStore, slackWebhook http.Handler) *Server {
	s := &Server{
		cfg:          cfg,
		bus:          b,
		pipe:         pipe,
		tasks:        tasks,
		slackWebhook: slackWebhook,
		limiter:      NewKeyLimiter(5, 10),
		clients:      make(map[string]*Client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin validates the WS origin against the allowlist. No allowlist
// means all origins (dev mode); empty Origin means a non-browser client.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Gateway.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("websocket origin rejected", "origin", origin)
	return false
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/stats", s.withAuth(s.handleStats))
	mux.HandleFunc("/api/tasks", s.withAuth(s.handleTasks))

	if s.slackWebhook != nil {
		path := s.cfg.Slack.EventPath
		if path == "" {
			path = "/events/slack"
		}
		mux.Handle(path, s.slackWebhook)
	}

	s.mux = mux
	return mux
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	slog.Info("gateway starting", "addr", addr)

	go s.runSweeper(ctx)
	go s.runStatsBroadcast(ctx)

	go func() {
		<-ctx.Done()
		s.BroadcastEvent(*protocol.NewEvent(protocol.EventShutdown, nil))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// runStatsBroadcast pushes pipeline counters to connected dashboard clients
// every 30 seconds. Clients that want fresher numbers poll /api/stats.
func (s *Server) runStatsBroadcast(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.mu.RLock()
		connected := len(s.clients)
		s.mu.RUnlock()
		if connected == 0 {
			continue
		}
		tracker := s.pipe.Tracker()
		s.BroadcastEvent(*protocol.NewEvent(protocol.EventStats, struct {
			pipeline.Stats
			InFlight int `json:"in_flight"`
		}{
			Stats:    tracker.Snapshot(),
			InFlight: tracker.InFlight(),
		}))
	}
}

// withAuth wraps a handler with bearer-token auth and per-IP rate limiting.
// Auth is skipped when no token is configured.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !s.limiter.Allow(host) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		if token := s.cfg.Gateway.Token; token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","protocol":%d}`, protocol.ProtocolVersion)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	tracker := s.pipe.Tracker()
	payload := struct {
		pipeline.Stats
		InFlight int `json:"in_flight"`
	}{
		Stats:    tracker.Snapshot(),
		InFlight: tracker.InFlight(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		http.Error(w, "task store disabled", http.StatusNotImplemented)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	tasks, err := s.tasks.ListRecent(r.Context(), limit)
	if err != nil {
		slog.Error("list tasks failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []store.ProcessedTask{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"tasks": tasks})
}

// handleWebSocket upgrades the connection and streams pipeline events until
// the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if token := s.cfg.Gateway.Token; token != "" && r.URL.Query().Get("token") != token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn)
	s.registerClient(client)

	defer func() {
		s.unregisterClient(client)
		client.Close()
	}()

	client.Run(r.Context())
}

// BroadcastEvent sends a frame to every connected dashboard client.
func (s *Server) BroadcastEvent(event protocol.EventFrame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, client := range s.clients {
		client.SendEvent(event)
	}
}

func (s *Server) registerClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c

	// Each client gets its own bus subscription forwarding pipeline events
	// into its send queue.
	s.bus.Subscribe(c.id, bus.Handlers{
		DesktopDelivery: func(ev bus.DesktopDelivery) error {
			c.SendEvent(*protocol.NewEvent(protocol.EventDesktopDelivery, ev))
			return nil
		},
		TaskProcessed: func(ev bus.TaskProcessed) {
			c.SendEvent(*protocol.NewEvent(protocol.EventTaskProcessed, ev))
		},
		ProcessingError: func(ev bus.ProcessingError) {
			c.SendEvent(*protocol.NewEvent(protocol.EventProcessingError, ev))
		},
	})

	slog.Info("dashboard client connected", "id", c.id)
}

func (s *Server) unregisterClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
	s.bus.Unsubscribe(c.id)
	slog.Info("dashboard client disconnected", "id", c.id)
}
