package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/nextlevelbuilder/taskpulse/internal/bus"
	"github.com/nextlevelbuilder/taskpulse/internal/channels"
	"github.com/nextlevelbuilder/taskpulse/internal/channels/slack"
	"github.com/nextlevelbuilder/taskpulse/internal/config"
	"github.com/nextlevelbuilder/taskpulse/internal/gateway"
	"github.com/nextlevelbuilder/taskpulse/internal/pipeline"
	"github.com/nextlevelbuilder/taskpulse/internal/store"
	"github.com/nextlevelbuilder/taskpulse/internal/store/pg"
	"github.com/nextlevelbuilder/taskpulse/internal/store/sqlite"
	"github.com/nextlevelbuilder/taskpulse/internal/tracing"
)

func runGateway() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	tasks, err := openTaskStore(cfg)
	if err != nil {
		slog.Error("failed to open task store", "error", err)
		os.Exit(1)
	}
	defer tasks.Close()

	eventBus := bus.New()

	classifier := pipeline.NewClassifier(cfg.TaskService.URL, cfg.TaskService.APIKey, cfg.ProcessingTimeout())
	pipe := pipeline.New(classifier, eventBus, tasks, pipeline.Options{
		MinConfidence:     cfg.Pipeline.MinConfidenceThreshold,
		ProcessingTimeout: cfg.ProcessingTimeout(),
		DesktopEnabled:    cfg.Delivery.DesktopEnabled,
		SlackEnabled:      cfg.Delivery.SlackEnabled,
		DispatchWorkers:   cfg.Pipeline.DispatchWorkers,
	})

	// Slack delivery collaborator.
	if cfg.Delivery.SlackEnabled {
		sender := slack.NewSender(cfg.Slack.BotToken, cfg.Slack.APIRoot)
		eventBus.Subscribe("slack-sender", sender.Handlers())
	}

	// Slack intake.
	manager := channels.NewManager()
	intake := slack.NewIntake(slack.IntakeConfig{
		SigningSecret:  cfg.Slack.SigningSecret,
		OrganizationID: cfg.Slack.OrganizationID,
		RatePerSec:     cfg.Slack.IntakeRatePerSec,
		Burst:          cfg.Slack.IntakeBurst,
	}, pipe)
	manager.Register(intake)
	manager.StartAll(ctx)
	defer manager.StopAll(context.Background())

	// Config hot-reload for the tunable subset.
	go func() {
		if err := config.Watch(ctx, cfgPath, func(t config.Tunables) {
			pipe.SetMinConfidence(t.MinConfidenceThreshold)
			pipe.SetDeliveryFlags(t.DesktopEnabled, t.SlackEnabled)
		}); err != nil {
			slog.Warn("config watcher unavailable", "error", err)
		}
	}()

	srv := gateway.NewServer(cfg, eventBus, pipe, tasks, intake.Handler())

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		slog.Info("shutting down")
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		slog.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}

func openTaskStore(cfg *config.Config) (store.TaskStore, error) {
	if cfg.UsesPostgres() {
		db, err := pg.OpenDB(cfg.Database.PostgresDSN)
		if err != nil {
			return nil, err
		}
		slog.Info("task store: postgres")
		return pg.NewPGTaskStore(db), nil
	}
	if cfg.Database.SQLitePath == "" {
		slog.Info("task store: in-memory")
		return store.NewMemoryStore(), nil
	}
	path := expandHome(cfg.Database.SQLitePath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	slog.Info("task store: sqlite", "path", path)
	return sqlite.Open(path)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
