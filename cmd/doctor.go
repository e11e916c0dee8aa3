package cmd

import (
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/taskpulse/internal/config"
	"github.com/nextlevelbuilder/taskpulse/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("taskpulse doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, env-only)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Config invalid: %s\n", err)
	}

	fmt.Println()
	fmt.Println("  Task service:")
	if cfg.TaskService.URL == "" {
		fmt.Println("    URL: (not set)")
	} else {
		fmt.Printf("    URL: %s", cfg.TaskService.URL)
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Head(cfg.TaskService.URL)
		if err != nil {
			fmt.Printf(" (UNREACHABLE: %s)\n", err)
		} else {
			resp.Body.Close()
			fmt.Println(" (reachable)")
		}
	}

	fmt.Println()
	fmt.Println("  Delivery:")
	fmt.Printf("    Desktop: %v\n", cfg.Delivery.DesktopEnabled)
	fmt.Printf("    Slack:   %v", cfg.Delivery.SlackEnabled)
	if cfg.Delivery.SlackEnabled && cfg.Slack.BotToken == "" {
		fmt.Print(" (MISSING TASKPULSE_SLACK_BOT_TOKEN)")
	}
	fmt.Println()
	if cfg.Slack.SigningSecret == "" {
		fmt.Println("    Intake signature verification: DISABLED (set TASKPULSE_SLACK_SIGNING_SECRET)")
	}

	fmt.Println()
	fmt.Println("  Database:")
	if cfg.UsesPostgres() {
		fmt.Print("    Postgres: ")
		db, err := sql.Open("pgx", cfg.Database.PostgresDSN)
		if err == nil {
			err = db.Ping()
			db.Close()
		}
		if err != nil {
			fmt.Printf("FAILED (%s)\n", err)
		} else {
			fmt.Println("OK")
		}
	} else if cfg.Database.SQLitePath != "" {
		fmt.Printf("    SQLite: %s\n", cfg.Database.SQLitePath)
	} else {
		fmt.Println("    In-memory (tasks are not persisted)")
	}
}
