package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/taskpulse/internal/config"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show pipeline counters of a running gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			url := fmt.Sprintf("http://%s:%d/api/stats", cfg.Gateway.Host, cfg.Gateway.Port)
			req, err := http.NewRequest(http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			if cfg.Gateway.Token != "" {
				req.Header.Set("Authorization", "Bearer "+cfg.Gateway.Token)
			}

			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("gateway unreachable at %s: %w", url, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("gateway returned %s", resp.Status)
			}

			var stats struct {
				MessagesProcessed        uint64 `json:"messages_processed"`
				TasksDetected            uint64 `json:"tasks_detected"`
				RecommendationsGenerated uint64 `json:"recommendations_generated"`
				DeliveriesCompleted      uint64 `json:"deliveries_completed"`
				Errors                   uint64 `json:"errors"`
				InFlight                 int    `json:"in_flight"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
				return fmt.Errorf("decode stats: %w", err)
			}

			fmt.Printf("messages processed:        %d\n", stats.MessagesProcessed)
			fmt.Printf("tasks detected:            %d\n", stats.TasksDetected)
			fmt.Printf("recommendations generated: %d\n", stats.RecommendationsGenerated)
			fmt.Printf("deliveries completed:      %d\n", stats.DeliveriesCompleted)
			fmt.Printf("errors:                    %d\n", stats.Errors)
			fmt.Printf("in flight:                 %d\n", stats.InFlight)
			return nil
		},
	}
}
