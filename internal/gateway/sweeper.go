package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// runSweeper periodically inspects the pipeline's in-flight map for entries
// older than twice the processing timeout. The pipeline removes entries on
// every terminal path, so anything the sweeper finds points at a stuck
// external call or a bug; it logs the entry and evicts it so diagnostics
// stay readable.
func (s *Server) runSweeper(ctx context.Context) {
	schedule := s.cfg.Pipeline.SweepSchedule
	if schedule == "" {
		schedule = "*/5 * * * *"
	}
	if !gronx.New().IsValid(schedule) {
		slog.Warn("invalid sweep schedule, sweeper disabled", "schedule", schedule)
		return
	}

	for {
		next, err := gronx.NextTick(schedule, false)
		if err != nil {
			slog.Warn("sweep schedule evaluation failed", "error", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}
		s.sweep()
	}
}

func (s *Server) sweep() {
	tracker := s.pipe.Tracker()
	stale := tracker.Stale(2 * s.cfg.ProcessingTimeout())
	for _, st := range stale {
		slog.Warn("evicting stale in-flight message",
			"message_id", st.MessageID,
			"stage", st.Stage,
			"age", time.Since(st.StartTime).Round(time.Second))
		tracker.Evict(st.MessageID)
	}
	if len(stale) > 0 {
		slog.Info("sweep complete", "evicted", len(stale), "in_flight", tracker.InFlight())
	}
}
