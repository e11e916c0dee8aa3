package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/taskpulse/internal/bus"
	"github.com/nextlevelbuilder/taskpulse/internal/store"
)

// Options configures a Pipeline.
type Options struct {
	// MinConfidence gates recommendation generation only; detected tasks
	// below it are still delivered. Default 0.4.
	MinConfidence float64
	// ProcessingTimeout bounds each external AI call. Default 30s.
	ProcessingTimeout time.Duration
	// DesktopEnabled / SlackEnabled are the delivery flags fed to the router.
	DesktopEnabled bool
	SlackEnabled   bool
	// DispatchWorkers bounds concurrent channel dispatches per message.
	DispatchWorkers int
}

// Pipeline turns one raw chat message into zero or more delivered
// notifications. Each ProcessMessage call is independent; many may run
// concurrently. The only shared state is the tracker's in-flight map and
// counters.
type Pipeline struct {
	classifier  *Classifier
	recommender *RecommendationGenerator
	router      *Router
	dispatcher  *Dispatcher
	tracker     *Tracker
	pub         bus.Publisher
	tasks       store.TaskStore
	tracer      trace.Tracer

	minConfidence atomicFloat64
}

// atomicFloat64 stores a float64 behind an atomic for config hot-reload.
type atomicFloat64 struct{ bits atomic.Uint64 }

func (f *atomicFloat64) Store(v float64) { f.bits.Store(math.Float64bits(v)) }
func (f *atomicFloat64) Load() float64   { return math.Float64frombits(f.bits.Load()) }

// New assembles a pipeline from its collaborators. tasks may be nil when
// persistence is disabled.
func New(classifier *Classifier, pub bus.Publisher, tasks store.TaskStore, opts Options) *Pipeline {
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = 0.4
	}
	if opts.ProcessingTimeout <= 0 {
		opts.ProcessingTimeout = 30 * time.Second
	}
	if opts.DispatchWorkers <= 0 {
		opts.DispatchWorkers = 3
	}

	p := &Pipeline{
		classifier:  classifier,
		recommender: NewRecommendationGenerator(classifier),
		router:      NewRouter(opts.DesktopEnabled, opts.SlackEnabled),
		dispatcher:  NewDispatcher(pub, opts.DispatchWorkers),
		tracker:     NewTracker(),
		pub:         pub,
		tasks:       tasks,
		tracer:      otel.Tracer("taskpulse/pipeline"),
	}
	p.minConfidence.Store(opts.MinConfidence)
	return p
}

// Tracker exposes stats and in-flight diagnostics to the gateway.
func (p *Pipeline) Tracker() *Tracker { return p.tracker }

// SetMinConfidence updates the recommendation gate (config hot-reload).
func (p *Pipeline) SetMinConfidence(v float64) {
	if v > 0 {
		p.minConfidence.Store(v)
	}
}

// SetDeliveryFlags updates the router's delivery toggles (config hot-reload).
func (p *Pipeline) SetDeliveryFlags(desktop, slack bool) {
	p.router.SetDeliveryFlags(desktop, slack)
}

// ProcessMessage runs the full detection-and-delivery pipeline for one
// message. Rejections (no keywords, not a task) come back as data in the
// Result; only unexpected failures return an error. Safe to call from many
// goroutines at once.
func (p *Pipeline) ProcessMessage(ctx context.Context, msg RawMessage, mc MessageContext) (res *Result, err error) {
	start := time.Now()
	messageID := MessageID(msg.TS, mc.ChannelID, mc.UserID)

	ctx, span := p.tracer.Start(ctx, "pipeline.process_message",
		trace.WithAttributes(
			attribute.String("message.id", messageID),
			attribute.String("channel.id", mc.ChannelID),
		))
	defer span.End()

	if err := p.tracker.Begin(messageID, msg, mc); err != nil {
		// Duplicate webhook delivery while the first copy is still in
		// flight. Reject; never process the same message twice at once.
		slog.Warn("duplicate message rejected", "message_id", messageID)
		return nil, fmt.Errorf("message %s: %w", messageID, err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
			res = nil
		}
		if err != nil {
			p.tracker.addError()
			p.pub.PublishProcessingError(bus.ProcessingError{MessageID: messageID, Error: err.Error()})
			slog.Error("message processing failed", "message_id", messageID, "error", err)
		}
		p.tracker.End(messageID)
	}()

	p.tracker.addMessageProcessed()

	if !ShouldProcess(msg.Text) {
		return &Result{
			Processed:      false,
			Reason:         ReasonNoTaskKeywords,
			MessageID:      messageID,
			ProcessedAt:    time.Now(),
			ProcessingTime: time.Since(start),
		}, nil
	}

	p.tracker.UpdateStage(messageID, StageClassifying)
	record := p.classify(ctx, msg, mc)

	if !record.IsTask {
		return &Result{
			Processed:      false,
			Reason:         ReasonNotATask,
			MessageID:      messageID,
			Analysis:       &record,
			ProcessedAt:    time.Now(),
			ProcessingTime: time.Since(start),
		}, nil
	}

	p.tracker.addTaskDetected()
	slog.Info("task detected",
		"message_id", messageID,
		"task_id", record.TaskID,
		"confidence", record.ConfidenceScore,
		"urgency", record.EnrichedContext.Urgency,
		"assignee", record.EnrichedContext.Assignee)

	p.tracker.UpdateStage(messageID, StageRecommending)
	recs := p.recommend(ctx, record)
	if recs != nil {
		p.tracker.addRecommendations()
	}

	p.tracker.UpdateStage(messageID, StageDelivering)
	channels := p.router.Route(record.EnrichedContext.Assignee, record.EnrichedContext.Urgency, mc)

	summary := record.EnrichedContext.ActionRequired
	if summary == "" {
		summary = msg.Text
	}
	results := p.dispatch(ctx, channels, DeliveryData{
		TaskID:          record.TaskID,
		Assignee:        record.EnrichedContext.Assignee,
		TaskSummary:     summary,
		Urgency:         record.EnrichedContext.Urgency,
		Recommendations: recs,
	})

	delivered := 0
	for _, r := range results {
		if r.Success {
			delivered++
		}
	}
	p.tracker.addDeliveries(delivered)

	processedAt := time.Now()
	if p.tasks != nil {
		task := &store.ProcessedTask{
			TaskID:          record.TaskID,
			MessageID:       messageID,
			OrganizationID:  mc.OrganizationID,
			ChannelID:       mc.ChannelID,
			ChannelName:     mc.ChannelName,
			Assignee:        record.EnrichedContext.Assignee,
			Urgency:         record.EnrichedContext.Urgency,
			Confidence:      record.ConfidenceScore,
			Summary:         summary,
			ActionRequired:  record.EnrichedContext.ActionRequired,
			Recommendations: recs,
			DeliveryResults: results,
			ProcessedAt:     processedAt,
		}
		if err := p.tasks.SaveTask(ctx, task); err != nil {
			return nil, fmt.Errorf("save task %s: %w", record.TaskID, err)
		}
	}

	p.tracker.UpdateStage(messageID, StageCompleted)

	elapsed := time.Since(start)
	p.pub.PublishTaskProcessed(bus.TaskProcessed{
		MessageID:          messageID,
		TaskID:             record.TaskID,
		Processed:          true,
		IsTask:             true,
		ConfidenceScore:    record.ConfidenceScore,
		HasRecommendations: recs != nil,
		DeliveryResults:    results,
		ProcessedAt:        processedAt,
		ProcessingTimeMS:   elapsed.Milliseconds(),
	})

	return &Result{
		Processed:       true,
		MessageID:       messageID,
		TaskID:          record.TaskID,
		Analysis:        &record,
		Recommendations: recs,
		DeliveryResults: results,
		ProcessedAt:     processedAt,
		ProcessingTime:  elapsed,
	}, nil
}

func (p *Pipeline) classify(ctx context.Context, msg RawMessage, mc MessageContext) TaskRecord {
	ctx, span := p.tracer.Start(ctx, "pipeline.classify")
	defer span.End()
	record := p.classifier.Classify(ctx, msg, mc)
	span.SetAttributes(
		attribute.Bool("task.is_task", record.IsTask),
		attribute.Float64("task.confidence", record.ConfidenceScore),
	)
	return record
}

func (p *Pipeline) recommend(ctx context.Context, record TaskRecord) map[string]any {
	ctx, span := p.tracer.Start(ctx, "pipeline.recommend")
	defer span.End()
	return p.recommender.Generate(ctx, record, p.minConfidence.Load())
}

func (p *Pipeline) dispatch(ctx context.Context, channels []DeliveryChannel, data DeliveryData) []bus.DeliveryOutcome {
	ctx, span := p.tracer.Start(ctx, "pipeline.dispatch",
		trace.WithAttributes(attribute.Int("delivery.channels", len(channels))))
	defer span.End()
	return p.dispatcher.Dispatch(ctx, channels, data)
}
