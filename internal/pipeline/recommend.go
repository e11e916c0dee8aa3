package pipeline

import (
	"context"
	"log/slog"
)

// recommender is the slice of Classifier the generator needs; split out so
// tests can stub the second AI call independently of classification.
type recommender interface {
	Recommendations(ctx context.Context, enriched EnrichedContext) (map[string]any, error)
}

// RecommendationGenerator attaches AI recommendations to a detected task.
// The confidence gate governs recommendation generation only; a detected
// task below the threshold is still delivered, just without recommendations.
type RecommendationGenerator struct {
	client recommender
}

// NewRecommendationGenerator wires the generator to the recommendation
// endpoint client.
func NewRecommendationGenerator(client recommender) *RecommendationGenerator {
	return &RecommendationGenerator{client: client}
}

// Generate returns recommendations for record, or nil. Embedded
// recommendations from the classifier response are reused without a second
// call. Otherwise the endpoint is consulted only when the confidence score
// clears minConfidence. Failure is non-fatal: warn and return nil.
func (g *RecommendationGenerator) Generate(ctx context.Context, record TaskRecord, minConfidence float64) map[string]any {
	if len(record.Recommendations) > 0 {
		return record.Recommendations
	}
	if record.ConfidenceScore < minConfidence {
		slog.Debug("skipping recommendations below confidence threshold",
			"task_id", record.TaskID, "confidence", record.ConfidenceScore, "threshold", minConfidence)
		return nil
	}

	recs, err := g.client.Recommendations(ctx, record.EnrichedContext)
	if err != nil {
		slog.Warn("recommendation generation degraded", "task_id", record.TaskID, "error", err)
		return nil
	}
	if len(recs) == 0 {
		return nil
	}
	return recs
}
