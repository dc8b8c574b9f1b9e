package scoring

import (
	"context"
	"fmt"

	"github.com/spigell/job-radar/internal/jobs"

	"go.uber.org/zap"
)

// Engine scores postings. The AI half is optional: a nil Semantic scores with
// the heuristic only.
type Engine struct {
	heuristic *Heuristic
	semantic  *Semantic
	policy    Policy
	logger    *zap.Logger
}

func NewEngine(h *Heuristic, s *Semantic, policy Policy, logger *zap.Logger) (*Engine, error) {
	if h == nil {
		return nil, fmt.Errorf("heuristic scorer is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("scoring policy: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{heuristic: h, semantic: s, policy: policy, logger: logger}, nil
}

// Score returns the posting enriched with talking points and its score.
// Positive heuristic reasons come first, AI highlights after them.
func (e *Engine) Score(ctx context.Context, p jobs.Posting) (jobs.Posting, jobs.ScoreResult) {
	h := e.heuristic.Evaluate(p)

	result := jobs.ScoreResult{
		HeuristicScore: h.Score,
		Reasons:        append([]jobs.Reason(nil), h.Reasons...),
		Signals:        append([]jobs.Signal(nil), h.Signals...),
	}

	var highlights []string
	if e.semantic != nil {
		if assessment, ok := e.semantic.Assess(ctx, p); ok {
			score := clamp(assessment.Score)
			result.AIScore = &score
			result.AIRationale = assessment.Rationale
			result.AIModel = assessment.Model
			result.Signals = append(result.Signals, jobs.SignalAIAssessment)
			result.Reasons = append(result.Reasons, jobs.Reason{
				Signal:   jobs.SignalAIAssessment,
				Text:     fmt.Sprintf("ai fit %.0f: %s", score, assessment.Rationale),
				Positive: score >= e.policy.ScoreFloor,
			})
			highlights = assessment.Highlights
		}
	}

	result.CombinedScore = e.policy.Combine(result.HeuristicScore, result.AIScore)
	if result.CombinedScore >= e.policy.ScoreFloor {
		result.Signals = append(result.Signals, jobs.SignalScoreAboveFloor)
		result.Reasons = append(result.Reasons, jobs.Reason{
			Signal:   jobs.SignalScoreAboveFloor,
			Text:     fmt.Sprintf("combined score %.0f at or above %.0f", result.CombinedScore, e.policy.ScoreFloor),
			Positive: true,
		})
	}
	result.IsPriority = e.policy.Priority(result.Signals)

	e.logger.Debug("posting scored",
		zap.String("job_id", p.ID),
		zap.Float64("heuristic", result.HeuristicScore),
		zap.Bool("ai", result.AIScore != nil),
		zap.Float64("combined", result.CombinedScore),
		zap.Bool("priority", result.IsPriority),
	)

	return p.WithTalkingPoints(talkingPoints(h.Reasons, highlights)), result
}

func talkingPoints(reasons []jobs.Reason, highlights []string) []string {
	var points []string
	for _, r := range reasons {
		if !r.Positive {
			continue
		}
		if r.Point != "" {
			points = append(points, r.Point)
			continue
		}
		points = append(points, r.Text)
	}
	return append(points, highlights...)
}
