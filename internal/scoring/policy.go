package scoring

import (
	"errors"
	"fmt"

	"github.com/spigell/job-radar/internal/jobs"
)

// Policy blends the heuristic and AI scores and decides the priority flag.
// When the AI score is absent the combined score is the heuristic score.
type Policy struct {
	HeuristicWeight float64       `mapstructure:"heuristic-weight" validate:"gte=0.5,lte=1"`
	PrioritySignals []jobs.Signal `mapstructure:"priority-signals" validate:"min=1"`
	MinSignals      int           `mapstructure:"min-signals" validate:"gte=1"`
	ScoreFloor      float64       `mapstructure:"score-floor" validate:"gte=0,lte=100"`
}

func DefaultPolicy() Policy {
	return Policy{
		HeuristicWeight: 0.7,
		PrioritySignals: []jobs.Signal{
			jobs.SignalRoleMatch,
			jobs.SignalStageMatch,
			jobs.SignalEquityMention,
			jobs.SignalScoreAboveFloor,
		},
		MinSignals: 3,
		ScoreFloor: 60,
	}
}

func (p Policy) Validate() error {
	if p.HeuristicWeight < 0.5 || p.HeuristicWeight > 1 {
		return fmt.Errorf("heuristic weight %.2f outside [0.5, 1]", p.HeuristicWeight)
	}
	if len(p.PrioritySignals) == 0 {
		return errors.New("priority signals must not be empty")
	}
	if p.MinSignals < 1 || p.MinSignals > len(p.PrioritySignals) {
		return fmt.Errorf("min signals %d must be between 1 and %d", p.MinSignals, len(p.PrioritySignals))
	}
	return nil
}

func (p Policy) Combine(heuristic float64, ai *float64) float64 {
	if ai == nil {
		return clamp(heuristic)
	}
	return clamp(p.HeuristicWeight*heuristic + (1-p.HeuristicWeight)*clamp(*ai))
}

// Priority counts how many of the configured signals hold. A high score alone
// is never enough.
func (p Policy) Priority(signals []jobs.Signal) bool {
	held := make(map[jobs.Signal]struct{}, len(signals))
	for _, s := range signals {
		held[s] = struct{}{}
	}
	count := 0
	for _, want := range p.PrioritySignals {
		if _, ok := held[want]; ok {
			count++
		}
	}
	return count >= p.MinSignals
}
