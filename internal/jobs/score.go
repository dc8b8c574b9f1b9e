package jobs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Signal names a condition the scoring engine detected.
type Signal string

const (
	SignalRoleMatch         Signal = "role-match"
	SignalStageMatch        Signal = "stage-match"
	SignalEquityMention     Signal = "equity-mention"
	SignalSkillsMatch       Signal = "skills-match"
	SignalRecent            Signal = "recent"
	SignalSeniorityMismatch Signal = "seniority-mismatch"
	SignalCompanySize       Signal = "company-size-mismatch"
	SignalScoreAboveFloor   Signal = "score-above-floor"
	SignalAIAssessment      Signal = "ai-assessment"
)

// Reason is one human-readable explanation behind a score.
type Reason struct {
	Signal Signal `json:"signal"`
	Text   string `json:"text"`
	// Point is the same fact phrased for outreach, empty for negative reasons.
	Point    string  `json:"point,omitempty"`
	Weight   float64 `json:"weight"`
	Positive bool    `json:"positive"`
}

// ScoreResult is the scoring outcome for one posting. AIScore is nil when the
// AI signal was unavailable.
type ScoreResult struct {
	HeuristicScore float64  `json:"heuristic_score"`
	AIScore        *float64 `json:"ai_score"`
	CombinedScore  float64  `json:"combined_score"`
	Reasons        []Reason `json:"reasons"`
	Signals        []Signal `json:"signals"`
	IsPriority     bool     `json:"is_priority"`
	AIRationale    string   `json:"ai_rationale,omitempty"`
	AIModel        string   `json:"ai_model,omitempty"`
}

// Has reports whether the signal held.
func (s ScoreResult) Has(signal Signal) bool {
	for _, sig := range s.Signals {
		if sig == signal {
			return true
		}
	}
	return false
}

type ContentSource string

const (
	ContentAI       ContentSource = "ai-generated"
	ContentTemplate ContentSource = "template-fallback"
)

// Content is a generated outreach artifact.
type Content struct {
	Body        string        `json:"body"`
	Source      ContentSource `json:"source"`
	Model       string        `json:"model,omitempty"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Dispatch is the tuple handed to notification sinks.
type Dispatch struct {
	CycleID string      `json:"cycle_id"`
	Posting Posting     `json:"posting"`
	Score   ScoreResult `json:"score"`
	Content Content     `json:"content"`
}

var ErrIncompleteDispatch = errors.New("incomplete dispatch")

// Validate makes sure nothing half-built leaves the process.
func (d Dispatch) Validate() error {
	var missing []string
	if d.Posting.ID == "" {
		missing = append(missing, "posting id")
	}
	if d.Posting.Title == "" || d.Posting.Company == "" {
		missing = append(missing, "posting title/company")
	}
	if strings.TrimSpace(d.Content.Body) == "" {
		missing = append(missing, "content body")
	}
	if d.Content.Source != ContentAI && d.Content.Source != ContentTemplate {
		missing = append(missing, "content source")
	}
	if d.Score.CombinedScore < 0 || d.Score.CombinedScore > 100 {
		missing = append(missing, "combined score in range")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrIncompleteDispatch, strings.Join(missing, ", "))
	}
	return nil
}
