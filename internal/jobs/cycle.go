package jobs

import (
	"time"
)

type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomePartial   OutcomeStatus = "partial"
)

// AdapterOutcome summarises what one adapter did during a cycle.
type AdapterOutcome struct {
	Source    string        `json:"source"`
	Status    OutcomeStatus `json:"status"`
	Count     int           `json:"count"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Attempts  int           `json:"attempts"`
	Duration  time.Duration `json:"duration"`
}

// ScoredEntry is the compact form of a top-K job kept in the cycle log.
type ScoredEntry struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Company        string        `json:"company"`
	URL            string        `json:"url,omitempty"`
	HeuristicScore float64       `json:"heuristic_score"`
	AIScore        *float64      `json:"ai_score"`
	CombinedScore  float64       `json:"combined_score"`
	IsPriority     bool          `json:"is_priority"`
	ContentSource  ContentSource `json:"content_source,omitempty"`
	Content        string        `json:"content,omitempty"`
}

// CycleRecord is the append-only log entry of one orchestration pass.
type CycleRecord struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	Outcomes []AdapterOutcome `json:"outcomes"`

	RawCount            int `json:"raw_count"`
	CollapsedDuplicates int `json:"collapsed_duplicates"`
	MalformedDropped    int `json:"malformed_dropped"`
	Filtered            int `json:"filtered"`
	NewPostings         int `json:"new_postings"`
	Scored              int `json:"scored"`
	AIUnavailable       int `json:"ai_unavailable"`

	TopScored         []ScoredEntry `json:"top_scored"`
	TemplateFallbacks []string      `json:"template_fallbacks,omitempty"`

	Dispatched       int      `json:"dispatched"`
	DispatchFailures []string `json:"dispatch_failures,omitempty"`

	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abort_reason,omitempty"`
}

// FailedSources lists adapters that did not fully succeed, with their reason.
func (r *CycleRecord) FailedSources() map[string]string {
	failed := make(map[string]string)
	for _, o := range r.Outcomes {
		if o.Status == OutcomeSucceeded {
			continue
		}
		failed[o.Source] = o.Detail
	}
	return failed
}

func (r *CycleRecord) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
