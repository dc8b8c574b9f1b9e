package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spigell/job-radar/internal/jobs"
)

// Weights are the heuristic rule weights. Penalties are positive numbers
// subtracted from the score.
type Weights struct {
	RoleMatch          float64       `mapstructure:"role-match" validate:"gte=0"`
	StageMatch         float64       `mapstructure:"stage-match" validate:"gte=0"`
	EquityMention      float64       `mapstructure:"equity-mention" validate:"gte=0"`
	SkillMatch         float64       `mapstructure:"skill-match" validate:"gte=0"`
	SkillCap           float64       `mapstructure:"skill-cap" validate:"gte=0"`
	Recent             float64       `mapstructure:"recent" validate:"gte=0"`
	RecentWindow       time.Duration `mapstructure:"recent-window"`
	SeniorityPenalty   float64       `mapstructure:"seniority-penalty" validate:"gte=0"`
	CompanySizePenalty float64       `mapstructure:"company-size-penalty" validate:"gte=0"`
}

func DefaultWeights() Weights {
	return Weights{
		RoleMatch:          40,
		StageMatch:         15,
		EquityMention:      15,
		SkillMatch:         4,
		SkillCap:           20,
		Recent:             10,
		RecentWindow:       7 * 24 * time.Hour,
		SeniorityPenalty:   25,
		CompanySizePenalty: 15,
	}
}

// HeuristicResult is the deterministic part of a score.
type HeuristicResult struct {
	Score   float64
	Reasons []jobs.Reason
	Signals []jobs.Signal
}

// Heuristic scores postings with keyword rules only. It never does I/O.
type Heuristic struct {
	weights Weights

	roles     keywords
	stage     keywords
	equity    keywords
	skills    keywords
	values    keywords
	seniority keywords
	size      keywords

	now func() time.Time
}

func NewHeuristic(profile *jobs.Profile, weights Weights) *Heuristic {
	return &Heuristic{
		weights:   weights,
		roles:     newKeywords(profile.TargetRoles),
		stage:     newKeywords(profile.StageKeywords),
		equity:    newKeywords(profile.EquityKeywords),
		skills:    newKeywords(profile.Skills),
		values:    newKeywords(profile.ValuePropositions),
		seniority: newKeywords(profile.SeniorityExclusions),
		size:      newKeywords(profile.CompanySizeExclusions),
		now:       time.Now,
	}
}

func (h *Heuristic) Evaluate(p jobs.Posting) HeuristicResult {
	var res HeuristicResult
	w := h.weights
	text := strings.Join([]string{p.Title, p.Company, p.Description}, "\n")

	add := func(signal jobs.Signal, weight float64, text, point string) {
		res.Score += weight
		res.Signals = append(res.Signals, signal)
		res.Reasons = append(res.Reasons, jobs.Reason{Signal: signal, Text: text, Point: point, Weight: weight, Positive: true})
	}
	subtract := func(signal jobs.Signal, weight float64, text string) {
		res.Score -= weight
		res.Signals = append(res.Signals, signal)
		res.Reasons = append(res.Reasons, jobs.Reason{Signal: signal, Text: text, Weight: -weight})
	}

	if m := h.roles.Match(p.Title); len(m) > 0 {
		add(jobs.SignalRoleMatch, w.RoleMatch,
			fmt.Sprintf("title matches target role %q", m[0]),
			fmt.Sprintf("%s is exactly the kind of role I am looking for", m[0]))
	}
	if m := h.stage.Match(text); len(m) > 0 {
		add(jobs.SignalStageMatch, w.StageMatch,
			fmt.Sprintf("company stage signal: %s", strings.Join(m, ", ")),
			fmt.Sprintf("I like building at the %s stage", m[0]))
	}
	if m := h.equity.Match(text); len(m) > 0 {
		add(jobs.SignalEquityMention, w.EquityMention,
			fmt.Sprintf("equity mentioned: %s", strings.Join(m, ", ")),
			"Ownership matters to me and the offer includes "+m[0])
	}
	// Skills and value propositions share one cap.
	skills, values := h.skills.Match(text), h.values.Match(text)
	if n := len(skills) + len(values); n > 0 {
		var texts, points []string
		if len(skills) > 0 {
			texts = append(texts, "matched skills: "+strings.Join(skills, ", "))
			points = append(points, "Hands-on experience with "+strings.Join(skills, ", "))
		}
		if len(values) > 0 {
			texts = append(texts, "matched value propositions: "+strings.Join(values, ", "))
			points = append(points, "I bring "+strings.Join(values, ", "))
		}
		add(jobs.SignalSkillsMatch, math.Min(float64(n)*w.SkillMatch, w.SkillCap),
			strings.Join(texts, "; "), strings.Join(points, ". "))
	}
	if p.PostedAt != nil && w.RecentWindow > 0 {
		if age := h.now().Sub(*p.PostedAt); age >= -time.Hour && age <= w.RecentWindow {
			add(jobs.SignalRecent, w.Recent,
				fmt.Sprintf("posted %s ago", age.Round(time.Hour)),
				"I am reaching out while the role is fresh")
		}
	}
	if m := h.seniority.Match(p.Title); len(m) > 0 {
		subtract(jobs.SignalSeniorityMismatch, w.SeniorityPenalty,
			fmt.Sprintf("seniority mismatch: %s", strings.Join(m, ", ")))
	}
	if m := h.size.Match(text); len(m) > 0 {
		subtract(jobs.SignalCompanySize, w.CompanySizePenalty,
			fmt.Sprintf("undesired company size: %s", strings.Join(m, ", ")))
	}

	res.Score = clamp(res.Score)
	return res
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
