package outreach

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	_ "embed"

	"github.com/spigell/job-radar/internal/jobs"
	"github.com/spigell/job-radar/internal/metrics"
	"github.com/spigell/job-radar/internal/resilience"

	"go.uber.org/zap"
)

// TemplateID keys outreach prompts in the AI cache.
const TemplateID = "outreach-v1"

var (
	//go:embed prompt.md
	promptTemplate string

	//go:embed fallback.tmpl
	fallbackSource string

	fallback = template.Must(template.New("fallback").Parse(fallbackSource))
)

var ErrMissingElement = errors.New("required element missing")

// AICaller is the part of resilience.AI the generator needs.
type AICaller interface {
	Call(ctx context.Context, req resilience.AIRequest) resilience.Reply
}

// Generator writes outreach bodies. Both paths carry the proof point and the
// call to action; only the prose differs.
type Generator struct {
	ai      AICaller
	profile *jobs.Profile
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewGenerator accepts a nil caller, in which case every body comes from the
// template.
func NewGenerator(caller AICaller, profile *jobs.Profile, logger *zap.Logger, m *metrics.Metrics) (*Generator, error) {
	if profile == nil {
		return nil, errors.New("candidate profile is required")
	}
	if strings.TrimSpace(profile.ProofPoint()) == "" {
		return nil, fmt.Errorf("%w: proof point", ErrMissingElement)
	}
	if strings.TrimSpace(profile.CallToAction) == "" {
		return nil, fmt.Errorf("%w: call to action", ErrMissingElement)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{ai: caller, profile: profile, logger: logger, metrics: m, now: time.Now}, nil
}

func (g *Generator) Generate(ctx context.Context, p jobs.Posting, score jobs.ScoreResult) jobs.Content {
	log := g.logger.With(zap.String("job_id", p.ID))

	if g.ai != nil {
		reply := g.ai.Call(ctx, resilience.AIRequest{
			TemplateID: TemplateID,
			Prompt:     g.prompt(p, score),
			JobID:      p.ID,
			Validate:   g.Check,
		})
		if reply.Available {
			g.metrics.Content(string(jobs.ContentAI))
			return jobs.Content{
				Body:        strings.TrimSpace(reply.Text),
				Source:      jobs.ContentAI,
				Model:       reply.Model,
				GeneratedAt: g.now(),
			}
		}
		log.Info("ai outreach unavailable, rendering template", zap.Int("models_failed", len(reply.Failures)))
	}

	body, err := g.render(p)
	if err != nil {
		// The template only interpolates strings; keep the output non-empty
		// even if it somehow fails.
		log.Error("rendering outreach template", zap.Error(err))
		body = g.minimal(p)
	}
	g.metrics.Content(string(jobs.ContentTemplate))

	return jobs.Content{Body: body, Source: jobs.ContentTemplate, GeneratedAt: g.now()}
}

// Check reports whether the body carries every required element.
func (g *Generator) Check(body string) error {
	var missing []string
	if strings.TrimSpace(body) == "" {
		missing = append(missing, "body")
	}
	if !containsFold(body, g.profile.ProofPoint()) {
		missing = append(missing, "proof point")
	}
	if !containsFold(body, g.profile.CallToAction) {
		missing = append(missing, "call to action")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingElement, strings.Join(missing, ", "))
	}
	return nil
}

func (g *Generator) prompt(p jobs.Posting, score jobs.ScoreResult) string {
	profileJSON, _ := json.MarshalIndent(g.profile, "", "  ")
	postingJSON, _ := json.MarshalIndent(map[string]any{
		"title":       p.Title,
		"company":     p.Company,
		"location":    p.Location,
		"url":         p.URL,
		"description": p.Description,
		"fit_score":   int(score.CombinedScore + 0.5),
		"priority":    score.IsPriority,
	}, "", "  ")

	points := "- none"
	if len(p.TalkingPoints) > 0 {
		points = "- " + strings.Join(p.TalkingPoints, "\n- ")
	}

	replacer := strings.NewReplacer(
		"{{PROOF_POINT}}", g.profile.ProofPoint(),
		"{{CALL_TO_ACTION}}", g.profile.CallToAction,
		"{{PROFILE_JSON}}", string(profileJSON),
		"{{POSTING_JSON}}", string(postingJSON),
		"{{TALKING_POINTS}}", points,
	)
	return replacer.Replace(promptTemplate)
}

type fallbackData struct {
	Company       string
	Title         string
	TalkingPoints []string
	ProofPoint    string
	CallToAction  string
	Name          string
	Contact       string
}

func (g *Generator) render(p jobs.Posting) (string, error) {
	var buf bytes.Buffer
	err := fallback.Execute(&buf, fallbackData{
		Company:       p.Company,
		Title:         p.Title,
		TalkingPoints: p.TalkingPoints,
		ProofPoint:    g.profile.ProofPoint(),
		CallToAction:  g.profile.CallToAction,
		Name:          g.profile.Name,
		Contact:       g.profile.Contact,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func (g *Generator) minimal(p jobs.Posting) string {
	return fmt.Sprintf("Hi %s team,\n\n%s\n\n%s", p.Company, g.profile.ProofPoint(), g.profile.CallToAction)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(normalizeSpace(s)), strings.ToLower(normalizeSpace(sub)))
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
