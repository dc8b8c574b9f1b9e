package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	_ "embed"

	"github.com/spigell/job-radar/internal/jobs"
	"github.com/spigell/job-radar/internal/resilience"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// TemplateID keys the semantic scoring prompt in the AI cache. Bump it when
// prompt.md changes meaning.
const TemplateID = "score-v1"

//go:embed prompt.md
var promptTemplate string

const assessmentSchema = `{
	"type": "object",
	"required": ["score", "rationale"],
	"properties": {
		"score": {"type": "number", "minimum": 0, "maximum": 100},
		"rationale": {"type": "string", "minLength": 1},
		"highlights": {"type": "array", "items": {"type": "string"}, "maxItems": 5}
	}
}`

var schema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(assessmentSchema))
	if err != nil {
		panic(fmt.Sprintf("compile assessment schema: %v", err))
	}
	return s
}()

// AICaller is the part of resilience.AI the scorer needs.
type AICaller interface {
	Call(ctx context.Context, req resilience.AIRequest) resilience.Reply
}

// Assessment is the AI opinion about one posting.
type Assessment struct {
	Score      float64
	Rationale  string
	Highlights []string
	Model      string
	Cached     bool
}

type Semantic struct {
	ai      AICaller
	profile string
	logger  *zap.Logger
}

func NewSemantic(caller AICaller, profile *jobs.Profile, logger *zap.Logger) (*Semantic, error) {
	payload, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Semantic{ai: caller, profile: string(payload), logger: logger}, nil
}

// Assess returns false when the AI signal is unavailable. That is not an
// error: the heuristic score stands on its own.
func (s *Semantic) Assess(ctx context.Context, p jobs.Posting) (*Assessment, bool) {
	posting := map[string]any{
		"title":       p.Title,
		"company":     p.Company,
		"location":    p.Location,
		"description": p.Description,
	}
	postingJSON, err := json.MarshalIndent(posting, "", "  ")
	if err != nil {
		s.logger.Warn("marshal posting for ai", zap.String("job_id", p.ID), zap.Error(err))
		return nil, false
	}

	reply := s.ai.Call(ctx, resilience.AIRequest{
		TemplateID: TemplateID,
		Prompt:     buildPrompt(s.profile, string(postingJSON)),
		JobID:      p.ID,
		Validate: func(text string) error {
			_, err := parseAssessment(text)
			return err
		},
	})
	if !reply.Available {
		return nil, false
	}

	assessment, err := parseAssessment(reply.Text)
	if err != nil {
		s.logger.Warn("ai assessment unreadable", zap.String("job_id", p.ID), zap.Error(err))
		return nil, false
	}
	assessment.Model = reply.Model
	assessment.Cached = reply.Cached

	return assessment, true
}

func buildPrompt(profileJSON, postingJSON string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Profile:\n{{PROFILE_JSON}}\n\nPosting:\n{{POSTING_JSON}}\n\nJSON Response:"
	}
	prompt := strings.ReplaceAll(template, "{{PROFILE_JSON}}", profileJSON)
	prompt = strings.ReplaceAll(prompt, "{{POSTING_JSON}}", postingJSON)
	return prompt
}

// parseAssessment tolerates code fences and stringly typed numbers, then
// checks the normalized document against the schema.
func parseAssessment(raw string) (*Assessment, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse ai response: %w", err)
	}

	doc := map[string]any{
		"rationale":  coerceString(data["rationale"]),
		"highlights": coerceStrings(data["highlights"]),
	}
	if score := coerceFloat(data["score"]); !math.IsNaN(score) {
		doc["score"] = score
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validate ai response: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, errors.New("ai response does not match schema: " + strings.Join(msgs, "; "))
	}

	return &Assessment{
		Score:      doc["score"].(float64),
		Rationale:  doc["rationale"].(string),
		Highlights: doc["highlights"].([]string),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)
	// Models sometimes wrap the object in prose.
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start > 0 && end > start {
		raw = raw[start : end+1]
	}
	return raw
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSuffix(strings.TrimSpace(val), "%")
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

func coerceStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s := coerceString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
