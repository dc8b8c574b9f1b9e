package gemini

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spigell/job-radar/internal/ai"

	"google.golang.org/genai"
)

const (
	ProviderName = "gemini"

	defaultMaxQuotaDelay = 30 * time.Second
)

type modelService interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator wraps the Google GenAI client and implements ai.Provider.
type Generator struct {
	models modelService
	// Quota errors asking to wait longer than this are not worth retrying.
	maxQuotaDelay time.Duration
}

var _ ai.Provider = (*Generator)(nil)

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey string, maxQuotaDelay time.Duration) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if maxQuotaDelay <= 0 {
		maxQuotaDelay = defaultMaxQuotaDelay
	}

	return &Generator{models: client.Models, maxQuotaDelay: maxQuotaDelay}, nil
}

func (g *Generator) Name() string {
	return ProviderName
}

// Generate sends the prompt to the requested model and joins the textual parts
// of every candidate.
func (g *Generator) Generate(ctx context.Context, req ai.Request) (*ai.Response, error) {
	if g == nil || g.models == nil {
		return nil, errors.New("gemini generator is not initialized")
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("prompt must not be empty")
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		return nil, errors.New("model must not be empty")
	}

	var config *genai.GenerateContentConfig
	if system := strings.TrimSpace(req.System); system != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		}
	}

	resp, err := g.models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return nil, g.classify(err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return nil, ai.ErrEmptyResponse
	}

	return &ai.Response{Text: output, Model: model}, nil
}

// classify turns genai API errors into ai.StatusError so the resilience layer
// can tell transient failures apart.
func (g *Generator) classify(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var ptr *genai.APIError
		if !errors.As(err, &ptr) || ptr == nil {
			return fmt.Errorf("generate content: %w", err)
		}
		apiErr = *ptr
	}

	statusErr := &ai.StatusError{
		Provider: ProviderName,
		Code:     apiErr.Code,
		Status:   apiErr.Status,
		Message:  apiErr.Message,
	}

	if delay, ok := quotaDelay(apiErr); ok && delay > g.maxQuotaDelay {
		statusErr.Permanent = true
	}

	return fmt.Errorf("generate content: %w", statusErr)
}

var retryHint = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*(s|sec|secs|seconds?)?\b`)

// quotaDelay extracts the server-suggested wait from RetryInfo details or the
// error message.
func quotaDelay(apiErr genai.APIError) (time.Duration, bool) {
	for _, detail := range apiErr.Details {
		raw, ok := detail["retryDelay"].(string)
		if !ok {
			continue
		}
		if d, err := time.ParseDuration(raw); err == nil {
			return d, true
		}
	}

	match := retryHint.FindStringSubmatch(apiErr.Message)
	if match == nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}
