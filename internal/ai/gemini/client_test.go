package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/spigell/job-radar/internal/ai"

	"google.golang.org/genai"
)

type fakeModels struct {
	mu    sync.Mutex
	calls []modelCall
	resp  *genai.GenerateContentResponse
	err   error
}

type modelCall struct {
	model  string
	text   string
	config *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var text string
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		text = contents[0].Parts[0].Text
	}
	f.calls = append(f.calls, modelCall{model: model, text: text, config: config})
	return f.resp, f.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func TestGenerateUsesRequestedModel(t *testing.T) {
	models := &fakeModels{resp: textResponse(" first ", "", "second")}
	g := &Generator{models: models, maxQuotaDelay: time.Second}

	resp, err := g.Generate(context.Background(), ai.Request{Prompt: "score this", System: "be brief", Model: "gemini-2.5-flash"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if resp.Text != "first\nsecond" || resp.Model != "gemini-2.5-flash" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	if len(models.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(models.calls))
	}
	call := models.calls[0]
	if call.model != "gemini-2.5-flash" || call.text != "score this" {
		t.Fatalf("unexpected call: %+v", call)
	}
	if call.config == nil || call.config.SystemInstruction.Parts[0].Text != "be brief" {
		t.Fatalf("expected system instruction to be set")
	}
}

func TestGenerateEmptyResponse(t *testing.T) {
	g := &Generator{models: &fakeModels{resp: textResponse("  ")}}

	_, err := g.Generate(context.Background(), ai.Request{Prompt: "p", Model: "m"})
	if !errors.Is(err, ai.ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestGenerateClassifiesAPIErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{
			name:      "internal error is transient",
			err:       genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"},
			transient: true,
		},
		{
			name:      "short quota delay is transient",
			err:       genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED", Message: "please retry in 2.5s"},
			transient: true,
		},
		{
			name:      "long quota delay in message is permanent",
			err:       genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED", Message: "quota exhausted, retry after 60 seconds"},
			transient: false,
		},
		{
			name: "long quota delay in details is permanent",
			err: genai.APIError{
				Code:    http.StatusTooManyRequests,
				Status:  "RESOURCE_EXHAUSTED",
				Details: []map[string]any{{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "45s"}},
			},
			transient: false,
		},
		{
			name:      "bad request is permanent",
			err:       genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"},
			transient: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Generator{models: &fakeModels{err: tt.err}, maxQuotaDelay: 30 * time.Second}
			_, err := g.Generate(context.Background(), ai.Request{Prompt: "p", Model: "m"})
			if err == nil {
				t.Fatal("expected error")
			}
			var statusErr *ai.StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("expected ai.StatusError, got %T: %v", err, err)
			}
			if got := ai.IsTransient(err); got != tt.transient {
				t.Fatalf("expected transient=%v, got %v (%v)", tt.transient, got, err)
			}
		})
	}
}

func TestGenerateValidatesInput(t *testing.T) {
	g := &Generator{models: &fakeModels{}}
	if _, err := g.Generate(context.Background(), ai.Request{Model: "m"}); err == nil {
		t.Fatal("expected error for empty prompt")
	}
	if _, err := g.Generate(context.Background(), ai.Request{Prompt: "p"}); err == nil {
		t.Fatal("expected error for empty model")
	}
}
