package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spigell/job-radar/internal/ai"
	"github.com/spigell/job-radar/internal/logger"
	"github.com/spigell/job-radar/internal/metrics"
	"github.com/spigell/job-radar/internal/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultAITimeout = 60 * time.Second
	defaultCacheTTL  = 24 * time.Hour
	defaultLogLength = 200
)

// Chain is the ordered list of models tried for every AI request.
type Chain []string

func (c Chain) Validate() error {
	if len(c) == 0 {
		return errors.New("fallback chain must name at least one model")
	}
	seen := make(map[string]struct{}, len(c))
	for i, model := range c {
		model = strings.TrimSpace(model)
		if model == "" {
			return fmt.Errorf("fallback chain entry %d is empty", i)
		}
		if _, ok := seen[model]; ok {
			return fmt.Errorf("fallback chain lists %q twice", model)
		}
		seen[model] = struct{}{}
	}
	return nil
}

// AIRequest is what scoring and generation ask for. TemplateID and Prompt
// together form the cache key.
type AIRequest struct {
	TemplateID string
	Prompt     string
	System     string
	// JobID only decorates logs.
	JobID string
	// Validate rejects replies the caller cannot use. A rejected reply counts
	// as a failure of that model and is never cached.
	Validate func(text string) error
}

// ModelFailure records why one model in the chain did not answer.
type ModelFailure struct {
	Model    string
	Attempts int
	Err      string
}

// Reply is the outcome of an AI call. Available false is the "AI unavailable"
// signal; callers must degrade instead of failing.
type Reply struct {
	Text      string
	Model     string
	Available bool
	Cached    bool
	Failures  []ModelFailure

	// interrupted marks a walk cut short by its caller's context.
	interrupted bool
}

type cachedReply struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type AIConfig struct {
	Chain    Chain
	Timeout  time.Duration
	Retry    RetryPolicy
	CacheTTL time.Duration
	// MaxLogLength bounds prompt and reply previews in debug logs.
	MaxLogLength int
}

// AI mediates every call to an AI provider: cache, rate limit, retries and
// the fallback chain.
type AI struct {
	provider  ai.Provider
	chain     Chain
	timeout   time.Duration
	retry     RetryPolicy
	ttl       time.Duration
	maxLogLen int

	cache    Cache
	limiters *Limiters
	flight   singleflight.Group

	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewAI(provider ai.Provider, cfg AIConfig, cache Cache, limiters *Limiters, log *zap.Logger, m *metrics.Metrics) (*AI, error) {
	if provider == nil {
		return nil, errors.New("ai provider is required")
	}
	if err := cfg.Chain.Validate(); err != nil {
		return nil, err
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultAITimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.MaxLogLength <= 0 {
		cfg.MaxLogLength = defaultLogLength
	}
	if cfg.Retry.Classify == nil {
		cfg.Retry.Classify = func(err error) bool {
			return ai.IsTransient(err) || errors.Is(err, ErrRateLimited)
		}
	}
	if cache == nil {
		cache = NewMemoryCache()
	}

	return &AI{
		provider:  provider,
		chain:     cfg.Chain,
		timeout:   cfg.Timeout,
		retry:     cfg.Retry,
		ttl:       cfg.CacheTTL,
		maxLogLen: cfg.MaxLogLength,
		cache:     cache,
		limiters:  limiters,
		logger:    logger.WithCommonFields(log, provider.Name(), ""),
		metrics:   m,
	}, nil
}

// Call never returns an error: the worst outcome is Reply{Available: false}.
// Identical concurrent requests share one walk of the chain. When the caller
// leading that walk is cancelled, the others start their own.
func (a *AI) Call(ctx context.Context, req AIRequest) Reply {
	log := a.logger.With(zap.String(logger.FieldTemplate, req.TemplateID))
	if req.JobID != "" {
		log = log.With(zap.String(logger.FieldJob, req.JobID))
	}

	key := Key(req.TemplateID, req.System, req.Prompt)

	if reply, ok := a.lookup(ctx, key, req, log); ok {
		return reply
	}

	v, _, shared := a.flight.Do(key, func() (any, error) {
		// Another caller may have filled the cache while we were queued.
		if reply, ok := a.lookup(ctx, key, req, log); ok {
			return reply, nil
		}
		return a.walk(ctx, key, req, log), nil
	})

	reply := v.(Reply)
	if shared && reply.interrupted && ctx.Err() == nil {
		log.Debug("ai leader cancelled, retrying on own context")
		return a.Call(ctx, req)
	}
	reply.interrupted = false
	return reply
}

func (a *AI) lookup(ctx context.Context, key string, req AIRequest, log *zap.Logger) (Reply, bool) {
	raw, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		log.Warn("ai cache lookup failed", zap.Error(err))
		return Reply{}, false
	}
	if !ok {
		a.metrics.CacheLookup(false)
		return Reply{}, false
	}

	var cached cachedReply
	if err := json.Unmarshal([]byte(raw), &cached); err != nil || cached.Text == "" {
		log.Warn("ignoring unreadable ai cache entry", zap.Error(err))
		return Reply{}, false
	}
	if req.Validate != nil && req.Validate(cached.Text) != nil {
		return Reply{}, false
	}

	a.metrics.CacheLookup(true)
	log.Debug("ai cache hit", zap.String(logger.FieldModel, cached.Model))
	return Reply{Text: cached.Text, Model: cached.Model, Available: true, Cached: true}, true
}

func (a *AI) walk(ctx context.Context, key string, req AIRequest, log *zap.Logger) Reply {
	var failures []ModelFailure

	log.Debug("ai request",
		zap.Int("prompt_length", utf8.RuneCountInString(req.Prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(req.Prompt, a.maxLogLen)),
	)

	for _, model := range a.chain {
		if ctx.Err() != nil {
			break
		}

		modelLog := logger.WithFields(log, logger.CommonFields("", model)...)

		var text string
		attempts, err := Retry(ctx, a.retry, func(ctx context.Context) error {
			if err := a.limiters.Wait(ctx, AIKey(a.provider.Name())); err != nil {
				return err
			}

			callCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			resp, err := a.provider.Generate(callCtx, ai.Request{Prompt: req.Prompt, System: req.System, Model: model})
			if err != nil {
				return err
			}
			if strings.TrimSpace(resp.Text) == "" {
				return ai.ErrEmptyResponse
			}
			if req.Validate != nil {
				if err := req.Validate(resp.Text); err != nil {
					return fmt.Errorf("reply rejected: %w", err)
				}
			}
			text = resp.Text
			return nil
		})

		if err != nil {
			a.metrics.AICall(req.TemplateID, model, "failed")
			modelLog.Warn("ai model failed, trying next in chain", zap.Int("attempts", attempts), zap.Error(err))
			failures = append(failures, ModelFailure{Model: model, Attempts: attempts, Err: err.Error()})
			continue
		}

		a.metrics.AICall(req.TemplateID, model, "ok")
		modelLog.Debug("ai response",
			zap.Int("attempts", attempts),
			zap.Int("response_length", utf8.RuneCountInString(text)),
			zap.String("response_preview", utils.TruncateForLog(text, a.maxLogLen)),
		)

		payload, _ := json.Marshal(cachedReply{Model: model, Text: text})
		if err := a.cache.Set(ctx, key, string(payload), a.ttl); err != nil {
			modelLog.Warn("storing ai reply in cache failed", zap.Error(err))
		}

		return Reply{Text: text, Model: model, Available: true, Failures: failures}
	}

	log.Warn("ai unavailable", zap.Int("models_tried", len(failures)))
	return Reply{Available: false, Failures: failures, interrupted: ctx.Err() != nil}
}
