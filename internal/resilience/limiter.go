package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spigell/job-radar/internal/metrics"

	"golang.org/x/time/rate"
)

// ErrRateLimited means the bucket could not grant a token within the bounded
// wait. It is a transient condition.
var ErrRateLimited = errors.New("rate limited")

// Limit configures one token bucket. A non-positive Rate disables limiting.
type Limit struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

func (l Limit) limiter() *rate.Limiter {
	if l.Rate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := l.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(l.Rate), burst)
}

// Limiters is a registry of token buckets keyed by external dependency, e.g.
// "source:api.hh.ru" or "ai:gemini".
type Limiters struct {
	mu        sync.Mutex
	buckets   map[string]*rate.Limiter
	defaults  Limit
	overrides map[string]Limit
	maxWait   time.Duration
	metrics   *metrics.Metrics
}

func NewLimiters(defaults Limit, overrides map[string]Limit, maxWait time.Duration, m *metrics.Metrics) *Limiters {
	return &Limiters{
		buckets:   make(map[string]*rate.Limiter),
		defaults:  defaults,
		overrides: overrides,
		maxWait:   maxWait,
		metrics:   m,
	}
}

func SourceKey(domain string) string { return "source:" + domain }

func AIKey(provider string) string { return "ai:" + provider }

func (l *Limiters) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		return b
	}

	limit, ok := l.overrides[key]
	if !ok {
		limit = l.defaults
	}
	b := limit.limiter()
	l.buckets[key] = b
	return b
}

// Wait takes one token for key, blocking at most the configured max wait.
func (l *Limiters) Wait(ctx context.Context, key string) error {
	if l == nil {
		return nil
	}

	b := l.bucket(key)
	start := time.Now()
	res := b.Reserve()
	if !res.OK() {
		return fmt.Errorf("%w: %s", ErrRateLimited, key)
	}

	delay := res.Delay()
	if delay == 0 {
		return nil
	}
	if l.maxWait > 0 && delay > l.maxWait {
		res.Cancel()
		return fmt.Errorf("%w: %s needs %s", ErrRateLimited, key, delay)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		res.Cancel()
		return errors.Join(fmt.Errorf("%w: %s", ErrRateLimited, key), ctx.Err())
	case <-timer.C:
		l.metrics.ObserveRateLimitWait(key, time.Since(start))
		return nil
	}
}
