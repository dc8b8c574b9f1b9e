package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/spigell/job-radar/internal/utils"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 30 * time.Second
)

// RetryPolicy bounds how often and how patiently a transient failure is
// retried.
type RetryPolicy struct {
	MaxAttempts int           `mapstructure:"max-attempts" validate:"gte=1"`
	BaseDelay   time.Duration `mapstructure:"base-delay"`
	MaxDelay    time.Duration `mapstructure:"max-delay"`

	// Classify returns true for failures worth retrying.
	Classify func(error) bool `mapstructure:"-"`
	// Sleep waits between attempts; utils.WaitFor when nil.
	Sleep func(context.Context, time.Duration) error `mapstructure:"-"`
	// Jitter returns a value in [0, 1); rand.Float64 when nil.
	Jitter func() float64 `mapstructure:"-"`
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.Sleep == nil {
		p.Sleep = utils.WaitFor
	}
	if p.Jitter == nil {
		p.Jitter = rand.Float64
	}
	return p
}

// Backoff is the exponential ceiling for the given 1-based retry number with
// jitter spread over its upper half, so every retry waits at least a bit.
func (p RetryPolicy) Backoff(retry int) time.Duration {
	p = p.withDefaults()
	ceiling := p.BaseDelay
	for i := 1; i < retry && ceiling < p.MaxDelay; i++ {
		ceiling *= 2
	}
	if ceiling > p.MaxDelay {
		ceiling = p.MaxDelay
	}
	half := ceiling / 2
	return half + time.Duration(p.Jitter()*float64(ceiling-half))
}

// Retry runs fn until it succeeds, fails permanently, attempts run out or ctx
// is done. It returns the number of attempts made together with the last error.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) (int, error) {
	policy = policy.withDefaults()

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if policy.Classify == nil || !policy.Classify(err) {
			return attempt, err
		}
		if attempt >= policy.MaxAttempts {
			return attempt, err
		}
		if ctx.Err() != nil {
			return attempt, errors.Join(err, ctx.Err())
		}
		if waitErr := policy.Sleep(ctx, policy.Backoff(attempt)); waitErr != nil {
			return attempt, errors.Join(err, waitErr)
		}
	}
}
