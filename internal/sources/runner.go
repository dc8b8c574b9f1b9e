package sources

import (
	"context"
	"time"

	"github.com/spigell/job-radar/internal/jobs"
	"github.com/spigell/job-radar/internal/logger"
	"github.com/spigell/job-radar/internal/metrics"
	"github.com/spigell/job-radar/internal/resilience"

	"go.uber.org/zap"
)

const defaultFetchTimeout = 30 * time.Second

// Runner runs one adapter fetch under the shared rate limiter, a per call
// timeout and the retry policy.
type Runner struct {
	limiters *resilience.Limiters
	retry    resilience.RetryPolicy
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewRunner(limiters *resilience.Limiters, retry resilience.RetryPolicy, timeout time.Duration, log *zap.Logger, m *metrics.Metrics) *Runner {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	retry.Classify = IsTransient

	return &Runner{
		limiters: limiters,
		retry:    retry,
		timeout:  timeout,
		logger:   logger.WithFields(log),
		metrics:  m,
	}
}

// Run never fails: the outcome carries whatever went wrong. Transient errors
// that survive every retry are reported as permanent for this cycle.
func (r *Runner) Run(ctx context.Context, a Adapter, since Cursor) ([]jobs.RawPosting, jobs.AdapterOutcome) {
	log := logger.WithSource(r.logger, a.Name(), a.Domain())
	start := time.Now()

	var (
		postings []jobs.RawPosting
		partial  error
	)

	attempts, err := resilience.Retry(ctx, r.retry, func(ctx context.Context) error {
		if err := r.limiters.Wait(ctx, resilience.SourceKey(a.Domain())); err != nil {
			return FromError(a.Name(), err)
		}

		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		got, err := a.Fetch(callCtx, since)
		if err != nil && len(got) > 0 {
			postings, partial = got, err
			return nil
		}
		if err != nil {
			err = FromError(a.Name(), err)
			log.Debug("fetch attempt failed", zap.Error(err))
			return err
		}
		postings = got
		return nil
	})

	outcome := jobs.AdapterOutcome{
		Source:   a.Name(),
		Attempts: attempts,
		Count:    len(postings),
		Duration: time.Since(start),
	}

	switch {
	case err != nil:
		outcome.Status = jobs.OutcomeFailed
		outcome.Count = 0
		outcome.ErrorKind = string(KindPermanent)
		if ctx.Err() != nil {
			// The cycle ended under us; the source itself may be fine.
			outcome.ErrorKind = string(KindTransient)
		}
		outcome.Detail = err.Error()
		postings = nil
		log.Warn("source skipped for this cycle",
			zap.String("kind", string(KindOf(err))),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
	case partial != nil:
		outcome.Status = jobs.OutcomePartial
		outcome.ErrorKind = string(KindOf(partial))
		outcome.Detail = partial.Error()
		log.Warn("source returned partial results", zap.Int("count", len(postings)), zap.Error(partial))
	default:
		outcome.Status = jobs.OutcomeSucceeded
		log.Info("source fetched", zap.Int("count", len(postings)), zap.Int("attempts", attempts))
	}

	r.metrics.AdapterOutcome(a.Name(), string(outcome.Status), attempts)

	for i := range postings {
		if postings[i].Source == "" {
			postings[i].Source = a.Name()
		}
	}

	return postings, outcome
}
