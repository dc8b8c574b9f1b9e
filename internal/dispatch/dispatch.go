package dispatch

import (
	"context"
	"fmt"

	"github.com/spigell/job-radar/internal/jobs"
	"github.com/spigell/job-radar/internal/metrics"

	"go.uber.org/zap"
)

// Sink delivers complete dispatch tuples somewhere. Retrying a delivery is
// the sink backend's business.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, d jobs.Dispatch) error
}

// Target is a configured sink.
type Target struct {
	Sink Sink
	// PriorityOnly skips postings that are not flagged as priority.
	PriorityOnly bool
}

// Summary is what one Dispatch call achieved.
type Summary struct {
	// Delivered counts tuples that reached at least one sink.
	Delivered int
	Skipped   int
	Failures  []string
}

// Dispatcher fans tuples out to every target. One failing sink never stops
// the others.
type Dispatcher struct {
	targets []Target
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(logger *zap.Logger, m *metrics.Metrics, targets ...Target) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{targets: targets, logger: logger, metrics: m}
}

func (d *Dispatcher) Len() int { return len(d.targets) }

func (d *Dispatcher) Dispatch(ctx context.Context, items []jobs.Dispatch) Summary {
	var summary Summary

	for _, item := range items {
		log := d.logger.With(zap.String("job_id", item.Posting.ID))

		if err := item.Validate(); err != nil {
			log.Error("refusing incomplete dispatch", zap.Error(err))
			summary.Failures = append(summary.Failures, fmt.Sprintf("%s: %v", item.Posting.ID, err))
			continue
		}

		delivered, attempted := false, false
		for _, target := range d.targets {
			if target.PriorityOnly && !item.Score.IsPriority {
				continue
			}
			if ctx.Err() != nil {
				summary.Failures = append(summary.Failures, fmt.Sprintf("%s/%s: %v", target.Sink.Name(), item.Posting.ID, ctx.Err()))
				continue
			}
			attempted = true

			if err := target.Sink.Deliver(ctx, item); err != nil {
				d.metrics.Dispatch(target.Sink.Name(), false)
				log.Warn("dispatch failed", zap.String("sink", target.Sink.Name()), zap.Error(err))
				summary.Failures = append(summary.Failures, fmt.Sprintf("%s/%s: %v", target.Sink.Name(), item.Posting.ID, err))
				continue
			}
			d.metrics.Dispatch(target.Sink.Name(), true)
			delivered = true
		}

		switch {
		case delivered:
			summary.Delivered++
		case !attempted:
			summary.Skipped++
		}
	}

	return summary
}
