package pipeline

import (
	"context"
	"time"

	"github.com/spigell/job-radar/internal/utils"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Loop runs cycles on the schedule until ctx is done. The first cycle starts
// immediately. With once set it returns after that cycle.
func (o *Orchestrator) Loop(ctx context.Context, schedule cron.Schedule, once bool) error {
	defer o.setState(StateIdle)

	for {
		if _, err := o.RunCycle(ctx); err != nil {
			o.logger.Error("persisting cycle", zap.Error(err))
		}
		if once {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		o.setState(StateSleeping)
		next := schedule.Next(o.now())
		o.logger.Info("sleeping until next cycle", zap.Time("next", next))

		if err := utils.WaitFor(ctx, time.Until(next)); err != nil {
			o.logger.Info("shutting down", zap.String("reason", err.Error()))
			return nil
		}
	}
}

// ParseSchedule accepts standard cron expressions and descriptors such as
// "@every 30m".
func ParseSchedule(expr string) (cron.Schedule, error) {
	return cron.ParseStandard(expr)
}
