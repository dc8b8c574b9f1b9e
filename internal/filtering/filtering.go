package filtering

import (
	"context"
	"fmt"

	"github.com/spigell/job-radar/internal/jobs"

	"go.uber.org/zap"
)

// Filter represents a single selection step applied to normalized postings.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate() error
	Apply(ctx context.Context, postings []jobs.Posting) ([]jobs.Posting, Step, error)
}

// Step describes the result of executing a filtering step.
type Step struct {
	Name    string `json:"name"`
	Initial int    `json:"initial"`
	Dropped int    `json:"dropped"`
	Left    int    `json:"left"`
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// Filters runs steps in order.
type Filters struct {
	steps  []Filter
	logger *zap.Logger
}

func New(logger *zap.Logger, steps ...Filter) *Filters {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filters{steps: steps, logger: logger}
}

func (f *Filters) Steps() []Filter { return f.steps }

// Validate checks every enabled step once, before the first cycle.
func (f *Filters) Validate() error {
	for _, step := range f.steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(); err != nil {
			return fmt.Errorf("%s: %w", step.Name(), err)
		}
	}
	return nil
}

// RunFilters executes the enabled steps sequentially and reports each of them.
func (f *Filters) RunFilters(ctx context.Context, postings []jobs.Posting) ([]jobs.Posting, []Step, error) {
	var report []Step
	for _, step := range f.steps {
		if !step.IsEnabled() {
			f.logger.Debug("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(ctx, postings)
		if err != nil {
			return nil, report, fmt.Errorf("%s: %w", step.Name(), err)
		}
		info.Name = step.Name()

		f.logger.Info("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)

		report = append(report, info)
		postings = next
	}

	return postings, report, nil
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}

// toggle carries the enable/disable state shared by every filter.
type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }

// partition keeps the postings for which drop returns false.
func partition(postings []jobs.Posting, drop func(jobs.Posting) bool) ([]jobs.Posting, []string, Step) {
	kept := make([]jobs.Posting, 0, len(postings))
	var dropped []string
	for _, p := range postings {
		if drop(p) {
			dropped = append(dropped, p.ID)
			continue
		}
		kept = append(kept, p)
	}
	return kept, dropped, Step{Initial: len(postings), Dropped: len(dropped), Left: len(kept)}
}
