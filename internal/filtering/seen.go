package filtering

import (
	"context"
	"errors"
	"strconv"

	"github.com/spigell/job-radar/internal/jobs"
)

const forceFlagSetMsg = "rescore flag is set"

// SeenIndex answers whether a posting id was reported by an earlier cycle.
type SeenIndex interface {
	Seen(id string) bool
}

type seenFilter struct {
	toggle
	index SeenIndex
	force bool
}

// NewSeen creates a filter that removes postings already seen in earlier
// cycles. With force set every posting passes and gets scored again.
func NewSeen(index SeenIndex, force bool) Filter {
	return &seenFilter{index: index, force: force}
}

func (f *seenFilter) Name() string { return "seen" }

func (f *seenFilter) Validate() error {
	if f.index == nil {
		return errors.New("seen index is required")
	}
	return nil
}

func (f *seenFilter) Apply(_ context.Context, postings []jobs.Posting) ([]jobs.Posting, Step, error) {
	if f.force {
		return postings, Step{Initial: len(postings), Left: len(postings)}, nil
	}
	kept, _, step := partition(postings, func(p jobs.Posting) bool {
		return f.index.Seen(p.ID)
	})
	return kept, step, nil
}

func (f *seenFilter) Status() Status {
	reason := f.reason
	if f.force && reason == "" {
		reason = forceFlagSetMsg
	}
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  reason,
		Details: map[string]string{"force": strconv.FormatBool(f.force)},
	}
}
