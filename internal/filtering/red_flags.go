package filtering

import (
	"context"
	"strings"

	"github.com/spigell/job-radar/internal/jobs"
	"github.com/spigell/job-radar/internal/utils"

	"go.uber.org/zap"
)

// ContainsRedFlag reports the first red flag term found, case-insensitively,
// anywhere in the title, company or description.
func ContainsRedFlag(p jobs.Posting, flags []string) (string, bool) {
	if len(flags) == 0 {
		return "", false
	}
	combined := strings.ToLower(p.Title + " " + p.Company + " " + p.Description)
	for _, flag := range flags {
		if flag == "" {
			continue
		}
		if strings.Contains(combined, strings.ToLower(flag)) {
			return flag, true
		}
	}
	return "", false
}

type redFlagsFilter struct {
	toggle
	flags  []string
	logger *zap.Logger
}

func NewRedFlags(flags []string, logger *zap.Logger) Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redFlagsFilter{flags: utils.Dedupe(flags), logger: logger}
}

func (f *redFlagsFilter) Name() string { return "red_flags" }

func (f *redFlagsFilter) Validate() error { return nil }

func (f *redFlagsFilter) Apply(_ context.Context, postings []jobs.Posting) ([]jobs.Posting, Step, error) {
	kept, _, step := partition(postings, func(p jobs.Posting) bool {
		flag, found := ContainsRedFlag(p, f.flags)
		if found {
			f.logger.Debug("red flag", zap.String("job_id", p.ID), zap.String("term", flag))
		}
		return found
	})
	return kept, step, nil
}

func (f *redFlagsFilter) Status() Status {
	details := map[string]string{}
	if len(f.flags) > 0 {
		details["terms"] = strings.Join(f.flags, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
