package filtering

import (
	"context"
	"strings"

	"github.com/spigell/job-radar/internal/jobs"
	"github.com/spigell/job-radar/internal/normalize"

	"go.uber.org/zap"
)

type companiesFilter struct {
	toggle
	companies []string
	canonical map[string]struct{}
	logger    *zap.Logger
}

// NewExcludedCompanies creates a filter that removes postings by companies
// configured in the config. Names compare in canonical form, so "Acme Inc."
// also excludes "ACME".
func NewExcludedCompanies(companies []string, logger *zap.Logger) Filter {
	f := &companiesFilter{companies: companies, canonical: make(map[string]struct{}, len(companies)), logger: logger}
	for _, c := range companies {
		if key := normalize.CanonicalCompany(c); key != "" {
			f.canonical[key] = struct{}{}
		}
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	return f
}

func (f *companiesFilter) Name() string { return "excluded_companies" }

func (f *companiesFilter) Validate() error { return nil }

func (f *companiesFilter) Apply(_ context.Context, postings []jobs.Posting) ([]jobs.Posting, Step, error) {
	if len(f.canonical) == 0 {
		return postings, Step{Initial: len(postings), Left: len(postings)}, nil
	}

	kept, dropped, step := partition(postings, func(p jobs.Posting) bool {
		_, ok := f.canonical[normalize.CanonicalCompany(p.Company)]
		return ok
	})
	if len(dropped) > 0 {
		f.logger.Info("excluding postings by company", zap.Strings("excluded_jobs", dropped), zap.Int("jobs_left", len(kept)))
	}
	return kept, step, nil
}

func (f *companiesFilter) Status() Status {
	details := map[string]string{}
	if len(f.companies) > 0 {
		details["companies"] = strings.Join(f.companies, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
