package filtering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spigell/job-radar/internal/jobs"
	"github.com/spigell/job-radar/internal/normalize"

	"go.uber.org/zap"
)

// ExcludedJob is one entry of the exclude file. An entry without an ID
// excludes every posting of its company.
type ExcludedJob struct {
	ID         string    `json:"id,omitempty"`
	Title      string    `json:"title,omitempty"`
	Company    string    `json:"company"`
	URL        string    `json:"url,omitempty"`
	ExcludedAt time.Time `json:"excluded_at"`
}

type ExcludedJobs struct {
	Items []*ExcludedJob `json:"items"`
}

// Exclude turns postings into exclude file entries.
func Exclude(postings ...jobs.Posting) *ExcludedJobs {
	excluded := &ExcludedJobs{}
	for _, p := range postings {
		excluded.Items = append(excluded.Items, &ExcludedJob{
			ID:         p.ID,
			Title:      p.Title,
			Company:    p.Company,
			URL:        p.URL,
			ExcludedAt: time.Now().UTC(),
		})
	}
	return excluded
}

// LoadExcludedJobs reads the exclude file. A missing or empty file is an
// empty list.
func LoadExcludedJobs(path string) (*ExcludedJobs, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &ExcludedJobs{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &ExcludedJobs{}, nil
	}

	var excluded ExcludedJobs
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, fmt.Errorf("decode exclude file %s: %w", path, err)
	}
	return &excluded, nil
}

// Append adds entries whose id (or company, for company-wide entries) is not
// listed yet.
func (e *ExcludedJobs) Append(s *ExcludedJobs) {
	ids, companies := e.index()
	for _, item := range s.Items {
		if item.ID != "" {
			if _, ok := ids[item.ID]; ok {
				continue
			}
			ids[item.ID] = struct{}{}
		} else {
			key := normalize.CanonicalCompany(item.Company)
			if _, ok := companies[key]; ok {
				continue
			}
			companies[key] = struct{}{}
		}
		e.Items = append(e.Items, item)
	}
}

func (e *ExcludedJobs) Matches(p jobs.Posting) bool {
	ids, companies := e.index()
	if _, ok := ids[p.ID]; ok {
		return true
	}
	_, ok := companies[normalize.CanonicalCompany(p.Company)]
	return ok
}

func (e *ExcludedJobs) index() (ids, companies map[string]struct{}) {
	ids = make(map[string]struct{}, len(e.Items))
	companies = make(map[string]struct{})
	for _, item := range e.Items {
		if item.ID != "" {
			ids[item.ID] = struct{}{}
			continue
		}
		if key := normalize.CanonicalCompany(item.Company); key != "" {
			companies[key] = struct{}{}
		}
	}
	return ids, companies
}

func (e *ExcludedJobs) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

type excludeFileFilter struct {
	toggle
	path   string
	logger *zap.Logger
}

// NewExcludeFile creates a filter that removes postings listed in the exclude
// file. The file is re-read on every run so edits made by the review command
// apply to the next cycle.
func NewExcludeFile(path string, logger *zap.Logger) Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &excludeFileFilter{path: strings.TrimSpace(path), logger: logger}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Validate() error {
	if f.path == "" {
		return nil
	}
	_, err := LoadExcludedJobs(f.path)
	return err
}

func (f *excludeFileFilter) Apply(_ context.Context, postings []jobs.Posting) ([]jobs.Posting, Step, error) {
	if f.path == "" {
		return postings, Step{Initial: len(postings), Left: len(postings)}, nil
	}

	excluded, err := LoadExcludedJobs(f.path)
	if err != nil {
		return nil, Step{}, fmt.Errorf("getting excluded jobs from file: %w", err)
	}

	ids, companies := excluded.index()
	kept, dropped, step := partition(postings, func(p jobs.Posting) bool {
		if _, ok := ids[p.ID]; ok {
			return true
		}
		_, ok := companies[normalize.CanonicalCompany(p.Company)]
		return ok
	})
	if len(dropped) > 0 {
		f.logger.Info("excluding postings based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_jobs", dropped),
			zap.Int("jobs_left", len(kept)),
		)
	}
	return kept, step, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
