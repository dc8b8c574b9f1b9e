package filtering

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spigell/job-radar/internal/jobs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type seenSet map[string]bool

func (s seenSet) Seen(id string) bool { return s[id] }

func postings() []jobs.Posting {
	return []jobs.Posting{
		{ID: "1", Title: "Founding Engineer", Company: "Seedling Inc."},
		{ID: "2", Title: "Backend Engineer", Company: "Acme", Description: "Unpaid trial task required"},
		{ID: "3", Title: "Platform Engineer", Company: "Globex GmbH"},
		{ID: "4", Title: "Go Developer", Company: "Initech"},
	}
}

func ids(ps []jobs.Posting) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func TestRunFiltersInOrder(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	filters := New(zap.New(core),
		NewSeen(seenSet{"4": true}, false),
		NewExcludedCompanies([]string{"GLOBEX"}, nil),
		NewRedFlags([]string{"unpaid", ""}, nil),
	)
	require.NoError(t, filters.Validate())

	left, report, err := filters.RunFilters(context.Background(), postings())
	require.NoError(t, err)

	assert.Equal(t, []string{"1"}, ids(left))
	assert.Equal(t, []Step{
		{Name: "seen", Initial: 4, Dropped: 1, Left: 3},
		{Name: "excluded_companies", Initial: 3, Dropped: 1, Left: 2},
		{Name: "red_flags", Initial: 2, Dropped: 1, Left: 1},
	}, report)
	assert.Equal(t, 3, logs.FilterMessage("filter step").Len())
}

func TestForcedSeenKeepsEverything(t *testing.T) {
	f := NewSeen(seenSet{"1": true, "2": true}, true)

	left, step, err := f.Apply(context.Background(), postings())
	require.NoError(t, err)

	assert.Len(t, left, 4)
	assert.Equal(t, 0, step.Dropped)
	assert.Equal(t, forceFlagSetMsg, Describe([]Filter{f})[0].Reason)
}

func TestSeenRequiresIndex(t *testing.T) {
	assert.Error(t, New(nil, NewSeen(nil, false)).Validate())
}

func TestDisabledFilterIsSkipped(t *testing.T) {
	steps := []Filter{NewRedFlags([]string{"engineer"}, nil)}
	DisableByName(steps, "red_flags", "testing")

	left, report, err := New(nil, steps...).RunFilters(context.Background(), postings())
	require.NoError(t, err)

	assert.Len(t, left, 4)
	assert.Empty(t, report)

	status := Describe(steps)[0]
	assert.False(t, status.Enabled)
	assert.Equal(t, "testing", status.Reason)
}

func TestContainsRedFlag(t *testing.T) {
	flag, ok := ContainsRedFlag(jobs.Posting{Title: "Sales", Description: "COMMISSION ONLY"}, []string{"commission only"})
	assert.True(t, ok)
	assert.Equal(t, "commission only", flag)

	_, ok = ContainsRedFlag(jobs.Posting{Title: "Sales"}, nil)
	assert.False(t, ok)
}

func TestExcludeFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclude.json")

	// A missing file is an empty list.
	list, err := LoadExcludedJobs(path)
	require.NoError(t, err)
	assert.Empty(t, list.Items)

	all := postings()
	list.Append(Exclude(all[0]))
	list.Append(&ExcludedJobs{Items: []*ExcludedJob{{Company: "initech llc"}}})
	list.Append(Exclude(all[0]))
	require.Len(t, list.Items, 2)
	require.NoError(t, list.ToFile(path))

	f := NewExcludeFile(path, nil)
	require.NoError(t, f.Validate())
	left, step, err := f.Apply(context.Background(), all)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, ids(left))
	assert.Equal(t, 2, step.Dropped)

	// Rewriting a shorter list must not leave trailing bytes behind.
	require.NoError(t, (&ExcludedJobs{}).ToFile(path))
	list, err = LoadExcludedJobs(path)
	require.NoError(t, err)
	assert.Empty(t, list.Items)
	assert.False(t, list.Matches(all[0]))
}

func TestExcludeFileBrokenJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclude.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	f := NewExcludeFile(path, nil)
	assert.Error(t, f.Validate())
	_, _, err := f.Apply(context.Background(), postings())
	assert.Error(t, err)
}
