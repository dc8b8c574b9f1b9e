package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spigell/job-radar/internal/ai"
	"github.com/spigell/job-radar/internal/dispatch"
	"github.com/spigell/job-radar/internal/filtering"
	"github.com/spigell/job-radar/internal/jobs"
	"github.com/spigell/job-radar/internal/outreach"
	"github.com/spigell/job-radar/internal/resilience"
	"github.com/spigell/job-radar/internal/scoring"
	"github.com/spigell/job-radar/internal/sources"
	"github.com/spigell/job-radar/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticAdapter struct {
	name     string
	postings []jobs.RawPosting
	err      error
}

func (a *staticAdapter) Name() string   { return a.name }
func (a *staticAdapter) Domain() string { return a.name + ".example" }
func (a *staticAdapter) Fetch(context.Context, sources.Cursor) ([]jobs.RawPosting, error) {
	return append([]jobs.RawPosting(nil), a.postings...), a.err
}

type recordingSink struct {
	mu  sync.Mutex
	got []jobs.Dispatch
}

func (s *recordingSink) Name() string { return "recorder" }

func (s *recordingSink) Deliver(_ context.Context, d jobs.Dispatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, d)
	return nil
}

func testProfile() *jobs.Profile {
	return &jobs.Profile{
		Name:           "Dana",
		TargetRoles:    []string{"Founding Engineer"},
		Skills:         []string{"Go"},
		ProofPoints:    []string{"Scaled a payments API to 5k rps"},
		StageKeywords:  []string{"seed"},
		EquityKeywords: []string{"equity"},
		CallToAction:   "Open to a short call?",
	}
}

func adapters() []sources.Adapter {
	return []sources.Adapter{
		&staticAdapter{name: "boardA", postings: []jobs.RawPosting{
			{Title: "Founding Engineer", Company: "Seedling Inc.", Description: "Seed-stage startup with real equity. We write Go."},
			{Title: "Office Manager", Company: "Acme"},
			{Title: "", Company: "Nameless"},
		}},
		&staticAdapter{name: "boardB", postings: []jobs.RawPosting{
			{Title: "founding engineer", Company: "SEEDLING", Description: "short"},
		}},
		&staticAdapter{name: "boardC", err: sources.Permanent("boardC", "forbidden", nil)},
	}
}

type harness struct {
	orch  *Orchestrator
	store *store.SQLStore
	sink  *recordingSink
}

func newHarness(t *testing.T, provider ai.Provider, cfg Config, extra ...filtering.Filter) *harness {
	t.Helper()
	ctx := context.Background()
	profile := testProfile()

	st, err := store.Open(ctx, store.SQLite, filepath.Join(t.TempDir(), "radar.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	var caller *resilience.AI
	if provider != nil {
		caller, err = resilience.NewAI(provider, resilience.AIConfig{
			Chain:   resilience.Chain{"primary", "fallback"},
			Timeout: 10 * time.Millisecond,
			Retry:   resilience.RetryPolicy{MaxAttempts: 2, Sleep: func(context.Context, time.Duration) error { return nil }},
		}, nil, nil, nil, nil)
		require.NoError(t, err)
	}

	var semantic *scoring.Semantic
	var writerAI outreach.AICaller
	if caller != nil {
		semantic, err = scoring.NewSemantic(caller, profile, nil)
		require.NoError(t, err)
		writerAI = caller
	}
	engine, err := scoring.NewEngine(scoring.NewHeuristic(profile, scoring.DefaultWeights()), semantic, scoring.DefaultPolicy(), nil)
	require.NoError(t, err)

	writer, err := outreach.NewGenerator(writerAI, profile, nil, nil)
	require.NoError(t, err)

	sink := &recordingSink{}
	runner := sources.NewRunner(nil, resilience.RetryPolicy{MaxAttempts: 1}, time.Second, nil, nil)

	orch, err := New(Deps{
		Adapters:   adapters(),
		Fetcher:    runner,
		Filters:    extra,
		Scorer:     engine,
		Writer:     writer,
		Dispatcher: dispatch.NewDispatcher(nil, nil, dispatch.Target{Sink: sink}),
		Store:      st,
	}, cfg)
	require.NoError(t, err)

	return &harness{orch: orch, store: st, sink: sink}
}

func TestCycleReportsNewJobsOnce(t *testing.T) {
	h := newHarness(t, nil, Config{})
	ctx := context.Background()

	rec, err := h.orch.RunCycle(ctx)
	require.NoError(t, err)

	assert.False(t, rec.Aborted)
	assert.Equal(t, 4, rec.RawCount)
	assert.Equal(t, 1, rec.MalformedDropped)
	assert.Equal(t, 1, rec.CollapsedDuplicates)
	assert.Equal(t, 2, rec.NewPostings)
	assert.Equal(t, 2, rec.Scored)
	assert.Equal(t, 2, rec.Dispatched)
	assert.Len(t, rec.TemplateFallbacks, 2)

	require.Len(t, rec.Outcomes, 3)
	assert.Equal(t, jobs.OutcomeFailed, rec.Outcomes[2].Status)
	assert.Equal(t, string(sources.KindPermanent), rec.Outcomes[2].ErrorKind)
	assert.Contains(t, rec.FailedSources(), "boardC")

	require.Len(t, rec.TopScored, 2)
	top := rec.TopScored[0]
	assert.Equal(t, "Founding Engineer", top.Title)
	assert.True(t, top.IsPriority)
	assert.GreaterOrEqual(t, top.CombinedScore, rec.TopScored[1].CombinedScore)
	assert.Equal(t, jobs.ContentTemplate, top.ContentSource)

	require.Len(t, h.sink.got, 2)
	for _, d := range h.sink.got {
		require.NoError(t, d.Validate())
		assert.Equal(t, rec.ID, d.CycleID)
	}
	assert.True(t, h.store.Seen(top.ID))

	again, err := h.orch.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.NewPostings)
	assert.Equal(t, 2, again.Filtered)
	assert.Equal(t, 0, again.Dispatched)
	assert.Len(t, h.sink.got, 2)

	var replayed []string
	require.NoError(t, h.store.Replay(ctx, func(r jobs.CycleRecord) error {
		replayed = append(replayed, r.ID)
		return nil
	}))
	assert.Equal(t, []string{rec.ID, again.ID}, replayed)
}

func TestRescoreScoresSeenPostings(t *testing.T) {
	h := newHarness(t, nil, Config{})
	_, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)

	rescoring := newHarness(t, nil, Config{Rescore: true})
	rescoring.orch.store = h.store
	rescoring.orch.filters = filtering.New(nil, filtering.NewSeen(h.store, true))

	rec, err := rescoring.orch.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rec.NewPostings)
	assert.Equal(t, 2, rec.Scored)
}

func TestTopKBoundsGeneration(t *testing.T) {
	h := newHarness(t, nil, Config{TopK: 1})

	rec, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, rec.Scored)
	require.Len(t, rec.TopScored, 1)
	assert.Equal(t, "Founding Engineer", rec.TopScored[0].Title)
	assert.Equal(t, 1, rec.Dispatched)
}

func TestExtraFiltersRunAfterSeen(t *testing.T) {
	h := newHarness(t, nil, Config{}, filtering.NewRedFlags([]string{"office"}, nil))

	rec, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rec.NewPostings)
	assert.Equal(t, 1, rec.Filtered)
}

type hangingProvider struct{}

func (hangingProvider) Name() string { return "hang" }

func (hangingProvider) Generate(ctx context.Context, _ ai.Request) (*ai.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEveryModelTimingOutDegradesGracefully(t *testing.T) {
	h := newHarness(t, hangingProvider{}, Config{})

	rec, err := h.orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, rec.Scored, rec.AIUnavailable)
	require.NotEmpty(t, rec.TopScored)
	for _, entry := range rec.TopScored {
		assert.Nil(t, entry.AIScore)
		assert.Equal(t, entry.HeuristicScore, entry.CombinedScore)
		assert.Equal(t, jobs.ContentTemplate, entry.ContentSource)
		assert.NotEmpty(t, entry.Content)
	}
	assert.Equal(t, 2, rec.Dispatched)
}
