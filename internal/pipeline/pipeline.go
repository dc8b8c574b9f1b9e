package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spigell/job-radar/internal/dispatch"
	"github.com/spigell/job-radar/internal/filtering"
	"github.com/spigell/job-radar/internal/jobs"
	"github.com/spigell/job-radar/internal/logger"
	"github.com/spigell/job-radar/internal/metrics"
	"github.com/spigell/job-radar/internal/normalize"
	"github.com/spigell/job-radar/internal/sources"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultFetchWorkers  = 4
	defaultScoreWorkers  = 4
	defaultTopK          = 5
	defaultCycleDeadline = 10 * time.Minute
	defaultLookback      = 7 * 24 * time.Hour
	persistTimeout       = 30 * time.Second
)

// Fetcher runs one adapter under the resilience policies.
type Fetcher interface {
	Run(ctx context.Context, a sources.Adapter, since sources.Cursor) ([]jobs.RawPosting, jobs.AdapterOutcome)
}

type Scorer interface {
	Score(ctx context.Context, p jobs.Posting) (jobs.Posting, jobs.ScoreResult)
}

type Writer interface {
	Generate(ctx context.Context, p jobs.Posting, s jobs.ScoreResult) jobs.Content
}

type Dispatcher interface {
	Dispatch(ctx context.Context, items []jobs.Dispatch) dispatch.Summary
}

// Store is the persisted seen index plus the cycle log.
type Store interface {
	filtering.SeenIndex
	MarkSeen(ctx context.Context, cycleID string, postings []jobs.Posting, at time.Time) (int, error)
	AppendCycle(ctx context.Context, rec jobs.CycleRecord) error
}

type Config struct {
	FetchWorkers  int           `mapstructure:"fetch-workers" validate:"gte=0"`
	ScoreWorkers  int           `mapstructure:"score-workers" validate:"gte=0"`
	TopK          int           `mapstructure:"top-k" validate:"gte=0"`
	CycleDeadline time.Duration `mapstructure:"cycle-deadline"`
	// Lookback bounds the first fetch of every source.
	Lookback time.Duration `mapstructure:"lookback"`
	// Rescore scores already seen postings again.
	Rescore bool `mapstructure:"-"`
}

func (c Config) withDefaults() Config {
	if c.FetchWorkers <= 0 {
		c.FetchWorkers = defaultFetchWorkers
	}
	if c.ScoreWorkers <= 0 {
		c.ScoreWorkers = defaultScoreWorkers
	}
	if c.TopK <= 0 {
		c.TopK = defaultTopK
	}
	if c.CycleDeadline <= 0 {
		c.CycleDeadline = defaultCycleDeadline
	}
	if c.Lookback <= 0 {
		c.Lookback = defaultLookback
	}
	return c
}

// Deps are the collaborators of the orchestrator. Filters run after the
// built-in seen filter and may be empty.
type Deps struct {
	Adapters   []sources.Adapter
	Fetcher    Fetcher
	Filters    []filtering.Filter
	Scorer     Scorer
	Writer     Writer
	Dispatcher Dispatcher
	Store      Store
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Orchestrator drives the fetch, normalize, score, generate and dispatch
// stages once per cycle.
type Orchestrator struct {
	cfg        Config
	adapters   []sources.Adapter
	fetcher    Fetcher
	filters    *filtering.Filters
	scorer     Scorer
	writer     Writer
	dispatcher Dispatcher
	store      Store
	logger     *zap.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer

	now   func() time.Time
	newID func() string

	mu      sync.RWMutex
	state   State
	cursors map[string]time.Time
}

func New(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case len(deps.Adapters) == 0:
		return nil, errors.New("at least one source adapter is required")
	case deps.Fetcher == nil:
		return nil, errors.New("fetcher is required")
	case deps.Scorer == nil:
		return nil, errors.New("scorer is required")
	case deps.Writer == nil:
		return nil, errors.New("content writer is required")
	case deps.Dispatcher == nil:
		return nil, errors.New("dispatcher is required")
	case deps.Store == nil:
		return nil, errors.New("store is required")
	}

	log := logger.WithFields(deps.Logger)
	cfg = cfg.withDefaults()

	steps := append([]filtering.Filter{filtering.NewSeen(deps.Store, cfg.Rescore)}, deps.Filters...)
	filters := filtering.New(log, steps...)
	if err := filters.Validate(); err != nil {
		return nil, fmt.Errorf("filters: %w", err)
	}

	return &Orchestrator{
		cfg:        cfg,
		adapters:   deps.Adapters,
		fetcher:    deps.Fetcher,
		filters:    filters,
		scorer:     deps.Scorer,
		writer:     deps.Writer,
		dispatcher: deps.Dispatcher,
		store:      deps.Store,
		logger:     log,
		metrics:    deps.Metrics,
		tracer:     otel.Tracer("github.com/spigell/job-radar/internal/pipeline"),
		now:        time.Now,
		newID:      uuid.NewString,
		state:      StateIdle,
		cursors:    make(map[string]time.Time),
	}, nil
}

// Filters exposes the configured steps for status reporting.
func (o *Orchestrator) Filters() []filtering.Filter {
	return o.filters.Steps()
}

type scored struct {
	posting jobs.Posting
	score   jobs.ScoreResult
	content jobs.Content
}

// RunCycle runs one full pass and returns its record. The record is always
// returned, also for aborted cycles; the error only reports persistence
// failures.
func (o *Orchestrator) RunCycle(ctx context.Context) (jobs.CycleRecord, error) {
	rec := jobs.CycleRecord{ID: o.newID(), StartedAt: o.now()}
	log := logger.WithCycle(o.logger, rec.ID)

	ctx, span := o.tracer.Start(ctx, "cycle", trace.WithAttributes(attribute.String("cycle.id", rec.ID)))
	defer span.End()

	cycleCtx, cancel := context.WithTimeout(ctx, o.cfg.CycleDeadline)
	defer cancel()

	log.Info("cycle started", zap.Int("sources", len(o.adapters)))

	raws := o.fetch(cycleCtx, &rec, log)

	var (
		results []scored
		top     []scored
	)
	if !o.interrupted(cycleCtx, &rec) {
		fresh := o.normalize(cycleCtx, raws, &rec)
		if !o.interrupted(cycleCtx, &rec) {
			results = o.score(cycleCtx, fresh, &rec)
			if !o.interrupted(cycleCtx, &rec) {
				top = o.generate(cycleCtx, results, &rec)
				if !o.interrupted(cycleCtx, &rec) {
					o.dispatch(cycleCtx, top, &rec)
				}
			}
		}
	}

	rec.TopScored = entries(top)

	// Persist with a context of its own: the record of an aborted cycle
	// matters most.
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancelPersist()

	var errs []error
	if len(results) > 0 {
		postings := make([]jobs.Posting, 0, len(results))
		for _, r := range results {
			postings = append(postings, r.posting)
		}
		if _, err := o.store.MarkSeen(persistCtx, rec.ID, postings, rec.StartedAt); err != nil {
			errs = append(errs, fmt.Errorf("mark seen: %w", err))
		}
	}

	rec.EndedAt = o.now()
	if err := o.store.AppendCycle(persistCtx, rec); err != nil {
		errs = append(errs, fmt.Errorf("append cycle: %w", err))
	}

	o.metrics.ObserveCycle(rec.Duration(), rec.Aborted)
	span.SetAttributes(
		attribute.Int("postings.new", rec.NewPostings),
		attribute.Int("dispatched", rec.Dispatched),
		attribute.Bool("aborted", rec.Aborted),
	)

	fields := []zap.Field{
		zap.Duration("duration", rec.Duration()),
		zap.Int("raw", rec.RawCount),
		zap.Int("new", rec.NewPostings),
		zap.Int("scored", rec.Scored),
		zap.Int("dispatched", rec.Dispatched),
		zap.Int("template_fallbacks", len(rec.TemplateFallbacks)),
		zap.Any("failed_sources", rec.FailedSources()),
	}
	if rec.Aborted {
		log.Warn("cycle aborted", append(fields, zap.String("reason", rec.AbortReason))...)
	} else {
		log.Info("cycle finished", fields...)
	}

	return rec, errors.Join(errs...)
}

// interrupted closes the cycle at a state boundary once the deadline passed
// or shutdown was requested.
func (o *Orchestrator) interrupted(ctx context.Context, rec *jobs.CycleRecord) bool {
	if rec.Aborted {
		return true
	}
	err := ctx.Err()
	if err == nil {
		return false
	}
	rec.Aborted = true
	rec.AbortReason = "shutdown"
	if errors.Is(err, context.DeadlineExceeded) {
		rec.AbortReason = "cycle deadline exceeded"
	}
	return true
}

func (o *Orchestrator) fetch(ctx context.Context, rec *jobs.CycleRecord, log *zap.Logger) []jobs.RawPosting {
	o.setState(StateFetching)
	ctx, span := o.tracer.Start(ctx, "fetch")
	defer span.End()

	// In-flight fetches are not cancelled by shutdown; they finish or hit
	// their own timeout, bounded by the cycle deadline.
	fetchCtx := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithDeadline(fetchCtx, deadline)
		defer cancel()
	}

	results := make([][]jobs.RawPosting, len(o.adapters))
	outcomes := make([]jobs.AdapterOutcome, len(o.adapters))

	var g errgroup.Group
	g.SetLimit(o.cfg.FetchWorkers)
	for i, a := range o.adapters {
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = jobs.AdapterOutcome{
					Source:    a.Name(),
					Status:    jobs.OutcomeFailed,
					ErrorKind: string(sources.KindTransient),
					Detail:    "not started: " + ctx.Err().Error(),
				}
				return nil
			}
			results[i], outcomes[i] = o.fetcher.Run(fetchCtx, a, sources.Cursor{Since: o.cursor(a.Name(), rec.StartedAt)})
			return nil
		})
	}
	_ = g.Wait()

	var raws []jobs.RawPosting
	for i, outcome := range outcomes {
		raws = append(raws, results[i]...)
		if outcome.Status == jobs.OutcomeSucceeded {
			o.advance(outcome.Source, rec.StartedAt)
		}
	}

	rec.Outcomes = outcomes
	rec.RawCount = len(raws)
	o.metrics.AddPostings("raw", len(raws))
	span.SetAttributes(attribute.Int("postings.raw", len(raws)))
	log.Debug("fetch stage resolved", zap.Int("raw", len(raws)))

	return raws
}

func (o *Orchestrator) cursor(source string, now time.Time) time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if since, ok := o.cursors[source]; ok {
		return since
	}
	return now.Add(-o.cfg.Lookback)
}

func (o *Orchestrator) advance(source string, to time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cursors[source] = to
}

func (o *Orchestrator) normalize(ctx context.Context, raws []jobs.RawPosting, rec *jobs.CycleRecord) []jobs.Posting {
	o.setState(StateNormalizing)
	ctx, span := o.tracer.Start(ctx, "normalize")
	defer span.End()

	res := normalize.Normalize(raws)
	rec.CollapsedDuplicates = res.Collapsed
	rec.MalformedDropped = res.Malformed

	fresh, steps, err := o.filters.RunFilters(ctx, res.Postings)
	if err != nil {
		// A broken filter must not hide jobs; fall back to the seen diff.
		o.logger.Error("filters failed, keeping only unseen postings", zap.Error(err))
		fresh = fresh[:0]
		for _, p := range res.Postings {
			if o.cfg.Rescore || !o.store.Seen(p.ID) {
				fresh = append(fresh, p)
			}
		}
	}
	for _, s := range steps {
		o.logger.Debug("filtered", zap.String("filter", s.Name), zap.Int("dropped", s.Dropped))
	}

	rec.Filtered = len(res.Postings) - len(fresh)
	rec.NewPostings = len(fresh)

	o.metrics.AddPostings("collapsed", res.Collapsed)
	o.metrics.AddPostings("malformed", res.Malformed)
	o.metrics.AddPostings("filtered", rec.Filtered)
	o.metrics.AddPostings("new", rec.NewPostings)
	span.SetAttributes(attribute.Int("postings.new", rec.NewPostings))

	return fresh
}

func (o *Orchestrator) score(ctx context.Context, postings []jobs.Posting, rec *jobs.CycleRecord) []scored {
	o.setState(StateScoring)
	ctx, span := o.tracer.Start(ctx, "score")
	defer span.End()

	slots := make([]*scored, len(postings))

	var g errgroup.Group
	g.SetLimit(o.cfg.ScoreWorkers)
	for i, p := range postings {
		g.Go(func() error {
			// Postings not started before the deadline stay unscored and
			// unseen, so the next cycle picks them up.
			if ctx.Err() != nil {
				return nil
			}
			enriched, result := o.scorer.Score(ctx, p)
			slots[i] = &scored{posting: enriched, score: result}
			return nil
		})
	}
	_ = g.Wait()

	results := make([]scored, 0, len(slots))
	for _, s := range slots {
		if s == nil {
			continue
		}
		if s.score.AIScore == nil {
			rec.AIUnavailable++
		}
		results = append(results, *s)
	}
	rec.Scored = len(results)

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score.CombinedScore != results[j].score.CombinedScore {
			return results[i].score.CombinedScore > results[j].score.CombinedScore
		}
		return results[i].posting.ID < results[j].posting.ID
	})

	span.SetAttributes(attribute.Int("postings.scored", rec.Scored))
	return results
}

func (o *Orchestrator) generate(ctx context.Context, results []scored, rec *jobs.CycleRecord) []scored {
	o.setState(StateGenerating)
	ctx, span := o.tracer.Start(ctx, "generate")
	defer span.End()

	top := results
	if len(top) > o.cfg.TopK {
		top = top[:o.cfg.TopK]
	}
	top = append([]scored(nil), top...)

	var g errgroup.Group
	g.SetLimit(o.cfg.ScoreWorkers)
	for i := range top {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			top[i].content = o.writer.Generate(ctx, top[i].posting, top[i].score)
			return nil
		})
	}
	_ = g.Wait()

	for _, s := range top {
		if s.content.Source == jobs.ContentTemplate {
			rec.TemplateFallbacks = append(rec.TemplateFallbacks, s.posting.ID)
		}
	}
	span.SetAttributes(attribute.Int("generated", len(top)))
	return top
}

func (o *Orchestrator) dispatch(ctx context.Context, top []scored, rec *jobs.CycleRecord) {
	o.setState(StateDispatching)
	ctx, span := o.tracer.Start(ctx, "dispatch")
	defer span.End()

	items := make([]jobs.Dispatch, 0, len(top))
	for _, s := range top {
		// Never hand over a job whose content was not produced.
		if s.content.Body == "" {
			continue
		}
		items = append(items, jobs.Dispatch{CycleID: rec.ID, Posting: s.posting, Score: s.score, Content: s.content})
	}
	if len(items) == 0 {
		return
	}

	summary := o.dispatcher.Dispatch(ctx, items)
	rec.Dispatched = summary.Delivered
	rec.DispatchFailures = summary.Failures
	span.SetAttributes(attribute.Int("dispatched", summary.Delivered))
}

func entries(top []scored) []jobs.ScoredEntry {
	out := make([]jobs.ScoredEntry, 0, len(top))
	for _, s := range top {
		out = append(out, jobs.ScoredEntry{
			ID:             s.posting.ID,
			Title:          s.posting.Title,
			Company:        s.posting.Company,
			URL:            s.posting.URL,
			HeuristicScore: s.score.HeuristicScore,
			AIScore:        s.score.AIScore,
			CombinedScore:  s.score.CombinedScore,
			IsPriority:     s.score.IsPriority,
			ContentSource:  s.content.Source,
			Content:        s.content.Body,
		})
	}
	return out
}
