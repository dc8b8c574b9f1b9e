package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spigell/job-radar/internal/ai/gemini"
	"github.com/spigell/job-radar/internal/config"
	"github.com/spigell/job-radar/internal/dispatch"
	"github.com/spigell/job-radar/internal/filtering"
	"github.com/spigell/job-radar/internal/logger"
	"github.com/spigell/job-radar/internal/metrics"
	"github.com/spigell/job-radar/internal/outreach"
	"github.com/spigell/job-radar/internal/pipeline"
	"github.com/spigell/job-radar/internal/resilience"
	"github.com/spigell/job-radar/internal/scoring"
	"github.com/spigell/job-radar/internal/secrets"
	"github.com/spigell/job-radar/internal/sources"
	"github.com/spigell/job-radar/internal/sources/adzuna"
	"github.com/spigell/job-radar/internal/sources/headhunter"
	"github.com/spigell/job-radar/internal/sources/jsonfeed"
	"github.com/spigell/job-radar/internal/status"
	"github.com/spigell/job-radar/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const redisKeyPrefix = app + ":ai:"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run cycles on the configured schedule",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("once", false, "run a single cycle and exit")
	runCmd.Flags().BoolP("rescore", "f", false, "score postings again even if they were already reported")
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	once, _ := cmd.Flags().GetBool("once")
	rescore, _ := cmd.Flags().GetBool("rescore")
	config.Pipeline.Rescore = rescore

	logger.Info("starting the job-radar",
		zap.String("version", version),
		zap.Int("sources", config.Sources.Count()),
		zap.Bool("ai", config.AI.Enabled),
		zap.Bool("once", once),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	schedule, err := pipeline.ParseSchedule(config.Schedule)
	if err != nil {
		logger.Fatal("parsing schedule", zap.Error(err))
	}

	st, err := store.Open(ctx, config.Store.Dialect, config.Store.DSN, logger)
	if err != nil {
		if errors.Is(err, store.ErrIndexUnreadable) {
			logger.Fatal("refusing to run without the seen index, every posting would be reported again",
				zap.String("dsn", config.Store.DSN), zap.Error(err))
		}
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer st.Close()

	limiters := resilience.NewLimiters(config.Sources.RateLimit, config.Overrides(), config.Sources.MaxWait, m)

	adapters, err := newAdapters(config, logger)
	if err != nil {
		logger.Fatal("preparing sources", zap.Error(err))
	}

	caller, err := newAI(ctx, config, limiters, logger, m)
	if err != nil {
		logger.Warn("continuing without AI, scores are heuristic only and outreach comes from the template", zap.Error(err))
		caller = nil
	}

	engine, err := newScorer(config, caller, logger)
	if err != nil {
		logger.Fatal("preparing scoring", zap.Error(err))
	}

	var writerAI outreach.AICaller
	if caller != nil {
		writerAI = caller
	}
	writer, err := outreach.NewGenerator(writerAI, &config.Profile, logger, m)
	if err != nil {
		logger.Fatal("preparing outreach", zap.Error(err), zap.String("hint", "set profile.proof-points and profile.call-to-action"))
	}

	dispatcher, err := newDispatcher(ctx, config, logger, m)
	if err != nil {
		logger.Fatal("preparing dispatch", zap.Error(err))
	}

	orchestrator, err := pipeline.New(pipeline.Deps{
		Adapters:   adapters,
		Fetcher:    sources.NewRunner(limiters, config.Sources.Retry, config.Sources.Timeout, logger, m),
		Filters:    prepareFilters(config, logger),
		Scorer:     engine,
		Writer:     writer,
		Dispatcher: dispatcher,
		Store:      st,
		Logger:     logger,
		Metrics:    m,
	}, config.Pipeline)
	if err != nil {
		logger.Fatal("preparing the pipeline", zap.Error(err))
	}

	for name, reason := range config.Filters.Disabled {
		filtering.DisableByName(orchestrator.Filters(), name, reason)
	}
	for _, s := range filtering.Describe(orchestrator.Filters()) {
		logger.Debug("filter", zap.String("name", s.Name), zap.Bool("enabled", s.Enabled), zap.String("reason", s.Reason))
	}

	g, gctx := errgroup.WithContext(ctx)
	if config.Status.Listen != "" && !once {
		g.Go(func() error {
			return status.Serve(gctx, config.Status.Listen, status.Deps{
				State:    orchestrator,
				Cycles:   st,
				Filters:  orchestrator.Filters(),
				Gatherer: reg,
				Logger:   logger,
				Version:  version,
			})
		})
	}
	g.Go(func() error {
		return orchestrator.Loop(gctx, schedule, once)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("exiting", zap.Error(err))
	}

	logger.Info("stopped", zap.Int("seen", st.Len()))
}

// newAI returns nil without an error when AI is disabled.
func newAI(ctx context.Context, cfg *config.Config, limiters *resilience.Limiters, logger *zap.Logger, m *metrics.Metrics) (*resilience.AI, error) {
	if !cfg.AI.Enabled {
		return nil, nil
	}

	apiKey, err := secrets.Load(cfg.AI.KeySource())
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.api-key-file or GEMINI_API_KEY)", err)
	}

	provider, err := gemini.NewGenerator(ctx, apiKey, cfg.AI.MaxQuotaDelay)
	if err != nil {
		return nil, err
	}

	var cache resilience.Cache = resilience.NewMemoryCache()
	if cfg.AI.RedisURL != "" {
		client, err := resilience.DialRedis(ctx, cfg.AI.RedisURL)
		if err != nil {
			logger.Warn("falling back to the in-memory AI cache", zap.Error(err))
		} else {
			cache = resilience.NewRedisCache(client, redisKeyPrefix)
		}
	}

	return resilience.NewAI(provider, resilience.AIConfig{
		Chain:        cfg.AI.Chain,
		Timeout:      cfg.AI.Timeout,
		Retry:        cfg.AI.Retry,
		CacheTTL:     cfg.AI.CacheTTL,
		MaxLogLength: cfg.AI.MaxLogLength,
	}, cache, limiters, logger, m)
}

func newScorer(cfg *config.Config, caller *resilience.AI, logger *zap.Logger) (*scoring.Engine, error) {
	var semantic *scoring.Semantic
	if caller != nil {
		s, err := scoring.NewSemantic(caller, &cfg.Profile, logger)
		if err != nil {
			return nil, err
		}
		semantic = s
	}

	heuristic := scoring.NewHeuristic(&cfg.Profile, cfg.Scoring.Weights)
	return scoring.NewEngine(heuristic, semantic, cfg.Scoring.Policy, logger)
}

func newAdapters(cfg *config.Config, logger *zap.Logger) ([]sources.Adapter, error) {
	var adapters []sources.Adapter

	if hh := cfg.Sources.Headhunter; hh != nil {
		token, err := secrets.Optional(hh.TokenSource())
		if err != nil {
			return nil, fmt.Errorf("loading headhunter token: %w", err)
		}
		client := headhunter.New(logger, token)
		if hh.UserAgent != "" {
			client.UserAgent = hh.UserAgent
		}
		if hh.MaxPages > 0 {
			client.MaxPages = hh.MaxPages
		}
		adapters = append(adapters, headhunter.NewAdapter(client, hh.Search))
	}

	if cfg.Sources.Adzuna != nil {
		a, err := adzuna.NewAdapter(*cfg.Sources.Adzuna, logger)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	for _, feed := range cfg.Sources.Feeds {
		a, err := jsonfeed.NewAdapter(feed)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	return adapters, nil
}

func prepareFilters(cfg *config.Config, logger *zap.Logger) []filtering.Filter {
	steps := []filtering.Filter{
		filtering.NewExcludedCompanies(cfg.Filters.ExcludedCompanies, logger),
		filtering.NewRedFlags(cfg.Filters.RedFlags, logger),
	}
	if cfg.Filters.ExcludeFile != "" {
		steps = append(steps, filtering.NewExcludeFile(cfg.Filters.ExcludeFile, logger))
	}
	return steps
}

// newDispatcher falls back to the log sink when nothing is configured so a
// found job is never silently dropped.
func newDispatcher(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*dispatch.Dispatcher, error) {
	d := cfg.Dispatch
	var targets []dispatch.Target

	if d.Log != nil {
		targets = append(targets, dispatch.Target{Sink: dispatch.NewLogSink(logger), PriorityOnly: d.Log.PriorityOnly})
	}
	if d.File != nil {
		targets = append(targets, dispatch.Target{Sink: dispatch.NewFileSink(d.File.Path), PriorityOnly: d.File.PriorityOnly})
	}
	if d.Webhook != nil {
		targets = append(targets, dispatch.Target{
			Sink:         dispatch.NewWebhookSink(d.Webhook.URL, d.Webhook.Headers, d.Webhook.Timeout),
			PriorityOnly: d.Webhook.PriorityOnly,
		})
	}
	if d.SNS != nil {
		awsCfg, err := dispatch.LoadAWSConfig(ctx, d.SNS.Region)
		if err != nil {
			return nil, err
		}
		sink, err := dispatch.NewSNSSinkFromConfig(awsCfg, d.SNS.TopicARN)
		if err != nil {
			return nil, err
		}
		targets = append(targets, dispatch.Target{Sink: sink, PriorityOnly: d.SNS.PriorityOnly})
	}
	if d.SES != nil {
		awsCfg, err := dispatch.LoadAWSConfig(ctx, d.SES.Region)
		if err != nil {
			return nil, err
		}
		sink, err := dispatch.NewSESSinkFromConfig(awsCfg, d.SES.From, d.SES.To)
		if err != nil {
			return nil, err
		}
		targets = append(targets, dispatch.Target{Sink: sink, PriorityOnly: d.SES.PriorityOnly})
	}
	if es := d.Elasticsearch; es != nil {
		password, err := secrets.Optional(es.PasswordSource())
		if err != nil {
			return nil, err
		}
		esCfg := es.ElasticConfig
		esCfg.Password = password
		sink, err := dispatch.NewElasticSink(esCfg)
		if err != nil {
			return nil, err
		}
		targets = append(targets, dispatch.Target{Sink: sink, PriorityOnly: es.PriorityOnly})
	}

	if len(targets) == 0 {
		logger.Info("no dispatch sinks configured, found jobs go to the log")
		targets = append(targets, dispatch.Target{Sink: dispatch.NewLogSink(logger)})
	}

	return dispatch.NewDispatcher(logger, m, targets...), nil
}
