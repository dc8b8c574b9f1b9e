package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/job-radar/internal/dispatch"
	"github.com/spigell/job-radar/internal/jobs"
	"github.com/spigell/job-radar/internal/pipeline"
	"github.com/spigell/job-radar/internal/resilience"
	"github.com/spigell/job-radar/internal/scoring"
	"github.com/spigell/job-radar/internal/secrets"
	"github.com/spigell/job-radar/internal/sources/adzuna"
	"github.com/spigell/job-radar/internal/sources/headhunter"
	"github.com/spigell/job-radar/internal/sources/jsonfeed"
	"github.com/spigell/job-radar/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Profile  jobs.Profile    `mapstructure:"profile"`
	Scoring  Scoring         `mapstructure:"scoring"`
	AI       AI              `mapstructure:"ai"`
	Sources  Sources         `mapstructure:"sources"`
	Filters  Filters         `mapstructure:"filters"`
	Store    Store           `mapstructure:"store"`
	Dispatch Dispatch        `mapstructure:"dispatch"`
	Pipeline pipeline.Config `mapstructure:"pipeline"`
	// Schedule is a cron expression or descriptor such as "@every 30m".
	Schedule string `mapstructure:"schedule" validate:"required"`
	Status   Status `mapstructure:"status"`
}

type Scoring struct {
	Weights scoring.Weights `mapstructure:"weights"`
	Policy  scoring.Policy  `mapstructure:"policy"`
}

type AI struct {
	Enabled    bool   `mapstructure:"enabled"`
	Provider   string `mapstructure:"provider" validate:"omitempty,oneof=gemini"`
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	// Chain is tried in order for every request.
	Chain         []string               `mapstructure:"chain"`
	Timeout       time.Duration          `mapstructure:"timeout"`
	MaxQuotaDelay time.Duration          `mapstructure:"max-quota-delay"`
	Retry         resilience.RetryPolicy `mapstructure:"retry"`
	CacheTTL      time.Duration          `mapstructure:"cache-ttl"`
	// RedisURL switches the response cache from memory to redis.
	RedisURL     string           `mapstructure:"redis-url"`
	RateLimit    resilience.Limit `mapstructure:"rate-limit"`
	MaxLogLength int              `mapstructure:"max-log-length"`
}

// KeySource is where the provider API key is looked up.
func (a AI) KeySource() secrets.Source {
	return secrets.Source{
		Name:  a.Provider + " api key",
		Value: a.APIKey,
		File:  a.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	}
}

type Sources struct {
	Headhunter *Headhunter       `mapstructure:"headhunter"`
	Adzuna     *adzuna.Config    `mapstructure:"adzuna"`
	Feeds      []jsonfeed.Config `mapstructure:"feeds"`

	Timeout time.Duration          `mapstructure:"timeout"`
	Retry   resilience.RetryPolicy `mapstructure:"retry"`
	// RateLimit applies to every source domain without an override.
	RateLimit  resilience.Limit `mapstructure:"rate-limit"`
	RateLimits []DomainLimit    `mapstructure:"rate-limits" validate:"dive"`
	MaxWait    time.Duration    `mapstructure:"max-wait"`
}

// DomainLimit overrides the source rate limit for one host.
type DomainLimit struct {
	Domain           string `mapstructure:"domain" validate:"required"`
	resilience.Limit `mapstructure:",squash"`
}

// Count is the number of configured adapters.
func (s Sources) Count() int {
	n := len(s.Feeds)
	if s.Headhunter != nil {
		n++
	}
	if s.Adzuna != nil {
		n++
	}
	return n
}

type Headhunter struct {
	Search    headhunter.SearchParams `mapstructure:"search"`
	TokenFile string                  `mapstructure:"token-file"`
	UserAgent string                  `mapstructure:"user-agent"`
	MaxPages  int                     `mapstructure:"max-pages"`
}

// TokenSource is optional: the public search works anonymously.
func (h Headhunter) TokenSource() secrets.Source {
	return secrets.Source{Name: "headhunter token", File: h.TokenFile, Env: "HH_TOKEN"}
}

type Filters struct {
	ExcludedCompanies []string `mapstructure:"excluded-companies"`
	RedFlags          []string `mapstructure:"red-flags"`
	ExcludeFile       string   `mapstructure:"exclude-file"`
	// Disabled maps a filter name to the reason it is switched off.
	Disabled map[string]string `mapstructure:"disabled"`
}

type Store struct {
	Dialect store.Dialect `mapstructure:"dialect" validate:"oneof=sqlite postgres"`
	DSN     string        `mapstructure:"dsn" validate:"required"`
}

// Target holds the options every sink shares.
type Target struct {
	PriorityOnly bool `mapstructure:"priority-only"`
}

type Dispatch struct {
	Log           *LogSink     `mapstructure:"log"`
	File          *FileSink    `mapstructure:"file"`
	Webhook       *WebhookSink `mapstructure:"webhook"`
	SNS           *SNSSink     `mapstructure:"sns"`
	SES           *SESSink     `mapstructure:"ses"`
	Elasticsearch *ElasticSink `mapstructure:"elasticsearch"`
}

type LogSink struct {
	Target `mapstructure:",squash"`
}

type FileSink struct {
	Target `mapstructure:",squash"`
	Path   string `mapstructure:"path" validate:"required"`
}

type WebhookSink struct {
	Target  `mapstructure:",squash"`
	URL     string            `mapstructure:"url" validate:"required,url"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout"`
}

type SNSSink struct {
	Target   `mapstructure:",squash"`
	Region   string `mapstructure:"region"`
	TopicARN string `mapstructure:"topic-arn" validate:"required"`
}

type SESSink struct {
	Target `mapstructure:",squash"`
	Region string   `mapstructure:"region"`
	From   string   `mapstructure:"from" validate:"required,email"`
	To     []string `mapstructure:"to" validate:"min=1,dive,email"`
}

type ElasticSink struct {
	Target                 `mapstructure:",squash"`
	dispatch.ElasticConfig `mapstructure:",squash"`
	PasswordFile           string `mapstructure:"password-file"`
}

func (e ElasticSink) PasswordSource() secrets.Source {
	return secrets.Source{Name: "elasticsearch password", Value: e.Password, File: e.PasswordFile, Env: "ELASTIC_PASSWORD"}
}

type Status struct {
	// Listen is the status server address; empty disables it.
	Listen string `mapstructure:"listen" validate:"omitempty,hostname_port"`
}

// SetDefaults registers default values with v. A configured list replaces
// its default as a whole.
func SetDefaults(v *viper.Viper) {
	w := scoring.DefaultWeights()
	v.SetDefault("scoring.weights.role-match", w.RoleMatch)
	v.SetDefault("scoring.weights.stage-match", w.StageMatch)
	v.SetDefault("scoring.weights.equity-mention", w.EquityMention)
	v.SetDefault("scoring.weights.skill-match", w.SkillMatch)
	v.SetDefault("scoring.weights.skill-cap", w.SkillCap)
	v.SetDefault("scoring.weights.recent", w.Recent)
	v.SetDefault("scoring.weights.recent-window", w.RecentWindow)
	v.SetDefault("scoring.weights.seniority-penalty", w.SeniorityPenalty)
	v.SetDefault("scoring.weights.company-size-penalty", w.CompanySizePenalty)

	p := scoring.DefaultPolicy()
	signals := make([]string, 0, len(p.PrioritySignals))
	for _, s := range p.PrioritySignals {
		signals = append(signals, string(s))
	}
	v.SetDefault("scoring.policy.heuristic-weight", p.HeuristicWeight)
	v.SetDefault("scoring.policy.priority-signals", signals)
	v.SetDefault("scoring.policy.min-signals", p.MinSignals)
	v.SetDefault("scoring.policy.score-floor", p.ScoreFloor)

	v.SetDefault("ai.enabled", true)
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.chain", []string{"gemini-2.5-flash", "gemini-2.5-flash-lite"})
	v.SetDefault("ai.timeout", time.Minute)
	v.SetDefault("ai.max-quota-delay", 30*time.Second)
	v.SetDefault("ai.retry.max-attempts", 3)
	v.SetDefault("ai.retry.base-delay", 2*time.Second)
	v.SetDefault("ai.retry.max-delay", 30*time.Second)
	v.SetDefault("ai.cache-ttl", 24*time.Hour)
	v.SetDefault("ai.rate-limit.rate", 0.5)
	v.SetDefault("ai.rate-limit.burst", 2)
	v.SetDefault("ai.max-log-length", 200)

	v.SetDefault("sources.timeout", 30*time.Second)
	v.SetDefault("sources.retry.max-attempts", 3)
	v.SetDefault("sources.retry.base-delay", time.Second)
	v.SetDefault("sources.retry.max-delay", 30*time.Second)
	v.SetDefault("sources.rate-limit.rate", 2)
	v.SetDefault("sources.rate-limit.burst", 2)
	v.SetDefault("sources.max-wait", 30*time.Second)

	v.SetDefault("store.dialect", string(store.SQLite))
	v.SetDefault("store.dsn", "job-radar.db")

	v.SetDefault("pipeline.fetch-workers", 4)
	v.SetDefault("pipeline.score-workers", 4)
	v.SetDefault("pipeline.top-k", 5)
	v.SetDefault("pipeline.cycle-deadline", 10*time.Minute)
	v.SetDefault("pipeline.lookback", 7*24*time.Hour)

	v.SetDefault("schedule", "@every 30m")
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate runs the struct tag rules and then the checks spanning sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	if c.Sources.Count() == 0 {
		errs = append(errs, errors.New("at least one source must be configured"))
	}
	if c.AI.Enabled {
		if err := resilience.Chain(c.AI.Chain).Validate(); err != nil {
			errs = append(errs, fmt.Errorf("ai.chain: %w", err))
		}
	}
	if err := c.Scoring.Policy.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scoring.policy: %w", err))
	}
	if _, err := pipeline.ParseSchedule(c.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("schedule: %w", err))
	}
	names := make(map[string]struct{}, len(c.Sources.Feeds))
	for _, feed := range c.Sources.Feeds {
		name := strings.ToLower(strings.TrimSpace(feed.Name))
		if _, ok := names[name]; ok {
			errs = append(errs, fmt.Errorf("sources.feeds: duplicate feed name %q", feed.Name))
		}
		names[name] = struct{}{}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Overrides builds per-key rate limits for resilience.NewLimiters.
func (c *Config) Overrides() map[string]resilience.Limit {
	overrides := make(map[string]resilience.Limit, len(c.Sources.RateLimits)+1)
	for _, l := range c.Sources.RateLimits {
		overrides[resilience.SourceKey(strings.ToLower(l.Domain))] = l.Limit
	}
	if c.AI.Enabled {
		overrides[resilience.AIKey(c.AI.Provider)] = c.AI.RateLimit
	}
	return overrides
}
