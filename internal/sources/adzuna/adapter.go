package adzuna

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spigell/job-radar/internal/jobs"
	"github.com/spigell/job-radar/internal/sources"

	"go.uber.org/zap"
)

const (
	Name = "adzuna"

	baseURL     = "https://api.adzuna.com/v1/api/jobs"
	pageSize    = 50
	httpTimeout = 15 * time.Second
)

// Query is one what/where pair searched every cycle.
type Query struct {
	What  string `mapstructure:"what"`
	Where string `mapstructure:"where"`
}

type Config struct {
	AppID   string  `mapstructure:"app-id"`
	AppKey  string  `mapstructure:"app-key"`
	Country string  `mapstructure:"country"`
	Queries []Query `mapstructure:"queries"`
	// MaxPages bounds pages per query.
	MaxPages int    `mapstructure:"max-pages"`
	BaseURL  string `mapstructure:"base-url"`
}

// Adapter fetches job offers from the Adzuna search API.
type Adapter struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

var _ sources.Adapter = (*Adapter)(nil)

func NewAdapter(cfg Config, logger *zap.Logger) (*Adapter, error) {
	if cfg.AppID == "" || cfg.AppKey == "" {
		return nil, errors.New("adzuna app id and app key are required")
	}
	if len(cfg.Queries) == 0 {
		return nil, errors.New("adzuna needs at least one query")
	}
	if cfg.Country == "" {
		cfg.Country = "gb"
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 3
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = baseURL
	}

	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: httpTimeout},
		logger: logger,
	}, nil
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Domain() string {
	u, err := url.Parse(a.cfg.BaseURL)
	if err != nil {
		return "api.adzuna.com"
	}
	return u.Host
}

// Fetch runs every query, page by page, until a short page or MaxPages. A
// failure after some results is returned alongside what was collected.
func (a *Adapter) Fetch(ctx context.Context, since sources.Cursor) ([]jobs.RawPosting, error) {
	maxDaysOld := 0
	if !since.Since.IsZero() {
		maxDaysOld = int(math.Ceil(time.Since(since.Since).Hours() / 24))
		if maxDaysOld < 1 {
			maxDaysOld = 1
		}
	}

	var (
		postings []jobs.RawPosting
		failures []error
	)

	for _, q := range a.cfg.Queries {
		for page := 1; page <= a.cfg.MaxPages; page++ {
			batch, err := a.fetchPage(ctx, q, page, maxDaysOld)
			if err != nil {
				failures = append(failures, fmt.Errorf("%s/%s page %d: %w", q.What, q.Where, page, err))
				break
			}
			postings = append(postings, batch...)
			if len(batch) < pageSize {
				break
			}
		}
	}

	if len(failures) == 0 {
		return postings, nil
	}

	// Keep the tagged kind of the first failure so the runner can decide on
	// retries when nothing came back.
	err := errors.Join(failures...)
	var srcErr *sources.Error
	if errors.As(failures[0], &srcErr) {
		return postings, &sources.Error{Kind: srcErr.Kind, Source: Name, StatusCode: srcErr.StatusCode, Err: err}
	}
	return postings, sources.FromError(Name, err)
}

type response struct {
	Results []result `json:"results"`
	Count   int      `json:"count"`
}

type result struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Company      named   `json:"company"`
	Location     named   `json:"location"`
	SalaryMin    float64 `json:"salary_min"`
	SalaryMax    float64 `json:"salary_max"`
	RedirectURL  string  `json:"redirect_url"`
	Created      string  `json:"created"`
	ContractType string  `json:"contract_type"`
}

type named struct {
	DisplayName string `json:"display_name"`
}

func (a *Adapter) fetchPage(ctx context.Context, q Query, page, maxDaysOld int) ([]jobs.RawPosting, error) {
	endpoint := fmt.Sprintf("%s/%s/search/%d", strings.TrimRight(a.cfg.BaseURL, "/"), a.cfg.Country, page)

	params := url.Values{}
	params.Set("app_id", a.cfg.AppID)
	params.Set("app_key", a.cfg.AppKey)
	params.Set("results_per_page", strconv.Itoa(pageSize))
	params.Set("what", q.What)
	if q.Where != "" {
		params.Set("where", q.Where)
	}
	params.Set("sort_by", "date")
	if maxDaysOld > 0 {
		params.Set("max_days_old", strconv.Itoa(maxDaysOld))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, sources.Permanent(Name, "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	a.logger.Debug("make request", zap.String("what", q.What), zap.String("where", q.Where), zap.Int("page", page))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, sources.FromError(Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sources.Transient(Name, "read body", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, sources.FromStatus(Name, resp.StatusCode, string(body))
	}

	var apiResp response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, sources.Permanent(Name, "decode response", err)
	}

	postings := make([]jobs.RawPosting, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		raw := jobs.RawPosting{
			Source:      Name,
			ExternalID:  r.ID,
			Title:       r.Title,
			Company:     r.Company.DisplayName,
			URL:         r.RedirectURL,
			Description: r.Description,
			Location:    r.Location.DisplayName,
			Extra: map[string]any{
				"salary_min":    r.SalaryMin,
				"salary_max":    r.SalaryMax,
				"contract_type": r.ContractType,
			},
		}
		if t, err := time.Parse(time.RFC3339, r.Created); err == nil {
			t = t.UTC()
			raw.PostedAt = &t
		}
		postings = append(postings, raw)
	}

	return postings, nil
}
