// Package jsonfeed reads job boards that publish a plain JSON list, mapping
// their field names onto postings through configuration.
package jsonfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spigell/job-radar/internal/jobs"
	"github.com/spigell/job-radar/internal/sources"

	"github.com/mitchellh/mapstructure"
)

// Fields maps posting attributes to keys of a feed item. Dotted keys reach
// into nested objects.
type Fields struct {
	ID          string `mapstructure:"id"`
	Title       string `mapstructure:"title"`
	Company     string `mapstructure:"company"`
	URL         string `mapstructure:"url"`
	Description string `mapstructure:"description"`
	Location    string `mapstructure:"location"`
	PostedAt    string `mapstructure:"posted-at"`
}

func (f Fields) withDefaults() Fields {
	def := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}
	return Fields{
		ID:          def(f.ID, "id"),
		Title:       def(f.Title, "title"),
		Company:     def(f.Company, "company"),
		URL:         def(f.URL, "url"),
		Description: def(f.Description, "description"),
		Location:    def(f.Location, "location"),
		PostedAt:    def(f.PostedAt, "date"),
	}
}

type Config struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
	// ItemsPath is the dotted path of the item list; empty when the document
	// is the list itself.
	ItemsPath string            `mapstructure:"items-path"`
	Fields    Fields            `mapstructure:"fields"`
	Headers   map[string]string `mapstructure:"headers"`
	Timeout   time.Duration     `mapstructure:"timeout"`
}

type Adapter struct {
	cfg    Config
	host   string
	client *http.Client
}

var _ sources.Adapter = (*Adapter)(nil)

func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.Name == "" {
		return nil, errors.New("feed name is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("feed %s: invalid url %q", cfg.Name, cfg.URL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.Fields = cfg.Fields.withDefaults()

	return &Adapter{cfg: cfg, host: u.Host, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (a *Adapter) Name() string   { return a.cfg.Name }
func (a *Adapter) Domain() string { return a.host }

// item is the canonical shape a feed entry is decoded into after renaming.
type item struct {
	ID          string `mapstructure:"id"`
	Title       string `mapstructure:"title"`
	Company     string `mapstructure:"company"`
	URL         string `mapstructure:"url"`
	Description string `mapstructure:"description"`
	Location    string `mapstructure:"location"`
	PostedAt    any    `mapstructure:"posted_at"`
}

func (a *Adapter) Fetch(ctx context.Context, since sources.Cursor) ([]jobs.RawPosting, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.URL, nil)
	if err != nil {
		return nil, sources.Permanent(a.Name(), "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range a.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, sources.FromError(a.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, sources.FromStatus(a.Name(), resp.StatusCode, string(snippet))
	}

	var doc any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, sources.Permanent(a.Name(), "decode feed", err)
	}

	list, ok := lookup(doc, a.cfg.ItemsPath).([]any)
	if !ok {
		return nil, sources.Permanent(a.Name(), fmt.Sprintf("no item list at %q", a.cfg.ItemsPath), nil)
	}

	postings := make([]jobs.RawPosting, 0, len(list))
	var skipped int
	var lastErr error
	for i, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			skipped++
			lastErr = fmt.Errorf("entry %d is %T, not an object", i, entry)
			continue
		}

		raw, err := a.decode(obj)
		if err != nil {
			skipped++
			lastErr = fmt.Errorf("entry %d: %w", i, err)
			continue
		}
		if raw.PostedAt != nil && !since.Since.IsZero() && raw.PostedAt.Before(since.Since) {
			continue
		}
		postings = append(postings, raw)
	}

	// One odd entry is not a schema change: the rest is still returned and
	// the runner records the source as partial.
	if skipped > 0 {
		return postings, sources.Permanent(a.Name(), fmt.Sprintf("%d of %d feed entries malformed", skipped, len(list)), lastErr)
	}
	return postings, nil
}

func (a *Adapter) decode(obj map[string]any) (jobs.RawPosting, error) {
	f := a.cfg.Fields
	renamed := map[string]any{
		"id":          lookup(obj, f.ID),
		"title":       lookup(obj, f.Title),
		"company":     lookup(obj, f.Company),
		"url":         lookup(obj, f.URL),
		"description": lookup(obj, f.Description),
		"location":    lookup(obj, f.Location),
		"posted_at":   lookup(obj, f.PostedAt),
	}

	var it item
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &it,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return jobs.RawPosting{}, err
	}
	if err := decoder.Decode(renamed); err != nil {
		return jobs.RawPosting{}, err
	}

	raw := jobs.RawPosting{
		Source:      a.Name(),
		ExternalID:  it.ID,
		Title:       it.Title,
		Company:     it.Company,
		URL:         it.URL,
		Description: it.Description,
		Location:    it.Location,
		PostedAt:    parseTime(it.PostedAt),
	}
	return raw, nil
}

func lookup(doc any, path string) any {
	if path == "" {
		return doc
	}
	current := doc
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = obj[key]
	}
	return current
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// parseTime accepts the date strings boards commonly use and unix seconds.
func parseTime(v any) *time.Time {
	var t time.Time
	switch val := v.(type) {
	case float64:
		if val <= 0 {
			return nil
		}
		t = time.Unix(int64(val), 0)
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			t = time.Unix(n, 0)
			break
		}
		parsed := false
		for _, layout := range timeLayouts {
			if p, err := time.Parse(layout, s); err == nil {
				t, parsed = p, true
				break
			}
		}
		if !parsed {
			return nil
		}
	default:
		return nil
	}
	t = t.UTC()
	return &t
}
