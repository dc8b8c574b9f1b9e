package headhunter

import (
	"context"
	"net/url"
	"strings"

	"github.com/spigell/job-radar/internal/jobs"
	"github.com/spigell/job-radar/internal/sources"
)

const Name = "headhunter"

// Adapter exposes the hh.ru vacancy search as a job source.
type Adapter struct {
	client *Client
	params SearchParams
}

var _ sources.Adapter = (*Adapter)(nil)

func NewAdapter(client *Client, params SearchParams) *Adapter {
	return &Adapter{client: client, params: params}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Domain() string {
	u, err := url.Parse(a.client.APIURL)
	if err != nil || u.Host == "" {
		return strings.TrimPrefix(apiURL, "https://")
	}
	return u.Host
}

func (a *Adapter) Fetch(ctx context.Context, since sources.Cursor) ([]jobs.RawPosting, error) {
	params := a.params
	if !since.Since.IsZero() {
		params.DateFrom = since.Since.UTC().Format(publishedLayout)
	}

	vacancies, err := a.client.Search(ctx, params)

	postings := make([]jobs.RawPosting, 0, len(vacancies))
	for _, v := range vacancies {
		if v == nil || v.Archived {
			continue
		}
		postings = append(postings, v.ToRaw())
	}

	return postings, err
}
