package jsonfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spigell/job-radar/internal/sources"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const remoteBoard = `[
	{"legal": "notice"},
	{"id": 101, "position": "Founding Engineer", "company": "Seedling", "url": "https://board.example/101",
	 "description": "<p>Seed stage, meaningful equity</p>", "location": "Remote", "epoch": 1791000000},
	{"id": "102", "position": "Staff Engineer", "company": "BigCo", "url": "https://board.example/102",
	 "epoch": "1000"}
]`

func TestFetchMapsFieldsFromTopLevelList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(remoteBoard))
	}))
	defer srv.Close()

	a, err := NewAdapter(Config{
		Name:    "remoteboard",
		URL:     srv.URL,
		Fields:  Fields{Title: "position", PostedAt: "epoch"},
		Headers: map[string]string{"X-Api-Key": "secret"},
	})
	require.NoError(t, err)

	postings, err := a.Fetch(context.Background(), sources.Cursor{})
	require.NoError(t, err)
	require.Len(t, postings, 3)

	// The legal notice has no title and is left for the normalizer to drop.
	assert.Empty(t, postings[0].Title)

	p := postings[1]
	assert.Equal(t, "remoteboard", p.Source)
	assert.Equal(t, "101", p.ExternalID)
	assert.Equal(t, "Founding Engineer", p.Title)
	assert.Equal(t, "Seedling", p.Company)
	assert.Equal(t, "Remote", p.Location)
	require.NotNil(t, p.PostedAt)
	assert.Equal(t, int64(1791000000), p.PostedAt.Unix())

	since := time.Unix(2000, 0)
	postings, err = a.Fetch(context.Background(), sources.Cursor{Since: since})
	require.NoError(t, err)
	assert.Len(t, postings, 2, "entries older than the cursor are skipped")
}

func TestFetchNestedItemsPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"jobs": [{"title": "Go Dev", "org": {"name": "Acme"}, "date": "2026-10-01"}]}}`))
	}))
	defer srv.Close()

	a, err := NewAdapter(Config{Name: "nested", URL: srv.URL, ItemsPath: "data.jobs", Fields: Fields{Company: "org.name"}})
	require.NoError(t, err)

	postings, err := a.Fetch(context.Background(), sources.Cursor{})
	require.NoError(t, err)
	require.Len(t, postings, 1)
	assert.Equal(t, "Acme", postings[0].Company)
	require.NotNil(t, postings[0].PostedAt)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), *postings[0].PostedAt)
}

func TestFetchReportsMalformedEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id": "1", "title": "Go Dev", "company": "Acme"},
			42,
			{"id": "3", "title": {"text": "nested"}, "company": "Acme"}
		]`))
	}))
	defer srv.Close()

	a, err := NewAdapter(Config{Name: "sloppy", URL: srv.URL})
	require.NoError(t, err)

	postings, err := a.Fetch(context.Background(), sources.Cursor{})
	require.Len(t, postings, 1)
	assert.Equal(t, "Go Dev", postings[0].Title)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 3 feed entries malformed")
	assert.Equal(t, sources.KindPermanent, sources.KindOf(err))
}

func TestFetchSchemaChangeIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	a, err := NewAdapter(Config{Name: "moved", URL: srv.URL, ItemsPath: "jobs"})
	require.NoError(t, err)

	_, err = a.Fetch(context.Background(), sources.Cursor{})
	assert.Equal(t, sources.KindPermanent, sources.KindOf(err))
}

func TestNewAdapterValidates(t *testing.T) {
	_, err := NewAdapter(Config{URL: "https://x.example"})
	assert.Error(t, err)
	_, err = NewAdapter(Config{Name: "x", URL: "not a url"})
	assert.Error(t, err)
}

func TestParseTime(t *testing.T) {
	assert.Nil(t, parseTime(nil))
	assert.Nil(t, parseTime("yesterday"))
	assert.Nil(t, parseTime(float64(0)))
	require.NotNil(t, parseTime("2026-10-12T08:00:00+02:00"))
	assert.Equal(t, 6, parseTime("2026-10-12T08:00:00+02:00").Hour())
	assert.Equal(t, int64(42), parseTime("42").Unix())
}
