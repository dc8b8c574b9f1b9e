package headhunter

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/spigell/job-radar/internal/sources"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func page(n, pages int, items ...map[string]any) map[string]any {
	list := make([]any, 0, len(items))
	for _, i := range items {
		list = append(list, i)
	}
	return map[string]any{"items": list, "found": len(items), "pages": pages, "page": n, "per_page": 100}
}

func vacancy(id, name, employer string) map[string]any {
	return map[string]any{
		"id":            id,
		"name":          name,
		"alternate_url": "https://hh.ru/vacancy/" + id,
		"published_at":  "2026-10-10T09:30:00+0300",
		"area":          map[string]any{"id": "1", "name": "Moscow"},
		"employer":      map[string]any{"id": "e" + id, "name": employer},
		"salary":        map[string]any{"from": 300000, "currency": "RUR"},
		"snippet": map[string]any{
			"requirement":    "Go, <highlighttext>Kubernetes</highlighttext>",
			"responsibility": "Build the platform",
		},
	}
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*Adapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := New(zap.NewNop(), "token")
	client.APIURL = srv.URL
	return NewAdapter(client, SearchParams{Text: "golang", Areas: []int{1, 2}}), srv
}

func TestFetchPaginatesAndMaps(t *testing.T) {
	var gotQuery []string
	adapter, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, SearchPath, r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		gotQuery = append(gotQuery, r.URL.RawQuery)

		p, _ := strconv.Atoi(r.URL.Query().Get("page"))
		body := page(p, 2, vacancy("1", "Go Developer", "Acme"))
		if p == 1 {
			body = page(p, 2, vacancy("2", "Founding Engineer", "Seedling"), map[string]any{"id": "3", "name": "Old", "archived": true})
			w.Header().Set("Content-Encoding", "gzip")
			gz := gzip.NewWriter(w)
			defer gz.Close()
			assert.NoError(t, json.NewEncoder(gz).Encode(body))
			return
		}
		assert.NoError(t, json.NewEncoder(w).Encode(body))
	})

	assert.Equal(t, srv.Listener.Addr().String(), adapter.Domain())

	since := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	postings, err := adapter.Fetch(context.Background(), sources.Cursor{Since: since})
	require.NoError(t, err)
	require.Len(t, postings, 2)

	first := postings[0]
	assert.Equal(t, Name, first.Source)
	assert.Equal(t, "1", first.ExternalID)
	assert.Equal(t, "Go Developer", first.Title)
	assert.Equal(t, "Acme", first.Company)
	assert.Equal(t, "https://hh.ru/vacancy/1", first.URL)
	assert.Equal(t, "Moscow", first.Location)
	assert.Contains(t, first.Description, "Build the platform")
	require.NotNil(t, first.PostedAt)
	assert.Equal(t, time.Date(2026, 10, 10, 6, 30, 0, 0, time.UTC), *first.PostedAt)
	assert.Equal(t, 300000, first.Extra["salary_from"])

	assert.Equal(t, "Founding Engineer", postings[1].Title)

	require.Len(t, gotQuery, 2)
	assert.Contains(t, gotQuery[0], "date_from=2026-10-01T00%3A00%3A00%2B0000")
	assert.Contains(t, gotQuery[0], "area=1&area=2")
	assert.Contains(t, gotQuery[1], "page=1")
}

func TestFetchClassifiesStatus(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	_, err := adapter.Fetch(context.Background(), sources.Cursor{})
	require.Error(t, err)
	assert.Equal(t, sources.KindPermanent, sources.KindOf(err))

	adapter, _ = newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err = adapter.Fetch(context.Background(), sources.Cursor{})
	assert.Equal(t, sources.KindTransient, sources.KindOf(err))
}

func TestFetchReturnsPartialPages(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.NoError(t, json.NewEncoder(w).Encode(page(0, 3, vacancy("1", "Go Developer", "Acme"))))
	})

	postings, err := adapter.Fetch(context.Background(), sources.Cursor{})
	require.Error(t, err)
	assert.Len(t, postings, 1)
}

func TestFetchRespectsMaxPages(t *testing.T) {
	calls := 0
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		p, _ := strconv.Atoi(r.URL.Query().Get("page"))
		assert.NoError(t, json.NewEncoder(w).Encode(page(p, 50, vacancy(strconv.Itoa(p), "Go", "Acme"))))
	})
	adapter.client.MaxPages = 3

	postings, err := adapter.Fetch(context.Background(), sources.Cursor{})
	require.NoError(t, err)
	assert.Len(t, postings, 3)
	assert.Equal(t, 3, calls)
}

func TestBuildParams(t *testing.T) {
	q := buildParams(&SearchParams{
		Text:       "golang",
		Areas:      []int{1, 113},
		Schedules:  []string{"remote"},
		Experience: "between3And6",
		PerPage:    "50",
	})

	assert.Equal(t, "golang", q.Get("text"))
	assert.Equal(t, []string{"1", "113"}, q["area"])
	assert.Equal(t, []string{"remote"}, q["schedule"])
	assert.Equal(t, "between3And6", q.Get("experience"))
	assert.Equal(t, "50", q.Get("per_page"))
	assert.Empty(t, q.Get("employer_id"), "zero values are omitted")
	assert.Empty(t, q.Get("period"))
	assert.Empty(t, q.Get("date_from"))
}
