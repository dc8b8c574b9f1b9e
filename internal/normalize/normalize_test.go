package normalize

import (
	"math/rand"
	"testing"
	"time"

	"github.com/spigell/job-radar/internal/jobs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(day int) *time.Time {
	t := time.Date(2026, 10, day, 12, 0, 0, 0, time.UTC)
	return &t
}

func TestMergeKeepsLongerDescription(t *testing.T) {
	raws := []jobs.RawPosting{
		{Source: "adzuna", Title: "Founding Engineer", Company: "Seedling Inc.", URL: "https://a.example/1", Description: "Short text", PostedAt: ts(10)},
		{Source: "remoteboard", Title: "founding  engineer", Company: "SEEDLING", URL: "https://b.example/1", Description: "<p>Much longer description with equity details</p>", PostedAt: ts(8)},
	}

	res := Normalize(raws)

	require.Len(t, res.Postings, 1)
	assert.Equal(t, 1, res.Collapsed)
	p := res.Postings[0]
	assert.Equal(t, "Much longer description with equity details", p.Description)
	assert.Equal(t, "remoteboard", p.Source)
	assert.Equal(t, "https://b.example/1", p.URL)
	assert.Equal(t, []string{"adzuna", "remoteboard"}, p.Sources)
	assert.Equal(t, ts(8), p.PostedAt)
	assert.Equal(t, ID("Seedling", "Founding Engineer"), p.ID)
}

func TestNormalizeIsOrderIndependent(t *testing.T) {
	raws := []jobs.RawPosting{
		{Source: "hh", Title: "Go Developer", Company: "Acme LLC", Description: "same"},
		{Source: "adzuna", Title: "Go  Developer", Company: "acme", Description: "same", URL: "https://x/1", PostedAt: ts(3)},
		{Source: "feed", Title: "GO DEVELOPER", Company: "Acme, Ltd", Description: "same", Location: "Berlin", PostedAt: ts(2)},
		{Source: "feed", Title: "Platform Engineer", Company: "Other GmbH"},
		{Source: "hh", Title: "", Company: "NoTitle"},
		{Source: "hh", Title: "No company", Company: " , "},
	}

	want := Normalize(raws)
	require.Len(t, want.Postings, 2)
	assert.Equal(t, 2, want.Malformed)
	assert.Equal(t, 2, want.Collapsed)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		shuffled := append([]jobs.RawPosting(nil), raws...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, Normalize(shuffled))
	}

	var merged jobs.Posting
	for _, p := range want.Postings {
		if p.Title == "Go Developer" {
			merged = p
		}
	}
	assert.Equal(t, "https://x/1", merged.URL)
	assert.Equal(t, "Berlin", merged.Location)
	assert.Equal(t, ts(2), merged.PostedAt)
	assert.Equal(t, []string{"adzuna", "feed", "hh"}, merged.Sources)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	raws := []jobs.RawPosting{
		{Source: "a", Title: "Engineer", Company: "X Corp", Description: "one"},
		{Source: "b", Title: "Engineer", Company: "X", Description: "longer one"},
	}
	first := Normalize(raws)

	var again []jobs.RawPosting
	for _, p := range first.Postings {
		again = append(again, jobs.RawPosting{Source: p.Source, Title: p.Title, Company: p.Company, URL: p.URL, Description: p.Description, PostedAt: p.PostedAt})
	}
	second := Normalize(again)

	require.Len(t, second.Postings, 1)
	assert.Equal(t, first.Postings[0].ID, second.Postings[0].ID)
	assert.Equal(t, first.Postings[0].Description, second.Postings[0].Description)
}

func TestCanonicalCompany(t *testing.T) {
	tests := map[string]string{
		"Acme, Inc.":          "acme",
		"ACME":                "acme",
		"Acme Holdings Ltd":   "acme holdings",
		"  Seedling   GmbH  ": "seedling",
		"Inc":                 "inc",
		"Foo &amp; Bar LLC":   "foo bar",
		"ООО Ромашка":         "ооо ромашка",
	}
	for in, want := range tests {
		assert.Equal(t, want, CanonicalCompany(in), in)
	}
}

func TestText(t *testing.T) {
	assert.Equal(t, "Go and Kubernetes with more", Text("<b>Go</b> and  <highlighttext>Kubernetes</highlighttext>\n with&nbsp;more"))
}

func TestIDIsSourceAgnostic(t *testing.T) {
	id := ID("Acme Inc", "Founding Engineer")
	assert.Len(t, id, 16)
	assert.Equal(t, id, ID("acme", "  founding engineer "))
	assert.NotEqual(t, id, ID("Acme", "Engineer"))
}
