// Package normalize turns raw adapter records into canonical postings and
// collapses the same job reported by several sources.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spigell/job-radar/internal/jobs"
)

var (
	tags       = regexp.MustCompile(`<[^>]*>`)
	whitespace = regexp.MustCompile(`[\s\p{Zs}]+`)
	// Separators and punctuation that never distinguish two companies.
	punctuation = regexp.MustCompile(`[^\pL\pN]+`)
)

var legalSuffixes = map[string]struct{}{
	"inc": {}, "incorporated": {}, "llc": {}, "ltd": {}, "limited": {}, "gmbh": {},
	"corp": {}, "corporation": {}, "co": {}, "plc": {}, "sa": {}, "ag": {}, "bv": {},
	"oy": {}, "ab": {}, "srl": {}, "pty": {}, "ooo": {}, "ооо": {}, "llp": {},
}

// Result is the normalizer output for one cycle.
type Result struct {
	Postings []jobs.Posting
	// Collapsed counts raw records merged into another one.
	Collapsed int
	// Malformed counts raw records dropped for missing title or company.
	Malformed int
}

// Text trims, unescapes entities, strips markup and collapses whitespace.
func Text(s string) string {
	s = tags.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// CanonicalCompany lower-cases the name and drops punctuation and legal
// suffixes so "Acme, Inc." and "ACME" compare equal.
func CanonicalCompany(name string) string {
	words := strings.Fields(punctuation.ReplaceAllString(strings.ToLower(Text(name)), " "))
	for len(words) > 1 {
		if _, ok := legalSuffixes[words[len(words)-1]]; !ok {
			break
		}
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// CanonicalTitle lower-cases and collapses whitespace.
func CanonicalTitle(title string) string {
	return strings.ToLower(Text(title))
}

// ID is the source-agnostic identity of a job.
func ID(company, title string) string {
	sum := sha256.Sum256([]byte(CanonicalCompany(company) + "\x1f" + CanonicalTitle(title)))
	return hex.EncodeToString(sum[:])[:16]
}

// Normalize canonicalizes and deduplicates raw postings. The output is sorted
// by ID and does not depend on input order.
func Normalize(raws []jobs.RawPosting) Result {
	var res Result
	groups := make(map[string][]jobs.Posting)

	for _, raw := range raws {
		p, ok := canonical(raw)
		if !ok {
			res.Malformed++
			continue
		}
		groups[p.ID] = append(groups[p.ID], p)
	}

	res.Postings = make([]jobs.Posting, 0, len(groups))
	for _, group := range groups {
		res.Collapsed += len(group) - 1
		res.Postings = append(res.Postings, merge(group))
	}
	sort.Slice(res.Postings, func(i, j int) bool { return res.Postings[i].ID < res.Postings[j].ID })

	return res
}

func canonical(raw jobs.RawPosting) (jobs.Posting, bool) {
	title := Text(raw.Title)
	company := Text(raw.Company)
	if title == "" || CanonicalCompany(company) == "" {
		return jobs.Posting{}, false
	}

	p := jobs.Posting{
		ID:          ID(company, title),
		Source:      raw.Source,
		Sources:     []string{raw.Source},
		Title:       title,
		Company:     company,
		URL:         strings.TrimSpace(raw.URL),
		Description: Text(raw.Description),
		Location:    Text(raw.Location),
	}
	if raw.PostedAt != nil && !raw.PostedAt.IsZero() {
		t := raw.PostedAt.UTC()
		p.PostedAt = &t
	}

	return p, true
}

// merge collapses postings sharing an ID. The richest record supplies the
// display fields, gaps are filled from the others in preference order, the
// earliest timestamp is kept and sources are unioned.
func merge(group []jobs.Posting) jobs.Posting {
	sort.Slice(group, func(i, j int) bool { return prefer(group[i], group[j]) })

	out := group[0]
	var sources []string
	for _, p := range group {
		if out.URL == "" {
			out.URL = p.URL
		}
		if out.Location == "" {
			out.Location = p.Location
		}
		out.PostedAt = earliest(out.PostedAt, p.PostedAt)
		sources = append(sources, p.Sources...)
	}
	out.Sources = union(sources)

	return out
}

// prefer reports whether x should be the retained record over y.
func prefer(x, y jobs.Posting) bool {
	if len(x.Description) != len(y.Description) {
		return len(x.Description) > len(y.Description)
	}
	if x.Description != y.Description {
		return x.Description < y.Description
	}
	if x.Source != y.Source {
		return x.Source < y.Source
	}
	if x.URL != y.URL {
		if x.URL == "" || y.URL == "" {
			return x.URL != ""
		}
		return x.URL < y.URL
	}
	if x.Title != y.Title {
		return x.Title < y.Title
	}
	if x.Company != y.Company {
		return x.Company < y.Company
	}
	return x.Location > y.Location
}

func earliest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Before(*a):
		return b
	default:
		return a
	}
}

func union(values []string) []string {
	set := make(map[string]struct{}, len(values))
	for _, s := range values {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
