package jobs

import (
	"errors"
	"testing"
	"time"
)

func TestDispatchValidate(t *testing.T) {
	complete := Dispatch{
		CycleID: "c1",
		Posting: Posting{ID: "abc", Title: "Founding Engineer", Company: "Acme"},
		Score:   ScoreResult{CombinedScore: 72},
		Content: Content{Body: "hello", Source: ContentTemplate, GeneratedAt: time.Now()},
	}
	if err := complete.Validate(); err != nil {
		t.Fatalf("expected complete dispatch, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(d *Dispatch)
	}{
		{name: "missing id", mutate: func(d *Dispatch) { d.Posting.ID = "" }},
		{name: "blank body", mutate: func(d *Dispatch) { d.Content.Body = "  " }},
		{name: "unknown content source", mutate: func(d *Dispatch) { d.Content.Source = "" }},
		{name: "score out of range", mutate: func(d *Dispatch) { d.Score.CombinedScore = 101 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := complete
			tt.mutate(&d)
			if err := d.Validate(); !errors.Is(err, ErrIncompleteDispatch) {
				t.Fatalf("expected ErrIncompleteDispatch, got %v", err)
			}
		})
	}
}

func TestWithTalkingPointsCopies(t *testing.T) {
	points := []string{"a", "b"}
	p := Posting{ID: "x"}.WithTalkingPoints(points)
	points[0] = "changed"
	if p.TalkingPoints[0] != "a" {
		t.Fatalf("talking points share backing array with input")
	}
}

func TestFailedSources(t *testing.T) {
	rec := CycleRecord{Outcomes: []AdapterOutcome{
		{Source: "hh", Status: OutcomeSucceeded},
		{Source: "adzuna", Status: OutcomeFailed, Detail: "401 unauthorized"},
		{Source: "feed", Status: OutcomePartial, Detail: "page 2: timeout"},
	}}
	failed := rec.FailedSources()
	if len(failed) != 2 || failed["adzuna"] != "401 unauthorized" || failed["feed"] != "page 2: timeout" {
		t.Fatalf("unexpected failed sources: %v", failed)
	}
}
