package dispatch

import (
	"fmt"
	"strings"

	"github.com/spigell/job-radar/internal/jobs"
)

// Subject is a one-line headline for the tuple.
func Subject(d jobs.Dispatch) string {
	prefix := ""
	if d.Score.IsPriority {
		prefix = "[priority] "
	}
	return fmt.Sprintf("%s%s at %s (%.0f)", prefix, d.Posting.Title, d.Posting.Company, d.Score.CombinedScore)
}

// Text renders the tuple as a plain-text notification.
func Text(d jobs.Dispatch) string {
	var b strings.Builder
	b.WriteString(Subject(d))
	b.WriteString("\n")
	if d.Posting.URL != "" {
		b.WriteString(d.Posting.URL)
		b.WriteString("\n")
	}

	b.WriteString("\nWhy:\n")
	for _, r := range d.Score.Reasons {
		sign := "+"
		if !r.Positive {
			sign = "-"
		}
		fmt.Fprintf(&b, "%s %s\n", sign, r.Text)
	}

	fmt.Fprintf(&b, "\nOutreach (%s):\n%s\n", d.Content.Source, d.Content.Body)
	return b.String()
}
