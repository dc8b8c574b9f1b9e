package headhunter

import (
	"strings"
	"time"

	"github.com/spigell/job-radar/internal/jobs"
)

const publishedLayout = "2006-01-02T15:04:05-0700"

type NamedRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type Employer struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	AlternateURL string `json:"alternate_url,omitempty"`
	Trusted      bool   `json:"trusted,omitempty"`
}

type Salary struct {
	From     int    `json:"from,omitempty"`
	To       int    `json:"to,omitempty"`
	Currency string `json:"currency,omitempty"`
	Gross    bool   `json:"gross,omitempty"`
}

type Snippet struct {
	Requirement    string `json:"requirement,omitempty"`
	Responsibility string `json:"responsibility,omitempty"`
}

type Vacancy struct {
	ID           string     `json:"id,omitempty"`
	Name         string     `json:"name,omitempty"`
	Area         NamedRef   `json:"area,omitempty"`
	Salary       *Salary    `json:"salary,omitempty"`
	Experience   NamedRef   `json:"experience,omitempty"`
	Schedule     NamedRef   `json:"schedule,omitempty"`
	Employment   NamedRef   `json:"employment,omitempty"`
	Employer     Employer   `json:"employer,omitempty"`
	AlternateURL string     `json:"alternate_url,omitempty"`
	Description  string     `json:"description,omitempty"`
	Snippet      Snippet    `json:"snippet,omitempty"`
	Archived     bool       `json:"archived,omitempty"`
	PublishedAt  string     `json:"published_at,omitempty"`
	KeySkills    []NamedRef `json:"key_skills,omitempty"`
}

// ToRaw maps a vacancy onto the adapter record. Search results carry only a
// snippet, so requirement and responsibility stand in for the description.
func (v *Vacancy) ToRaw() jobs.RawPosting {
	description := v.Description
	if description == "" {
		parts := make([]string, 0, 2)
		for _, s := range []string{v.Snippet.Responsibility, v.Snippet.Requirement} {
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
		description = strings.Join(parts, "\n")
	}

	raw := jobs.RawPosting{
		Source:      Name,
		ExternalID:  v.ID,
		Title:       v.Name,
		Company:     v.Employer.Name,
		URL:         v.AlternateURL,
		Description: description,
		Location:    v.Area.Name,
		Extra:       map[string]any{},
	}

	if t, err := time.Parse(publishedLayout, v.PublishedAt); err == nil {
		t = t.UTC()
		raw.PostedAt = &t
	}
	if v.Salary != nil {
		raw.Extra["salary_from"] = v.Salary.From
		raw.Extra["salary_to"] = v.Salary.To
		raw.Extra["salary_currency"] = v.Salary.Currency
	}
	if v.Schedule.ID != "" {
		raw.Extra["schedule"] = v.Schedule.ID
	}
	if v.Experience.ID != "" {
		raw.Extra["experience"] = v.Experience.ID
	}
	if len(v.KeySkills) > 0 {
		skills := make([]string, 0, len(v.KeySkills))
		for _, s := range v.KeySkills {
			skills = append(skills, s.Name)
		}
		raw.Extra["key_skills"] = skills
	}

	return raw
}
