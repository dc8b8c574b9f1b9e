package jobs

import (
	"time"
)

// RawPosting is a single record as an adapter returned it.
type RawPosting struct {
	Source      string         `json:"source"`
	ExternalID  string         `json:"external_id,omitempty"`
	Title       string         `json:"title"`
	Company     string         `json:"company"`
	URL         string         `json:"url,omitempty"`
	Description string         `json:"description,omitempty"`
	Location    string         `json:"location,omitempty"`
	PostedAt    *time.Time     `json:"posted_at,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Posting is the canonical, deduplicated view of a job. ID does not depend on
// which adapter reported it.
type Posting struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Sources     []string   `json:"sources"`
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	URL         string     `json:"url,omitempty"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`

	TalkingPoints []string `json:"talking_points,omitempty"`
}

// WithTalkingPoints returns a copy of the posting carrying the given points.
func (p Posting) WithTalkingPoints(points []string) Posting {
	p.TalkingPoints = append([]string(nil), points...)
	return p
}

// Profile describes the candidate. It is read-only for the pipeline.
type Profile struct {
	Name                  string   `mapstructure:"name" json:"name" validate:"required"`
	Contact               string   `mapstructure:"contact" json:"contact,omitempty"`
	Headline              string   `mapstructure:"headline" json:"headline,omitempty"`
	Skills                []string `mapstructure:"skills" json:"skills,omitempty"`
	TargetRoles           []string `mapstructure:"target-roles" json:"target_roles" validate:"min=1,dive,required"`
	ProofPoints           []string `mapstructure:"proof-points" json:"proof_points" validate:"min=1,dive,required"`
	ValuePropositions     []string `mapstructure:"value-propositions" json:"value_propositions,omitempty"`
	StageKeywords         []string `mapstructure:"stage-keywords" json:"stage_keywords,omitempty"`
	EquityKeywords        []string `mapstructure:"equity-keywords" json:"equity_keywords,omitempty"`
	SeniorityExclusions   []string `mapstructure:"seniority-exclusions" json:"seniority_exclusions,omitempty"`
	CompanySizeExclusions []string `mapstructure:"company-size-exclusions" json:"company_size_exclusions,omitempty"`
	CallToAction          string   `mapstructure:"call-to-action" json:"call_to_action" validate:"required"`
}

// ProofPoint is the achievement every outreach body has to carry.
func (p *Profile) ProofPoint() string {
	if p == nil || len(p.ProofPoints) == 0 {
		return ""
	}
	return p.ProofPoints[0]
}
