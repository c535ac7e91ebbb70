package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ReleaseReport summarizes one shipped fix version: issue tracker rollup plus
// the generated narrative. ReportData carries the raw rollup for re-rendering.
type ReleaseReport struct {
	ID               uuid.UUID       `json:"id"`
	FixVersionName   string          `json:"fix_version_name"`
	SprintNumber     string          `json:"sprint_number"`
	ReleaseDate      string          `json:"release_date"`
	StartDate        string          `json:"start_date"`
	TotalIssues      int             `json:"total_issues"`
	TotalStoryPoints float64         `json:"total_story_points"`
	IssuesDeployed   int             `json:"issues_deployed"`
	BugsResolved     int             `json:"bugs_resolved"`
	SanityExecuters  []string        `json:"sanity_executers"`
	SanityStatus     string          `json:"sanity_status"`
	DocumentURL      string          `json:"document_url,omitempty"`
	DocumentFormat   string          `json:"document_format,omitempty"`
	ReportData       json.RawMessage `json:"report_data,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}
