package jira

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/productpulse/pulse-api/internal/domain"
	"github.com/productpulse/pulse-api/internal/repository"
)

// Searcher is the issue lookup surface ReleaseService runs on.
type Searcher interface {
	SearchFixVersion(ctx context.Context, fixVersion string) ([]Issue, error)
}

// Narrator writes the prose section of a report. Optional; without one the
// report ships numbers only.
type Narrator interface {
	ReleaseNarrative(ctx context.Context, report domain.ReleaseReport) (string, error)
}

// ReleaseService rolls a fix version's issues up into a stored release report.
type ReleaseService struct {
	searcher Searcher
	repo     repository.ReleaseReportRepository
	narrator Narrator
	logger   *zap.Logger
}

func NewReleaseService(searcher Searcher, repo repository.ReleaseReportRepository, narrator Narrator, logger *zap.Logger) *ReleaseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReleaseService{
		searcher: searcher,
		repo:     repo,
		narrator: narrator,
		logger:   logger,
	}
}

// ReportRequest carries the release metadata the tracker does not know.
type ReportRequest struct {
	FixVersion      string   `json:"fixVersion"`
	SprintNumber    string   `json:"sprintNumber"`
	StartDate       string   `json:"startDate"`
	ReleaseDate     string   `json:"releaseDate"`
	SanityExecuters []string `json:"sanityExecuters"`
	SanityStatus    string   `json:"sanityStatus"`
}

// rollup is the per-issue breakdown embedded in the stored report.
type rollup struct {
	Issues    []Issue `json:"issues"`
	Narrative string  `json:"narrative,omitempty"`
}

// BuildReport searches the fix version, computes the rollup, and stores the
// report. A narrator failure degrades to a report without prose.
func (s *ReleaseService) BuildReport(ctx context.Context, req ReportRequest) (*domain.ReleaseReport, error) {
	issues, err := s.searcher.SearchFixVersion(ctx, req.FixVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to collect release issues: %w", err)
	}
	if len(issues) == 0 {
		return nil, fmt.Errorf("fix version %q has no issues", req.FixVersion)
	}

	report := domain.ReleaseReport{
		FixVersionName:  req.FixVersion,
		SprintNumber:    req.SprintNumber,
		StartDate:       req.StartDate,
		ReleaseDate:     req.ReleaseDate,
		SanityExecuters: req.SanityExecuters,
		SanityStatus:    req.SanityStatus,
		TotalIssues:     len(issues),
	}
	for _, issue := range issues {
		report.TotalStoryPoints += issue.StoryPoints
		if issue.Resolved {
			report.IssuesDeployed++
			if issue.IssueType == "Bug" {
				report.BugsResolved++
			}
		}
	}

	data := rollup{Issues: issues}
	if s.narrator != nil {
		narrative, err := s.narrator.ReleaseNarrative(ctx, report)
		if err != nil {
			s.logger.Warn("release narrative unavailable",
				zap.String("fix_version", req.FixVersion),
				zap.Error(err),
			)
		} else {
			data.Narrative = narrative
		}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report data: %w", err)
	}
	report.ReportData = raw

	stored, err := s.repo.Create(ctx, report)
	if err != nil {
		return nil, fmt.Errorf("failed to store release report: %w", err)
	}
	report = stored

	s.logger.Info("release report stored",
		zap.String("fix_version", report.FixVersionName),
		zap.Int("issues", report.TotalIssues),
		zap.Float64("story_points", report.TotalStoryPoints),
	)

	return &report, nil
}

// Reports lists stored release reports, newest first.
func (s *ReleaseService) Reports(ctx context.Context, limit int) ([]domain.ReleaseReport, error) {
	return s.repo.List(ctx, limit)
}
