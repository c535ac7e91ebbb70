package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/productpulse/pulse-api/internal/domain"
)

func TestSearchFixVersionPaginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "bot@example.com" || pass != "token" {
			t.Errorf("missing or wrong basic auth")
		}

		startAt := r.URL.Query().Get("startAt")
		w.Header().Set("Content-Type", "application/json")
		if startAt == "0" {
			issues := make([]string, 0, 100)
			for i := 0; i < 100; i++ {
				issues = append(issues, fmt.Sprintf(
					`{"key": "PP-%d", "fields": {"summary": "work", "issuetype": {"name": "Story"}, "status": {"name": "Done", "statusCategory": {"key": "done"}}, "customfield_10016": 3}}`, i+1))
			}
			fmt.Fprintf(w, `{"startAt": 0, "maxResults": 100, "total": 101, "issues": [%s]}`, joinJSON(issues))
			return
		}
		fmt.Fprint(w, `{"startAt": 100, "maxResults": 100, "total": 101, "issues": [
			{"key": "PP-101", "fields": {"summary": "bugfix", "issuetype": {"name": "Bug"}, "status": {"name": "In Progress", "statusCategory": {"key": "indeterminate"}}, "customfield_10016": null}}
		]}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "bot@example.com", "token", nil)
	issues, err := client.SearchFixVersion(context.Background(), "1.42.0")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	if len(issues) != 101 {
		t.Fatalf("expected 101 issues across pages, got %d", len(issues))
	}
	if issues[0].StoryPoints != 3 || !issues[0].Resolved {
		t.Fatalf("unexpected first issue: %+v", issues[0])
	}
	last := issues[100]
	if last.Key != "PP-101" || last.Resolved || last.StoryPoints != 0 {
		t.Fatalf("unexpected last issue: %+v", last)
	}
}

func joinJSON(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ","
		}
		out += item
	}
	return out
}

type stubSearcher struct {
	issues []Issue
	err    error
}

func (s *stubSearcher) SearchFixVersion(ctx context.Context, fixVersion string) ([]Issue, error) {
	return s.issues, s.err
}

type stubReportRepo struct {
	created []domain.ReleaseReport
}

func (s *stubReportRepo) Create(ctx context.Context, report domain.ReleaseReport) (domain.ReleaseReport, error) {
	s.created = append(s.created, report)
	return report, nil
}

func (s *stubReportRepo) List(ctx context.Context, limit int) ([]domain.ReleaseReport, error) {
	return s.created, nil
}

type stubNarrator struct {
	text string
	err  error
}

func (s *stubNarrator) ReleaseNarrative(ctx context.Context, report domain.ReleaseReport) (string, error) {
	return s.text, s.err
}

func releaseIssues() []Issue {
	return []Issue{
		{Key: "PP-1", IssueType: "Story", Resolved: true, StoryPoints: 5},
		{Key: "PP-2", IssueType: "Bug", Resolved: true, StoryPoints: 2},
		{Key: "PP-3", IssueType: "Bug", Resolved: false, StoryPoints: 1},
	}
}

func TestBuildReportRollup(t *testing.T) {
	repo := &stubReportRepo{}
	svc := NewReleaseService(&stubSearcher{issues: releaseIssues()}, repo, &stubNarrator{text: "Shipped 1.42.0."}, nil)

	report, err := svc.BuildReport(context.Background(), ReportRequest{
		FixVersion:   "1.42.0",
		SprintNumber: "42",
		StartDate:    "2024-01-01",
		ReleaseDate:  "2024-01-14",
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if report.TotalIssues != 3 || report.TotalStoryPoints != 8 {
		t.Fatalf("unexpected totals: %+v", report)
	}
	if report.IssuesDeployed != 2 || report.BugsResolved != 1 {
		t.Fatalf("unexpected deployment counts: %+v", report)
	}

	var data rollup
	if err := json.Unmarshal(report.ReportData, &data); err != nil {
		t.Fatalf("report data not decodable: %v", err)
	}
	if data.Narrative != "Shipped 1.42.0." || len(data.Issues) != 3 {
		t.Fatalf("unexpected report data: %+v", data)
	}
	if len(repo.created) != 1 {
		t.Fatalf("report not stored")
	}
}

func TestBuildReportSurvivesNarratorFailure(t *testing.T) {
	repo := &stubReportRepo{}
	svc := NewReleaseService(&stubSearcher{issues: releaseIssues()}, repo, &stubNarrator{err: errors.New("model offline")}, nil)

	report, err := svc.BuildReport(context.Background(), ReportRequest{FixVersion: "1.42.0"})
	if err != nil {
		t.Fatalf("narrator failure must not fail the report: %v", err)
	}

	var data rollup
	if err := json.Unmarshal(report.ReportData, &data); err != nil {
		t.Fatalf("report data not decodable: %v", err)
	}
	if data.Narrative != "" {
		t.Fatalf("expected empty narrative, got %q", data.Narrative)
	}
}

func TestBuildReportEmptyFixVersion(t *testing.T) {
	svc := NewReleaseService(&stubSearcher{}, &stubReportRepo{}, nil, nil)
	if _, err := svc.BuildReport(context.Background(), ReportRequest{FixVersion: "9.9.9"}); err == nil {
		t.Fatalf("expected error for fix version with no issues")
	}
}
