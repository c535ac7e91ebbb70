package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/productpulse/pulse-api/internal/domain"
)

type releaseReportRepository struct {
	pool *pgxpool.Pool
}

// NewReleaseReportRepository wires a release report repository backed by pgxpool.
func NewReleaseReportRepository(pool *pgxpool.Pool) ReleaseReportRepository {
	return &releaseReportRepository{pool: pool}
}

func (r *releaseReportRepository) Create(ctx context.Context, report domain.ReleaseReport) (domain.ReleaseReport, error) {
	if r.pool == nil {
		return domain.ReleaseReport{}, fmt.Errorf("release report repository not initialized")
	}

	var reportData any
	if len(report.ReportData) > 0 {
		reportData = []byte(report.ReportData)
	}

	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO release_reports (fix_version_name, sprint_number, release_date, start_date, total_issues, total_story_points, issues_deployed, bugs_resolved, sanity_executers, sanity_status, document_url, document_format, report_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id, created_at`,
		report.FixVersionName,
		report.SprintNumber,
		report.ReleaseDate,
		report.StartDate,
		report.TotalIssues,
		report.TotalStoryPoints,
		report.IssuesDeployed,
		report.BugsResolved,
		report.SanityExecuters,
		report.SanityStatus,
		report.DocumentURL,
		report.DocumentFormat,
		reportData,
	)

	var createdAt pgtype.Timestamptz
	if err := row.Scan(&report.ID, &createdAt); err != nil {
		return domain.ReleaseReport{}, fmt.Errorf("failed to create release report: %w", err)
	}
	if createdAt.Valid {
		report.CreatedAt = createdAt.Time
	}

	return report, nil
}

func (r *releaseReportRepository) List(ctx context.Context, limit int) ([]domain.ReleaseReport, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("release report repository not initialized")
	}

	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, fix_version_name, sprint_number, release_date, start_date, total_issues, total_story_points, issues_deployed, bugs_resolved, sanity_executers, sanity_status, document_url, document_format, report_data, created_at
		 FROM release_reports
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list release reports: %w", err)
	}
	defer rows.Close()

	reports := []domain.ReleaseReport{}
	for rows.Next() {
		var (
			report     domain.ReleaseReport
			reportData []byte
			createdAt  pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&report.ID,
			&report.FixVersionName,
			&report.SprintNumber,
			&report.ReleaseDate,
			&report.StartDate,
			&report.TotalIssues,
			&report.TotalStoryPoints,
			&report.IssuesDeployed,
			&report.BugsResolved,
			&report.SanityExecuters,
			&report.SanityStatus,
			&report.DocumentURL,
			&report.DocumentFormat,
			&reportData,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan release report: %w", scanErr)
		}

		if len(reportData) > 0 {
			report.ReportData = reportData
		}
		if createdAt.Valid {
			report.CreatedAt = createdAt.Time
		}

		reports = append(reports, report)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate release reports: %w", rowsErr)
	}

	return reports, nil
}
