package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/productpulse/pulse-api/internal/domain"
)

type uploadLogRepository struct {
	pool *pgxpool.Pool
}

// NewUploadLogRepository wires an upload log repository backed by pgxpool.
func NewUploadLogRepository(pool *pgxpool.Pool) UploadLogRepository {
	return &uploadLogRepository{pool: pool}
}

func (r *uploadLogRepository) Record(ctx context.Context, entry domain.UploadLogEntry) error {
	if r.pool == nil {
		return fmt.Errorf("upload log repository not initialized")
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO csv_upload_log (file_name, rows_processed, rows_failed, status, error_log)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.FileName,
		entry.RowsProcessed,
		entry.RowsFailed,
		string(entry.Status),
		entry.ErrorLog,
	)
	if err != nil {
		return fmt.Errorf("failed to record upload log: %w", err)
	}

	return nil
}

func (r *uploadLogRepository) List(ctx context.Context, limit int) ([]domain.UploadLogEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("upload log repository not initialized")
	}

	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, file_name, rows_processed, rows_failed, status, error_log, created_at
		 FROM csv_upload_log
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list upload logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.UploadLogEntry{}
	for rows.Next() {
		var (
			entry     domain.UploadLogEntry
			status    string
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.FileName,
			&entry.RowsProcessed,
			&entry.RowsFailed,
			&status,
			&entry.ErrorLog,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan upload log: %w", scanErr)
		}

		entry.Status = domain.UploadStatus(status)
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}

		logs = append(logs, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate upload logs: %w", rowsErr)
	}

	return logs, nil
}
