package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/productpulse/pulse-api/internal/domain"
)

type thresholdRepository struct {
	pool *pgxpool.Pool
}

// NewThresholdRepository wires a threshold repository backed by pgxpool.
func NewThresholdRepository(pool *pgxpool.Pool) ThresholdRepository {
	return &thresholdRepository{pool: pool}
}

func (r *thresholdRepository) ListByTenant(ctx context.Context, tenantID string) ([]domain.KPIThreshold, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("threshold repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT tenant_id, kpi_key, kpi_name, target_value, warning_threshold, failure_threshold, threshold_type, alert_priority, alert_frequency
		 FROM kpi_thresholds
		 WHERE tenant_id = $1
		 ORDER BY kpi_key`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list thresholds: %w", err)
	}
	defer rows.Close()

	thresholds := []domain.KPIThreshold{}
	for rows.Next() {
		var t domain.KPIThreshold
		if scanErr := rows.Scan(
			&t.TenantID,
			&t.KPIKey,
			&t.KPIName,
			&t.TargetValue,
			&t.WarningThreshold,
			&t.FailureThreshold,
			&t.ThresholdType,
			&t.AlertPriority,
			&t.AlertFrequency,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan threshold: %w", scanErr)
		}
		thresholds = append(thresholds, t)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate thresholds: %w", rowsErr)
	}

	return thresholds, nil
}

func (r *thresholdRepository) UpsertBatch(ctx context.Context, thresholds []domain.KPIThreshold) error {
	if r.pool == nil {
		return fmt.Errorf("threshold repository not initialized")
	}
	if len(thresholds) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range thresholds {
		batch.Queue(
			`INSERT INTO kpi_thresholds (tenant_id, kpi_key, kpi_name, target_value, warning_threshold, failure_threshold, threshold_type, alert_priority, alert_frequency)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (tenant_id, kpi_key) DO UPDATE SET
			   kpi_name = EXCLUDED.kpi_name,
			   target_value = EXCLUDED.target_value,
			   warning_threshold = EXCLUDED.warning_threshold,
			   failure_threshold = EXCLUDED.failure_threshold,
			   threshold_type = EXCLUDED.threshold_type,
			   alert_priority = EXCLUDED.alert_priority,
			   alert_frequency = EXCLUDED.alert_frequency`,
			t.TenantID,
			t.KPIKey,
			t.KPIName,
			t.TargetValue,
			t.WarningThreshold,
			t.FailureThreshold,
			t.ThresholdType,
			t.AlertPriority,
			t.AlertFrequency,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range thresholds {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert thresholds: %w", err)
		}
	}

	return nil
}
