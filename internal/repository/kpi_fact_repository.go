package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/productpulse/pulse-api/internal/domain"
)

type kpiFactRepository struct {
	pool *pgxpool.Pool
}

// NewKPIFactRepository wires a fact store repository backed by pgxpool.
func NewKPIFactRepository(pool *pgxpool.Pool) KPIFactRepository {
	return &kpiFactRepository{pool: pool}
}

// site_id participates in the natural key, so NULL is stored as the empty
// string to keep ON CONFLICT reliable. Reads map it back to nil.
func siteValue(siteID *string) string {
	if siteID == nil {
		return ""
	}
	return *siteID
}

func (r *kpiFactRepository) BulkUpsert(ctx context.Context, facts []domain.KPIFact) error {
	if r.pool == nil {
		return fmt.Errorf("fact repository not initialized")
	}
	if len(facts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, fact := range facts {
		kpisJSON, err := json.Marshal(fact.KPIs)
		if err != nil {
			return fmt.Errorf("failed to encode kpis for %s/%s: %w", fact.TenantID, fact.KPIDate, err)
		}
		batch.Queue(
			`INSERT INTO kpi_daily_facts (tenant_id, site_id, kpi_date, source, kpis)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (tenant_id, site_id, kpi_date) DO UPDATE SET
			   source = EXCLUDED.source,
			   kpis = EXCLUDED.kpis`,
			fact.TenantID,
			siteValue(fact.SiteID),
			fact.KPIDate,
			fact.Source,
			kpisJSON,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range facts {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert kpi facts: %w", err)
		}
	}

	return nil
}

func (r *kpiFactRepository) ListByTenant(ctx context.Context, tenantID string) ([]domain.KPIFact, error) {
	return r.listFacts(ctx,
		`SELECT tenant_id, site_id, kpi_date, source, kpis
		 FROM kpi_daily_facts
		 WHERE tenant_id = $1
		 ORDER BY kpi_date ASC`,
		tenantID,
	)
}

func (r *kpiFactRepository) ListByTenantSince(ctx context.Context, tenantID string, fromDate string) ([]domain.KPIFact, error) {
	return r.listFacts(ctx,
		`SELECT tenant_id, site_id, kpi_date, source, kpis
		 FROM kpi_daily_facts
		 WHERE tenant_id = $1 AND kpi_date >= $2
		 ORDER BY kpi_date ASC`,
		tenantID,
		fromDate,
	)
}

func (r *kpiFactRepository) listFacts(ctx context.Context, query string, args ...any) ([]domain.KPIFact, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("fact repository not initialized")
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list kpi facts: %w", err)
	}
	defer rows.Close()

	facts := []domain.KPIFact{}
	for rows.Next() {
		var (
			fact     domain.KPIFact
			siteID   string
			kpisJSON []byte
		)
		if scanErr := rows.Scan(&fact.TenantID, &siteID, &fact.KPIDate, &fact.Source, &kpisJSON); scanErr != nil {
			return nil, fmt.Errorf("failed to scan kpi fact: %w", scanErr)
		}
		if siteID != "" {
			fact.SiteID = &siteID
		}
		if err := json.Unmarshal(kpisJSON, &fact.KPIs); err != nil {
			return nil, fmt.Errorf("failed to decode kpis for %s/%s: %w", fact.TenantID, fact.KPIDate, err)
		}
		facts = append(facts, fact)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate kpi facts: %w", rowsErr)
	}

	return facts, nil
}

func (r *kpiFactRepository) ListTenants(ctx context.Context) ([]string, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("fact repository not initialized")
	}

	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT tenant_id FROM kpi_daily_facts ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []string{}
	for rows.Next() {
		var tenant string
		if scanErr := rows.Scan(&tenant); scanErr != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", scanErr)
		}
		tenants = append(tenants, tenant)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate tenants: %w", rowsErr)
	}

	return tenants, nil
}

func (r *kpiFactRepository) Count(ctx context.Context) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("fact repository not initialized")
	}

	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM kpi_daily_facts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count kpi facts: %w", err)
	}
	return count, nil
}
