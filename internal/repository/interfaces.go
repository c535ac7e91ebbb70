package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/productpulse/pulse-api/internal/domain"
)

// KPIDictionaryRepository defines metric dictionary operations.
type KPIDictionaryRepository interface {
	// List returns dictionary entries, optionally filtered to the given keys.
	List(ctx context.Context, keys []string) ([]domain.KPIDefinition, error)
	// Upsert inserts or updates one definition, keyed by kpi_key.
	Upsert(ctx context.Context, def domain.KPIDefinition) error
}

// KPIFactRepository defines fact store operations. All writes are idempotent
// upserts keyed by (tenant_id, site_id, kpi_date).
type KPIFactRepository interface {
	BulkUpsert(ctx context.Context, facts []domain.KPIFact) error
	ListByTenant(ctx context.Context, tenantID string) ([]domain.KPIFact, error)
	ListByTenantSince(ctx context.Context, tenantID string, fromDate string) ([]domain.KPIFact, error)
	ListTenants(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int64, error)
}

// UploadLogRepository appends and lists ingestion attempt records.
type UploadLogRepository interface {
	Record(ctx context.Context, entry domain.UploadLogEntry) error
	List(ctx context.Context, limit int) ([]domain.UploadLogEntry, error)
}

// ThresholdRepository defines per-tenant alerting bound operations.
type ThresholdRepository interface {
	ListByTenant(ctx context.Context, tenantID string) ([]domain.KPIThreshold, error)
	UpsertBatch(ctx context.Context, thresholds []domain.KPIThreshold) error
}

// TemplateHeaderRepository reads the ordered core column names used by the
// CSV template and ingestion pipeline.
type TemplateHeaderRepository interface {
	CoreColumns(ctx context.Context) ([]string, error)
}

// WorkspaceRepository defines project-switcher workspace operations.
type WorkspaceRepository interface {
	Create(ctx context.Context, ws domain.Workspace) (domain.Workspace, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Workspace, error)
	List(ctx context.Context) ([]domain.Workspace, error)
	Update(ctx context.Context, ws domain.Workspace) (domain.Workspace, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ReleaseReportRepository stores release summaries.
type ReleaseReportRepository interface {
	Create(ctx context.Context, report domain.ReleaseReport) (domain.ReleaseReport, error)
	List(ctx context.Context, limit int) ([]domain.ReleaseReport, error)
}
