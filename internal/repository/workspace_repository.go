package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/productpulse/pulse-api/internal/domain"
)

type workspaceRepository struct {
	pool *pgxpool.Pool
}

// NewWorkspaceRepository wires a workspace repository backed by pgxpool.
func NewWorkspaceRepository(pool *pgxpool.Pool) WorkspaceRepository {
	return &workspaceRepository{pool: pool}
}

const workspaceColumns = `id, name, type, description, tenant_id, domain_name, is_demo, created_at`

func scanWorkspace(row pgx.Row) (domain.Workspace, error) {
	var (
		ws        domain.Workspace
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(
		&ws.ID,
		&ws.Name,
		&ws.Type,
		&ws.Description,
		&ws.TenantID,
		&ws.DomainName,
		&ws.IsDemo,
		&createdAt,
	); err != nil {
		return domain.Workspace{}, err
	}
	if createdAt.Valid {
		ws.CreatedAt = createdAt.Time
	}
	return ws, nil
}

func (r *workspaceRepository) Create(ctx context.Context, ws domain.Workspace) (domain.Workspace, error) {
	if r.pool == nil {
		return domain.Workspace{}, fmt.Errorf("workspace repository not initialized")
	}

	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO workspaces (name, type, description, tenant_id, domain_name, is_demo)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+workspaceColumns,
		ws.Name,
		ws.Type,
		ws.Description,
		ws.TenantID,
		ws.DomainName,
		ws.IsDemo,
	)

	created, err := scanWorkspace(row)
	if err != nil {
		return domain.Workspace{}, fmt.Errorf("failed to create workspace: %w", err)
	}
	return created, nil
}

func (r *workspaceRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Workspace, error) {
	if r.pool == nil {
		return domain.Workspace{}, fmt.Errorf("workspace repository not initialized")
	}

	row := r.pool.QueryRow(
		ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE id = $1`,
		id,
	)

	ws, err := scanWorkspace(row)
	if err != nil {
		return domain.Workspace{}, fmt.Errorf("failed to get workspace %s: %w", id, err)
	}
	return ws, nil
}

func (r *workspaceRepository) List(ctx context.Context) ([]domain.Workspace, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("workspace repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+workspaceColumns+` FROM workspaces ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	workspaces := []domain.Workspace{}
	for rows.Next() {
		ws, scanErr := scanWorkspace(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", scanErr)
		}
		workspaces = append(workspaces, ws)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate workspaces: %w", rowsErr)
	}

	return workspaces, nil
}

func (r *workspaceRepository) Update(ctx context.Context, ws domain.Workspace) (domain.Workspace, error) {
	if r.pool == nil {
		return domain.Workspace{}, fmt.Errorf("workspace repository not initialized")
	}

	row := r.pool.QueryRow(
		ctx,
		`UPDATE workspaces
		 SET name = $2, type = $3, description = $4, tenant_id = $5, domain_name = $6, is_demo = $7
		 WHERE id = $1
		 RETURNING `+workspaceColumns,
		ws.ID,
		ws.Name,
		ws.Type,
		ws.Description,
		ws.TenantID,
		ws.DomainName,
		ws.IsDemo,
	)

	updated, err := scanWorkspace(row)
	if err != nil {
		return domain.Workspace{}, fmt.Errorf("failed to update workspace %s: %w", ws.ID, err)
	}
	return updated, nil
}

func (r *workspaceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if r.pool == nil {
		return fmt.Errorf("workspace repository not initialized")
	}

	if _, err := r.pool.Exec(ctx, `DELETE FROM workspaces WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete workspace %s: %w", id, err)
	}
	return nil
}
