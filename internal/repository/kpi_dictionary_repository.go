package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/productpulse/pulse-api/internal/domain"
)

type kpiDictionaryRepository struct {
	pool *pgxpool.Pool
}

// NewKPIDictionaryRepository wires a dictionary repository backed by pgxpool.
func NewKPIDictionaryRepository(pool *pgxpool.Pool) KPIDictionaryRepository {
	return &kpiDictionaryRepository{pool: pool}
}

func (r *kpiDictionaryRepository) List(ctx context.Context, keys []string) ([]domain.KPIDefinition, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("dictionary repository not initialized")
	}

	query := `SELECT kpi_key, kpi_name, description, formula, input_metrics, owner, business_goal_relation, north_star_alignment
	          FROM kpi_dictionary`
	args := []any{}
	if len(keys) > 0 {
		query += ` WHERE kpi_key = ANY($1)`
		args = append(args, keys)
	}
	query += ` ORDER BY kpi_key`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list kpi dictionary: %w", err)
	}
	defer rows.Close()

	defs := []domain.KPIDefinition{}
	for rows.Next() {
		var def domain.KPIDefinition
		if scanErr := rows.Scan(
			&def.KPIKey,
			&def.KPIName,
			&def.Description,
			&def.Formula,
			&def.InputMetrics,
			&def.Owner,
			&def.BusinessGoalRelation,
			&def.NorthStarAlignment,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan kpi definition: %w", scanErr)
		}
		defs = append(defs, def)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate kpi dictionary: %w", rowsErr)
	}

	return defs, nil
}

func (r *kpiDictionaryRepository) Upsert(ctx context.Context, def domain.KPIDefinition) error {
	if r.pool == nil {
		return fmt.Errorf("dictionary repository not initialized")
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO kpi_dictionary (kpi_key, kpi_name, description, formula, input_metrics, owner, business_goal_relation, north_star_alignment)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (kpi_key) DO UPDATE SET
		   kpi_name = EXCLUDED.kpi_name,
		   description = EXCLUDED.description,
		   formula = EXCLUDED.formula,
		   input_metrics = EXCLUDED.input_metrics,
		   owner = EXCLUDED.owner,
		   business_goal_relation = EXCLUDED.business_goal_relation,
		   north_star_alignment = EXCLUDED.north_star_alignment`,
		def.KPIKey,
		def.KPIName,
		def.Description,
		def.Formula,
		def.InputMetrics,
		def.Owner,
		def.BusinessGoalRelation,
		def.NorthStarAlignment,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert kpi definition %s: %w", def.KPIKey, err)
	}

	return nil
}
