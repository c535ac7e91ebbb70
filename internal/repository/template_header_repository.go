package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type templateHeaderRepository struct {
	pool *pgxpool.Pool
}

// NewTemplateHeaderRepository wires the core column name source backed by pgxpool.
func NewTemplateHeaderRepository(pool *pgxpool.Pool) TemplateHeaderRepository {
	return &templateHeaderRepository{pool: pool}
}

func (r *templateHeaderRepository) CoreColumns(ctx context.Context) ([]string, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("template header repository not initialized")
	}

	rows, err := r.pool.Query(ctx,
		`SELECT column_name FROM csv_template_headers ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to read template headers: %w", err)
	}
	defer rows.Close()

	columns := []string{}
	for rows.Next() {
		var name string
		if scanErr := rows.Scan(&name); scanErr != nil {
			return nil, fmt.Errorf("failed to scan template header: %w", scanErr)
		}
		columns = append(columns, name)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate template headers: %w", rowsErr)
	}

	return columns, nil
}
