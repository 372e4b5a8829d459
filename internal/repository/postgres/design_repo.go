package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/zeus-orchestrator/internal/domain"
)

func (r *Repo) Create(ctx context.Context, rec *domain.DesignRecord) error {
	query := `
		INSERT INTO designs (id, name, environment, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.Name, rec.Environment, rec.Status, rec.CreatedBy, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to create design: %w", err)
	}
	return nil
}

// UpdateStatus двигает дизайн по жизненному циклу. Воркер вызывает его
// после кодогенерации, поэтому запись к этому моменту уже должна существовать.
func (r *Repo) UpdateStatus(ctx context.Context, id string, status domain.DesignStatus, prURL, note string) error {
	query := `
		UPDATE designs
		SET status = $1, pr_url = $2, status_note = $3, updated_at = NOW()
		WHERE id = $4`

	ct, err := r.pool.Exec(ctx, query, status, nullIfEmpty(prURL), nullIfEmpty(note), id)
	if err != nil {
		return fmt.Errorf("postgres: failed to update design status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("postgres: design %s not found", id)
	}
	return nil
}

func (r *Repo) GetDesign(ctx context.Context, id string) (*domain.DesignRecord, error) {
	query := `
		SELECT id, name, environment, status, COALESCE(pr_url, ''), COALESCE(status_note, ''), created_by, created_at, updated_at
		FROM designs WHERE id = $1`

	rec := &domain.DesignRecord{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.Name, &rec.Environment, &rec.Status, &rec.PRURL, &rec.StatusNote,
		&rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// ListDesigns последние дизайны для обзорной панели.
func (r *Repo) ListDesigns(ctx context.Context, limit int) ([]domain.DesignRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, name, environment, status, COALESCE(pr_url, ''), COALESCE(status_note, ''), created_by, created_at, updated_at
		FROM designs ORDER BY created_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query designs: %w", err)
	}
	defer rows.Close()

	results := make([]domain.DesignRecord, 0)
	for rows.Next() {
		var rec domain.DesignRecord
		if err := rows.Scan(
			&rec.ID, &rec.Name, &rec.Environment, &rec.Status, &rec.PRURL, &rec.StatusNote,
			&rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}
