package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"letDrone/models"
)

type GCSRepository struct {
	db *sql.DB
}

func NewGCSRepository(db *sql.DB) *GCSRepository {
	return &GCSRepository{db: db}
}

const gcsColumns = `id, name, website, current_location_id, created_at, updated_at`

func scanGCS(row interface{ Scan(...any) error }) (*models.GCS, error) {
	var g models.GCS
	if err := row.Scan(&g.ID, &g.Name, &g.Website, &g.CurrentLocationID, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GCSRepository) Create(ctx context.Context, g *models.GCS) (*models.GCS, error) {
	if g == nil {
		return nil, errors.New("gcs is nil")
	}
	g.CreatedAt = now()
	g.UpdatedAt = g.CreatedAt
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `INSERT INTO gcs (name, website, current_location_id, created_at, updated_at) VALUES (?,?,?,?,?)`,
		g.Name, g.Website, g.CurrentLocationID, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	g.ID = id
	return g, nil
}

func (r *GCSRepository) GetByID(ctx context.Context, id int64) (*models.GCS, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	g, err := scanGCS(r.db.QueryRowContext(ctx, `SELECT `+gcsColumns+` FROM gcs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

func (r *GCSRepository) List(ctx context.Context, limit, offset int) ([]models.GCS, error) {
	limit, offset = clampPage(limit, offset)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+gcsColumns+` FROM gcs ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.GCS{}
	for rows.Next() {
		g, err := scanGCS(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (r *GCSRepository) Update(ctx context.Context, g *models.GCS) error {
	g.UpdatedAt = now()
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE gcs SET name = ?, website = ?, current_location_id = ?, updated_at = ? WHERE id = ?`,
		g.Name, g.Website, g.CurrentLocationID, g.UpdatedAt, g.ID)
	return err
}

// Delete removes the station; prescriptions routed through it lose the reference.
func (r *GCSRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM gcs WHERE id = ?`, id)
	return err
}
