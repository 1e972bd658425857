package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"letDrone/internal/db"
	"letDrone/models"
)

type GeolocationRepository struct {
	db *sql.DB
}

func NewGeolocationRepository(db *sql.DB) *GeolocationRepository {
	return &GeolocationRepository{db: db}
}

func (r *GeolocationRepository) Create(ctx context.Context, g *models.Geolocation) (*models.Geolocation, error) {
	if g == nil {
		return nil, errors.New("geolocation is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return insertGeolocation(ctx, r.db, g)
}

func insertGeolocation(ctx context.Context, q querier, g *models.Geolocation) (*models.Geolocation, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO geolocations (latitude, longitude, altitude) VALUES (?,?,?)`,
		g.Latitude, g.Longitude, nullFloat(g.Altitude))
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

func (r *GeolocationRepository) GetByID(ctx context.Context, id int64) (*models.Geolocation, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var g models.Geolocation
	var alt sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `SELECT id, latitude, longitude, altitude FROM geolocations WHERE id = ?`, id).
		Scan(&g.ID, &g.Latitude, &g.Longitude, &alt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	g.Altitude = floatPtr(alt)
	return &g, nil
}

func (r *GeolocationRepository) List(ctx context.Context, limit, offset int) ([]models.Geolocation, error) {
	limit, offset = clampPage(limit, offset)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT id, latitude, longitude, altitude FROM geolocations ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanGeolocations(rows)
}

// ListForPatient lists the points a patient's own rows refer to: the home
// location, prescription delivery addresses and delivery pickup points.
func (r *GeolocationRepository) ListForPatient(ctx context.Context, patientID int64, limit, offset int) ([]models.Geolocation, error) {
	limit, offset = clampPage(limit, offset)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query, args, err := dialect.From("geolocations").Prepared(true).
		Select("id", "latitude", "longitude", "altitude").
		Where(patientPoints(patientID)).
		Order(goqu.C("id").Asc()).
		Limit(uint(limit)).Offset(uint(offset)).
		ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanGeolocations(rows)
}

// OwnedByPatient reports whether point id is one ListForPatient would return.
func (r *GeolocationRepository) OwnedByPatient(ctx context.Context, id, patientID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	query, args, err := dialect.From("geolocations").Prepared(true).
		Select(goqu.COUNT("*")).
		Where(goqu.C("id").Eq(id), patientPoints(patientID)).
		ToSQL()
	if err != nil {
		return false, err
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func patientPoints(patientID int64) exp.ExpressionList {
	return goqu.Or(
		goqu.C("id").In(dialect.From("patients").Select("home_location_id").Where(goqu.C("id").Eq(patientID))),
		goqu.C("id").In(dialect.From("prescriptions").Select("delivery_address_id").Where(goqu.C("author_id").Eq(patientID))),
		goqu.C("id").In(dialect.From("deliveries").Select("pickup_location_id").Where(goqu.C("patient_id").Eq(patientID))),
	)
}

func scanGeolocations(rows *sql.Rows) ([]models.Geolocation, error) {
	defer rows.Close()
	out := []models.Geolocation{}
	for rows.Next() {
		var g models.Geolocation
		var alt sql.NullFloat64
		if err := rows.Scan(&g.ID, &g.Latitude, &g.Longitude, &alt); err != nil {
			return nil, err
		}
		g.Altitude = floatPtr(alt)
		out = append(out, g)
	}
	return out, rows.Err()
}

// Update overwrites the coordinates of an existing point. Drones are moved
// through DroneRepository.Apply with a new point so shared points never shift.
func (r *GeolocationRepository) Update(ctx context.Context, g *models.Geolocation) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE geolocations SET latitude = ?, longitude = ?, altitude = ? WHERE id = ?`,
		g.Latitude, g.Longitude, nullFloat(g.Altitude), g.ID)
	return err
}

// Delete removes a point. Points still used by a drone, station or delivery
// yield ErrInUse; prescription addresses and patient homes are cleared.
func (r *GeolocationRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM geolocations WHERE id = ?`, id)
	if db.IsForeignKeyViolation(err) {
		return ErrInUse
	}
	return err
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullInt(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}
