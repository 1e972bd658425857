package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"letDrone/internal/db"
	"letDrone/models"
)

type DroneRepository struct {
	db *sql.DB
}

func NewDroneRepository(db *sql.DB) *DroneRepository {
	return &DroneRepository{db: db}
}

var droneColumns = []any{"id", "model", "battery_level", "payload_capacity", "current_location_id", "created_at", "updated_at"}

func scanDrone(row interface{ Scan(...any) error }) (*models.Drone, error) {
	var d models.Drone
	if err := row.Scan(&d.ID, &d.Model, &d.BatteryLevel, &d.PayloadCapacity, &d.CurrentLocationID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts a new drone with a fresh UUID unless one is given.
func (r *DroneRepository) Create(ctx context.Context, d *models.Drone) (*models.Drone, error) {
	if d == nil {
		return nil, errors.New("drone is nil")
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = now()
	d.UpdatedAt = d.CreatedAt
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `INSERT INTO drones (id, model, battery_level, payload_capacity, current_location_id, created_at, updated_at) VALUES (?,?,?,?,?,?,?)`,
		d.ID, d.Model, d.BatteryLevel, d.PayloadCapacity, d.CurrentLocationID, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *DroneRepository) GetByID(ctx context.Context, id string) (*models.Drone, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	d, err := scanDrone(r.db.QueryRowContext(ctx, `SELECT id, model, battery_level, payload_capacity, current_location_id, created_at, updated_at FROM drones WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// DroneChanges are the columns one update writes; nil fields are left
// alone. NewLocation is stored as a fresh point and becomes the current
// location, so a point shared with others never moves.
type DroneChanges struct {
	Model           *string
	PayloadCapacity *float64
	BatteryLevel    *int
	LocationID      *int64
	NewLocation     *models.Geolocation
}

// Apply writes c in one transaction. ErrStale means the drone does not
// exist; nothing is written then.
func (r *DroneRepository) Apply(ctx context.Context, id string, c DroneChanges) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		set := goqu.Record{"updated_at": now()}
		if c.Model != nil {
			set["model"] = *c.Model
		}
		if c.PayloadCapacity != nil {
			set["payload_capacity"] = *c.PayloadCapacity
		}
		if c.BatteryLevel != nil {
			set["battery_level"] = *c.BatteryLevel
		}
		if c.NewLocation != nil {
			g, err := insertGeolocation(ctx, tx, c.NewLocation)
			if err != nil {
				return err
			}
			set["current_location_id"] = g.ID
		} else if c.LocationID != nil {
			set["current_location_id"] = *c.LocationID
		}
		query, args, err := dialect.Update("drones").Prepared(true).Set(set).Where(goqu.C("id").Eq(id)).ToSQL()
		if err != nil {
			return err
		}
		return expectOne(tx.ExecContext(ctx, query, args...))
	})
}

// Delete removes the drone. Deliveries it was assigned to keep their rows
// with the drone cleared.
func (r *DroneRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM drones WHERE id = ?`, id)
	return err
}

// ListDronesParams contains filters and pagination for listing drones.
type ListDronesParams struct {
	ModelContains *string
	MinBattery    *int
	PageSize      int
	AfterID       string
}

// List returns drones matching filters ordered by id asc with keyset pagination by id.
func (r *DroneRepository) List(ctx context.Context, p ListDronesParams) ([]models.Drone, error) {
	if p.PageSize <= 0 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ds := dialect.From("drones").Select(droneColumns...).Prepared(true)
	if p.ModelContains != nil && strings.TrimSpace(*p.ModelContains) != "" {
		ds = ds.Where(goqu.C("model").Like("%" + strings.TrimSpace(*p.ModelContains) + "%"))
	}
	if p.MinBattery != nil {
		ds = ds.Where(goqu.C("battery_level").Gte(*p.MinBattery))
	}
	if p.AfterID != "" {
		ds = ds.Where(goqu.C("id").Gt(p.AfterID))
	}
	query, args, err := ds.Order(goqu.C("id").Asc()).Limit(uint(p.PageSize)).ToSQL()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Drone{}
	for rows.Next() {
		d, err := scanDrone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
