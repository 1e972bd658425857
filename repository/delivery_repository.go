package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"letDrone/internal/db"
	"letDrone/models"
)

type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

var deliveryColumns = []any{
	"id", "prescription_id", "patient_id", "drone_id", "pickup_time", "pickup_location_id",
	"estimated_delivery_time", "status", "created_at", "updated_at",
}

func scanDelivery(row interface{ Scan(...any) error }) (*models.Delivery, error) {
	var d models.Delivery
	var drone sql.NullString
	var eta sql.NullTime
	var status string
	err := row.Scan(&d.ID, &d.PrescriptionID, &d.PatientID, &drone, &d.PickupTime, &d.PickupLocationID,
		&eta, &status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.DroneID = stringPtr(drone)
	if eta.Valid {
		t := eta.Time
		d.EstimatedDeliveryTime = &t
	}
	d.Status = models.DeliveryStatus(status)
	return &d, nil
}

// Create inserts a delivery in PREPARING. The prescription is re-read inside
// the transaction and handed to check, which may veto the insert; p is nil
// when the prescription does not exist. The patient is always the
// prescription's author.
func (r *DeliveryRepository) Create(ctx context.Context, d *models.Delivery, check func(p *models.Prescription) error) (*models.Delivery, error) {
	if d == nil {
		return nil, errors.New("delivery is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	out := *d
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	out.Status = models.DeliveryStatusPreparing
	out.CreatedAt = now()
	out.UpdatedAt = out.CreatedAt
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		p, err := getPrescription(ctx, tx, out.PrescriptionID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(p); err != nil {
				return err
			}
		}
		if p == nil {
			return sql.ErrNoRows
		}
		out.PatientID = p.AuthorID
		query, args, err := dialect.Insert("deliveries").Prepared(true).Rows(goqu.Record{
			"id":                      out.ID,
			"prescription_id":         out.PrescriptionID,
			"patient_id":              out.PatientID,
			"drone_id":                nullString(out.DroneID),
			"pickup_time":             out.PickupTime.UTC(),
			"pickup_location_id":      out.PickupLocationID,
			"estimated_delivery_time": nullTime(out.EstimatedDeliveryTime),
			"status":                  string(out.Status),
			"created_at":              out.CreatedAt,
			"updated_at":              out.UpdatedAt,
		}).ToSQL()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *DeliveryRepository) GetByID(ctx context.Context, id string) (*models.Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	query, args, err := dialect.From("deliveries").Select(deliveryColumns...).Where(goqu.C("id").Eq(id)).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	d, err := scanDelivery(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// DeliveryFilter narrows listings. PatientID scopes to one patient.
type DeliveryFilter struct {
	PatientID *int64
	DroneID   *string
	Status    *models.DeliveryStatus
	Limit     int
	Offset    int
}

// List returns deliveries newest first.
func (r *DeliveryRepository) List(ctx context.Context, f DeliveryFilter) ([]models.Delivery, error) {
	limit, offset := clampPage(f.Limit, f.Offset)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ds := dialect.From("deliveries").Select(deliveryColumns...).Prepared(true)
	if f.PatientID != nil {
		ds = ds.Where(goqu.C("patient_id").Eq(*f.PatientID))
	}
	if f.DroneID != nil {
		ds = ds.Where(goqu.C("drone_id").Eq(*f.DroneID))
	}
	if f.Status != nil {
		ds = ds.Where(goqu.C("status").Eq(string(*f.Status)))
	}
	query, args, err := ds.Order(goqu.C("created_at").Desc(), goqu.C("id").Asc()).
		Limit(uint(limit)).Offset(uint(offset)).ToSQL()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// DeliverySchedule holds the staff-editable columns. Nil fields are left
// alone; the Clear flags null their column.
type DeliverySchedule struct {
	DroneID          *string
	ClearDrone       bool
	PickupTime       *time.Time
	PickupLocationID *int64
	ETA              *time.Time
	ClearETA         bool
}

// StatusChange moves a delivery to To while it is still in From.
type StatusChange struct {
	From models.DeliveryStatus
	To   models.DeliveryStatus
}

// Apply writes the schedule columns and, when change is given, the status
// in one transaction. ErrStale means the delivery is gone or no longer in
// change.From; nothing is written then.
func (r *DeliveryRepository) Apply(ctx context.Context, id string, u DeliverySchedule, change *StatusChange) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := updateSchedule(ctx, tx, id, u); err != nil {
			return err
		}
		if change == nil {
			return nil
		}
		return transitionStatus(ctx, tx, id, change.From, change.To)
	})
}

func updateSchedule(ctx context.Context, q querier, id string, u DeliverySchedule) error {
	set := goqu.Record{"updated_at": now()}
	if u.ClearDrone {
		set["drone_id"] = nil
	} else if u.DroneID != nil {
		set["drone_id"] = *u.DroneID
	}
	if u.PickupTime != nil {
		set["pickup_time"] = u.PickupTime.UTC()
	}
	if u.PickupLocationID != nil {
		set["pickup_location_id"] = *u.PickupLocationID
	}
	if u.ClearETA {
		set["estimated_delivery_time"] = nil
	} else if u.ETA != nil {
		set["estimated_delivery_time"] = u.ETA.UTC()
	}
	query, args, err := dialect.Update("deliveries").Prepared(true).Set(set).Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return err
	}
	return expectOne(q.ExecContext(ctx, query, args...))
}

// TransitionStatus moves the delivery from one status to another only if it
// is still in from. ErrStale means another writer got there first or the
// delivery is gone.
func (r *DeliveryRepository) TransitionStatus(ctx context.Context, id string, from, to models.DeliveryStatus) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return transitionStatus(ctx, r.db, id, from, to)
}

func transitionStatus(ctx context.Context, q querier, id string, from, to models.DeliveryStatus) error {
	return expectOne(q.ExecContext(ctx, `UPDATE deliveries SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), now(), id, string(from)))
}

func (r *DeliveryRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM deliveries WHERE id = ?`, id)
	return err
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
