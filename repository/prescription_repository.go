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

type PrescriptionRepository struct {
	db *sql.DB
}

func NewPrescriptionRepository(db *sql.DB) *PrescriptionRepository {
	return &PrescriptionRepository{db: db}
}

var prescriptionColumns = []any{
	"id", "image", "author_id", "price_cents", "approved", "content",
	"gcs_id", "delivery_option", "delivery_address_id", "version", "created_at", "updated_at",
}

func scanPrescription(row interface{ Scan(...any) error }) (*models.Prescription, error) {
	var p models.Prescription
	var price, gcs, addr sql.NullInt64
	var option string
	err := row.Scan(&p.ID, &p.Image, &p.AuthorID, &price, &p.Approved, &p.Content,
		&gcs, &option, &addr, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if price.Valid {
		m := models.Money(price.Int64)
		p.Price = &m
	}
	p.GCSID = intPtr(gcs)
	p.DeliveryAddressID = intPtr(addr)
	p.DeliveryOption = models.DeliveryOption(option)
	p.CommentIDs = []int64{}
	return &p, nil
}

// Create inserts a patient submission. Only image, delivery option and
// address are taken from p; review fields start at their defaults.
func (r *PrescriptionRepository) Create(ctx context.Context, p *models.Prescription) (*models.Prescription, error) {
	return r.CreateWithAddress(ctx, p, nil)
}

// CreateWithAddress is Create that first inserts addr, when given, and uses
// it as the delivery address. Both rows commit together.
func (r *PrescriptionRepository) CreateWithAddress(ctx context.Context, p *models.Prescription, addr *models.Geolocation) (*models.Prescription, error) {
	if p == nil {
		return nil, errors.New("prescription is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	out := &models.Prescription{
		ID:                p.ID,
		Image:             p.Image,
		AuthorID:          p.AuthorID,
		CommentIDs:        []int64{},
		DeliveryOption:    p.DeliveryOption,
		DeliveryAddressID: p.DeliveryAddressID,
		Version:           1,
		CreatedAt:         now(),
	}
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	out.UpdatedAt = out.CreatedAt
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if addr != nil {
			g, err := insertGeolocation(ctx, tx, addr)
			if err != nil {
				return err
			}
			out.DeliveryAddressID = &g.ID
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO prescriptions (id, image, author_id, delivery_option, delivery_address_id, version, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?)`,
			out.ID, out.Image, out.AuthorID, string(out.DeliveryOption), nullInt(out.DeliveryAddressID), out.Version, out.CreatedAt, out.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PrescriptionRepository) GetByID(ctx context.Context, id string) (*models.Prescription, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	p, err := getPrescription(ctx, r.db, id)
	if err != nil || p == nil {
		return nil, err
	}
	ids, err := commentIDs(ctx, r.db, []string{p.ID})
	if err != nil {
		return nil, err
	}
	if got := ids[p.ID]; got != nil {
		p.CommentIDs = got
	}
	return p, nil
}

func getPrescription(ctx context.Context, q querier, id string) (*models.Prescription, error) {
	query, args, err := dialect.From("prescriptions").Select(prescriptionColumns...).Where(goqu.C("id").Eq(id)).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	p, err := scanPrescription(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// commentIDs maps each prescription id to the ids of its comments.
func commentIDs(ctx context.Context, q querier, prescriptionIDs []string) (map[string][]int64, error) {
	out := make(map[string][]int64, len(prescriptionIDs))
	if len(prescriptionIDs) == 0 {
		return out, nil
	}
	query, args, err := dialect.From("comments").Select("prescription_id", "id").
		Where(goqu.C("prescription_id").In(prescriptionIDs)).
		Order(goqu.C("id").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var pid string
		var cid int64
		if err := rows.Scan(&pid, &cid); err != nil {
			return nil, err
		}
		out[pid] = append(out[pid], cid)
	}
	return out, rows.Err()
}

// PrescriptionFilter narrows listings. AuthorID scopes to one patient.
type PrescriptionFilter struct {
	AuthorID       *int64
	Approved       *bool
	DeliveryOption *models.DeliveryOption
	Limit          int
	Offset         int
}

// List returns prescriptions newest first.
func (r *PrescriptionRepository) List(ctx context.Context, f PrescriptionFilter) ([]models.Prescription, error) {
	limit, offset := clampPage(f.Limit, f.Offset)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ds := dialect.From("prescriptions").Select(prescriptionColumns...).Prepared(true)
	if f.AuthorID != nil {
		ds = ds.Where(goqu.C("author_id").Eq(*f.AuthorID))
	}
	if f.Approved != nil {
		ds = ds.Where(goqu.C("approved").Eq(*f.Approved))
	}
	if f.DeliveryOption != nil {
		ds = ds.Where(goqu.C("delivery_option").Eq(string(*f.DeliveryOption)))
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
	out := []models.Prescription{}
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := make([]string, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}
	byID, err := commentIDs(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if got := byID[out[i].ID]; got != nil {
			out[i].CommentIDs = got
		}
	}
	return out, nil
}

// PatientFields are the columns a patient may change after submitting.
// NewAddress, when set, is inserted and replaces DeliveryAddressID.
type PatientFields struct {
	DeliveryOption    models.DeliveryOption
	DeliveryAddressID *int64
	NewAddress        *models.Geolocation
}

// UpdatePatientFields changes the delivery choice of an own, still
// unapproved prescription. ErrStale means no row matched those conditions;
// a point from NewAddress is then rolled back too.
func (r *PrescriptionRepository) UpdatePatientFields(ctx context.Context, id string, authorID int64, u PatientFields) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		addr := u.DeliveryAddressID
		if u.NewAddress != nil {
			g, err := insertGeolocation(ctx, tx, u.NewAddress)
			if err != nil {
				return err
			}
			addr = &g.ID
		}
		query, args, err := dialect.Update("prescriptions").Prepared(true).
			Set(goqu.Record{
				"delivery_option":     string(u.DeliveryOption),
				"delivery_address_id": nullInt(addr),
				"version":             goqu.L("version + 1"),
				"updated_at":          now(),
			}).
			Where(goqu.Ex{"id": id, "author_id": authorID, "approved": false}).
			ToSQL()
		if err != nil {
			return err
		}
		return expectOne(tx.ExecContext(ctx, query, args...))
	})
}

// PharmacistFields are the review columns. Nil fields are left alone.
// With Version set the update only applies to that version.
type PharmacistFields struct {
	Approved *bool
	Price    *models.Money
	GCSID    *int64
	ClearGCS bool
	Version  *int64
}

// UpdatePharmacistFields applies a review as one conditional UPDATE and
// returns the stored result. Approving requires a price, either in u or
// already stored. ErrStale means the version (or price precondition) did
// not match; nil, nil means the row does not exist.
func (r *PrescriptionRepository) UpdatePharmacistFields(ctx context.Context, id string, u PharmacistFields) (*models.Prescription, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	set := goqu.Record{
		"version":    goqu.L("version + 1"),
		"updated_at": now(),
	}
	where := []goqu.Expression{goqu.C("id").Eq(id)}
	if u.Price != nil {
		set["price_cents"] = int64(*u.Price)
	}
	if u.Approved != nil {
		set["approved"] = *u.Approved
		if *u.Approved && u.Price == nil {
			where = append(where, goqu.C("price_cents").IsNotNull())
		}
	}
	if u.ClearGCS {
		set["gcs_id"] = nil
	} else if u.GCSID != nil {
		set["gcs_id"] = *u.GCSID
	}
	if u.Version != nil {
		where = append(where, goqu.C("version").Eq(*u.Version))
	}

	query, args, err := dialect.Update("prescriptions").Prepared(true).Set(set).Where(where...).ToSQL()
	if err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		p, err := getPrescription(ctx, r.db, id)
		if err != nil || p == nil {
			return nil, err
		}
		return nil, ErrStale
	}
	return r.GetByID(ctx, id)
}

// SetContentOnce stores recognized text only while content is still empty.
// It reports whether the row was written.
func (r *PrescriptionRepository) SetContentOnce(ctx context.Context, id, content string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE prescriptions SET content = ?, version = version + 1, updated_at = ? WHERE id = ? AND content = ''`,
		content, now(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Delete removes the prescription with its comments and deliveries.
func (r *PrescriptionRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM prescriptions WHERE id = ?`, id)
	return err
}

// DeleteUnapproved removes an own prescription that has not been approved.
// ErrStale means no such row.
func (r *PrescriptionRepository) DeleteUnapproved(ctx context.Context, id string, authorID int64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return expectOne(r.db.ExecContext(ctx, `DELETE FROM prescriptions WHERE id = ? AND author_id = ? AND approved = 0`, id, authorID))
}

func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}
