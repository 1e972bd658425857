package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"letDrone/internal/db"
	"letDrone/models"
)

type PatientRepository struct {
	db *sql.DB
}

func NewPatientRepository(db *sql.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

const patientColumns = `id, user_id, date_of_birth, address, emergency_contact, avatar, home_location_id`

func scanPatient(row interface{ Scan(...any) error }) (*models.Patient, error) {
	var p models.Patient
	var dob sql.NullString
	var home sql.NullInt64
	if err := row.Scan(&p.ID, &p.UserID, &dob, &p.Address, &p.EmergencyContact, &p.Avatar, &home); err != nil {
		return nil, err
	}
	p.DateOfBirth = stringPtr(dob)
	p.HomeLocationID = intPtr(home)
	return &p, nil
}

func (r *PatientRepository) Create(ctx context.Context, p *models.Patient) (*models.Patient, error) {
	if p == nil {
		return nil, errors.New("patient is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return insertPatient(ctx, r.db, p)
}

func insertPatient(ctx context.Context, q querier, p *models.Patient) (*models.Patient, error) {
	if p.Avatar == "" {
		p.Avatar = models.DefaultPatientAvatar
	}
	res, err := q.ExecContext(ctx, `INSERT INTO patients (user_id, date_of_birth, address, emergency_contact, avatar, home_location_id) VALUES (?,?,?,?,?,?)`,
		p.UserID, nullString(p.DateOfBirth), p.Address, p.EmergencyContact, p.Avatar, nullInt(p.HomeLocationID))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	p.ID = id
	return p, nil
}

func (r *PatientRepository) GetByID(ctx context.Context, id int64) (*models.Patient, error) {
	return r.getOne(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = ?`, id)
}

func (r *PatientRepository) GetByUserID(ctx context.Context, userID int64) (*models.Patient, error) {
	return r.getOne(ctx, `SELECT `+patientColumns+` FROM patients WHERE user_id = ?`, userID)
}

func (r *PatientRepository) getOne(ctx context.Context, query string, arg any) (*models.Patient, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	p, err := scanPatient(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *PatientRepository) List(ctx context.Context, limit, offset int) ([]models.Patient, error) {
	limit, offset = clampPage(limit, offset)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+patientColumns+` FROM patients ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PatientRepository) Update(ctx context.Context, p *models.Patient) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return updatePatient(ctx, r.db, p)
}

// UpdateWithHome inserts home and saves p with it as the home location in
// one transaction. p.HomeLocationID is set on success.
func (r *PatientRepository) UpdateWithHome(ctx context.Context, p *models.Patient, home *models.Geolocation) error {
	if home == nil {
		return r.Update(ctx, p)
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	out := *p
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		g, err := insertGeolocation(ctx, tx, home)
		if err != nil {
			return err
		}
		out.HomeLocationID = &g.ID
		return updatePatient(ctx, tx, &out)
	})
	if err != nil {
		return err
	}
	p.HomeLocationID = out.HomeLocationID
	return nil
}

func updatePatient(ctx context.Context, q querier, p *models.Patient) error {
	_, err := q.ExecContext(ctx, `UPDATE patients SET date_of_birth = ?, address = ?, emergency_contact = ?, avatar = ?, home_location_id = ? WHERE id = ?`,
		nullString(p.DateOfBirth), p.Address, p.EmergencyContact, p.Avatar, nullInt(p.HomeLocationID), p.ID)
	return err
}

// Delete removes the profile together with its prescriptions and deliveries.
func (r *PatientRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM patients WHERE id = ?`, id)
	return err
}

type PharmacistRepository struct {
	db *sql.DB
}

func NewPharmacistRepository(db *sql.DB) *PharmacistRepository {
	return &PharmacistRepository{db: db}
}

const pharmacistColumns = `id, user_id, specialization, phone_number, biography, avatar`

func scanPharmacist(row interface{ Scan(...any) error }) (*models.Pharmacist, error) {
	var p models.Pharmacist
	if err := row.Scan(&p.ID, &p.UserID, &p.Specialization, &p.PhoneNumber, &p.Biography, &p.Avatar); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PharmacistRepository) Create(ctx context.Context, p *models.Pharmacist) (*models.Pharmacist, error) {
	if p == nil {
		return nil, errors.New("pharmacist is nil")
	}
	if p.Avatar == "" {
		p.Avatar = models.DefaultPharmacistAvatar
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `INSERT INTO pharmacists (user_id, specialization, phone_number, biography, avatar) VALUES (?,?,?,?,?)`,
		p.UserID, p.Specialization, p.PhoneNumber, p.Biography, p.Avatar)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	p.ID = id
	return p, nil
}

func (r *PharmacistRepository) GetByID(ctx context.Context, id int64) (*models.Pharmacist, error) {
	return r.getOne(ctx, `SELECT `+pharmacistColumns+` FROM pharmacists WHERE id = ?`, id)
}

func (r *PharmacistRepository) GetByUserID(ctx context.Context, userID int64) (*models.Pharmacist, error) {
	return r.getOne(ctx, `SELECT `+pharmacistColumns+` FROM pharmacists WHERE user_id = ?`, userID)
}

func (r *PharmacistRepository) getOne(ctx context.Context, query string, arg any) (*models.Pharmacist, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	p, err := scanPharmacist(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *PharmacistRepository) List(ctx context.Context, limit, offset int) ([]models.Pharmacist, error) {
	limit, offset = clampPage(limit, offset)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+pharmacistColumns+` FROM pharmacists ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Pharmacist{}
	for rows.Next() {
		p, err := scanPharmacist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PharmacistRepository) Update(ctx context.Context, p *models.Pharmacist) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE pharmacists SET specialization = ?, phone_number = ?, biography = ?, avatar = ? WHERE id = ?`,
		p.Specialization, p.PhoneNumber, p.Biography, p.Avatar, p.ID)
	return err
}

func (r *PharmacistRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM pharmacists WHERE id = ?`, id)
	return err
}
