package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"

	"letDrone/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dialect builds prepared (placeholder) SQL for SQLite.
var dialect = goqu.Dialect("sqlite3")

func now() time.Time {
	return time.Now().UTC()
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// GeolocationRepositoryI defines operations on Geolocation entities.
type GeolocationRepositoryI interface {
	Create(ctx context.Context, g *models.Geolocation) (*models.Geolocation, error)
	GetByID(ctx context.Context, id int64) (*models.Geolocation, error)
	List(ctx context.Context, limit, offset int) ([]models.Geolocation, error)
	ListForPatient(ctx context.Context, patientID int64, limit, offset int) ([]models.Geolocation, error)
	OwnedByPatient(ctx context.Context, id, patientID int64) (bool, error)
	Update(ctx context.Context, g *models.Geolocation) error
	Delete(ctx context.Context, id int64) error
}

// UserRepositoryI defines operations on User entities.
type UserRepositoryI interface {
	Create(ctx context.Context, u *models.User) (*models.User, error)
	CreatePatientAccount(ctx context.Context, u *models.User) (*models.User, *models.Patient, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]models.User, error)
	Update(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, id int64) error
}

// PatientRepositoryI defines operations on Patient profiles.
type PatientRepositoryI interface {
	Create(ctx context.Context, p *models.Patient) (*models.Patient, error)
	GetByID(ctx context.Context, id int64) (*models.Patient, error)
	GetByUserID(ctx context.Context, userID int64) (*models.Patient, error)
	List(ctx context.Context, limit, offset int) ([]models.Patient, error)
	Update(ctx context.Context, p *models.Patient) error
	UpdateWithHome(ctx context.Context, p *models.Patient, home *models.Geolocation) error
	Delete(ctx context.Context, id int64) error
}

// PharmacistRepositoryI defines operations on Pharmacist profiles.
type PharmacistRepositoryI interface {
	Create(ctx context.Context, p *models.Pharmacist) (*models.Pharmacist, error)
	GetByID(ctx context.Context, id int64) (*models.Pharmacist, error)
	GetByUserID(ctx context.Context, userID int64) (*models.Pharmacist, error)
	List(ctx context.Context, limit, offset int) ([]models.Pharmacist, error)
	Update(ctx context.Context, p *models.Pharmacist) error
	Delete(ctx context.Context, id int64) error
}

// DroneRepositoryI defines operations on Drone entities.
type DroneRepositoryI interface {
	Create(ctx context.Context, d *models.Drone) (*models.Drone, error)
	GetByID(ctx context.Context, id string) (*models.Drone, error)
	List(ctx context.Context, p ListDronesParams) ([]models.Drone, error)
	Apply(ctx context.Context, id string, c DroneChanges) error
	Delete(ctx context.Context, id string) error
}

// GCSRepositoryI defines operations on ground control stations.
type GCSRepositoryI interface {
	Create(ctx context.Context, g *models.GCS) (*models.GCS, error)
	GetByID(ctx context.Context, id int64) (*models.GCS, error)
	List(ctx context.Context, limit, offset int) ([]models.GCS, error)
	Update(ctx context.Context, g *models.GCS) error
	Delete(ctx context.Context, id int64) error
}

// CommentRepositoryI defines operations on comment threads.
type CommentRepositoryI interface {
	Create(ctx context.Context, c *models.Comment) (*models.Comment, error)
	GetByID(ctx context.Context, id int64) (*models.Comment, error)
	List(ctx context.Context, f CommentFilter) ([]models.Comment, error)
	DeleteTree(ctx context.Context, id int64) (int, error)
}

// PrescriptionRepositoryI defines operations on Prescription entities.
type PrescriptionRepositoryI interface {
	Create(ctx context.Context, p *models.Prescription) (*models.Prescription, error)
	CreateWithAddress(ctx context.Context, p *models.Prescription, addr *models.Geolocation) (*models.Prescription, error)
	GetByID(ctx context.Context, id string) (*models.Prescription, error)
	List(ctx context.Context, f PrescriptionFilter) ([]models.Prescription, error)
	UpdatePatientFields(ctx context.Context, id string, authorID int64, u PatientFields) error
	UpdatePharmacistFields(ctx context.Context, id string, u PharmacistFields) (*models.Prescription, error)
	SetContentOnce(ctx context.Context, id, content string) (bool, error)
	Delete(ctx context.Context, id string) error
	DeleteUnapproved(ctx context.Context, id string, authorID int64) error
}

// DeliveryRepositoryI defines operations on Delivery entities.
type DeliveryRepositoryI interface {
	Create(ctx context.Context, d *models.Delivery, check func(p *models.Prescription) error) (*models.Delivery, error)
	GetByID(ctx context.Context, id string) (*models.Delivery, error)
	List(ctx context.Context, f DeliveryFilter) ([]models.Delivery, error)
	Apply(ctx context.Context, id string, u DeliverySchedule, change *StatusChange) error
	TransitionStatus(ctx context.Context, id string, from, to models.DeliveryStatus) error
	Delete(ctx context.Context, id string) error
}
