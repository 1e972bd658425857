package models

import "time"

// DeliveryOption is how the patient wants to receive the medication.
type DeliveryOption string

const (
	DeliveryOptionPickup DeliveryOption = "PICKUP"
	DeliveryOptionDrone  DeliveryOption = "DRONE"
)

// Valid reports whether o is one of the known options.
func (o DeliveryOption) Valid() bool {
	return o == DeliveryOptionPickup || o == DeliveryOptionDrone
}

// Prescription is a patient submission reviewed by pharmacists.
// Price, Approved, Content and GCSID are never written by the patient.
type Prescription struct {
	ID                string         `db:"id" json:"id"`
	Image             string         `db:"image" json:"image"`
	AuthorID          int64          `db:"author_id" json:"author"`
	Price             *Money         `db:"price_cents" json:"price"`
	CommentIDs        []int64        `db:"-" json:"comments"`
	Approved          bool           `db:"approved" json:"approved"`
	Content           string         `db:"content" json:"content"`
	GCSID             *int64         `db:"gcs_id" json:"gcs"`
	DeliveryOption    DeliveryOption `db:"delivery_option" json:"delivery_option"`
	DeliveryAddressID *int64         `db:"delivery_address_id" json:"delivery_address"`
	Version           int64          `db:"version" json:"version"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}
