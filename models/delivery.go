package models

import "time"

// DeliveryStatus represents the progress of a drone delivery.
type DeliveryStatus string

const (
	DeliveryStatusPreparing DeliveryStatus = "PREPARING"
	DeliveryStatusInFlight  DeliveryStatus = "IN_FLIGHT"
	DeliveryStatusDelivered DeliveryStatus = "DELIVERED"
)

// Valid reports whether s is a known status.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPreparing, DeliveryStatusInFlight, DeliveryStatusDelivered:
		return true
	}
	return false
}

// Next returns the only status s may move to. Delivered is terminal.
func (s DeliveryStatus) Next() (DeliveryStatus, bool) {
	switch s {
	case DeliveryStatusPreparing:
		return DeliveryStatusInFlight, true
	case DeliveryStatusInFlight:
		return DeliveryStatusDelivered, true
	}
	return "", false
}

// CanTransitionTo reports whether moving from s to next is a single forward step.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	n, ok := s.Next()
	return ok && n == next
}

// Delivery tracks a drone delivery of an approved prescription.
// DroneID is nulled when the drone is removed; the delivery is kept.
type Delivery struct {
	ID                    string         `db:"id" json:"id"`
	PrescriptionID        string         `db:"prescription_id" json:"prescription"`
	PatientID             int64          `db:"patient_id" json:"patient"`
	DroneID               *string        `db:"drone_id" json:"drone"`
	PickupTime            time.Time      `db:"pickup_time" json:"pickup_time"`
	PickupLocationID      int64          `db:"pickup_location_id" json:"pickup_location"`
	EstimatedDeliveryTime *time.Time     `db:"estimated_delivery_time" json:"estimated_delivery_time"`
	Status                DeliveryStatus `db:"status" json:"status"`
	CreatedAt             time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at" json:"updated_at"`
}
