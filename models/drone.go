package models

import "time"

// Drone represents a delivery drone. ID is a UUID that stays stable while
// CurrentLocationID is re-pointed on every relocation.
type Drone struct {
	ID                string    `db:"id" json:"id"`
	Model             string    `db:"model" json:"model"`
	BatteryLevel      int       `db:"battery_level" json:"battery_level"`
	PayloadCapacity   float64   `db:"payload_capacity" json:"payload_capacity"`
	CurrentLocationID int64     `db:"current_location_id" json:"current_location"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

const (
	MinBatteryLevel = 0
	MaxBatteryLevel = 100
)

// GCS is a ground control station.
type GCS struct {
	ID                int64     `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Website           string    `db:"website" json:"website"`
	CurrentLocationID int64     `db:"current_location_id" json:"current_location"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}
