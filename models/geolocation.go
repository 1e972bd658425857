package models

// Geolocation is a point shared by reference between drones, stations,
// prescriptions and deliveries.
type Geolocation struct {
	ID        int64    `db:"id" json:"id"`
	Latitude  float64  `db:"latitude" json:"latitude"`
	Longitude float64  `db:"longitude" json:"longitude"`
	Altitude  *float64 `db:"altitude" json:"altitude"`
}
