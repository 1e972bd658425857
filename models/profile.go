package models

// Pharmacist is the pharmacist profile attached one-to-one to a User.
type Pharmacist struct {
	ID             int64  `db:"id" json:"id"`
	UserID         int64  `db:"user_id" json:"user"`
	Specialization string `db:"specialization" json:"specialization"`
	PhoneNumber    string `db:"phone_number" json:"phone_number"`
	Biography      string `db:"biography" json:"biography"`
	Avatar         string `db:"avatar" json:"avatar"`
}

// Patient is the patient profile attached one-to-one to a User.
// HomeLocationID, when set, is used as the drone drop-off point for
// prescriptions submitted without an explicit delivery address.
type Patient struct {
	ID               int64   `db:"id" json:"id"`
	UserID           int64   `db:"user_id" json:"user"`
	DateOfBirth      *string `db:"date_of_birth" json:"date_of_birth"`
	Address          string  `db:"address" json:"address"`
	EmergencyContact string  `db:"emergency_contact" json:"emergency_contact"`
	Avatar           string  `db:"avatar" json:"avatar"`
	HomeLocationID   *int64  `db:"home_location_id" json:"home_location"`
}

const (
	DefaultPharmacistAvatar = "default_doctor.jpg"
	DefaultPatientAvatar    = "default_patient.jpg"
)
