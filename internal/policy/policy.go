// Package policy decides who may do what. Roles come from the database,
// never from token claims, and anything not explicitly allowed is denied.
package policy

import (
	"context"

	"letDrone/internal/apperrors"
	"letDrone/internal/auth"
	"letDrone/models"
)

type Resource string

const (
	PatientPrescriptions    Resource = "patient_prescriptions"
	PharmacistPrescriptions Resource = "pharmacist_prescriptions"
	Deliveries              Resource = "deliveries"
	Comments                Resource = "comments"
	Users                   Resource = "users"
	Patients                Resource = "patients"
	Pharmacists             Resource = "pharmacists"
	Drones                  Resource = "drones"
	Stations                Resource = "gcs"
	Geolocations            Resource = "geolocations"
	OCR                     Resource = "ocr"
)

type Action string

const (
	List   Action = "list"
	Read   Action = "read"
	Create Action = "create"
	Update Action = "update"
	Delete Action = "delete"
)

// Actor is a caller with verified roles.
type Actor struct {
	User       *models.User
	Patient    *models.Patient
	Pharmacist *models.Pharmacist
}

func (a *Actor) IsAdmin() bool      { return a != nil && a.User != nil && a.User.IsStaff }
func (a *Actor) IsPatient() bool    { return a != nil && a.Patient != nil }
func (a *Actor) IsPharmacist() bool { return a != nil && a.Pharmacist != nil }

// IsStaff reports pharmacists and admins.
func (a *Actor) IsStaff() bool { return a.IsPharmacist() || a.IsAdmin() }

// OwnsPatient reports whether patientID is the actor's own patient profile.
func (a *Actor) OwnsPatient(patientID int64) bool {
	return a.IsPatient() && a.Patient.ID == patientID
}

// IsUser reports whether userID is the actor's account.
func (a *Actor) IsUser(userID int64) bool {
	return a != nil && a.User != nil && a.User.ID == userID
}

type userLookup interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

type patientLookup interface {
	GetByUserID(ctx context.Context, userID int64) (*models.Patient, error)
}

type pharmacistLookup interface {
	GetByUserID(ctx context.Context, userID int64) (*models.Pharmacist, error)
}

// Resolver turns an authenticated principal into an Actor.
type Resolver struct {
	users       userLookup
	patients    patientLookup
	pharmacists pharmacistLookup
}

func NewResolver(users userLookup, patients patientLookup, pharmacists pharmacistLookup) *Resolver {
	return &Resolver{users: users, patients: patients, pharmacists: pharmacists}
}

// Resolve loads the user named by p and its profiles. A principal that is
// not a person, or a person unknown to the database, is unauthenticated.
func (r *Resolver) Resolve(ctx context.Context, p *auth.Principal) (*Actor, error) {
	if p == nil {
		return nil, apperrors.Authentication("authentication credentials were not provided")
	}
	if p.Kind != auth.KindUser {
		return nil, apperrors.Authentication("token is not issued to a user")
	}
	u, err := r.users.GetByUsername(ctx, p.Name)
	if err != nil {
		return nil, apperrors.Internal("load user", err)
	}
	if u == nil {
		return nil, apperrors.Authentication("unknown user")
	}
	a := &Actor{User: u}
	if a.Patient, err = r.patients.GetByUserID(ctx, u.ID); err != nil {
		return nil, apperrors.Internal("load patient profile", err)
	}
	if a.Pharmacist, err = r.pharmacists.GetByUserID(ctx, u.ID); err != nil {
		return nil, apperrors.Internal("load pharmacist profile", err)
	}
	return a, nil
}

type rule func(a *Actor, action Action, owned bool) bool

var rules = map[Resource]rule{
	PatientPrescriptions: func(a *Actor, action Action, owned bool) bool {
		if !a.IsPatient() {
			return false
		}
		switch action {
		case List, Create:
			return true
		case Read, Update, Delete:
			return owned
		}
		return false
	},
	PharmacistPrescriptions: func(a *Actor, action Action, _ bool) bool {
		return a.IsStaff() && action != Create
	},
	Deliveries: func(a *Actor, action Action, owned bool) bool {
		switch action {
		case List:
			return a.IsStaff() || a.IsPatient()
		case Read:
			return a.IsStaff() || (a.IsPatient() && owned)
		case Create, Update, Delete:
			return a.IsStaff()
		}
		return false
	},
	// owned: the thread's prescription is the actor's (list, read, create)
	// or the actor wrote the comment (delete).
	Comments: func(a *Actor, action Action, owned bool) bool {
		switch action {
		case List:
			return a.IsStaff() || a.IsPatient()
		case Read, Create:
			return a.IsStaff() || (a.IsPatient() && owned)
		case Delete:
			return owned || a.IsAdmin()
		}
		return false
	},
	Users: func(a *Actor, action Action, owned bool) bool {
		switch action {
		case List, Delete:
			return a.IsAdmin()
		case Read:
			return owned || a.IsAdmin()
		case Update:
			return owned
		}
		return false
	},
	Patients: func(a *Actor, action Action, owned bool) bool {
		switch action {
		case List:
			return a.IsStaff()
		case Read:
			return owned || a.IsStaff()
		case Update:
			return owned
		case Delete:
			return a.IsAdmin()
		}
		return false
	},
	Pharmacists: func(a *Actor, action Action, owned bool) bool {
		switch action {
		case List, Read:
			return true
		case Create, Delete:
			return a.IsAdmin()
		case Update:
			return owned
		}
		return false
	},
	Drones:   fleetRule,
	Stations: fleetRule,
	// owned: the patient's profile, prescriptions or deliveries use the point.
	Geolocations: func(a *Actor, action Action, owned bool) bool {
		switch action {
		case List:
			return a.IsStaff() || a.IsPatient()
		case Read:
			return a.IsStaff() || (a.IsPatient() && owned)
		case Create, Update, Delete:
			return a.IsStaff()
		}
		return false
	},
	OCR: func(a *Actor, _ Action, _ bool) bool {
		return a.IsPharmacist()
	},
}

func fleetRule(a *Actor, action Action, _ bool) bool {
	switch action {
	case List, Read:
		return true
	case Create, Update, Delete:
		return a.IsStaff()
	}
	return false
}

// Allowed reports whether a may perform action on resource. owned says
// whether the target belongs to the actor, as each resource defines it.
func Allowed(a *Actor, resource Resource, action Action, owned bool) bool {
	if a == nil || a.User == nil {
		return false
	}
	r, ok := rules[resource]
	if !ok {
		return false
	}
	return r(a, action, owned)
}

// Check is Allowed as an AuthorizationError.
func Check(a *Actor, resource Resource, action Action, owned bool) error {
	if Allowed(a, resource, action, owned) {
		return nil
	}
	return apperrors.Authorization("you do not have permission to %s %s", action, resource)
}
