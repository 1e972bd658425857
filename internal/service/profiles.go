package service

import (
	"context"
	"strings"
	"time"

	"letDrone/internal/apperrors"
	"letDrone/internal/db"
	"letDrone/internal/policy"
	"letDrone/models"
	"letDrone/repository"
)

// ProfileService manages patient and pharmacist profiles.
type ProfileService struct {
	Users        repository.UserRepositoryI
	Patients     repository.PatientRepositoryI
	Pharmacists  repository.PharmacistRepositoryI
	Geolocations repository.GeolocationRepositoryI
}

func (s *ProfileService) ListPatients(ctx context.Context, a *policy.Actor, page Page) ([]models.Patient, error) {
	if err := policy.Check(a, policy.Patients, policy.List, false); err != nil {
		return nil, err
	}
	out, err := s.Patients.List(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, internalErr("list patients", err)
	}
	return out, nil
}

func (s *ProfileService) GetPatient(ctx context.Context, a *policy.Actor, id int64) (*models.Patient, error) {
	if err := authorize(a, policy.Patients, policy.Read, a.OwnsPatient(id), "patient"); err != nil {
		return nil, err
	}
	return s.patient(ctx, id)
}

func (s *ProfileService) patient(ctx context.Context, id int64) (*models.Patient, error) {
	p, err := s.Patients.GetByID(ctx, id)
	if err != nil {
		return nil, internalErr("get patient", err)
	}
	if p == nil {
		return nil, apperrors.NotFound("patient")
	}
	return p, nil
}

// PatientPatch holds the profile fields a patient may edit.
type PatientPatch struct {
	DateOfBirth      *string       `json:"date_of_birth"`
	Address          *string       `json:"address"`
	EmergencyContact *string       `json:"emergency_contact"`
	HomeLocation     *AddressInput `json:"home_location"`
}

func (s *ProfileService) UpdatePatient(ctx context.Context, a *policy.Actor, id int64, in PatientPatch) (*models.Patient, error) {
	if err := authorize(a, policy.Patients, policy.Update, a.OwnsPatient(id), "patient"); err != nil {
		return nil, err
	}
	p, err := s.patient(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.DateOfBirth != nil {
		dob := strings.TrimSpace(*in.DateOfBirth)
		if dob == "" {
			p.DateOfBirth = nil
		} else {
			if _, err := time.Parse(time.DateOnly, dob); err != nil {
				return nil, apperrors.Validation("date_of_birth must be YYYY-MM-DD")
			}
			p.DateOfBirth = &dob
		}
	}
	if in.Address != nil {
		p.Address = strings.TrimSpace(*in.Address)
	}
	if in.EmergencyContact != nil {
		p.EmergencyContact = strings.TrimSpace(*in.EmergencyContact)
	}
	var home *models.Geolocation
	if in.HomeLocation != nil {
		var id *int64
		if id, home, err = resolveAddress(ctx, s.Geolocations, p.ID, in.HomeLocation, "home_location"); err != nil {
			return nil, err
		}
		if id != nil {
			p.HomeLocationID = id
		}
	}
	if err := s.Patients.UpdateWithHome(ctx, p, home); err != nil {
		return nil, internalErr("update patient", err)
	}
	return p, nil
}

func (s *ProfileService) DeletePatient(ctx context.Context, a *policy.Actor, id int64) error {
	if err := policy.Check(a, policy.Patients, policy.Delete, a.OwnsPatient(id)); err != nil {
		return err
	}
	if _, err := s.patient(ctx, id); err != nil {
		return err
	}
	if err := s.Patients.Delete(ctx, id); err != nil {
		return internalErr("delete patient", err)
	}
	return nil
}

func (s *ProfileService) ListPharmacists(ctx context.Context, a *policy.Actor, page Page) ([]models.Pharmacist, error) {
	if err := policy.Check(a, policy.Pharmacists, policy.List, false); err != nil {
		return nil, err
	}
	out, err := s.Pharmacists.List(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, internalErr("list pharmacists", err)
	}
	return out, nil
}

func (s *ProfileService) GetPharmacist(ctx context.Context, a *policy.Actor, id int64) (*models.Pharmacist, error) {
	if err := policy.Check(a, policy.Pharmacists, policy.Read, false); err != nil {
		return nil, err
	}
	return s.pharmacist(ctx, id)
}

func (s *ProfileService) pharmacist(ctx context.Context, id int64) (*models.Pharmacist, error) {
	p, err := s.Pharmacists.GetByID(ctx, id)
	if err != nil {
		return nil, internalErr("get pharmacist", err)
	}
	if p == nil {
		return nil, apperrors.NotFound("pharmacist")
	}
	return p, nil
}

// PharmacistInput creates a pharmacist profile for an existing user.
type PharmacistInput struct {
	UserID         int64  `json:"user"`
	Specialization string `json:"specialization"`
	PhoneNumber    string `json:"phone_number"`
	Biography      string `json:"biography"`
}

func (s *ProfileService) CreatePharmacist(ctx context.Context, a *policy.Actor, in PharmacistInput) (*models.Pharmacist, error) {
	if err := policy.Check(a, policy.Pharmacists, policy.Create, false); err != nil {
		return nil, err
	}
	u, err := s.Users.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, internalErr("get user", err)
	}
	if u == nil {
		return nil, apperrors.Validation("user %d does not exist", in.UserID)
	}
	p, err := s.Pharmacists.Create(ctx, &models.Pharmacist{
		UserID:         in.UserID,
		Specialization: strings.TrimSpace(in.Specialization),
		PhoneNumber:    strings.TrimSpace(in.PhoneNumber),
		Biography:      in.Biography,
	})
	if db.IsUniqueViolation(err) {
		return nil, apperrors.Conflict("user %d already has a pharmacist profile", in.UserID)
	}
	if err != nil {
		return nil, internalErr("create pharmacist", err)
	}
	return p, nil
}

// PharmacistPatch holds the profile fields a pharmacist may edit.
type PharmacistPatch struct {
	Specialization *string `json:"specialization"`
	PhoneNumber    *string `json:"phone_number"`
	Biography      *string `json:"biography"`
}

func (s *ProfileService) UpdatePharmacist(ctx context.Context, a *policy.Actor, id int64, in PharmacistPatch) (*models.Pharmacist, error) {
	owned := a.IsPharmacist() && a.Pharmacist.ID == id
	if err := authorize(a, policy.Pharmacists, policy.Update, owned, "pharmacist"); err != nil {
		return nil, err
	}
	p, err := s.pharmacist(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Specialization != nil {
		p.Specialization = strings.TrimSpace(*in.Specialization)
	}
	if in.PhoneNumber != nil {
		p.PhoneNumber = strings.TrimSpace(*in.PhoneNumber)
	}
	if in.Biography != nil {
		p.Biography = *in.Biography
	}
	if err := s.Pharmacists.Update(ctx, p); err != nil {
		return nil, internalErr("update pharmacist", err)
	}
	return p, nil
}

func (s *ProfileService) DeletePharmacist(ctx context.Context, a *policy.Actor, id int64) error {
	if err := policy.Check(a, policy.Pharmacists, policy.Delete, false); err != nil {
		return err
	}
	if _, err := s.pharmacist(ctx, id); err != nil {
		return err
	}
	if err := s.Pharmacists.Delete(ctx, id); err != nil {
		return internalErr("delete pharmacist", err)
	}
	return nil
}

// requireGeolocation reports a dangling reference in field as a validation error.
func requireGeolocation(ctx context.Context, geos repository.GeolocationRepositoryI, id int64, field string) error {
	g, err := geos.GetByID(ctx, id)
	if err != nil {
		return internalErr("get geolocation", err)
	}
	if g == nil {
		return apperrors.Validation("%s: geolocation %d does not exist", field, id)
	}
	return nil
}

// resolveAddress checks an address a patient sent. An id must name a point
// the patient already uses; anything else reads as missing. Coordinates are
// validated and returned unsaved.
func resolveAddress(ctx context.Context, geos repository.GeolocationRepositoryI, patientID int64, in *AddressInput, field string) (*int64, *models.Geolocation, error) {
	if in == nil {
		return nil, nil, nil
	}
	switch {
	case in.ID != nil && in.Point != nil:
		return nil, nil, apperrors.Validation("%s takes an id or a point, not both", field)
	case in.Point != nil:
		g, err := in.Point.toModel()
		if err != nil {
			return nil, nil, err
		}
		return nil, g, nil
	case in.ID != nil:
		owned, err := geos.OwnedByPatient(ctx, *in.ID, patientID)
		if err != nil {
			return nil, nil, internalErr("check geolocation owner", err)
		}
		if !owned {
			return nil, nil, apperrors.Validation("%s: geolocation %d does not exist", field, *in.ID)
		}
		return in.ID, nil, nil
	}
	return nil, nil, nil
}
