package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"letDrone/internal/apperrors"
	"letDrone/internal/db"
	"letDrone/internal/events"
	"letDrone/internal/geo"
	"letDrone/internal/metrics"
	"letDrone/internal/policy"
	"letDrone/models"
	"letDrone/repository"
)

// DefaultCruiseSpeedMPH is used for estimates when no speed is configured.
const DefaultCruiseSpeedMPH = 30

// DeliveryService runs the delivery lifecycle
// PREPARING -> IN_FLIGHT -> DELIVERED.
type DeliveryService struct {
	Deliveries    repository.DeliveryRepositoryI
	Prescriptions repository.PrescriptionRepositoryI
	Drones        repository.DroneRepositoryI
	Geolocations  repository.GeolocationRepositoryI
	Events        events.Publisher
	Metrics       *metrics.Collector

	CruiseSpeedMPH float64
	// Now defaults to time.Now.
	Now func() time.Time
}

// DeliveryInput schedules a delivery. PatientID is optional and only
// checked against the prescription's author.
type DeliveryInput struct {
	PrescriptionID        string     `json:"prescription"`
	PatientID             *int64     `json:"patient"`
	DroneID               *string    `json:"drone"`
	PickupTime            *time.Time `json:"pickup_time"`
	PickupLocationID      *int64     `json:"pickup_location"`
	EstimatedDeliveryTime *time.Time `json:"estimated_delivery_time"`
}

// DeliveryPatch changes a delivery. Status may only name the next status.
type DeliveryPatch struct {
	DroneID               *string
	ClearDrone            bool
	PickupTime            *time.Time
	PickupLocationID      *int64
	EstimatedDeliveryTime *time.Time
	ClearETA              bool
	Status                *models.DeliveryStatus
}

// DeliveryQuery filters listings.
type DeliveryQuery struct {
	DroneID *string
	Status  *models.DeliveryStatus
	Page
}

func (s *DeliveryService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *DeliveryService) List(ctx context.Context, a *policy.Actor, q DeliveryQuery) ([]models.Delivery, error) {
	if err := policy.Check(a, policy.Deliveries, policy.List, false); err != nil {
		return nil, err
	}
	if q.Status != nil && !q.Status.Valid() {
		return nil, apperrors.Validation("unknown status %q", *q.Status)
	}
	f := repository.DeliveryFilter{DroneID: q.DroneID, Status: q.Status, Limit: q.Limit, Offset: q.Offset}
	if !a.IsStaff() {
		f.PatientID = &a.Patient.ID
	}
	out, err := s.Deliveries.List(ctx, f)
	if err != nil {
		return nil, internalErr("list deliveries", err)
	}
	return out, nil
}

func (s *DeliveryService) Get(ctx context.Context, a *policy.Actor, id string) (*models.Delivery, error) {
	if err := policy.Check(a, policy.Deliveries, policy.List, false); err != nil {
		return nil, err
	}
	d, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(a, policy.Deliveries, policy.Read, a.OwnsPatient(d.PatientID), "delivery"); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DeliveryService) get(ctx context.Context, id string) (*models.Delivery, error) {
	d, err := s.Deliveries.GetByID(ctx, id)
	if err != nil {
		return nil, internalErr("get delivery", err)
	}
	if d == nil {
		return nil, apperrors.NotFound("delivery")
	}
	return d, nil
}

// Create schedules a delivery for an approved drone prescription. The
// prescription is re-checked in the same transaction as the insert.
func (s *DeliveryService) Create(ctx context.Context, a *policy.Actor, in DeliveryInput) (*models.Delivery, error) {
	if err := policy.Check(a, policy.Deliveries, policy.Create, false); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.PrescriptionID) == "" {
		return nil, apperrors.Validation("prescription is required")
	}
	if in.PickupLocationID == nil {
		return nil, apperrors.Validation("pickup_location is required")
	}
	if err := requireGeolocation(ctx, s.Geolocations, *in.PickupLocationID, "pickup_location"); err != nil {
		return nil, err
	}
	if in.DroneID != nil {
		if err := s.requireDrone(ctx, *in.DroneID); err != nil {
			return nil, err
		}
	}
	pickup := s.now()
	if in.PickupTime != nil {
		pickup = in.PickupTime.UTC()
	}
	eta := in.EstimatedDeliveryTime
	if eta == nil && in.DroneID != nil {
		p, err := s.Prescriptions.GetByID(ctx, in.PrescriptionID)
		if err != nil {
			return nil, internalErr("get prescription", err)
		}
		if p != nil && p.DeliveryAddressID != nil {
			if eta, err = s.estimate(ctx, *in.DroneID, *in.PickupLocationID, *p.DeliveryAddressID, pickup); err != nil {
				return nil, err
			}
		}
	}

	d, err := s.Deliveries.Create(ctx, &models.Delivery{
		PrescriptionID:        in.PrescriptionID,
		DroneID:               in.DroneID,
		PickupTime:            pickup,
		PickupLocationID:      *in.PickupLocationID,
		EstimatedDeliveryTime: eta,
	}, func(p *models.Prescription) error {
		return checkDeliverable(p, in.PatientID)
	})
	var ae *apperrors.Error
	switch {
	case errors.As(err, &ae):
		return nil, err
	case db.IsForeignKeyViolation(err):
		return nil, apperrors.Conflict("drone or pickup location was removed meanwhile")
	case err != nil:
		return nil, internalErr("create delivery", err)
	}
	s.record(ctx, d)
	log.Info().Str("delivery_id", d.ID).Str("prescription_id", d.PrescriptionID).Msg("delivery scheduled")
	return d, nil
}

// checkDeliverable vetoes deliveries for prescriptions that are missing,
// unapproved, not meant for drones or lacking an address.
func checkDeliverable(p *models.Prescription, patientID *int64) error {
	if p == nil {
		return apperrors.Validation("prescription does not exist")
	}
	if !p.Approved {
		return apperrors.Precondition("prescription %s is not approved", p.ID)
	}
	if p.DeliveryOption != models.DeliveryOptionDrone {
		return apperrors.Precondition("prescription %s is not set for drone delivery", p.ID)
	}
	if p.DeliveryAddressID == nil {
		return apperrors.Precondition("prescription %s has no delivery address", p.ID)
	}
	if patientID != nil && *patientID != p.AuthorID {
		return apperrors.Validation("patient must be the author of the prescription")
	}
	return nil
}

func (s *DeliveryService) requireDrone(ctx context.Context, id string) error {
	d, err := s.Drones.GetByID(ctx, id)
	if err != nil {
		return internalErr("get drone", err)
	}
	if d == nil {
		return apperrors.Validation("drone %s does not exist", id)
	}
	return nil
}

// estimate predicts arrival at the delivery address: the drone flies to the
// pickup point, waits for the pickup time if early, then flies on. Missing
// points yield no estimate.
func (s *DeliveryService) estimate(ctx context.Context, droneID string, pickupID, addressID int64, pickup time.Time) (*time.Time, error) {
	d, err := s.Drones.GetByID(ctx, droneID)
	if err != nil {
		return nil, internalErr("get drone", err)
	}
	if d == nil {
		return nil, nil
	}
	var pts [3]geo.Point
	for i, id := range []int64{d.CurrentLocationID, pickupID, addressID} {
		g, err := s.Geolocations.GetByID(ctx, id)
		if err != nil {
			return nil, internalErr("get geolocation", err)
		}
		if g == nil {
			return nil, nil
		}
		pts[i] = geo.Point{Lat: g.Latitude, Lng: g.Longitude}
	}
	speed := s.CruiseSpeedMPH
	if speed <= 0 {
		speed = DefaultCruiseSpeedMPH
	}
	start := s.now().Add(geo.FlightDuration(speed, pts[0], pts[1]))
	if start.Before(pickup) {
		start = pickup
	}
	eta := start.Add(geo.FlightDuration(speed, pts[1], pts[2])).Truncate(time.Second)
	return &eta, nil
}

// Update reschedules a delivery and, when Status is given, advances it. Both
// land together or not at all.
func (s *DeliveryService) Update(ctx context.Context, a *policy.Actor, id string, in DeliveryPatch) (*models.Delivery, error) {
	if err := policy.Check(a, policy.Deliveries, policy.Update, false); err != nil {
		return nil, err
	}
	d, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Status != nil && !d.Status.CanTransitionTo(*in.Status) {
		return nil, transitionError(d.Status, *in.Status)
	}
	if in.PickupLocationID != nil {
		if err := requireGeolocation(ctx, s.Geolocations, *in.PickupLocationID, "pickup_location"); err != nil {
			return nil, err
		}
	}
	if in.DroneID != nil && !in.ClearDrone {
		if err := s.requireDrone(ctx, *in.DroneID); err != nil {
			return nil, err
		}
	}

	sched := repository.DeliverySchedule{
		DroneID:          in.DroneID,
		ClearDrone:       in.ClearDrone,
		PickupTime:       in.PickupTime,
		PickupLocationID: in.PickupLocationID,
		ETA:              in.EstimatedDeliveryTime,
		ClearETA:         in.ClearETA,
	}
	reassigned := in.DroneID != nil && !in.ClearDrone && (d.DroneID == nil || *d.DroneID != *in.DroneID)
	if reassigned && in.EstimatedDeliveryTime == nil && !in.ClearETA {
		p, err := s.Prescriptions.GetByID(ctx, d.PrescriptionID)
		if err != nil {
			return nil, internalErr("get prescription", err)
		}
		pickupID, pickup := d.PickupLocationID, d.PickupTime
		if in.PickupLocationID != nil {
			pickupID = *in.PickupLocationID
		}
		if in.PickupTime != nil {
			pickup = *in.PickupTime
		}
		if p != nil && p.DeliveryAddressID != nil {
			if sched.ETA, err = s.estimate(ctx, *in.DroneID, pickupID, *p.DeliveryAddressID, pickup); err != nil {
				return nil, err
			}
		}
	}
	var change *repository.StatusChange
	if in.Status != nil {
		change = &repository.StatusChange{From: d.Status, To: *in.Status}
	}
	if sched == (repository.DeliverySchedule{}) && change == nil {
		return d, nil
	}
	err = s.Deliveries.Apply(ctx, id, sched, change)
	switch {
	case errors.Is(err, repository.ErrStale) && change != nil:
		return nil, apperrors.Conflict("delivery %s changed status concurrently", id)
	case errors.Is(err, repository.ErrStale):
		return nil, apperrors.NotFound("delivery")
	case db.IsForeignKeyViolation(err):
		return nil, apperrors.Conflict("drone or pickup location was removed meanwhile")
	case err != nil:
		return nil, internalErr("update delivery", err)
	}
	if d, err = s.get(ctx, id); err != nil {
		return nil, err
	}
	if change != nil {
		s.record(ctx, d)
		log.Info().Str("delivery_id", id).Str("status", string(d.Status)).Msg("delivery transitioned")
	}
	return d, nil
}

// Advance moves a delivery to status on behalf of staff.
func (s *DeliveryService) Advance(ctx context.Context, a *policy.Actor, id string, to models.DeliveryStatus) (*models.Delivery, error) {
	if err := policy.Check(a, policy.Deliveries, policy.Update, false); err != nil {
		return nil, err
	}
	return s.Transition(ctx, id, to)
}

// Transition moves a delivery one step forward. Anything but the direct
// successor is a validation error; losing a race to another writer is a
// conflict. Callers must have checked permissions.
func (s *DeliveryService) Transition(ctx context.Context, id string, to models.DeliveryStatus) (*models.Delivery, error) {
	d, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Status.CanTransitionTo(to) {
		return nil, transitionError(d.Status, to)
	}
	err = s.Deliveries.TransitionStatus(ctx, id, d.Status, to)
	if errors.Is(err, repository.ErrStale) {
		return nil, apperrors.Conflict("delivery %s changed status concurrently", id)
	}
	if err != nil {
		return nil, internalErr("transition delivery", err)
	}
	d, err = s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.record(ctx, d)
	log.Info().Str("delivery_id", id).Str("status", string(d.Status)).Msg("delivery transitioned")
	return d, nil
}

func transitionError(from, to models.DeliveryStatus) error {
	if !to.Valid() {
		return apperrors.Validation("unknown status %q", to)
	}
	return apperrors.Validation("delivery cannot move from %s to %s", from, to)
}

// record counts the status and publishes it. Publishing is best effort.
func (s *DeliveryService) record(ctx context.Context, d *models.Delivery) {
	s.Metrics.RecordDeliveryStatus(string(d.Status))
	if s.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Events.Publish(ctx, events.DeliveryEvent(d)); err != nil {
		log.Warn().Err(err).Str("delivery_id", d.ID).Str("status", string(d.Status)).Msg("failed to publish delivery event")
	}
}

func (s *DeliveryService) Delete(ctx context.Context, a *policy.Actor, id string) error {
	if err := policy.Check(a, policy.Deliveries, policy.Delete, false); err != nil {
		return err
	}
	if _, err := s.get(ctx, id); err != nil {
		return err
	}
	if err := s.Deliveries.Delete(ctx, id); err != nil {
		return internalErr("delete delivery", err)
	}
	return nil
}
