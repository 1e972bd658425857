package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"letDrone/internal/apperrors"
	"letDrone/internal/db"
	"letDrone/internal/geo"
	"letDrone/internal/policy"
	"letDrone/models"
	"letDrone/repository"
)

// FleetService manages drones, ground control stations and the shared
// geolocation points they refer to.
type FleetService struct {
	Drones       repository.DroneRepositoryI
	Stations     repository.GCSRepositoryI
	Geolocations repository.GeolocationRepositoryI
}

// GeolocationInput is a point as submitted by clients. Latitude and
// longitude are pointers so that a missing value is told apart from zero.
type GeolocationInput struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Altitude  *float64 `json:"altitude"`
}

func (in GeolocationInput) toModel() (*models.Geolocation, error) {
	if in.Latitude == nil || in.Longitude == nil {
		return nil, apperrors.Validation("latitude and longitude are required")
	}
	g := &models.Geolocation{Latitude: *in.Latitude, Longitude: *in.Longitude, Altitude: in.Altitude}
	if err := validatePoint(g); err != nil {
		return nil, err
	}
	return g, nil
}

// AddressInput names a point by id or by coordinates. In JSON it is either
// a number or an object. A point given by coordinates is stored together
// with the row that refers to it.
type AddressInput struct {
	ID    *int64
	Point *GeolocationInput
}

func (in *AddressInput) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var g GeolocationInput
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&g); err != nil {
			return err
		}
		in.ID, in.Point = nil, &g
		return nil
	}
	var id int64
	if err := json.Unmarshal(b, &id); err != nil {
		return err
	}
	in.ID, in.Point = &id, nil
	return nil
}

func validatePoint(g *models.Geolocation) error {
	if err := (geo.Point{Lat: g.Latitude, Lng: g.Longitude}).Validate(); err != nil {
		return apperrors.Validation("%v", err)
	}
	return nil
}

// ListGeolocations lists every point to staff. Patients only see the points
// their own profile, prescriptions and deliveries refer to.
func (s *FleetService) ListGeolocations(ctx context.Context, a *policy.Actor, page Page) ([]models.Geolocation, error) {
	if err := policy.Check(a, policy.Geolocations, policy.List, false); err != nil {
		return nil, err
	}
	var out []models.Geolocation
	var err error
	if a.IsStaff() {
		out, err = s.Geolocations.List(ctx, page.Limit, page.Offset)
	} else {
		out, err = s.Geolocations.ListForPatient(ctx, a.Patient.ID, page.Limit, page.Offset)
	}
	if err != nil {
		return nil, internalErr("list geolocations", err)
	}
	return out, nil
}

func (s *FleetService) GetGeolocation(ctx context.Context, a *policy.Actor, id int64) (*models.Geolocation, error) {
	owned, err := ownsGeolocation(ctx, s.Geolocations, a, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(a, policy.Geolocations, policy.Read, owned, "geolocation"); err != nil {
		return nil, err
	}
	return s.geolocation(ctx, id)
}

// ownsGeolocation reports whether a patient's own rows use point id. Staff
// own nothing here; their access does not depend on it.
func ownsGeolocation(ctx context.Context, geos repository.GeolocationRepositoryI, a *policy.Actor, id int64) (bool, error) {
	if !a.IsPatient() || a.IsStaff() {
		return false, nil
	}
	owned, err := geos.OwnedByPatient(ctx, id, a.Patient.ID)
	if err != nil {
		return false, internalErr("check geolocation owner", err)
	}
	return owned, nil
}

func (s *FleetService) geolocation(ctx context.Context, id int64) (*models.Geolocation, error) {
	g, err := s.Geolocations.GetByID(ctx, id)
	if err != nil {
		return nil, internalErr("get geolocation", err)
	}
	if g == nil {
		return nil, apperrors.NotFound("geolocation")
	}
	return g, nil
}

func (s *FleetService) CreateGeolocation(ctx context.Context, a *policy.Actor, in GeolocationInput) (*models.Geolocation, error) {
	if err := policy.Check(a, policy.Geolocations, policy.Create, false); err != nil {
		return nil, err
	}
	g, err := in.toModel()
	if err != nil {
		return nil, err
	}
	if g, err = s.Geolocations.Create(ctx, g); err != nil {
		return nil, internalErr("create geolocation", err)
	}
	return g, nil
}

// UpdateGeolocation moves a point in place; every row referring to it moves too.
func (s *FleetService) UpdateGeolocation(ctx context.Context, a *policy.Actor, id int64, in GeolocationInput) (*models.Geolocation, error) {
	if err := policy.Check(a, policy.Geolocations, policy.Update, false); err != nil {
		return nil, err
	}
	g, err := s.geolocation(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Latitude != nil {
		g.Latitude = *in.Latitude
	}
	if in.Longitude != nil {
		g.Longitude = *in.Longitude
	}
	if in.Altitude != nil {
		g.Altitude = in.Altitude
	}
	if err := validatePoint(g); err != nil {
		return nil, err
	}
	if err := s.Geolocations.Update(ctx, g); err != nil {
		return nil, internalErr("update geolocation", err)
	}
	return g, nil
}

func (s *FleetService) DeleteGeolocation(ctx context.Context, a *policy.Actor, id int64) error {
	if err := policy.Check(a, policy.Geolocations, policy.Delete, false); err != nil {
		return err
	}
	if _, err := s.geolocation(ctx, id); err != nil {
		return err
	}
	err := s.Geolocations.Delete(ctx, id)
	if errors.Is(err, repository.ErrInUse) {
		return apperrors.Conflict("geolocation %d is still used by a drone, station or delivery", id)
	}
	if err != nil {
		return internalErr("delete geolocation", err)
	}
	return nil
}

// DroneQuery filters and pages drone listings by id.
type DroneQuery struct {
	ModelContains *string
	MinBattery    *int
	PageSize      int
	AfterID       string
}

func (s *FleetService) ListDrones(ctx context.Context, a *policy.Actor, q DroneQuery) ([]models.Drone, error) {
	if err := policy.Check(a, policy.Drones, policy.List, false); err != nil {
		return nil, err
	}
	out, err := s.Drones.List(ctx, repository.ListDronesParams{
		ModelContains: q.ModelContains,
		MinBattery:    q.MinBattery,
		PageSize:      q.PageSize,
		AfterID:       q.AfterID,
	})
	if err != nil {
		return nil, internalErr("list drones", err)
	}
	return out, nil
}

func (s *FleetService) GetDrone(ctx context.Context, a *policy.Actor, id string) (*models.Drone, error) {
	if err := policy.Check(a, policy.Drones, policy.Read, false); err != nil {
		return nil, err
	}
	return s.drone(ctx, id)
}

func (s *FleetService) drone(ctx context.Context, id string) (*models.Drone, error) {
	d, err := s.Drones.GetByID(ctx, id)
	if err != nil {
		return nil, internalErr("get drone", err)
	}
	if d == nil {
		return nil, apperrors.NotFound("drone")
	}
	return d, nil
}

// DroneInput registers a drone at an existing geolocation.
type DroneInput struct {
	Model             string  `json:"model"`
	BatteryLevel      *int    `json:"battery_level"`
	PayloadCapacity   float64 `json:"payload_capacity"`
	CurrentLocationID int64   `json:"current_location"`
}

func (s *FleetService) CreateDrone(ctx context.Context, a *policy.Actor, in DroneInput) (*models.Drone, error) {
	if err := policy.Check(a, policy.Drones, policy.Create, false); err != nil {
		return nil, err
	}
	d := &models.Drone{
		Model:             strings.TrimSpace(in.Model),
		BatteryLevel:      models.MaxBatteryLevel,
		PayloadCapacity:   in.PayloadCapacity,
		CurrentLocationID: in.CurrentLocationID,
	}
	if in.BatteryLevel != nil {
		d.BatteryLevel = *in.BatteryLevel
	}
	if err := validateDrone(d); err != nil {
		return nil, err
	}
	if err := requireGeolocation(ctx, s.Geolocations, d.CurrentLocationID, "current_location"); err != nil {
		return nil, err
	}
	d, err := s.Drones.Create(ctx, d)
	if err != nil {
		return nil, internalErr("create drone", err)
	}
	log.Info().Str("drone_id", d.ID).Str("model", d.Model).Msg("drone registered")
	return d, nil
}

func validateDrone(d *models.Drone) error {
	if d.Model == "" {
		return apperrors.Validation("model is required")
	}
	if err := validateBattery(d.BatteryLevel); err != nil {
		return err
	}
	if d.PayloadCapacity <= 0 {
		return apperrors.Validation("payload_capacity must be greater than zero")
	}
	return nil
}

func validateBattery(level int) error {
	if level < models.MinBatteryLevel || level > models.MaxBatteryLevel {
		return apperrors.Validation("battery_level must be between %d and %d", models.MinBatteryLevel, models.MaxBatteryLevel)
	}
	return nil
}

// DronePatch changes a drone. Location moves the drone to a fresh point;
// CurrentLocationID points it at an existing one.
type DronePatch struct {
	Model             *string           `json:"model"`
	BatteryLevel      *int              `json:"battery_level"`
	PayloadCapacity   *float64          `json:"payload_capacity"`
	CurrentLocationID *int64            `json:"current_location"`
	Location          *GeolocationInput `json:"location"`
}

func (s *FleetService) UpdateDrone(ctx context.Context, a *policy.Actor, id string, in DronePatch) (*models.Drone, error) {
	if err := policy.Check(a, policy.Drones, policy.Update, false); err != nil {
		return nil, err
	}
	d, err := s.drone(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.CurrentLocationID != nil && in.Location != nil {
		return nil, apperrors.Validation("give either current_location or location, not both")
	}
	if in.Model != nil {
		d.Model = strings.TrimSpace(*in.Model)
	}
	if in.PayloadCapacity != nil {
		d.PayloadCapacity = *in.PayloadCapacity
	}
	if in.BatteryLevel != nil {
		d.BatteryLevel = *in.BatteryLevel
	}
	if err := validateDrone(d); err != nil {
		return nil, err
	}
	c := repository.DroneChanges{LocationID: in.CurrentLocationID}
	if in.Model != nil {
		c.Model = &d.Model
	}
	if in.PayloadCapacity != nil {
		c.PayloadCapacity = &d.PayloadCapacity
	}
	if in.BatteryLevel != nil {
		c.BatteryLevel = &d.BatteryLevel
	}
	if in.Location != nil {
		if c.NewLocation, err = in.Location.toModel(); err != nil {
			return nil, err
		}
	}
	if in.CurrentLocationID != nil {
		if err := requireGeolocation(ctx, s.Geolocations, *in.CurrentLocationID, "current_location"); err != nil {
			return nil, err
		}
	}
	if err := s.applyDrone(ctx, id, c); err != nil {
		return nil, err
	}
	return s.drone(ctx, id)
}

// applyDrone writes all of one drone update or none of it.
func (s *FleetService) applyDrone(ctx context.Context, id string, c repository.DroneChanges) error {
	err := s.Drones.Apply(ctx, id, c)
	switch {
	case errors.Is(err, repository.ErrStale):
		return apperrors.NotFound("drone")
	case db.IsForeignKeyViolation(err) && c.LocationID != nil:
		return apperrors.Validation("current_location: geolocation %d does not exist", *c.LocationID)
	case err != nil:
		return internalErr("update drone", err)
	}
	return nil
}

// DeleteDrone removes a drone. Deliveries it carried keep their rows with
// the drone cleared.
func (s *FleetService) DeleteDrone(ctx context.Context, a *policy.Actor, id string) error {
	if err := policy.Check(a, policy.Drones, policy.Delete, false); err != nil {
		return err
	}
	if _, err := s.drone(ctx, id); err != nil {
		return err
	}
	if err := s.Drones.Delete(ctx, id); err != nil {
		return internalErr("delete drone", err)
	}
	log.Info().Str("drone_id", id).Msg("drone removed")
	return nil
}

// Telemetry is a drone's self-report. Nil fields are not reported.
type Telemetry struct {
	DroneID      string
	BatteryLevel *int
	Position     *geo.Point
	Altitude     *float64
}

// ReportTelemetry records battery and position. The caller is expected to
// have checked that the sender may speak for the drone.
func (s *FleetService) ReportTelemetry(ctx context.Context, t Telemetry) (*models.Drone, error) {
	if strings.TrimSpace(t.DroneID) == "" {
		return nil, apperrors.Validation("drone_id is required")
	}
	if t.BatteryLevel == nil && t.Position == nil {
		return nil, apperrors.Validation("telemetry carries neither battery_level nor position")
	}
	if t.BatteryLevel != nil {
		if err := validateBattery(*t.BatteryLevel); err != nil {
			return nil, err
		}
	}
	var loc *models.Geolocation
	if t.Position != nil {
		loc = &models.Geolocation{Latitude: t.Position.Lat, Longitude: t.Position.Lng, Altitude: t.Altitude}
		if err := validatePoint(loc); err != nil {
			return nil, err
		}
	}
	if err := s.applyDrone(ctx, t.DroneID, repository.DroneChanges{BatteryLevel: t.BatteryLevel, NewLocation: loc}); err != nil {
		return nil, err
	}
	return s.drone(ctx, t.DroneID)
}

func (s *FleetService) ListStations(ctx context.Context, a *policy.Actor, page Page) ([]models.GCS, error) {
	if err := policy.Check(a, policy.Stations, policy.List, false); err != nil {
		return nil, err
	}
	out, err := s.Stations.List(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, internalErr("list stations", err)
	}
	return out, nil
}

func (s *FleetService) GetStation(ctx context.Context, a *policy.Actor, id int64) (*models.GCS, error) {
	if err := policy.Check(a, policy.Stations, policy.Read, false); err != nil {
		return nil, err
	}
	return s.station(ctx, id)
}

func (s *FleetService) station(ctx context.Context, id int64) (*models.GCS, error) {
	g, err := s.Stations.GetByID(ctx, id)
	if err != nil {
		return nil, internalErr("get station", err)
	}
	if g == nil {
		return nil, apperrors.NotFound("gcs")
	}
	return g, nil
}

// GCSInput describes a ground control station.
type GCSInput struct {
	Name              *string `json:"name"`
	Website           *string `json:"website"`
	CurrentLocationID *int64  `json:"current_location"`
}

func (s *FleetService) CreateStation(ctx context.Context, a *policy.Actor, in GCSInput) (*models.GCS, error) {
	if err := policy.Check(a, policy.Stations, policy.Create, false); err != nil {
		return nil, err
	}
	if in.Name == nil || in.Website == nil || in.CurrentLocationID == nil {
		return nil, apperrors.Validation("name, website and current_location are required")
	}
	g := &models.GCS{Name: strings.TrimSpace(*in.Name), Website: strings.TrimSpace(*in.Website), CurrentLocationID: *in.CurrentLocationID}
	if err := validateStation(g); err != nil {
		return nil, err
	}
	if err := requireGeolocation(ctx, s.Geolocations, g.CurrentLocationID, "current_location"); err != nil {
		return nil, err
	}
	g, err := s.Stations.Create(ctx, g)
	if err != nil {
		return nil, internalErr("create station", err)
	}
	return g, nil
}

func (s *FleetService) UpdateStation(ctx context.Context, a *policy.Actor, id int64, in GCSInput) (*models.GCS, error) {
	if err := policy.Check(a, policy.Stations, policy.Update, false); err != nil {
		return nil, err
	}
	g, err := s.station(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		g.Name = strings.TrimSpace(*in.Name)
	}
	if in.Website != nil {
		g.Website = strings.TrimSpace(*in.Website)
	}
	if in.CurrentLocationID != nil {
		if err := requireGeolocation(ctx, s.Geolocations, *in.CurrentLocationID, "current_location"); err != nil {
			return nil, err
		}
		g.CurrentLocationID = *in.CurrentLocationID
	}
	if err := validateStation(g); err != nil {
		return nil, err
	}
	if err := s.Stations.Update(ctx, g); err != nil {
		return nil, internalErr("update station", err)
	}
	return g, nil
}

func validateStation(g *models.GCS) error {
	if g.Name == "" {
		return apperrors.Validation("name is required")
	}
	u, err := url.Parse(g.Website)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.Validation("website must be an absolute http(s) URL")
	}
	return nil
}

func (s *FleetService) DeleteStation(ctx context.Context, a *policy.Actor, id int64) error {
	if err := policy.Check(a, policy.Stations, policy.Delete, false); err != nil {
		return err
	}
	if _, err := s.station(ctx, id); err != nil {
		return err
	}
	if err := s.Stations.Delete(ctx, id); err != nil {
		return internalErr("delete station", err)
	}
	return nil
}
