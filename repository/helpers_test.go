package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"letDrone/internal/testutil"
	"letDrone/models"
)

type fixture struct {
	db            *sql.DB
	users         *UserRepository
	patients      *PatientRepository
	pharmacists   *PharmacistRepository
	geos          *GeolocationRepository
	drones        *DroneRepository
	gcs           *GCSRepository
	comments      *CommentRepository
	prescriptions *PrescriptionRepository
	deliveries    *DeliveryRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d := testutil.OpenInMemoryDB(t, t.Name())
	return &fixture{
		db:            d,
		users:         NewUserRepository(d),
		patients:      NewPatientRepository(d),
		pharmacists:   NewPharmacistRepository(d),
		geos:          NewGeolocationRepository(d),
		drones:        NewDroneRepository(d),
		gcs:           NewGCSRepository(d),
		comments:      NewCommentRepository(d),
		prescriptions: NewPrescriptionRepository(d),
		deliveries:    NewDeliveryRepository(d),
	}
}

func (f *fixture) patient(t *testing.T, username string) (*models.User, *models.Patient) {
	t.Helper()
	u, p, err := f.users.CreatePatientAccount(context.Background(), &models.User{Username: username})
	require.NoError(t, err)
	return u, p
}

func (f *fixture) point(t *testing.T, lat, lng float64) *models.Geolocation {
	t.Helper()
	g, err := f.geos.Create(context.Background(), &models.Geolocation{Latitude: lat, Longitude: lng})
	require.NoError(t, err)
	return g
}

func (f *fixture) drone(t *testing.T) *models.Drone {
	t.Helper()
	loc := f.point(t, 40.0, -74.0)
	d, err := f.drones.Create(context.Background(), &models.Drone{Model: "DJI M300", BatteryLevel: 90, PayloadCapacity: 2.5, CurrentLocationID: loc.ID})
	require.NoError(t, err)
	return d
}

func (f *fixture) prescription(t *testing.T, authorID int64, option models.DeliveryOption, addr *int64) *models.Prescription {
	t.Helper()
	p, err := f.prescriptions.Create(context.Background(), &models.Prescription{
		Image: "prescription_images/x.png", AuthorID: authorID, DeliveryOption: option, DeliveryAddressID: addr,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) approve(t *testing.T, id string, cents models.Money) {
	t.Helper()
	yes := true
	_, err := f.prescriptions.UpdatePharmacistFields(context.Background(), id, PharmacistFields{Approved: &yes, Price: &cents})
	require.NoError(t, err)
}
