package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"letDrone/internal/db"
	"letDrone/models"
)

func TestDroneRepository_CRUD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := f.drone(t)
	require.NotEmpty(t, d.ID)

	got, err := f.drones.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "DJI M300", got.Model)
	assert.Equal(t, 90, got.BatteryLevel)

	level, model, payload := 55, "DJI M350", 3.0
	require.NoError(t, f.drones.Apply(ctx, d.ID, DroneChanges{BatteryLevel: &level, Model: &model, PayloadCapacity: &payload}))
	got, err = f.drones.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 55, got.BatteryLevel)
	assert.Equal(t, "DJI M350", got.Model)
	assert.Equal(t, 3.0, got.PayloadCapacity)

	// A rejected column takes the whole update down, new point included.
	over, renamed := 101, "Broken"
	err = f.drones.Apply(ctx, d.ID, DroneChanges{BatteryLevel: &over, Model: &renamed, NewLocation: &models.Geolocation{Latitude: 1, Longitude: 1}})
	require.Error(t, err)
	assert.True(t, db.IsCheckViolation(err))
	got, err = f.drones.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "DJI M350", got.Model)
	assert.Equal(t, d.CurrentLocationID, got.CurrentLocationID)
	points, err := f.geos.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, points, 1)

	require.NoError(t, f.drones.Delete(ctx, d.ID))
	got, err = f.drones.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDroneRepository_RelocateKeepsSharedPoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := f.drone(t)
	other, err := f.gcs.Create(ctx, &models.GCS{Name: "North", Website: "https://north.example", CurrentLocationID: d.CurrentLocationID})
	require.NoError(t, err)

	loc := &models.Geolocation{Latitude: 41, Longitude: -75}
	require.NoError(t, f.drones.Apply(ctx, d.ID, DroneChanges{NewLocation: loc}))
	assert.NotEqual(t, d.CurrentLocationID, loc.ID)

	got, err := f.drones.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, loc.ID, got.CurrentLocationID)

	station, err := f.gcs.GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, d.CurrentLocationID, station.CurrentLocationID)
	old, err := f.geos.GetByID(ctx, d.CurrentLocationID)
	require.NoError(t, err)
	assert.Equal(t, 40.0, old.Latitude)

	err = f.drones.Apply(ctx, "no-such-drone", DroneChanges{NewLocation: &models.Geolocation{Latitude: 1, Longitude: 1}})
	assert.ErrorIs(t, err, ErrStale)
	points, err := f.geos.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, points, 2)
}

func TestDroneRepository_DeleteClearsDeliveries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, pat := f.patient(t, "alice")
	addr := f.point(t, 40.7, -73.9)
	p := f.prescription(t, pat.ID, models.DeliveryOptionDrone, &addr.ID)
	f.approve(t, p.ID, 1250)
	d := f.drone(t)
	del, err := f.deliveries.Create(ctx, &models.Delivery{PrescriptionID: p.ID, DroneID: &d.ID, PickupLocationID: d.CurrentLocationID, PickupTime: time.Now()}, nil)
	require.NoError(t, err)

	require.NoError(t, f.drones.Delete(ctx, d.ID))
	got, err := f.deliveries.GetByID(ctx, del.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.DroneID)
}

func TestDroneRepository_ListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	loc := f.point(t, 1, 1)
	for i, m := range []string{"Skydio X2", "DJI M300", "DJI Mini"} {
		_, err := f.drones.Create(ctx, &models.Drone{Model: m, BatteryLevel: 30 * (i + 1), PayloadCapacity: 1, CurrentLocationID: loc.ID})
		require.NoError(t, err)
	}

	dji := "dji"
	all, err := f.drones.List(ctx, ListDronesParams{ModelContains: &dji})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	floor := 60
	charged, err := f.drones.List(ctx, ListDronesParams{MinBattery: &floor})
	require.NoError(t, err)
	assert.Len(t, charged, 2)

	page, err := f.drones.List(ctx, ListDronesParams{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	rest, err := f.drones.List(ctx, ListDronesParams{PageSize: 2, AfterID: page[1].ID})
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}
