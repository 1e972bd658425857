package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"letDrone/models"
)

func TestRepositories_PropagateDriverErrors(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	ctx := context.Background()
	boom := errors.New("disk I/O error")

	mock.ExpectQuery(`SELECT id, username`).WithArgs(int64(7)).WillReturnError(boom)
	_, err = NewUserRepository(mockDB).GetByID(ctx, 7)
	assert.ErrorIs(t, err, boom)

	mock.ExpectExec(`UPDATE deliveries SET status`).WillReturnError(boom)
	err = NewDeliveryRepository(mockDB).TransitionStatus(ctx, "d1", models.DeliveryStatusPreparing, models.DeliveryStatusInFlight)
	assert.ErrorIs(t, err, boom)

	mock.ExpectExec(`UPDATE deliveries SET status`).WillReturnResult(sqlmock.NewResult(0, 0))
	err = NewDeliveryRepository(mockDB).TransitionStatus(ctx, "d1", models.DeliveryStatusPreparing, models.DeliveryStatusInFlight)
	assert.ErrorIs(t, err, ErrStale)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepository_ApplyRollsBackStaleStatus(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "deliveries" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE deliveries SET status`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	drone := "dr-1"
	err = NewDeliveryRepository(mockDB).Apply(context.Background(), "d1", DeliverySchedule{DroneID: &drone},
		&StatusChange{From: models.DeliveryStatusPreparing, To: models.DeliveryStatusInFlight})
	assert.ErrorIs(t, err, ErrStale)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGeolocationRepository_DeleteMapsForeignKey(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	mock.ExpectExec(`DELETE FROM geolocations`).WithArgs(int64(3)).
		WillReturnError(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey})
	err = NewGeolocationRepository(mockDB).Delete(context.Background(), 3)
	assert.ErrorIs(t, err, ErrInUse)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepository_CreateRollsBackOnInsertError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	boom := errors.New("constraint")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM .prescriptions.`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "image", "author_id", "price_cents", "approved", "content", "gcs_id",
			"delivery_option", "delivery_address_id", "version", "created_at", "updated_at"}).
			AddRow("p1", "img", int64(4), int64(1250), true, "", nil, "DRONE", int64(2), int64(2), now(), now()))
	mock.ExpectExec(`INSERT INTO .deliveries.`).WillReturnError(boom)
	mock.ExpectRollback()

	_, err = NewDeliveryRepository(mockDB).Create(context.Background(), &models.Delivery{PrescriptionID: "p1", PickupLocationID: 1}, nil)
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}
