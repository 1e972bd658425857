package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"letDrone/internal/apperrors"
	"letDrone/models"
)

func TestSubmit_ReviewFieldsTakeDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pat := f.patient(t, "alice")
	addr := f.point(t, 40.7, -74.0)

	p := f.submitDrone(t, pat, addr)
	stored, err := f.prescriptions.GetOwn(ctx, pat, p.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Price)
	assert.False(t, stored.Approved)
	assert.Empty(t, stored.Content)
	assert.Nil(t, stored.GCSID)
	assert.Equal(t, int64(1), stored.Version)
	assert.Equal(t, pat.Patient.ID, stored.AuthorID)
	assert.Equal(t, []int64{}, stored.CommentIDs)

	img, err := f.images.Open(stored.Image)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, img)
}

func TestSubmit_DroneAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("synthesized from home location", func(t *testing.T) {
		pat := f.patientWithHome(t, "home", 40.1, -74.1)
		p, err := f.prescriptions.Submit(ctx, pat, PatientPrescriptionInput{DeliveryOption: models.DeliveryOptionDrone}, pngImage())
		require.NoError(t, err)
		require.NotNil(t, p.DeliveryAddressID)
		assert.Equal(t, *pat.Patient.HomeLocationID, *p.DeliveryAddressID)
	})

	t.Run("missing without home location", func(t *testing.T) {
		pat := f.patient(t, "nohome")
		_, err := f.prescriptions.Submit(ctx, pat, PatientPrescriptionInput{DeliveryOption: models.DeliveryOptionDrone}, pngImage())
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		list, err := f.prescriptions.ListOwn(ctx, pat, PrescriptionQuery{})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("pickup needs no address", func(t *testing.T) {
		pat := f.patient(t, "pickup")
		p, err := f.prescriptions.Submit(ctx, pat, PatientPrescriptionInput{}, pngImage())
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryOptionPickup, p.DeliveryOption)
		assert.Nil(t, p.DeliveryAddressID)
	})

	t.Run("unknown address", func(t *testing.T) {
		pat := f.patient(t, "ghost")
		_, err := f.prescriptions.Submit(ctx, pat, PatientPrescriptionInput{DeliveryOption: models.DeliveryOptionDrone, DeliveryAddress: &AddressInput{ID: ptr(int64(999))}}, pngImage())
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("not an image", func(t *testing.T) {
		pat := f.patient(t, "text")
		_, err := f.prescriptions.Submit(ctx, pat, PatientPrescriptionInput{DeliveryOption: models.DeliveryOptionDrone, DeliveryAddress: newPoint(1, 1)}, strings.NewReader("hello"))
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
}

func TestPrescriptions_PatientScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.patient(t, "a")
	b := f.patient(t, "b")
	addr := f.point(t, 40.7, -74.0)
	pa := f.submitDrone(t, a, addr)
	pb := f.submitDrone(t, b, addr)

	list, err := f.prescriptions.ListOwn(ctx, a, PrescriptionQuery{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, pa.ID, list[0].ID)

	_, err = f.prescriptions.GetOwn(ctx, a, pb.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.prescriptions.UpdateOwn(ctx, a, pb.ID, PatientPrescriptionPatch{DeliveryOption: ptr(models.DeliveryOptionPickup)})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, f.prescriptions.DeleteOwn(ctx, a, pb.ID), apperrors.ErrNotFound)

	staff := f.pharmacist(t, "pharm")
	_, err = f.prescriptions.ListOwn(ctx, staff, PrescriptionQuery{})
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)
	_, err = f.prescriptions.List(ctx, a, PrescriptionQuery{})
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)
	all, err := f.prescriptions.List(ctx, staff, PrescriptionQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPrescriptions_PatientChangesOnlyBeforeApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pat := f.patient(t, "alice")
	staff := f.pharmacist(t, "pharm")
	addr := f.point(t, 40.7, -74.0)
	p := f.submitDrone(t, pat, addr)

	updated, err := f.prescriptions.UpdateOwn(ctx, pat, p.ID, PatientPrescriptionPatch{DeliveryOption: ptr(models.DeliveryOptionPickup), ClearAddress: true})
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryOptionPickup, updated.DeliveryOption)
	assert.Nil(t, updated.DeliveryAddressID)

	f.approve(t, staff, p.ID, "9.99")
	_, err = f.prescriptions.UpdateOwn(ctx, pat, p.ID, PatientPrescriptionPatch{DeliveryOption: ptr(models.DeliveryOptionDrone), DeliveryAddress: newPoint(1, 1)})
	assert.ErrorIs(t, err, apperrors.ErrPrecondition)
	assert.ErrorIs(t, f.prescriptions.DeleteOwn(ctx, pat, p.ID), apperrors.ErrPrecondition)

	stored, err := f.prescriptions.GetOwn(ctx, pat, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryOptionPickup, stored.DeliveryOption)
}

func TestPrescriptions_DeleteOwnRemovesImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pat := f.patient(t, "alice")
	addr := f.point(t, 40.7, -74.0)
	p := f.submitDrone(t, pat, addr)

	require.NoError(t, f.prescriptions.DeleteOwn(ctx, pat, p.ID))
	_, err := f.images.Open(p.Image)
	assert.Error(t, err)
	_, err = f.prescriptions.GetOwn(ctx, pat, p.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pat := f.patient(t, "alice")
	staff := f.pharmacist(t, "pharm")
	addr := f.point(t, 40.7, -74.0)
	p := f.submitDrone(t, pat, addr)

	_, err := f.prescriptions.Review(ctx, staff, p.ID, PharmacistPrescriptionUpdate{Approved: ptr(true)})
	assert.ErrorIs(t, err, apperrors.ErrValidation, "approval without a price")

	_, err = f.prescriptions.Review(ctx, pat, p.ID, PharmacistPrescriptionUpdate{Approved: ptr(true), Price: ptr(models.Money(100))})
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)

	_, err = f.prescriptions.Review(ctx, staff, p.ID, PharmacistPrescriptionUpdate{GCSID: ptr(int64(42))})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	priced, err := f.prescriptions.Review(ctx, staff, p.ID, PharmacistPrescriptionUpdate{Price: ptr(models.Money(1250)), Version: ptr(p.Version)})
	require.NoError(t, err)
	assert.Equal(t, p.Version+1, priced.Version)

	// A second reviewer working from the old version loses.
	_, err = f.prescriptions.Review(ctx, staff, p.ID, PharmacistPrescriptionUpdate{Approved: ptr(true), Version: ptr(p.Version)})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	approved, err := f.prescriptions.Review(ctx, staff, p.ID, PharmacistPrescriptionUpdate{Approved: ptr(true), Version: ptr(priced.Version)})
	require.NoError(t, err)
	assert.True(t, approved.Approved)
	require.NotNil(t, approved.Price)
	assert.Equal(t, "12.50", approved.Price.String())

	_, err = f.prescriptions.Review(ctx, staff, "missing", PharmacistPrescriptionUpdate{Approved: ptr(false)})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRunOCR(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pat := f.patient(t, "alice")
	staff := f.pharmacist(t, "pharm")
	admin := f.admin(t, "root")
	addr := f.point(t, 40.7, -74.0)
	p := f.submitDrone(t, pat, addr)

	_, err := f.prescriptions.RunOCR(ctx, admin, p.ID)
	assert.ErrorIs(t, err, apperrors.ErrAuthorization, "ocr is for pharmacists")

	f.ocr.err = apperrors.BadInput("could not read any text", nil)
	_, err = f.prescriptions.RunOCR(ctx, staff, p.ID)
	assert.ErrorIs(t, err, apperrors.ErrBadInput)
	stored, err := f.prescriptions.Get(ctx, staff, p.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Content)
	assert.Equal(t, p.Version, stored.Version)

	f.ocr.err = nil
	got, err := f.prescriptions.RunOCR(ctx, staff, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Amoxicillin 500mg", got.Content)

	// Content is write-once; a second run does not call the recognizer.
	calls := f.ocr.calls
	f.ocr.text = "something else"
	got, err = f.prescriptions.RunOCR(ctx, staff, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Amoxicillin 500mg", got.Content)
	assert.Equal(t, calls, f.ocr.calls)
}

func TestRecognize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	staff := f.pharmacist(t, "pharm")
	pat := f.patient(t, "alice")

	text, err := f.prescriptions.Recognize(ctx, staff, pngHeader, "rx.png")
	require.NoError(t, err)
	assert.Equal(t, "Amoxicillin 500mg", text)

	_, err = f.prescriptions.Recognize(ctx, pat, pngHeader, "rx.png")
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)

	f.ocr.err = apperrors.Unavailable("ocr service unavailable", nil)
	_, err = f.prescriptions.Recognize(ctx, staff, pngHeader, "rx.png")
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
}

func TestPrescriptions_AddressesStayWithTheirPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.patient(t, "alice")
	bob := f.patientWithHome(t, "bob", 40.7, -74.0)
	bobHome := *bob.Patient.HomeLocationID
	staff := f.pharmacist(t, "pharm")

	_, err := f.fleet.GetGeolocation(ctx, alice, bobHome)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.prescriptions.Submit(ctx, alice, PatientPrescriptionInput{DeliveryOption: models.DeliveryOptionDrone, DeliveryAddress: &AddressInput{ID: &bobHome}}, pngImage())
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = f.profiles.UpdatePatient(ctx, alice, alice.Patient.ID, PatientPatch{HomeLocation: &AddressInput{ID: &bobHome}})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	p, err := f.prescriptions.Submit(ctx, alice, PatientPrescriptionInput{DeliveryOption: models.DeliveryOptionDrone, DeliveryAddress: newPoint(40.8, -73.9)}, pngImage())
	require.NoError(t, err)
	require.NotNil(t, p.DeliveryAddressID)
	g, err := f.fleet.GetGeolocation(ctx, alice, *p.DeliveryAddressID)
	require.NoError(t, err)
	assert.Equal(t, 40.8, g.Latitude)
	_, err = f.fleet.GetGeolocation(ctx, bob, *p.DeliveryAddressID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	again, err := f.prescriptions.Submit(ctx, alice, PatientPrescriptionInput{DeliveryOption: models.DeliveryOptionDrone, DeliveryAddress: &AddressInput{ID: p.DeliveryAddressID}}, pngImage())
	require.NoError(t, err)
	assert.Equal(t, *p.DeliveryAddressID, *again.DeliveryAddressID)

	_, err = f.prescriptions.Submit(ctx, alice, PatientPrescriptionInput{DeliveryOption: models.DeliveryOptionDrone, DeliveryAddress: newPoint(91, 0)}, pngImage())
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = f.prescriptions.Submit(ctx, alice, PatientPrescriptionInput{
		DeliveryOption:  models.DeliveryOptionDrone,
		DeliveryAddress: &AddressInput{ID: p.DeliveryAddressID, Point: &GeolocationInput{Latitude: ptr(1.0), Longitude: ptr(1.0)}},
	}, pngImage())
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	own, err := f.fleet.ListGeolocations(ctx, alice, Page{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, *p.DeliveryAddressID, own[0].ID)
	all, err := f.fleet.ListGeolocations(ctx, staff, Page{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
