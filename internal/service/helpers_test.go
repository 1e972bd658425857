package service

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"letDrone/internal/events"
	"letDrone/internal/metrics"
	"letDrone/internal/oauth"
	"letDrone/internal/policy"
	"letDrone/internal/storage"
	"letDrone/internal/testutil"
	"letDrone/models"
	"letDrone/repository"
)

// pngHeader is enough for content sniffing to call it a PNG.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func pngImage() io.Reader { return bytes.NewReader(pngHeader) }

type fakeRecognizer struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (r *fakeRecognizer) Recognize(_ context.Context, image []byte, _ string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if len(image) == 0 {
		panic("empty image")
	}
	return r.text, r.err
}

type fakeTokens struct {
	username, password string
}

func (f *fakeTokens) PasswordGrant(_ context.Context, username, password string) (*oauth.Response, error) {
	f.username, f.password = username, password
	return &oauth.Response{StatusCode: 200, ContentType: "application/json", Body: []byte(`{"access_token":"abc"}`)}, nil
}

type capturePublisher struct {
	mu  sync.Mutex
	got []events.Event
}

func (c *capturePublisher) Publish(_ context.Context, e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, e)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func (c *capturePublisher) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.got))
	for i, e := range c.got {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	users         *repository.UserRepository
	patients      *repository.PatientRepository
	pharmacists   *repository.PharmacistRepository
	geos          *repository.GeolocationRepository
	drones        *repository.DroneRepository
	stations      *repository.GCSRepository
	comments      *repository.CommentRepository
	prescriptionR *repository.PrescriptionRepository
	deliveryR     *repository.DeliveryRepository

	ocr     *fakeRecognizer
	tokens  *fakeTokens
	events  *capturePublisher
	metrics *metrics.Collector
	images  *storage.FileStore

	accounts      *AccountService
	profiles      *ProfileService
	fleet         *FleetService
	prescriptions *PrescriptionService
	threads       *CommentService
	deliveries    *DeliveryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d := testutil.OpenInMemoryDB(t, t.Name())
	f := &fixture{
		users:         repository.NewUserRepository(d),
		patients:      repository.NewPatientRepository(d),
		pharmacists:   repository.NewPharmacistRepository(d),
		geos:          repository.NewGeolocationRepository(d),
		drones:        repository.NewDroneRepository(d),
		stations:      repository.NewGCSRepository(d),
		comments:      repository.NewCommentRepository(d),
		prescriptionR: repository.NewPrescriptionRepository(d),
		deliveryR:     repository.NewDeliveryRepository(d),
		ocr:           &fakeRecognizer{text: "Amoxicillin 500mg"},
		tokens:        &fakeTokens{},
		events:        &capturePublisher{},
		metrics:       metrics.New(),
		images:        storage.NewFileStore(t.TempDir(), 1<<20),
	}
	f.accounts = &AccountService{Users: f.users, Tokens: f.tokens, BcryptCost: bcrypt.MinCost}
	f.profiles = &ProfileService{Users: f.users, Patients: f.patients, Pharmacists: f.pharmacists, Geolocations: f.geos}
	f.fleet = &FleetService{Drones: f.drones, Stations: f.stations, Geolocations: f.geos}
	f.prescriptions = &PrescriptionService{
		Prescriptions: f.prescriptionR,
		Geolocations:  f.geos,
		Stations:      f.stations,
		Images:        f.images,
		Recognizer:    f.ocr,
		Metrics:       f.metrics,
	}
	f.threads = &CommentService{Comments: f.comments, Prescriptions: f.prescriptionR}
	f.deliveries = &DeliveryService{
		Deliveries:     f.deliveryR,
		Prescriptions:  f.prescriptionR,
		Drones:         f.drones,
		Geolocations:   f.geos,
		Events:         f.events,
		Metrics:        f.metrics,
		CruiseSpeedMPH: 30,
	}
	return f
}

func (f *fixture) patient(t *testing.T, username string) *policy.Actor {
	t.Helper()
	u, p, err := f.users.CreatePatientAccount(context.Background(), &models.User{Username: username})
	require.NoError(t, err)
	return &policy.Actor{User: u, Patient: p}
}

// patientWithHome gives the patient a home location at lat, lng.
func (f *fixture) patientWithHome(t *testing.T, username string, lat, lng float64) *policy.Actor {
	t.Helper()
	a := f.patient(t, username)
	home := f.point(t, lat, lng)
	a.Patient.HomeLocationID = &home.ID
	require.NoError(t, f.patients.Update(context.Background(), a.Patient))
	return a
}

func (f *fixture) pharmacist(t *testing.T, username string) *policy.Actor {
	t.Helper()
	u, err := f.users.Create(context.Background(), &models.User{Username: username})
	require.NoError(t, err)
	p, err := f.pharmacists.Create(context.Background(), &models.Pharmacist{UserID: u.ID})
	require.NoError(t, err)
	return &policy.Actor{User: u, Pharmacist: p}
}

func (f *fixture) admin(t *testing.T, username string) *policy.Actor {
	t.Helper()
	u, err := f.users.Create(context.Background(), &models.User{Username: username, IsStaff: true})
	require.NoError(t, err)
	return &policy.Actor{User: u}
}

func (f *fixture) point(t *testing.T, lat, lng float64) *models.Geolocation {
	t.Helper()
	g, err := f.geos.Create(context.Background(), &models.Geolocation{Latitude: lat, Longitude: lng})
	require.NoError(t, err)
	return g
}

func (f *fixture) drone(t *testing.T, lat, lng float64) *models.Drone {
	t.Helper()
	loc := f.point(t, lat, lng)
	d, err := f.drones.Create(context.Background(), &models.Drone{Model: "DJI M300", BatteryLevel: 90, PayloadCapacity: 2.5, CurrentLocationID: loc.ID})
	require.NoError(t, err)
	return d
}

// submitDrone submits a drone prescription as the patient, delivered to a
// new point at addr's coordinates.
func (f *fixture) submitDrone(t *testing.T, a *policy.Actor, addr *models.Geolocation) *models.Prescription {
	t.Helper()
	p, err := f.prescriptions.Submit(context.Background(), a, PatientPrescriptionInput{
		DeliveryOption:  models.DeliveryOptionDrone,
		DeliveryAddress: newPoint(addr.Latitude, addr.Longitude),
	}, pngImage())
	require.NoError(t, err)
	return p
}

func (f *fixture) approve(t *testing.T, staff *policy.Actor, id string, price string) *models.Prescription {
	t.Helper()
	m, err := models.ParseMoney(price)
	require.NoError(t, err)
	yes := true
	p, err := f.prescriptions.Review(context.Background(), staff, id, PharmacistPrescriptionUpdate{Approved: &yes, Price: &m})
	require.NoError(t, err)
	return p
}

func ptr[T any](v T) *T { return &v }

func newPoint(lat, lng float64) *AddressInput {
	return &AddressInput{Point: &GeolocationInput{Latitude: &lat, Longitude: &lng}}
}
