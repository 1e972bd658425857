package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"letDrone/internal/auth"
	"letDrone/internal/events"
	"letDrone/internal/metrics"
	"letDrone/internal/oauth"
	"letDrone/internal/policy"
	"letDrone/internal/service"
	"letDrone/internal/storage"
	"letDrone/internal/testutil"
	"letDrone/models"
	"letDrone/repository"
)

const testSecret = "test-secret"

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type stubRecognizer struct{ text string }

func (s stubRecognizer) Recognize(context.Context, []byte, string) (string, error) {
	return s.text, nil
}

// upstream fakes the OAuth2 authorization server and records the last form.
type upstream struct {
	*httptest.Server
	lastForm map[string]string
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("/o/token/", func(w http.ResponseWriter, r *http.Request) {
		u.capture(r)
		if r.PostForm.Get("password") == "wrong" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer"}`))
	})
	mux.HandleFunc("/o/revoke_token/", func(w http.ResponseWriter, r *http.Request) {
		u.capture(r)
		w.WriteHeader(http.StatusOK)
	})
	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) capture(r *http.Request) {
	_ = r.ParseForm()
	u.lastForm = map[string]string{}
	for k := range r.PostForm {
		u.lastForm[k] = r.PostForm.Get(k)
	}
}

type apiFixture struct {
	t        *testing.T
	server   *httptest.Server
	upstream *upstream
	metrics  *metrics.Collector

	users       *repository.UserRepository
	patients    *repository.PatientRepository
	pharmacists *repository.PharmacistRepository
	geos        *repository.GeolocationRepository
	drones      *repository.DroneRepository
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	d := testutil.OpenInMemoryDB(t, t.Name())
	up := newUpstream(t)
	f := &apiFixture{
		t:           t,
		upstream:    up,
		metrics:     metrics.New(),
		users:       repository.NewUserRepository(d),
		patients:    repository.NewPatientRepository(d),
		pharmacists: repository.NewPharmacistRepository(d),
		geos:        repository.NewGeolocationRepository(d),
		drones:      repository.NewDroneRepository(d),
	}
	stations := repository.NewGCSRepository(d)
	prescriptions := repository.NewPrescriptionRepository(d)
	tokens := oauth.NewClient(up.URL+"/o/token/", up.URL+"/o/revoke_token/", "client", "secret", 2*time.Second)

	h := &Handler{
		Accounts: &service.AccountService{Users: f.users, Tokens: tokens, BcryptCost: bcrypt.MinCost},
		Profiles: &service.ProfileService{Users: f.users, Patients: f.patients, Pharmacists: f.pharmacists, Geolocations: f.geos},
		Fleet:    &service.FleetService{Drones: f.drones, Stations: stations, Geolocations: f.geos},
		Prescriptions: &service.PrescriptionService{
			Prescriptions: prescriptions,
			Geolocations:  f.geos,
			Stations:      stations,
			Images:        storage.NewFileStore(t.TempDir(), 1<<20),
			Recognizer:    stubRecognizer{text: "Ibuprofen 200mg"},
			Metrics:       f.metrics,
		},
		Comments: &service.CommentService{Comments: repository.NewCommentRepository(d), Prescriptions: prescriptions},
		Deliveries: &service.DeliveryService{
			Deliveries:     repository.NewDeliveryRepository(d),
			Prescriptions:  prescriptions,
			Drones:         f.drones,
			Geolocations:   f.geos,
			Events:         events.Nop{},
			Metrics:        f.metrics,
			CruiseSpeedMPH: 30,
		},
		Resolver:       policy.NewResolver(f.users, f.patients, f.pharmacists),
		Tokens:         tokens,
		Metrics:        f.metrics,
		DB:             d,
		JWTSecret:      testSecret,
		MaxUploadBytes: 1 << 20,
	}
	f.server = httptest.NewServer(h.Router())
	t.Cleanup(f.server.Close)
	return f
}

// patient creates a patient account and returns its bearer token.
func (f *apiFixture) patient(username string) (string, *models.Patient) {
	f.t.Helper()
	_, p, err := f.users.CreatePatientAccount(context.Background(), &models.User{Username: username})
	require.NoError(f.t, err)
	return testutil.GenerateJWTHS256(f.t, testSecret, username, auth.KindUser), p
}

func (f *apiFixture) pharmacist(username string) string {
	f.t.Helper()
	u, err := f.users.Create(context.Background(), &models.User{Username: username})
	require.NoError(f.t, err)
	_, err = f.pharmacists.Create(context.Background(), &models.Pharmacist{UserID: u.ID})
	require.NoError(f.t, err)
	return testutil.GenerateJWTHS256(f.t, testSecret, username, auth.KindUser)
}

func (f *apiFixture) point(lat, lng float64) int64 {
	f.t.Helper()
	g, err := f.geos.Create(context.Background(), &models.Geolocation{Latitude: lat, Longitude: lng})
	require.NoError(f.t, err)
	return g.ID
}

func (f *apiFixture) drone() string {
	f.t.Helper()
	d, err := f.drones.Create(context.Background(), &models.Drone{Model: "DJI M300", BatteryLevel: 80, PayloadCapacity: 2, CurrentLocationID: f.point(40.0, -75.0)})
	require.NoError(f.t, err)
	return d.ID
}

// do sends a request with an optional JSON body and bearer token.
func (f *apiFixture) do(method, path, token string, body any) *http.Response {
	f.t.Helper()
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(f.t, err)
			rd = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, f.server.URL+path, rd)
	require.NoError(f.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// upload posts a multipart form with an image part and extra fields.
func (f *apiFixture) upload(path, token string, image []byte, fields map[string]string) *http.Response {
	f.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(f.t, mw.WriteField(k, v))
	}
	if image != nil {
		part, err := mw.CreateFormFile("image", "scan.png")
		require.NoError(f.t, err)
		_, err = part.Write(image)
		require.NoError(f.t, err)
	}
	require.NoError(f.t, mw.Close())
	req, err := http.NewRequest(http.MethodPost, f.server.URL+path, &buf)
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func errorType(t *testing.T, resp *http.Response) string {
	t.Helper()
	return decode[errorBody](t, resp).Error.Type
}
