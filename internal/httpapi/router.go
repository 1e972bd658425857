// Package httpapi is the REST transport. Handlers decode requests, resolve
// the caller and hand off to internal/service; every rule lives there.
package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"letDrone/internal/metrics"
	"letDrone/internal/oauth"
	"letDrone/internal/policy"
	"letDrone/internal/service"
)

// TokenProxy forwards OAuth2 requests to the authorization server.
type TokenProxy interface {
	PasswordGrant(ctx context.Context, username, password string) (*oauth.Response, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth.Response, error)
	Revoke(ctx context.Context, token string) (*oauth.Response, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler carries the services the routes delegate to.
type Handler struct {
	Accounts      *service.AccountService
	Profiles      *service.ProfileService
	Fleet         *service.FleetService
	Prescriptions *service.PrescriptionService
	Comments      *service.CommentService
	Deliveries    *service.DeliveryService

	Resolver  *policy.Resolver
	Tokens    TokenProxy
	Metrics   *metrics.Collector
	DB        Pinger
	JWTSecret string
	// MaxUploadBytes bounds multipart bodies.
	MaxUploadBytes int64
}

// Router builds the mux. Paths answer with or without a trailing slash.
func (h *Handler) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(requestIDMiddleware, h.loggingMiddleware)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errorDetail{Type: "NOT_FOUND", Message: "no such route"}})
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: errorDetail{Type: "METHOD_NOT_ALLOWED", Message: r.Method + " is not allowed here"}})
	})

	handle(router, "/healthz", h.health, "GET")
	if h.Metrics != nil {
		router.Handle("/metrics", h.Metrics.Handler()).Methods("GET")
	}
	handle(router, "/register", h.register, "POST")
	handle(router, "/token", h.token, "POST")
	handle(router, "/token/refresh", h.refreshToken, "POST")
	handle(router, "/token/revoke", h.revokeToken, "POST")

	api := router.PathPrefix("/api/v0").Subrouter()
	api.Use(h.authMiddleware)

	handle(api, "/users", h.listUsers, "GET")
	handle(api, "/users/{id:[0-9]+}", h.getUser, "GET")
	handle(api, "/users/{id:[0-9]+}", h.updateUser, "PATCH", "PUT")
	handle(api, "/users/{id:[0-9]+}", h.deleteUser, "DELETE")

	handle(api, "/patients", h.listPatients, "GET")
	handle(api, "/patients/{id:[0-9]+}", h.getPatient, "GET")
	handle(api, "/patients/{id:[0-9]+}", h.updatePatient, "PATCH", "PUT")
	handle(api, "/patients/{id:[0-9]+}", h.deletePatient, "DELETE")

	handle(api, "/pharmacist", h.listPharmacists, "GET")
	handle(api, "/pharmacist", h.createPharmacist, "POST")
	handle(api, "/pharmacist/{id:[0-9]+}", h.getPharmacist, "GET")
	handle(api, "/pharmacist/{id:[0-9]+}", h.updatePharmacist, "PATCH", "PUT")
	handle(api, "/pharmacist/{id:[0-9]+}", h.deletePharmacist, "DELETE")

	handle(api, "/geolocation", h.listGeolocations, "GET")
	handle(api, "/geolocation", h.createGeolocation, "POST")
	handle(api, "/geolocation/{id:[0-9]+}", h.getGeolocation, "GET")
	handle(api, "/geolocation/{id:[0-9]+}", h.updateGeolocation, "PATCH", "PUT")
	handle(api, "/geolocation/{id:[0-9]+}", h.deleteGeolocation, "DELETE")

	handle(api, "/drones", h.listDrones, "GET")
	handle(api, "/drones", h.createDrone, "POST")
	handle(api, "/drones/{id}", h.getDrone, "GET")
	handle(api, "/drones/{id}", h.updateDrone, "PATCH", "PUT")
	handle(api, "/drones/{id}", h.deleteDrone, "DELETE")

	handle(api, "/gcs", h.listStations, "GET")
	handle(api, "/gcs", h.createStation, "POST")
	handle(api, "/gcs/{id:[0-9]+}", h.getStation, "GET")
	handle(api, "/gcs/{id:[0-9]+}", h.updateStation, "PATCH", "PUT")
	handle(api, "/gcs/{id:[0-9]+}", h.deleteStation, "DELETE")

	handle(api, "/patients_prescriptions", h.listOwnPrescriptions, "GET")
	handle(api, "/patients_prescriptions", h.submitPrescription, "POST")
	handle(api, "/patients_prescriptions/{id}", h.getOwnPrescription, "GET")
	handle(api, "/patients_prescriptions/{id}", h.updateOwnPrescription, "PATCH", "PUT")
	handle(api, "/patients_prescriptions/{id}", h.deleteOwnPrescription, "DELETE")

	handle(api, "/pharmacist_prescriptions", h.listPrescriptions, "GET")
	handle(api, "/pharmacist_prescriptions/{id}", h.getPrescription, "GET")
	handle(api, "/pharmacist_prescriptions/{id}", h.reviewPrescription, "PATCH", "PUT")
	handle(api, "/pharmacist_prescriptions/{id}", h.deletePrescription, "DELETE")
	handle(api, "/pharmacist_prescriptions/{id}/ocr", h.runOCR, "POST")

	handle(api, "/prescriptions/{id}/comments", h.listThread, "GET")
	handle(api, "/prescriptions/{id}/comments", h.createComment, "POST")
	handle(api, "/comments", h.listComments, "GET")
	handle(api, "/comments/{id:[0-9]+}", h.getComment, "GET")
	handle(api, "/comments/{id:[0-9]+}", h.deleteComment, "DELETE")

	handle(api, "/delivery", h.listDeliveries, "GET")
	handle(api, "/delivery", h.createDelivery, "POST")
	handle(api, "/delivery/{id}", h.getDelivery, "GET")
	handle(api, "/delivery/{id}", h.updateDelivery, "PATCH", "PUT")
	handle(api, "/delivery/{id}", h.deleteDelivery, "DELETE")

	handle(api, "/ocr", h.recognize, "POST")

	return router
}

// handle registers path both with and without a trailing slash.
func handle(r *mux.Router, path string, fn http.HandlerFunc, methods ...string) {
	r.HandleFunc(path, fn).Methods(methods...)
	r.HandleFunc(path+"/", fn).Methods(methods...)
}

// routeTemplate is the matched route pattern, used as a low-cardinality
// metrics label.
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unmatched"
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}
	if tpl != "/" {
		tpl = strings.TrimSuffix(tpl, "/")
	}
	return tpl
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		if err := h.DB.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
