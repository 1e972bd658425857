package httpapi

import (
	"net/http"
	"strings"
	"time"

	"letDrone/internal/apperrors"
	"letDrone/internal/service"
	"letDrone/models"
)

type deliveryCreateBody struct {
	service.DeliveryInput
	Status *models.DeliveryStatus `json:"status"`
}

type deliveryPatchBody struct {
	Drone                 nullable[string]       `json:"drone"`
	PickupTime            *time.Time             `json:"pickup_time"`
	PickupLocation        *int64                 `json:"pickup_location"`
	EstimatedDeliveryTime nullable[time.Time]    `json:"estimated_delivery_time"`
	Status                *models.DeliveryStatus `json:"status"`
}

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := service.DeliveryQuery{DroneID: queryString(r, "drone"), Page: p}
	if s := queryString(r, "status"); s != nil {
		status := models.DeliveryStatus(strings.ToUpper(*s))
		q.Status = &status
	}
	out, err := h.Deliveries.List(r.Context(), actorFrom(r), q)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	out, err := h.Deliveries.Get(r.Context(), actorFrom(r), pathKey(r))
	respond(w, r, http.StatusOK, out, err)
}

// createDelivery accepts status only as PREPARING; deliveries always start there.
func (h *Handler) createDelivery(w http.ResponseWriter, r *http.Request) {
	var body deliveryCreateBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.Status != nil && *body.Status != models.DeliveryStatusPreparing {
		writeError(w, r, apperrors.Validation("new deliveries start in %s", models.DeliveryStatusPreparing))
		return
	}
	out, err := h.Deliveries.Create(r.Context(), actorFrom(r), body.DeliveryInput)
	respond(w, r, http.StatusCreated, out, err)
}

func (h *Handler) updateDelivery(w http.ResponseWriter, r *http.Request) {
	var body deliveryPatchBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	in := service.DeliveryPatch{
		DroneID:               body.Drone.Value,
		ClearDrone:            body.Drone.cleared(),
		PickupTime:            body.PickupTime,
		PickupLocationID:      body.PickupLocation,
		EstimatedDeliveryTime: body.EstimatedDeliveryTime.Value,
		ClearETA:              body.EstimatedDeliveryTime.cleared(),
		Status:                body.Status,
	}
	out, err := h.Deliveries.Update(r.Context(), actorFrom(r), pathKey(r), in)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) deleteDelivery(w http.ResponseWriter, r *http.Request) {
	err := h.Deliveries.Delete(r.Context(), actorFrom(r), pathKey(r))
	respond(w, r, http.StatusNoContent, nil, err)
}
