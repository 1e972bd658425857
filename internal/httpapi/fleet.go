package httpapi

import (
	"net/http"

	"letDrone/internal/service"
)

func (h *Handler) listGeolocations(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Fleet.ListGeolocations(r.Context(), actorFrom(r), p)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) getGeolocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Fleet.GetGeolocation(r.Context(), actorFrom(r), id)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) createGeolocation(w http.ResponseWriter, r *http.Request) {
	var in service.GeolocationInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Fleet.CreateGeolocation(r.Context(), actorFrom(r), in)
	respond(w, r, http.StatusCreated, out, err)
}

func (h *Handler) updateGeolocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in service.GeolocationInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Fleet.UpdateGeolocation(r.Context(), actorFrom(r), id, in)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) deleteGeolocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	err = h.Fleet.DeleteGeolocation(r.Context(), actorFrom(r), id)
	respond(w, r, http.StatusNoContent, nil, err)
}

// listDrones supports ?model=&min_battery= filters and keyset paging with
// ?page_size=&after=.
func (h *Handler) listDrones(w http.ResponseWriter, r *http.Request) {
	minBattery, err := queryInt(r, "min_battery")
	if err != nil {
		writeError(w, r, err)
		return
	}
	size, err := queryInt(r, "page_size")
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := service.DroneQuery{
		ModelContains: queryString(r, "model"),
		MinBattery:    minBattery,
		AfterID:       r.URL.Query().Get("after"),
	}
	if size != nil {
		q.PageSize = *size
	}
	out, err := h.Fleet.ListDrones(r.Context(), actorFrom(r), q)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) getDrone(w http.ResponseWriter, r *http.Request) {
	out, err := h.Fleet.GetDrone(r.Context(), actorFrom(r), pathKey(r))
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) createDrone(w http.ResponseWriter, r *http.Request) {
	var in service.DroneInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Fleet.CreateDrone(r.Context(), actorFrom(r), in)
	respond(w, r, http.StatusCreated, out, err)
}

func (h *Handler) updateDrone(w http.ResponseWriter, r *http.Request) {
	var in service.DronePatch
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Fleet.UpdateDrone(r.Context(), actorFrom(r), pathKey(r), in)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) deleteDrone(w http.ResponseWriter, r *http.Request) {
	err := h.Fleet.DeleteDrone(r.Context(), actorFrom(r), pathKey(r))
	respond(w, r, http.StatusNoContent, nil, err)
}

func (h *Handler) listStations(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Fleet.ListStations(r.Context(), actorFrom(r), p)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) getStation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Fleet.GetStation(r.Context(), actorFrom(r), id)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) createStation(w http.ResponseWriter, r *http.Request) {
	var in service.GCSInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Fleet.CreateStation(r.Context(), actorFrom(r), in)
	respond(w, r, http.StatusCreated, out, err)
}

func (h *Handler) updateStation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in service.GCSInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Fleet.UpdateStation(r.Context(), actorFrom(r), id, in)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) deleteStation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	err = h.Fleet.DeleteStation(r.Context(), actorFrom(r), id)
	respond(w, r, http.StatusNoContent, nil, err)
}
