package httpapi

import (
	"net/http"

	"letDrone/internal/service"
)

func (h *Handler) listPatients(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Profiles.ListPatients(r.Context(), actorFrom(r), p)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) getPatient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Profiles.GetPatient(r.Context(), actorFrom(r), id)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) updatePatient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in service.PatientPatch
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Profiles.UpdatePatient(r.Context(), actorFrom(r), id, in)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) deletePatient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	err = h.Profiles.DeletePatient(r.Context(), actorFrom(r), id)
	respond(w, r, http.StatusNoContent, nil, err)
}

func (h *Handler) listPharmacists(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Profiles.ListPharmacists(r.Context(), actorFrom(r), p)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) getPharmacist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Profiles.GetPharmacist(r.Context(), actorFrom(r), id)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) createPharmacist(w http.ResponseWriter, r *http.Request) {
	var in service.PharmacistInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Profiles.CreatePharmacist(r.Context(), actorFrom(r), in)
	respond(w, r, http.StatusCreated, out, err)
}

func (h *Handler) updatePharmacist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in service.PharmacistPatch
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Profiles.UpdatePharmacist(r.Context(), actorFrom(r), id, in)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) deletePharmacist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	err = h.Profiles.DeletePharmacist(r.Context(), actorFrom(r), id)
	respond(w, r, http.StatusNoContent, nil, err)
}
