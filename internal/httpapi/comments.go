package httpapi

import (
	"net/http"

	"letDrone/internal/service"
)

func (h *Handler) listThread(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Comments.ListThread(r.Context(), actorFrom(r), pathKey(r), p)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) createComment(w http.ResponseWriter, r *http.Request) {
	var in service.CommentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Comments.Create(r.Context(), actorFrom(r), pathKey(r), in)
	respond(w, r, http.StatusCreated, out, err)
}

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Comments.List(r.Context(), actorFrom(r), p)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) getComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Comments.Get(r.Context(), actorFrom(r), id)
	respond(w, r, http.StatusOK, out, err)
}

// deleteComment removes the comment and all replies beneath it.
func (h *Handler) deleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_, err = h.Comments.Delete(r.Context(), actorFrom(r), id)
	respond(w, r, http.StatusNoContent, nil, err)
}
