package httpapi

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"letDrone/internal/apperrors"
	"letDrone/internal/oauth"
	"letDrone/internal/service"
)

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in service.Registration
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.Accounts.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	relay(w, resp)
}

func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	username, password := fields["username"], fields["password"]
	if username == "" || password == "" {
		writeError(w, r, apperrors.Validation("username and password are required"))
		return
	}
	resp, err := h.Tokens.PasswordGrant(r.Context(), username, password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	relay(w, resp)
}

func (h *Handler) refreshToken(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if fields["refresh_token"] == "" {
		writeError(w, r, apperrors.Validation("refresh_token is required"))
		return
	}
	resp, err := h.Tokens.Refresh(r.Context(), fields["refresh_token"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	relay(w, resp)
}

func (h *Handler) revokeToken(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if fields["token"] == "" {
		writeError(w, r, apperrors.Validation("token is required"))
		return
	}
	resp, err := h.Tokens.Revoke(r.Context(), fields["token"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	if resp.OK() {
		writeJSON(w, resp.StatusCode, map[string]string{"message": "token revoked"})
		return
	}
	relay(w, resp)
}

// relay writes an upstream answer unchanged.
func relay(w http.ResponseWriter, resp *oauth.Response) {
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// readFields accepts either a JSON object or a urlencoded form, the two
// shapes OAuth clients send.
func readFields(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	out := map[string]string{}
	if mediaType == "application/json" {
		var raw map[string]any
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&raw); err != nil {
			return nil, apperrors.Validation("malformed JSON: %v", err)
		}
		for k, v := range raw {
			switch v := v.(type) {
			case string:
				out[k] = v
			case nil:
			default:
				return nil, apperrors.Validation("%s must be a string", k)
			}
		}
		return out, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := r.ParseForm(); err != nil {
		return nil, apperrors.Validation("malformed form: %v", err)
	}
	for k := range r.PostForm {
		out[k] = strings.TrimSpace(r.PostForm.Get(k))
	}
	return out, nil
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	users, err := h.Accounts.List(r.Context(), actorFrom(r), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.Accounts.Get(r.Context(), actorFrom(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in service.UserPatch
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.Accounts.Update(r.Context(), actorFrom(r), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Accounts.Delete(r.Context(), actorFrom(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
