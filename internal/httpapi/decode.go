package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"letDrone/internal/apperrors"
	"letDrone/internal/service"
)

const maxJSONBody = 1 << 20

// decodeJSON reads exactly one JSON object into dst. Fields dst does not
// declare are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperrors.Validation("request body is empty")
		case errors.As(err, &tooBig):
			return apperrors.Validation("request body is too large")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return apperrors.Validation("field %s is not accepted here", field)
		}
		return apperrors.Validation("malformed JSON: %v", err)
	}
	if dec.More() {
		return apperrors.Validation("request body must hold a single JSON object")
	}
	return nil
}

// nullable tells an absent JSON field (Set false) from an explicit null
// (Set true, Value nil).
type nullable[T any] struct {
	Set   bool
	Value *T
}

func (n *nullable[T]) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(b) == "null" {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

func (n nullable[T]) cleared() bool { return n.Set && n.Value == nil }

func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NotFound("resource")
	}
	return id, nil
}

func pathKey(r *http.Request) string {
	return mux.Vars(r)["id"]
}

func queryInt(r *http.Request, key string) (*int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperrors.Validation("%s must be an integer", key)
	}
	return &v, nil
}

func queryInt64(r *http.Request, key string) (*int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, apperrors.Validation("%s must be an integer", key)
	}
	return &v, nil
}

func queryBool(r *http.Request, key string) (*bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperrors.Validation("%s must be true or false", key)
	}
	return &v, nil
}

func queryString(r *http.Request, key string) *string {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil
	}
	return &raw
}

// page reads ?limit=&offset=.
func page(r *http.Request) (service.Page, error) {
	var p service.Page
	limit, err := queryInt(r, "limit")
	if err != nil {
		return p, err
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		return p, err
	}
	if limit != nil {
		if *limit < 0 {
			return p, apperrors.Validation("limit must not be negative")
		}
		p.Limit = *limit
	}
	if offset != nil {
		if *offset < 0 {
			return p, apperrors.Validation("offset must not be negative")
		}
		p.Offset = *offset
	}
	return p, nil
}

func formInt64(value, field string) (*int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, apperrors.Validation("%s must be an integer id", field)
	}
	return &v, nil
}

// formAddress reads an address form field: a geolocation id, or a JSON
// object with latitude, longitude and altitude for a new point.
func formAddress(value, field string) (*service.AddressInput, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if strings.HasPrefix(value, "{") {
		var in service.AddressInput
		if err := json.Unmarshal([]byte(value), &in); err != nil {
			return nil, apperrors.Validation("%s must be a geolocation id or a point", field)
		}
		return &in, nil
	}
	id, err := formInt64(value, field)
	if err != nil {
		return nil, err
	}
	return &service.AddressInput{ID: id}, nil
}
