package httpapi

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"letDrone/internal/apperrors"
	"letDrone/internal/service"
	"letDrone/models"
)

const multipartMemory = 8 << 20

type patientPrescriptionPatchBody struct {
	DeliveryOption  *models.DeliveryOption         `json:"delivery_option"`
	DeliveryAddress nullable[service.AddressInput] `json:"delivery_address"`
}

type reviewBody struct {
	Approved *bool           `json:"approved"`
	Price    *models.Money   `json:"price"`
	GCS      nullable[int64] `json:"gcs"`
	Version  *int64          `json:"version"`
}

func prescriptionQuery(r *http.Request) (service.PrescriptionQuery, error) {
	var q service.PrescriptionQuery
	var err error
	if q.Page, err = page(r); err != nil {
		return q, err
	}
	if q.Approved, err = queryBool(r, "approved"); err != nil {
		return q, err
	}
	if opt := queryString(r, "delivery_option"); opt != nil {
		o := models.DeliveryOption(strings.ToUpper(*opt))
		q.DeliveryOption = &o
	}
	return q, nil
}

func (h *Handler) listOwnPrescriptions(w http.ResponseWriter, r *http.Request) {
	q, err := prescriptionQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Prescriptions.ListOwn(r.Context(), actorFrom(r), q)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) getOwnPrescription(w http.ResponseWriter, r *http.Request) {
	out, err := h.Prescriptions.GetOwn(r.Context(), actorFrom(r), pathKey(r))
	respond(w, r, http.StatusOK, out, err)
}

// submitPrescription reads image, delivery_option and delivery_address from
// a multipart form. Any other form key is ignored.
func (h *Handler) submitPrescription(w http.ResponseWriter, r *http.Request) {
	form, err := h.multipartForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in := service.PatientPrescriptionInput{
		DeliveryOption: models.DeliveryOption(strings.ToUpper(strings.TrimSpace(form.Value.get("delivery_option")))),
	}
	if in.DeliveryAddress, err = formAddress(form.Value.get("delivery_address"), "delivery_address"); err != nil {
		writeError(w, r, err)
		return
	}
	var image io.Reader
	if file, ok := formFile(form.Form, "image"); ok {
		f, err := file.Open()
		if err != nil {
			writeError(w, r, apperrors.Validation("unreadable image upload"))
			return
		}
		defer f.Close()
		image = f
	}
	out, err := h.Prescriptions.Submit(r.Context(), actorFrom(r), in, image)
	respond(w, r, http.StatusCreated, out, err)
}

func (h *Handler) updateOwnPrescription(w http.ResponseWriter, r *http.Request) {
	var body patientPrescriptionPatchBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	in := service.PatientPrescriptionPatch{
		DeliveryOption:  body.DeliveryOption,
		DeliveryAddress: body.DeliveryAddress.Value,
		ClearAddress:    body.DeliveryAddress.cleared(),
	}
	out, err := h.Prescriptions.UpdateOwn(r.Context(), actorFrom(r), pathKey(r), in)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) deleteOwnPrescription(w http.ResponseWriter, r *http.Request) {
	err := h.Prescriptions.DeleteOwn(r.Context(), actorFrom(r), pathKey(r))
	respond(w, r, http.StatusNoContent, nil, err)
}

func (h *Handler) listPrescriptions(w http.ResponseWriter, r *http.Request) {
	q, err := prescriptionQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if q.AuthorID, err = queryInt64(r, "author"); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.Prescriptions.List(r.Context(), actorFrom(r), q)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) getPrescription(w http.ResponseWriter, r *http.Request) {
	out, err := h.Prescriptions.Get(r.Context(), actorFrom(r), pathKey(r))
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) reviewPrescription(w http.ResponseWriter, r *http.Request) {
	var body reviewBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	in := service.PharmacistPrescriptionUpdate{
		Approved: body.Approved,
		Price:    body.Price,
		GCSID:    body.GCS.Value,
		ClearGCS: body.GCS.cleared(),
		Version:  body.Version,
	}
	out, err := h.Prescriptions.Review(r.Context(), actorFrom(r), pathKey(r), in)
	respond(w, r, http.StatusOK, out, err)
}

func (h *Handler) deletePrescription(w http.ResponseWriter, r *http.Request) {
	err := h.Prescriptions.Delete(r.Context(), actorFrom(r), pathKey(r))
	respond(w, r, http.StatusNoContent, nil, err)
}

func (h *Handler) runOCR(w http.ResponseWriter, r *http.Request) {
	out, err := h.Prescriptions.RunOCR(r.Context(), actorFrom(r), pathKey(r))
	respond(w, r, http.StatusOK, out, err)
}

// recognize answers {"text": ...} for an uploaded image without storing it.
func (h *Handler) recognize(w http.ResponseWriter, r *http.Request) {
	form, err := h.multipartForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	file, ok := formFile(form.Form, "image")
	if !ok {
		writeError(w, r, apperrors.Validation("image is required"))
		return
	}
	f, err := file.Open()
	if err != nil {
		writeError(w, r, apperrors.Validation("unreadable image upload"))
		return
	}
	defer f.Close()
	image, err := io.ReadAll(f)
	if err != nil {
		writeError(w, r, apperrors.Validation("unreadable image upload"))
		return
	}
	text, err := h.Prescriptions.Recognize(r.Context(), actorFrom(r), image, file.Filename)
	respond(w, r, http.StatusOK, map[string]string{"text": text}, err)
}

type formValues map[string][]string

func (v formValues) get(key string) string {
	if vs := v[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

type parsedForm struct {
	Form  *multipart.Form
	Value formValues
}

// multipartForm parses a multipart body bounded by MaxUploadBytes plus a
// little room for the other parts.
func (h *Handler) multipartForm(w http.ResponseWriter, r *http.Request) (*parsedForm, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return nil, apperrors.Validation("expected a multipart/form-data body")
	}
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+64<<10)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, apperrors.Validation("image is too large")
		}
		return nil, apperrors.Validation("malformed multipart body")
	}
	return &parsedForm{Form: r.MultipartForm, Value: formValues(r.MultipartForm.Value)}, nil
}

func formFile(form *multipart.Form, key string) (*multipart.FileHeader, bool) {
	if form == nil || len(form.File[key]) == 0 {
		return nil, false
	}
	return form.File[key][0], true
}
