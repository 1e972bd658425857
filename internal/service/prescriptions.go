package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path"

	"github.com/rs/zerolog/log"

	"letDrone/internal/apperrors"
	"letDrone/internal/metrics"
	"letDrone/internal/ocr"
	"letDrone/internal/policy"
	"letDrone/internal/storage"
	"letDrone/models"
	"letDrone/repository"
)

// ImageStore keeps prescription scans.
type ImageStore interface {
	SaveImage(r io.Reader) (string, error)
	Open(rel string) ([]byte, error)
	Remove(rel string) error
}

// PrescriptionService runs the patient submission and pharmacist review
// workflows.
type PrescriptionService struct {
	Prescriptions repository.PrescriptionRepositoryI
	Geolocations  repository.GeolocationRepositoryI
	Stations      repository.GCSRepositoryI
	Images        ImageStore
	Recognizer    ocr.Recognizer
	Metrics       *metrics.Collector
}

// PatientPrescriptionInput is everything a patient may send when submitting.
type PatientPrescriptionInput struct {
	DeliveryOption  models.DeliveryOption `json:"delivery_option"`
	DeliveryAddress *AddressInput         `json:"delivery_address"`
}

// PatientPrescriptionPatch is everything a patient may change afterwards.
// ClearAddress drops the delivery address.
type PatientPrescriptionPatch struct {
	DeliveryOption  *models.DeliveryOption
	DeliveryAddress *AddressInput
	ClearAddress    bool
}

// PharmacistPrescriptionUpdate is a review. With Version set the review
// only applies if nobody changed the prescription since it was read.
type PharmacistPrescriptionUpdate struct {
	Approved *bool         `json:"approved"`
	Price    *models.Money `json:"price"`
	GCSID    *int64        `json:"gcs"`
	ClearGCS bool          `json:"-"`
	Version  *int64        `json:"version"`
}

// PrescriptionQuery filters listings.
type PrescriptionQuery struct {
	AuthorID       *int64
	Approved       *bool
	DeliveryOption *models.DeliveryOption
	Page
}

func (s *PrescriptionService) ListOwn(ctx context.Context, a *policy.Actor, q PrescriptionQuery) ([]models.Prescription, error) {
	if err := policy.Check(a, policy.PatientPrescriptions, policy.List, false); err != nil {
		return nil, err
	}
	q.AuthorID = &a.Patient.ID
	return s.list(ctx, q)
}

func (s *PrescriptionService) list(ctx context.Context, q PrescriptionQuery) ([]models.Prescription, error) {
	out, err := s.Prescriptions.List(ctx, repository.PrescriptionFilter{
		AuthorID:       q.AuthorID,
		Approved:       q.Approved,
		DeliveryOption: q.DeliveryOption,
		Limit:          q.Limit,
		Offset:         q.Offset,
	})
	if err != nil {
		return nil, internalErr("list prescriptions", err)
	}
	return out, nil
}

func (s *PrescriptionService) get(ctx context.Context, id string) (*models.Prescription, error) {
	p, err := s.Prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, internalErr("get prescription", err)
	}
	if p == nil {
		return nil, apperrors.NotFound("prescription")
	}
	return p, nil
}

// own loads a prescription and checks it belongs to the calling patient.
func (s *PrescriptionService) own(ctx context.Context, a *policy.Actor, id string, action policy.Action) (*models.Prescription, error) {
	if err := policy.Check(a, policy.PatientPrescriptions, action, true); err != nil {
		return nil, err
	}
	p, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(a, policy.PatientPrescriptions, action, a.OwnsPatient(p.AuthorID), "prescription"); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PrescriptionService) GetOwn(ctx context.Context, a *policy.Actor, id string) (*models.Prescription, error) {
	return s.own(ctx, a, id, policy.Read)
}

// Submit stores the scan and creates the prescription. Review fields take
// their defaults whatever the client sent.
func (s *PrescriptionService) Submit(ctx context.Context, a *policy.Actor, in PatientPrescriptionInput, image io.Reader) (*models.Prescription, error) {
	if err := policy.Check(a, policy.PatientPrescriptions, policy.Create, false); err != nil {
		return nil, err
	}
	if in.DeliveryOption == "" {
		in.DeliveryOption = models.DeliveryOptionPickup
	}
	addr, point, err := resolveAddress(ctx, s.Geolocations, a.Patient.ID, in.DeliveryAddress, "delivery_address")
	if err != nil {
		return nil, err
	}
	if addr, err = deliveryAddress(a.Patient, in.DeliveryOption, addr, point); err != nil {
		return nil, err
	}
	if image == nil {
		return nil, apperrors.Validation("image is required")
	}
	rel, err := s.Images.SaveImage(image)
	if err != nil {
		return nil, imageError(err)
	}
	p, err := s.Prescriptions.CreateWithAddress(ctx, &models.Prescription{
		Image:             rel,
		AuthorID:          a.Patient.ID,
		DeliveryOption:    in.DeliveryOption,
		DeliveryAddressID: addr,
	}, point)
	if err != nil {
		if rmErr := s.Images.Remove(rel); rmErr != nil {
			log.Warn().Err(rmErr).Str("image", rel).Msg("failed to remove orphaned image")
		}
		return nil, internalErr("create prescription", err)
	}
	log.Info().Str("prescription_id", p.ID).Int64("patient_id", p.AuthorID).Str("delivery_option", string(p.DeliveryOption)).Msg("prescription submitted")
	return p, nil
}

// deliveryAddress validates the option and address pair. A drone delivery
// with neither an address id nor a new point goes to the patient's home
// location.
func deliveryAddress(patient *models.Patient, option models.DeliveryOption, addr *int64, point *models.Geolocation) (*int64, error) {
	if !option.Valid() {
		return nil, apperrors.Validation("delivery_option must be %s or %s", models.DeliveryOptionPickup, models.DeliveryOptionDrone)
	}
	if addr != nil || point != nil {
		return addr, nil
	}
	if option == models.DeliveryOptionDrone {
		if patient.HomeLocationID == nil {
			return nil, apperrors.Validation("delivery_address is required for drone delivery when no home location is set")
		}
		home := *patient.HomeLocationID
		return &home, nil
	}
	return nil, nil
}

func imageError(err error) error {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return apperrors.Validation("image is too large")
	case errors.Is(err, storage.ErrNotAnImage):
		return apperrors.Validation("upload a valid image")
	}
	return internalErr("save image", err)
}

// UpdateOwn changes the delivery choice while the prescription is not yet approved.
func (s *PrescriptionService) UpdateOwn(ctx context.Context, a *policy.Actor, id string, in PatientPrescriptionPatch) (*models.Prescription, error) {
	p, err := s.own(ctx, a, id, policy.Update)
	if err != nil {
		return nil, err
	}
	if p.Approved {
		return nil, apperrors.Precondition("approved prescriptions can no longer be changed")
	}
	option := p.DeliveryOption
	if in.DeliveryOption != nil {
		option = *in.DeliveryOption
	}
	addr := p.DeliveryAddressID
	if in.ClearAddress {
		addr = nil
	}
	newAddr, point, err := resolveAddress(ctx, s.Geolocations, a.Patient.ID, in.DeliveryAddress, "delivery_address")
	if err != nil {
		return nil, err
	}
	if newAddr != nil || point != nil {
		addr = newAddr
	}
	if addr, err = deliveryAddress(a.Patient, option, addr, point); err != nil {
		return nil, err
	}
	err = s.Prescriptions.UpdatePatientFields(ctx, id, a.Patient.ID, repository.PatientFields{DeliveryOption: option, DeliveryAddressID: addr, NewAddress: point})
	if errors.Is(err, repository.ErrStale) {
		return nil, apperrors.Conflict("prescription was approved or removed meanwhile")
	}
	if err != nil {
		return nil, internalErr("update prescription", err)
	}
	return s.get(ctx, id)
}

// DeleteOwn withdraws a prescription that has not been approved yet.
func (s *PrescriptionService) DeleteOwn(ctx context.Context, a *policy.Actor, id string) error {
	p, err := s.own(ctx, a, id, policy.Delete)
	if err != nil {
		return err
	}
	if p.Approved {
		return apperrors.Precondition("approved prescriptions can no longer be withdrawn")
	}
	err = s.Prescriptions.DeleteUnapproved(ctx, id, a.Patient.ID)
	if errors.Is(err, repository.ErrStale) {
		return apperrors.Conflict("prescription was approved or removed meanwhile")
	}
	if err != nil {
		return internalErr("delete prescription", err)
	}
	s.removeImage(p.Image)
	return nil
}

func (s *PrescriptionService) removeImage(rel string) {
	if rel == "" {
		return
	}
	if err := s.Images.Remove(rel); err != nil {
		log.Warn().Err(err).Str("image", rel).Msg("failed to remove prescription image")
	}
}

func (s *PrescriptionService) List(ctx context.Context, a *policy.Actor, q PrescriptionQuery) ([]models.Prescription, error) {
	if err := policy.Check(a, policy.PharmacistPrescriptions, policy.List, false); err != nil {
		return nil, err
	}
	return s.list(ctx, q)
}

func (s *PrescriptionService) Get(ctx context.Context, a *policy.Actor, id string) (*models.Prescription, error) {
	if err := policy.Check(a, policy.PharmacistPrescriptions, policy.Read, false); err != nil {
		return nil, err
	}
	return s.get(ctx, id)
}

// Review applies a pharmacist's approval, price and station choice.
func (s *PrescriptionService) Review(ctx context.Context, a *policy.Actor, id string, in PharmacistPrescriptionUpdate) (*models.Prescription, error) {
	if err := policy.Check(a, policy.PharmacistPrescriptions, policy.Update, false); err != nil {
		return nil, err
	}
	if in.Price != nil && (*in.Price < 0 || *in.Price > models.MaxMoney) {
		return nil, apperrors.Validation("price must be between 0.00 and %s", models.MaxMoney)
	}
	if in.GCSID != nil && !in.ClearGCS {
		g, err := s.Stations.GetByID(ctx, *in.GCSID)
		if err != nil {
			return nil, internalErr("get station", err)
		}
		if g == nil {
			return nil, apperrors.Validation("gcs: station %d does not exist", *in.GCSID)
		}
	}
	p, err := s.Prescriptions.UpdatePharmacistFields(ctx, id, repository.PharmacistFields{
		Approved: in.Approved,
		Price:    in.Price,
		GCSID:    in.GCSID,
		ClearGCS: in.ClearGCS,
		Version:  in.Version,
	})
	if errors.Is(err, repository.ErrStale) {
		return nil, s.reviewMiss(ctx, id, in)
	}
	if err != nil {
		return nil, internalErr("review prescription", err)
	}
	if p == nil {
		return nil, apperrors.NotFound("prescription")
	}
	ev := log.Info().Str("prescription_id", p.ID).Int64("pharmacist_user_id", a.User.ID).Int64("version", p.Version)
	if in.Approved != nil && *in.Approved {
		ev.Stringer("price", p.Price).Msg("prescription approved")
	} else {
		ev.Msg("prescription reviewed")
	}
	return p, nil
}

// reviewMiss explains why a conditional review matched no row.
func (s *PrescriptionService) reviewMiss(ctx context.Context, id string, in PharmacistPrescriptionUpdate) error {
	cur, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if in.Version != nil && cur.Version != *in.Version {
		return apperrors.Conflict("prescription was modified (version %d, expected %d); reload and retry", cur.Version, *in.Version)
	}
	if in.Approved != nil && *in.Approved && in.Price == nil && cur.Price == nil {
		return apperrors.Validation("a price is required to approve a prescription")
	}
	return apperrors.Conflict("prescription was modified concurrently; reload and retry")
}

func (s *PrescriptionService) Delete(ctx context.Context, a *policy.Actor, id string) error {
	if err := policy.Check(a, policy.PharmacistPrescriptions, policy.Delete, false); err != nil {
		return err
	}
	p, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Prescriptions.Delete(ctx, id); err != nil {
		return internalErr("delete prescription", err)
	}
	s.removeImage(p.Image)
	return nil
}

// RunOCR reads the stored scan and fills in content if it is still empty.
// A recognizer failure leaves the prescription untouched.
func (s *PrescriptionService) RunOCR(ctx context.Context, a *policy.Actor, id string) (*models.Prescription, error) {
	if err := policy.Check(a, policy.OCR, policy.Create, false); err != nil {
		return nil, err
	}
	p, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Content != "" {
		return p, nil
	}
	img, err := s.Images.Open(p.Image)
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, storage.ErrInvalidPath) {
		return nil, apperrors.Precondition("prescription %s has no readable image", id)
	}
	if err != nil {
		return nil, internalErr("read image", err)
	}
	text, err := s.recognize(ctx, img, path.Base(p.Image))
	if err != nil {
		return nil, err
	}
	written, err := s.Prescriptions.SetContentOnce(ctx, id, text)
	if err != nil {
		return nil, internalErr("store content", err)
	}
	if written {
		log.Info().Str("prescription_id", id).Int("chars", len(text)).Msg("prescription content recognized")
	}
	return s.get(ctx, id)
}

// Recognize runs OCR on an uploaded image without storing anything.
func (s *PrescriptionService) Recognize(ctx context.Context, a *policy.Actor, image []byte, filename string) (string, error) {
	if err := policy.Check(a, policy.OCR, policy.Create, false); err != nil {
		return "", err
	}
	return s.recognize(ctx, image, filename)
}

func (s *PrescriptionService) recognize(ctx context.Context, image []byte, filename string) (string, error) {
	text, err := s.Recognizer.Recognize(ctx, image, filename)
	if err != nil {
		s.Metrics.RecordOCR(string(apperrors.KindOf(err)))
		log.Warn().Err(err).Str("filename", filename).Msg("ocr failed")
		return "", err
	}
	s.Metrics.RecordOCR("ok")
	return text, nil
}
