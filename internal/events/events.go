// Package events publishes delivery lifecycle events for downstream
// dispatch consumers.
package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"letDrone/models"
)

// Event describes a delivery entering a status.
type Event struct {
	Type           string                `json:"type"`
	DeliveryID     string                `json:"delivery_id"`
	PrescriptionID string                `json:"prescription_id"`
	PatientID      int64                 `json:"patient_id"`
	DroneID        *string               `json:"drone_id,omitempty"`
	Status         models.DeliveryStatus `json:"status"`
	OccurredAt     time.Time             `json:"occurred_at"`
}

// DeliveryEvent builds the event for d's current status.
func DeliveryEvent(d *models.Delivery) Event {
	return Event{
		Type:           RoutingKey(d.Status),
		DeliveryID:     d.ID,
		PrescriptionID: d.PrescriptionID,
		PatientID:      d.PatientID,
		DroneID:        d.DroneID,
		Status:         d.Status,
		OccurredAt:     time.Now().UTC(),
	}
}

// RoutingKey is "delivery.<status>" in lower case, e.g. delivery.in_flight.
func RoutingKey(s models.DeliveryStatus) string {
	return "delivery." + strings.ToLower(string(s))
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder observes each publish attempt, e.g. for metrics.
type Recorder interface {
	RecordEvent(publisher string, err error)
}

// Multi fans an event out to every named publisher and joins their errors.
type Multi struct {
	names    []string
	pubs     []Publisher
	recorder Recorder
}

func NewMulti(recorder Recorder) *Multi {
	return &Multi{recorder: recorder}
}

// Add registers a publisher under name.
func (m *Multi) Add(name string, p Publisher) {
	m.names = append(m.names, name)
	m.pubs = append(m.pubs, p)
}

// Len reports how many publishers are registered.
func (m *Multi) Len() int {
	return len(m.pubs)
}

func (m *Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for i, p := range m.pubs {
		err := p.Publish(ctx, e)
		if m.recorder != nil {
			m.recorder.RecordEvent(m.names[i], err)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
