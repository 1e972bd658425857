package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"letDrone/models"
)

type capture struct {
	got    []Event
	err    error
	closed bool
}

func (c *capture) Publish(_ context.Context, e Event) error {
	c.got = append(c.got, e)
	return c.err
}

func (c *capture) Close() error {
	c.closed = true
	return nil
}

type tally map[string]int

func (t tally) RecordEvent(name string, err error) {
	if err != nil {
		name += ":error"
	}
	t[name]++
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "delivery.preparing", RoutingKey(models.DeliveryStatusPreparing))
	assert.Equal(t, "delivery.in_flight", RoutingKey(models.DeliveryStatusInFlight))
}

func TestDeliveryEvent(t *testing.T) {
	drone := "d-1"
	e := DeliveryEvent(&models.Delivery{ID: "x", PrescriptionID: "p", PatientID: 3, DroneID: &drone, Status: models.DeliveryStatusDelivered})
	assert.Equal(t, "delivery.delivered", e.Type)
	assert.Equal(t, "x", e.DeliveryID)
	assert.Equal(t, &drone, e.DroneID)
	assert.False(t, e.OccurredAt.IsZero())
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	ok := &capture{}
	boom := errors.New("broker down")
	bad := &capture{err: boom}
	rec := tally{}
	m := NewMulti(rec)
	m.Add("redis", ok)
	m.Add("amqp", bad)
	assert.Equal(t, 2, m.Len())

	err := m.Publish(context.Background(), Event{Type: "delivery.preparing"})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, ok.got, 1)
	assert.Len(t, bad.got, 1)
	assert.Equal(t, tally{"redis": 1, "amqp:error": 1}, rec)

	assert.NoError(t, m.Close())
	assert.True(t, ok.closed)
	assert.True(t, bad.closed)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
	assert.NoError(t, NewMulti(nil).Publish(context.Background(), Event{}))
}
