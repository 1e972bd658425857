package events

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"letDrone/models"
)

func sampleEvent() Event {
	drone := "dr-1"
	return Event{
		Type:           "delivery.delivered",
		DeliveryID:     "d1",
		PrescriptionID: "p1",
		PatientID:      7,
		DroneID:        &drone,
		Status:         models.DeliveryStatusDelivered,
		OccurredAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

const sampleJSON = `{"type":"delivery.delivered","delivery_id":"d1","prescription_id":"p1","patient_id":7,"drone_id":"dr-1","status":"DELIVERED","occurred_at":"2024-05-01T12:00:00Z"}`

type fakeChannel struct {
	closed    bool
	failWith  error
	declared  []string
	keys      []string
	published []amqp.Publishing
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	c.declared = append(c.declared, name+":"+kind)
	return nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.failWith != nil {
		// The broker closes a channel on a channel-level error.
		c.closed = true
		return c.failWith
	}
	c.keys = append(c.keys, exchange+"/"+key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) IsClosed() bool { return c.closed }

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestAMQPMessage(t *testing.T) {
	e := sampleEvent()
	msg, err := amqpMessage(e)
	require.NoError(t, err)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "d1:DELIVERED", msg.MessageId)
	assert.True(t, e.OccurredAt.Equal(msg.Timestamp))
	assert.JSONEq(t, sampleJSON, string(msg.Body))
}

func TestAMQPPublisher_ReopensClosedChannel(t *testing.T) {
	var opened []*fakeChannel
	p := newAMQPPublisher("deliveries", func() (amqpChannel, error) {
		ch := &fakeChannel{}
		opened = append(opened, ch)
		return ch, nil
	}, func() error { return nil })
	ctx := context.Background()
	e := sampleEvent()

	require.NoError(t, p.Publish(ctx, e))
	require.Len(t, opened, 1)
	assert.Equal(t, []string{"deliveries:topic"}, opened[0].declared)
	assert.Equal(t, []string{"deliveries/delivery.delivered"}, opened[0].keys)

	opened[0].failWith = errors.New("PRECONDITION_FAILED")
	assert.Error(t, p.Publish(ctx, e))

	require.NoError(t, p.Publish(ctx, e))
	require.Len(t, opened, 2)
	assert.Equal(t, []string{"deliveries:topic"}, opened[1].declared)
	require.Len(t, opened[1].published, 1)
	assert.JSONEq(t, sampleJSON, string(opened[1].published[0].Body))

	require.NoError(t, p.Close())
	assert.True(t, opened[1].closed)
}

func TestAMQPPublisher_RetriesFailedOpen(t *testing.T) {
	down := true
	p := newAMQPPublisher("deliveries", func() (amqpChannel, error) {
		if down {
			return nil, errors.New("connection blocked")
		}
		return &fakeChannel{}, nil
	}, func() error { return nil })

	assert.Error(t, p.Publish(context.Background(), sampleEvent()))
	down = false
	assert.NoError(t, p.Publish(context.Background(), sampleEvent()))
}

type fakeRedis struct {
	channel string
	payload []byte
	err     error
	closed  bool
}

func (r *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	r.channel = channel
	r.payload, _ = message.([]byte)
	return redis.NewIntResult(1, r.err)
}

func (r *fakeRedis) Close() error {
	r.closed = true
	return nil
}

func TestRedisPublisher(t *testing.T) {
	fake := &fakeRedis{}
	p := &RedisPublisher{client: fake, channel: "deliveries"}
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, sampleEvent()))
	assert.Equal(t, "deliveries", fake.channel)
	assert.JSONEq(t, sampleJSON, string(fake.payload))

	fake.err = errors.New("READONLY You can't write against a read only replica.")
	err := p.Publish(ctx, sampleEvent())
	assert.ErrorIs(t, err, fake.err)

	require.NoError(t, p.Close())
	assert.True(t, fake.closed)
}
