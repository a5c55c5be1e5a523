package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/go-redis/redismock/v9"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waiting-system/models"
)

type fakeAcknowledger struct {
	mu      sync.Mutex
	acked   bool
	nacked  bool
	requeue bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = true
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = true
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type recordingSender struct {
	mu     sync.Mutex
	pushed []models.Notification
}

func (s *recordingSender) Push(ctx context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushed = append(s.pushed, n)
	return nil
}

func setupConsumer() (*NotificationConsumer, *recordingSender, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	sender := &recordingSender{}
	consumer := &NotificationConsumer{redis: db, sender: sender}
	return consumer, sender, mock
}

func delivery(t *testing.T, n models.Notification) (amqp.Delivery, *fakeAcknowledger) {
	t.Helper()
	body, err := json.Marshal(n)
	require.NoError(t, err)
	ack := &fakeAcknowledger{}
	return amqp.Delivery{Acknowledger: ack, Body: body}, ack
}

func TestNotificationConsumer_Handle_PushesFreshEvent(t *testing.T) {
	consumer, sender, mock := setupConsumer()
	defer mock.ClearExpect()

	d, ack := delivery(t, models.Notification{
		Kind: models.NotificationCalled, EventID: "call:w1", UserID: "u1", BoothID: "b1",
	})

	mock.ExpectSetNX("notified:call:w1", 1, notifiedTTL).SetVal(true)

	consumer.handle(context.Background(), d)

	assert.True(t, ack.acked)
	require.Len(t, sender.pushed, 1)
	assert.Equal(t, "call:w1", sender.pushed[0].EventID)
}

func TestNotificationConsumer_Handle_DropsDuplicate(t *testing.T) {
	consumer, sender, mock := setupConsumer()
	defer mock.ClearExpect()

	d, ack := delivery(t, models.Notification{
		Kind: models.NotificationCalled, EventID: "call:w1", UserID: "u1",
	})

	mock.ExpectSetNX("notified:call:w1", 1, notifiedTTL).SetVal(false)

	consumer.handle(context.Background(), d)

	assert.True(t, ack.acked)
	assert.Empty(t, sender.pushed)
}

func TestNotificationConsumer_Handle_RequeuesOnDedupFailure(t *testing.T) {
	consumer, sender, mock := setupConsumer()
	defer mock.ClearExpect()

	d, ack := delivery(t, models.Notification{
		Kind: models.NotificationCalled, EventID: "call:w1", UserID: "u1",
	})

	mock.ExpectSetNX("notified:call:w1", 1, notifiedTTL).SetErr(context.DeadlineExceeded)

	consumer.handle(context.Background(), d)

	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)
	assert.Empty(t, sender.pushed)
}

func TestNotificationConsumer_Handle_DropsMalformedPayload(t *testing.T) {
	consumer, sender, mock := setupConsumer()
	defer mock.ClearExpect()

	ack := &fakeAcknowledger{}
	d := amqp.Delivery{Acknowledger: ack, Body: []byte("not json")}

	consumer.handle(context.Background(), d)

	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
	assert.Empty(t, sender.pushed)
}

func TestNotificationConsumer_Handle_PositionEventsSkipPush(t *testing.T) {
	consumer, sender, mock := setupConsumer()
	defer mock.ClearExpect()

	d, ack := delivery(t, models.Notification{
		Kind: models.NotificationPosition, EventID: "pos:b1:u1", UserID: "u1", Position: 3,
	})

	mock.ExpectSetNX("notified:pos:b1:u1", 1, notifiedTTL).SetVal(true)

	consumer.handle(context.Background(), d)

	assert.True(t, ack.acked)
	assert.Empty(t, sender.pushed)
}
