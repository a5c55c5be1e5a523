package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"waiting-system/models"
)

const (
	notifiedKeyPrefix = "notified:"
	notifiedTTL       = 24 * time.Hour
)

// PushSender delivers a deduplicated notification to the user's device.
type PushSender interface {
	Push(ctx context.Context, n models.Notification) error
}

// LogPushSender stands in for the real push gateway.
type LogPushSender struct{}

func (LogPushSender) Push(ctx context.Context, n models.Notification) error {
	slog.Info("push notification",
		"kind", n.Kind, "eventId", n.EventID, "userId", n.UserID, "boothId", n.BoothID)
	return nil
}

// NotificationConsumer drains the push queue. The broker redelivers on
// restarts and nacks, so every event is deduplicated on its id before
// it reaches the sender.
type NotificationConsumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	redis  *redis.Client
	sender PushSender
}

func NewNotificationConsumer(url, exchange, queue string, redisClient *redis.Client, sender PushSender) (*NotificationConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "waiting.*", exchange, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &NotificationConsumer{
		conn:   conn,
		ch:     ch,
		queue:  q.Name,
		redis:  redisClient,
		sender: sender,
	}, nil
}

func (c *NotificationConsumer) Start(ctx context.Context) error {
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	go func() {
		for delivery := range deliveries {
			c.handle(ctx, delivery)
		}
	}()

	return nil
}

func (c *NotificationConsumer) handle(ctx context.Context, delivery amqp.Delivery) {
	var notification models.Notification
	if err := json.Unmarshal(delivery.Body, &notification); err != nil {
		slog.Error("notification decode failed", "error", err)
		_ = delivery.Nack(false, false)
		return
	}

	fresh, err := c.redis.SetNX(ctx, notifiedKeyPrefix+notification.EventID, 1, notifiedTTL).Result()
	if err != nil {
		// Can't prove it's a duplicate; requeue and let the next
		// attempt decide.
		_ = delivery.Nack(false, true)
		return
	}
	if !fresh {
		slog.Debug("duplicate notification dropped", "eventId", notification.EventID)
		_ = delivery.Ack(false)
		return
	}

	switch notification.Kind {
	case models.NotificationCalled, models.NotificationNoShow:
		if err := c.sender.Push(ctx, notification); err != nil {
			slog.Error("push failed", "eventId", notification.EventID, "error", err)
		}
	case models.NotificationPosition:
		// Position updates go over the realtime channel, not push.
	default:
		slog.Warn("unknown notification kind", "kind", notification.Kind)
	}

	_ = delivery.Ack(false)
}

func (c *NotificationConsumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
