package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"waiting-system/models"
	"waiting-system/utils"
)

// Notifier dispatches push events. Delivery is fire-and-forget: a lost
// notification never fails the operation that produced it, and the
// stable event id lets consumers drop duplicates.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// RabbitNotifier publishes notifications to a topic exchange, guarded
// by a circuit breaker so a dead broker cannot stall the call path.
type RabbitNotifier struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	breaker  *utils.CircuitBreaker
}

func NewRabbitNotifier(url, exchange string) (*RabbitNotifier, error) {
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
	return &RabbitNotifier{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		breaker:  utils.NewCircuitBreaker("notifier"),
	}, nil
}

func (n *RabbitNotifier) Notify(ctx context.Context, notification models.Notification) {
	body, err := json.Marshal(notification)
	if err != nil {
		slog.Error("notification marshal failed", "eventId", notification.EventID, "error", err)
		return
	}

	err = n.breaker.Do(func() error {
		return n.ch.PublishWithContext(ctx, n.exchange, notification.RoutingKey(), false, false, amqp.Publishing{
			ContentType: "application/json",
			MessageId:   notification.EventID,
			Body:        body,
		})
	})
	if err != nil {
		slog.Error("notification publish failed",
			"eventId", notification.EventID, "kind", notification.Kind, "error", err)
	}
}

func (n *RabbitNotifier) Close() error {
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}

// StubNotifier records notifications in memory. Used in tests and when
// no broker is configured.
type StubNotifier struct {
	mu   sync.Mutex
	Sent []models.Notification
}

func (n *StubNotifier) Notify(ctx context.Context, notification models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, notification)
}

func (n *StubNotifier) Notifications() []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.Notification, len(n.Sent))
	copy(out, n.Sent)
	return out
}
