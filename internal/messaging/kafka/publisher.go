package kafka

import (
	"context"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/myshop/internal/domain"
	"github.com/vladislavdragonenkov/myshop/internal/service/notification"
)

// OrderEventPublisher публикует события заказов в Kafka topic. Ключ сообщения — ID заказа,
// поэтому события одного заказа попадают в одну партицию по порядку.
type OrderEventPublisher struct {
	producer *Producer
	topic    string
}

// NewOrderEventPublisher создаёт паблишер событий заказа.
func NewOrderEventPublisher(producer *Producer, topic string) *OrderEventPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OrderEventPublisher{
		producer: producer,
		topic:    topic,
	}
}

// PublishOrderEvent отправляет событие заказа.
func (p *OrderEventPublisher) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.producer.PublishEvent(p.topic, event.OrderID, NewOrderEvent(event))
}

// EmailNotifier ставит письма в очередь Kafka; доставку выполняет consumer с EmailHandler.
type EmailNotifier struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewEmailNotifier создаёт notifier поверх Kafka.
func NewEmailNotifier(producer *Producer, topic string) *EmailNotifier {
	if topic == "" {
		topic = TopicEmailNotifications
	}
	return &EmailNotifier{
		producer: producer,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Send публикует письмо с адресом получателя в качестве ключа.
func (n *EmailNotifier) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(to) == "" {
		return notification.ErrRecipientRequired
	}
	return n.producer.PublishEvent(n.topic, to, EmailMessage{
		To:        to,
		Subject:   subject,
		Body:      body,
		CreatedAt: n.now(),
	})
}

var (
	_ domain.EventPublisher = (*OrderEventPublisher)(nil)
	_ domain.Notifier       = (*EmailNotifier)(nil)
)
