package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/myshop/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents        = "myshop.order.events"
	TopicEmailNotifications = "myshop.notifications.email"
	TopicDeadLetterQueue    = "myshop.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent описывает смену статуса заказа.
type OrderEvent struct {
	EventType     string    `json:"event_type"`
	OrderID       string    `json:"order_id"`
	CustomerEmail string    `json:"customer_email"`
	Status        string    `json:"status"`
	Total         string    `json:"total"`
	Currency      string    `json:"currency"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewOrderEvent переводит доменное событие в формат сообщения.
func NewOrderEvent(event domain.OrderEvent) OrderEvent {
	ts := event.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return OrderEvent{
		EventType:     string(event.Type),
		OrderID:       event.OrderID,
		CustomerEmail: event.CustomerEmail,
		Status:        string(event.Status),
		Total:         event.Total.Amount.StringFixed(2),
		Currency:      event.Total.Currency,
		Timestamp:     ts,
	}
}

// EmailMessage содержит письмо клиенту, ожидающее доставки.
type EmailMessage struct {
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ParseOrderEvent парсит OrderEvent из сообщения
func ParseOrderEvent(message *sarama.ConsumerMessage) (*OrderEvent, error) {
	var event OrderEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order event: %w", err)
	}
	return &event, nil
}

// ParseEmailMessage парсит EmailMessage из сообщения
func ParseEmailMessage(message *sarama.ConsumerMessage) (*EmailMessage, error) {
	var email EmailMessage
	if err := json.Unmarshal(message.Value, &email); err != nil {
		return nil, fmt.Errorf("failed to unmarshal email message: %w", err)
	}
	return &email, nil
}
