package domain

import (
	"context"
	"time"
)

// ProductRepository описывает требования к хранилищу каталога.
type ProductRepository interface {
	// Get возвращает товар или ErrProductNotFound.
	Get(ctx context.Context, id string) (Product, error)
	// List возвращает все товары, отсортированные по имени.
	List(ctx context.Context) ([]Product, error)
	// Create сохраняет новый товар. Повторный ID даёт ErrProductVersionConflict.
	Create(ctx context.Context, product Product) error
	// Update сохраняет текущие поля товара с учётом optimistic locking.
	// При успехе версия в хранилище увеличивается на единицу.
	Update(ctx context.Context, product Product) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает последние заказы с опциональным ограничением на количество.
	List(ctx context.Context, limit int) ([]Order, error)
	// ListByCustomer возвращает заказы клиента с опциональным ограничением на количество.
	ListByCustomer(ctx context.Context, customerEmail string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// PaymentGateway описывает взаимодействие с платёжным провайдером.
type PaymentGateway interface {
	// Authorize резервирует сумму у плательщика и возвращает ссылку на транзакцию.
	Authorize(ctx context.Context, amount Money, payer, memo string) (string, error)
	// Refund возвращает средства по ранее авторизованной транзакции.
	Refund(ctx context.Context, transactionRef string, amount Money) error
}

// Notifier отправляет уведомления клиенту (email).
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// EventPublisher публикует доменные события заказа во внешнюю шину.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// IDGenerator выдаёт уникальные идентификаторы (заказы, позиции, транзакции).
type IDGenerator func() string

// OrderEventType задаёт тип доменного события заказа.
type OrderEventType string

const (
	OrderEventConfirmed OrderEventType = "order.confirmed"
	OrderEventCancelled OrderEventType = "order.cancelled"
	OrderEventShipped   OrderEventType = "order.shipped"
)

// OrderEvent — доменное событие заказа для внешних подписчиков.
type OrderEvent struct {
	Type          OrderEventType
	OrderID       string
	CustomerEmail string
	Status        OrderStatus
	Total         Money
	OccurredAt    time.Time
}
