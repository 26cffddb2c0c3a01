package domain

import "time"

// Типы событий истории заказа.
const (
	TimelineOrderCreated      = "OrderCreated"
	TimelineOrderConfirmed    = "OrderConfirmed"
	TimelinePaymentAuthorized = "PaymentAuthorized"
	TimelinePaymentFailed     = "PaymentFailed"
	TimelineOrderCancelled    = "OrderCancelled"
	TimelinePaymentRefunded   = "PaymentRefunded"
	TimelineOrderShipped      = "OrderShipped"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
