package shop

import (
	"time"

	"github.com/vladislavdragonenkov/myshop/internal/domain"
)

// LineSummary описывает позицию заказа в ответе сервиса.
type LineSummary struct {
	ID          string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   domain.Money
	Subtotal    domain.Money
}

// OrderSummary — результат операций с заказом.
type OrderSummary struct {
	ID               string
	CustomerEmail    string
	ShippingAddress  domain.Address
	Status           domain.OrderStatus
	Subtotal         domain.Money
	ShippingCost     domain.Money
	Discount         domain.Money
	Total            domain.Money
	PaymentReference string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Items            []LineSummary
}

// NewOrderSummary строит summary по состоянию заказа.
func NewOrderSummary(order domain.Order) OrderSummary {
	items := make([]LineSummary, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, LineSummary{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal(),
		})
	}

	return OrderSummary{
		ID:               order.ID,
		CustomerEmail:    order.CustomerEmail,
		ShippingAddress:  order.ShippingAddress,
		Status:           order.Status,
		Subtotal:         order.Subtotal,
		ShippingCost:     order.ShippingCost,
		Discount:         order.Discount,
		Total:            order.Total(),
		PaymentReference: order.PaymentReference,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
		Items:            items,
	}
}
