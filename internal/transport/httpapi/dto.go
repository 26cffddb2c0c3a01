package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/myshop/internal/domain"
	"github.com/vladislavdragonenkov/myshop/internal/service/shop"
)

/* =========================
   REQUEST DTOs
========================= */

type createProductRequest struct {
	Name          string          `json:"name" binding:"required,notblank"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency" binding:"omitempty,len=3,alpha"`
	StockQuantity int             `json:"stock_quantity" binding:"gte=0"`
}

type updateStockRequest struct {
	StockQuantity *int `json:"stock_quantity" binding:"required,gte=0"`
}

type changePriceRequest struct {
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency" binding:"omitempty,len=3,alpha"`
}

type addressRequest struct {
	Street  string `json:"street" binding:"required,notblank"`
	City    string `json:"city" binding:"required,notblank"`
	State   string `json:"state" binding:"required,notblank"`
	ZipCode string `json:"zip_code" binding:"required,notblank"`
	Country string `json:"country"`
}

type orderItemRequest struct {
	ProductID string `json:"product_id" binding:"required,notblank"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

type createOrderRequest struct {
	CustomerEmail   string             `json:"customer_email" binding:"required,email"`
	ShippingAddress addressRequest     `json:"shipping_address"`
	Items           []orderItemRequest `json:"items" binding:"required,min=1,dive"`
}

type listOrdersQuery struct {
	CustomerEmail string `form:"customer_email" binding:"omitempty,email"`
	Limit         int    `form:"limit" binding:"omitempty,gte=1,lte=200"`
}

func (r createOrderRequest) toInput() shop.CreateOrderInput {
	items := make([]shop.OrderItemInput, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, shop.OrderItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return shop.CreateOrderInput{
		CustomerEmail: r.CustomerEmail,
		ShippingAddress: domain.Address{
			Street:  r.ShippingAddress.Street,
			City:    r.ShippingAddress.City,
			State:   r.ShippingAddress.State,
			ZipCode: r.ShippingAddress.ZipCode,
			Country: r.ShippingAddress.Country,
		},
		Items: items,
	}
}

/* =========================
   RESPONSE DTOs
========================= */

type moneyResponse struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func newMoneyResponse(m domain.Money) moneyResponse {
	return moneyResponse{Amount: m.Amount.StringFixed(2), Currency: m.Currency}
}

type productResponse struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	Price         moneyResponse `json:"price"`
	StockQuantity int           `json:"stock_quantity"`
	IsActive      bool          `json:"is_active"`
	Version       int64         `json:"version"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func newProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         newMoneyResponse(p.Price),
		StockQuantity: p.StockQuantity,
		IsActive:      p.IsActive,
		Version:       p.Version,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

type addressResponse struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
}

type lineResponse struct {
	ID          string        `json:"id"`
	ProductID   string        `json:"product_id"`
	ProductName string        `json:"product_name"`
	Quantity    int           `json:"quantity"`
	UnitPrice   moneyResponse `json:"unit_price"`
	Subtotal    moneyResponse `json:"subtotal"`
}

type orderResponse struct {
	ID               string          `json:"id"`
	CustomerEmail    string          `json:"customer_email"`
	ShippingAddress  addressResponse `json:"shipping_address"`
	Status           string          `json:"status"`
	Items            []lineResponse  `json:"items"`
	Subtotal         moneyResponse   `json:"subtotal"`
	ShippingCost     moneyResponse   `json:"shipping_cost"`
	Discount         moneyResponse   `json:"discount"`
	Total            moneyResponse   `json:"total"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	// Warning заполняется, когда операция выполнена, но побочный шаг (уведомление, возврат склада) не удался.
	Warning string `json:"warning,omitempty"`
}

func newOrderResponse(s shop.OrderSummary) orderResponse {
	items := make([]lineResponse, 0, len(s.Items))
	for _, item := range s.Items {
		items = append(items, lineResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   newMoneyResponse(item.UnitPrice),
			Subtotal:    newMoneyResponse(item.Subtotal),
		})
	}

	return orderResponse{
		ID:            s.ID,
		CustomerEmail: s.CustomerEmail,
		ShippingAddress: addressResponse{
			Street:  s.ShippingAddress.Street,
			City:    s.ShippingAddress.City,
			State:   s.ShippingAddress.State,
			ZipCode: s.ShippingAddress.ZipCode,
			Country: s.ShippingAddress.Country,
		},
		Status:           string(s.Status),
		Items:            items,
		Subtotal:         newMoneyResponse(s.Subtotal),
		ShippingCost:     newMoneyResponse(s.ShippingCost),
		Discount:         newMoneyResponse(s.Discount),
		Total:            newMoneyResponse(s.Total),
		PaymentReference: s.PaymentReference,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

type timelineEventResponse struct {
	Type       string    `json:"type"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newTimelineResponse(events []domain.TimelineEvent) []timelineEventResponse {
	out := make([]timelineEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, timelineEventResponse{Type: e.Type, Reason: e.Reason, OccurredAt: e.Occurred})
	}
	return out
}
