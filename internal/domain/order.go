package domain

import (
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ собирается, позиции можно добавлять и удалять.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — товары зарезервированы, суммы зафиксированы.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped — заказ передан в доставку, отмена невозможна.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusCancelled — заказ отменён, резерв возвращён на склад.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// OrderLineItem — позиция заказа. Название и цена товара копируются в момент добавления,
// чтобы последующие изменения каталога не меняли историю заказов.
type OrderLineItem struct {
	ID          string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   Money
}

// NewOrderLineItem снимает снимок товара для позиции заказа.
func NewOrderLineItem(id string, product Product, qty int) (OrderLineItem, error) {
	if qty <= 0 {
		return OrderLineItem{}, ErrQuantityInvalid
	}
	if strings.TrimSpace(product.ID) == "" {
		return OrderLineItem{}, ErrProductIDRequired
	}
	return OrderLineItem{
		ID:          id,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    qty,
		UnitPrice:   product.Price,
	}, nil
}

// Subtotal возвращает unitPrice × quantity.
func (i OrderLineItem) Subtotal() Money {
	sub, err := i.UnitPrice.Mul(i.Quantity)
	if err != nil {
		return Zero(i.UnitPrice.Currency)
	}
	return sub
}

// Order — корень агрегата, единственный владелец своих позиций.
type Order struct {
	ID               string
	CustomerEmail    string
	ShippingAddress  Address
	Status           OrderStatus
	Items            []OrderLineItem
	Subtotal         Money
	ShippingCost     Money
	Discount         Money
	PaymentReference string
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewOrder создаёт пустой заказ в статусе pending.
func NewOrder(id, customerEmail string, address Address, currency string, now time.Time) (*Order, error) {
	id = strings.TrimSpace(id)
	customerEmail = strings.TrimSpace(customerEmail)

	if id == "" {
		return nil, ErrOrderIDRequired
	}
	if customerEmail == "" {
		return nil, ErrCustomerEmailRequired
	}
	if err := address.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(currency) == "" {
		return nil, ErrCurrencyRequired
	}

	zero := Zero(currency)
	return &Order{
		ID:              id,
		CustomerEmail:   customerEmail,
		ShippingAddress: address,
		Status:          OrderStatusPending,
		Subtotal:        zero,
		ShippingCost:    zero,
		Discount:        zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Currency возвращает валюту заказа.
func (o *Order) Currency() string {
	return o.Subtotal.Currency
}

// Total = subtotal + shipping − discount.
func (o *Order) Total() Money {
	amount := o.Subtotal.Amount.Add(o.ShippingCost.Amount).Sub(o.Discount.Amount)
	return Money{Amount: amount, Currency: o.Subtotal.Currency}
}

// AddItem добавляет позицию; допустимо только для pending-заказа.
func (o *Order) AddItem(item OrderLineItem) error {
	if o.Status != OrderStatusPending {
		return ErrOrderNotPending
	}
	if item.Quantity <= 0 {
		return ErrQuantityInvalid
	}
	if item.UnitPrice.Currency != o.Currency() {
		return ErrCurrencyMismatch
	}
	o.Items = append(o.Items, item)
	o.recalculate()
	return nil
}

// RemoveItem удаляет позицию по id; неизвестный id игнорируется.
func (o *Order) RemoveItem(itemID string) error {
	if o.Status != OrderStatusPending {
		return ErrOrderNotPending
	}
	for idx, item := range o.Items {
		if item.ID == itemID {
			o.Items = append(o.Items[:idx:idx], o.Items[idx+1:]...)
			break
		}
	}
	o.recalculate()
	return nil
}

// ApplyDiscount задаёт скидку, не превышающую subtotal.
func (o *Order) ApplyDiscount(amount Money) error {
	if amount.Amount.IsNegative() {
		return ErrDiscountNegative
	}
	cmp, err := amount.Cmp(o.Subtotal)
	if err != nil {
		return err
	}
	if cmp > 0 {
		return ErrDiscountExceedsTotal
	}
	o.Discount = amount
	return nil
}

// SetShippingCost задаёт стоимость доставки.
func (o *Order) SetShippingCost(amount Money) error {
	if amount.Amount.IsNegative() {
		return ErrShippingNegative
	}
	if amount.Currency != o.Currency() {
		return ErrCurrencyMismatch
	}
	o.ShippingCost = amount
	return nil
}

// Confirm переводит pending-заказ с позициями в confirmed.
func (o *Order) Confirm() error {
	if o.Status != OrderStatusPending {
		return ErrOrderNotPending
	}
	if len(o.Items) == 0 {
		return ErrOrderEmpty
	}
	o.Status = OrderStatusConfirmed
	return nil
}

// Cancel отменяет заказ из любого статуса, кроме shipped и cancelled.
func (o *Order) Cancel() error {
	switch o.Status {
	case OrderStatusCancelled:
		return ErrOrderAlreadyCancelled
	case OrderStatusShipped:
		return ErrOrderAlreadyShipped
	}
	o.Status = OrderStatusCancelled
	return nil
}

// MarkShipped переводит confirmed-заказ в shipped.
func (o *Order) MarkShipped() error {
	if o.Status != OrderStatusConfirmed {
		return ErrOrderNotConfirmed
	}
	o.Status = OrderStatusShipped
	return nil
}

// Clone возвращает копию заказа, не разделяющую срез позиций с оригиналом.
func (o Order) Clone() Order {
	if o.Items != nil {
		items := make([]OrderLineItem, len(o.Items))
		copy(items, o.Items)
		o.Items = items
	}
	return o
}

// recalculate пересчитывает subtotal; скидка урезается до нового subtotal.
func (o *Order) recalculate() {
	sum := Zero(o.Currency())
	for _, item := range o.Items {
		sum.Amount = sum.Amount.Add(item.Subtotal().Amount)
	}
	o.Subtotal = sum
	if o.Discount.Amount.GreaterThan(sum.Amount) {
		o.Discount = sum
	}
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerEmail == "" {
		errs = append(errs, ErrCustomerEmailRequired)
	}
	if o.Currency() == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if err := o.ShippingAddress.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.ShippingCost.Amount.IsNegative() {
		errs = append(errs, ErrShippingNegative)
	}
	if o.Discount.Amount.IsNegative() {
		errs = append(errs, ErrDiscountNegative)
	}
	if o.Discount.Amount.GreaterThan(o.Subtotal.Amount) {
		errs = append(errs, ErrDiscountExceedsTotal)
	}

	// Сверяем subtotal с суммой позиций: qty * price.
	calc := Zero(o.Currency())
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrQuantityInvalid)
		}
		if item.UnitPrice.Currency != o.Currency() {
			errs = append(errs, ErrCurrencyMismatch)
		}
		calc.Amount = calc.Amount.Add(item.Subtotal().Amount)
	}
	if !calc.Amount.Equal(o.Subtotal.Amount) {
		errs = append(errs, ErrSubtotalMismatch)
	}

	return errs
}
