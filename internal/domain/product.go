package domain

import (
	"strings"
	"time"
)

// Product — позиция каталога с изменяемым остатком на складе.
type Product struct {
	ID            string
	Name          string
	Description   string
	Price         Money
	StockQuantity int
	IsActive      bool
	// Version используется для optimistic locking при сохранении.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProduct создаёт активный товар и проверяет инварианты каталога.
// Товар заводится только с положительным остатком; обнулить его можно позже через SetStock.
func NewProduct(id, name, description string, price Money, stock int, now time.Time) (Product, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)

	switch {
	case id == "":
		return Product{}, ErrProductIDRequired
	case name == "":
		return Product{}, ErrProductNameRequired
	case price.Currency == "":
		return Product{}, ErrCurrencyRequired
	case !price.Amount.IsPositive():
		return Product{}, ErrProductPriceInvalid
	case stock < 0:
		return Product{}, ErrStockNegative
	case stock == 0:
		return Product{}, ErrInitialStockInvalid
	}

	return Product{
		ID:            id,
		Name:          name,
		Description:   strings.TrimSpace(description),
		Price:         price,
		StockQuantity: stock,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// HasStock сообщает, хватает ли остатка на qty единиц.
func (p *Product) HasStock(qty int) bool {
	return p.StockQuantity >= qty
}

// Reserve списывает qty единиц со склада. При нехватке остаток не меняется.
func (p *Product) Reserve(qty int) error {
	if qty <= 0 {
		return ErrQuantityInvalid
	}
	if !p.HasStock(qty) {
		return &InsufficientStockError{
			ProductName: p.Name,
			Requested:   qty,
			Available:   p.StockQuantity,
		}
	}
	p.StockQuantity -= qty
	return nil
}

// Restore возвращает qty единиц на склад (отмена заказа, компенсация).
func (p *Product) Restore(qty int) error {
	if qty <= 0 {
		return ErrQuantityInvalid
	}
	p.StockQuantity += qty
	return nil
}

// SetStock задаёт остаток напрямую (инвентаризация).
func (p *Product) SetStock(qty int) error {
	if qty < 0 {
		return ErrStockNegative
	}
	p.StockQuantity = qty
	return nil
}

// ChangePrice меняет цену; уже оформленные заказы хранят свой снимок цены.
func (p *Product) ChangePrice(price Money) error {
	if price.Currency == "" {
		return ErrCurrencyRequired
	}
	if !price.Amount.IsPositive() {
		return ErrProductPriceInvalid
	}
	p.Price = price
	return nil
}

// Activate делает товар доступным для заказа.
func (p *Product) Activate() {
	p.IsActive = true
}

// Deactivate скрывает товар от оформления заказов, даже если он есть на складе.
func (p *Product) Deactivate() {
	p.IsActive = false
}
