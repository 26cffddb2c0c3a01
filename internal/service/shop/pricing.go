package shop

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/myshop/internal/domain"
)

// PricingPolicy задаёт правила доставки и скидки. Суммы указаны в единицах валюты заказа.
type PricingPolicy struct {
	// FreeShippingThreshold — subtotal, начиная с которого доставка бесплатна.
	FreeShippingThreshold decimal.Decimal
	// FlatShippingCost: стоимость доставки ниже порога.
	FlatShippingCost decimal.Decimal
	// DiscountThreshold — subtotal, начиная с которого действует скидка.
	DiscountThreshold decimal.Decimal
	// DiscountRate: доля скидки из [0, 1].
	DiscountRate decimal.Decimal
}

// DefaultPricingPolicy: бесплатная доставка от 200.00, иначе 15.00; скидка 10% от 500.00.
func DefaultPricingPolicy() PricingPolicy {
	return PricingPolicy{
		FreeShippingThreshold: decimal.RequireFromString("200.00"),
		FlatShippingCost:      decimal.RequireFromString("15.00"),
		DiscountThreshold:     decimal.RequireFromString("500.00"),
		DiscountRate:          decimal.RequireFromString("0.10"),
	}
}

// Validate проверяет, что суммы неотрицательны, а доля скидки лежит в [0, 1].
func (p PricingPolicy) Validate() error {
	switch {
	case p.FreeShippingThreshold.IsNegative():
		return fmt.Errorf("%w: free shipping threshold must be non-negative", domain.ErrValidation)
	case p.FlatShippingCost.IsNegative():
		return fmt.Errorf("%w: flat shipping cost must be non-negative", domain.ErrValidation)
	case p.DiscountThreshold.IsNegative():
		return fmt.Errorf("%w: discount threshold must be non-negative", domain.ErrValidation)
	case p.DiscountRate.IsNegative() || p.DiscountRate.GreaterThan(decimal.NewFromInt(1)):
		return domain.ErrRateInvalid
	}
	return nil
}

// ShippingCost возвращает стоимость доставки для subtotal.
func (p PricingPolicy) ShippingCost(subtotal domain.Money) domain.Money {
	if subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		return domain.Zero(subtotal.Currency)
	}
	return domain.Money{Amount: p.FlatShippingCost, Currency: subtotal.Currency}
}

// Discount возвращает скидку для subtotal, округлённую до копеек.
func (p PricingPolicy) Discount(subtotal domain.Money) (domain.Money, error) {
	if !subtotal.GreaterThanOrEqual(p.DiscountThreshold) {
		return domain.Zero(subtotal.Currency), nil
	}
	return subtotal.MulRate(p.DiscountRate)
}
