package domain

import (
	"errors"
	"fmt"
)

// Категории ошибок. Конкретные ошибки ниже оборачивают одну из них,
// поэтому вызывающий код проверяет категорию через errors.Is.
var (
	// ErrValidation — некорректный или отсутствующий входной параметр.
	ErrValidation = errors.New("validation error")
	// ErrInsufficientStock — на складе меньше товара, чем запрошено.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidState — операция недопустима в текущем статусе.
	ErrInvalidState = errors.New("invalid state")
	// ErrNotFound — сущность с указанным идентификатором отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict — запись изменилась с момента чтения (optimistic locking).
	ErrVersionConflict = errors.New("version conflict")
)

var (
	// Ошибки денежных значений.
	ErrAmountNegative    = fmt.Errorf("%w: amount must be non-negative", ErrValidation)
	ErrCurrencyRequired  = fmt.Errorf("%w: currency is required", ErrValidation)
	ErrCurrencyMismatch  = fmt.Errorf("%w: currency mismatch", ErrValidation)
	ErrRateInvalid       = fmt.Errorf("%w: rate must be between 0 and 1", ErrValidation)
	ErrAmountPrecision   = fmt.Errorf("%w: amount must have at most 2 decimal places", ErrValidation)
	ErrAddressIncomplete = fmt.Errorf("%w: street, city, state and zip code are required", ErrValidation)

	// Ошибки каталога.
	ErrProductIDRequired      = fmt.Errorf("%w: product id is required", ErrValidation)
	ErrProductNameRequired    = fmt.Errorf("%w: product name is required", ErrValidation)
	ErrProductPriceInvalid    = fmt.Errorf("%w: product price must be positive", ErrValidation)
	ErrStockNegative          = fmt.Errorf("%w: stock quantity must be non-negative", ErrValidation)
	ErrInitialStockInvalid    = fmt.Errorf("%w: initial stock must be positive", ErrValidation)
	ErrQuantityInvalid        = fmt.Errorf("%w: quantity must be greater than zero", ErrValidation)
	ErrProductInactive        = fmt.Errorf("%w: product is inactive", ErrValidation)
	ErrProductNotFound        = fmt.Errorf("product %w", ErrNotFound)
	ErrProductVersionConflict = fmt.Errorf("product %w", ErrVersionConflict)

	// Ошибки заказа.
	ErrOrderIDRequired       = fmt.Errorf("%w: order id is required", ErrValidation)
	ErrCustomerEmailRequired = fmt.Errorf("%w: customer email is required", ErrValidation)
	ErrItemsRequired         = fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	ErrShippingNegative      = fmt.Errorf("%w: shipping cost must be non-negative", ErrValidation)
	ErrDiscountNegative      = fmt.Errorf("%w: discount must be non-negative", ErrValidation)
	ErrDiscountExceedsTotal  = fmt.Errorf("%w: discount must not exceed subtotal", ErrValidation)
	ErrOrderNotPending       = fmt.Errorf("%w: order is not pending", ErrInvalidState)
	ErrOrderNotConfirmed     = fmt.Errorf("%w: order is not confirmed", ErrInvalidState)
	ErrOrderAlreadyCancelled = fmt.Errorf("%w: order is already cancelled", ErrInvalidState)
	ErrOrderAlreadyShipped   = fmt.Errorf("%w: order is already shipped", ErrInvalidState)
	ErrOrderEmpty            = fmt.Errorf("%w: order has no items", ErrInvalidState)
	ErrOrderNotFound         = fmt.Errorf("order %w", ErrNotFound)
	ErrOrderVersionConflict  = fmt.Errorf("order %w", ErrVersionConflict)
	ErrSubtotalMismatch      = fmt.Errorf("%w: order subtotal does not match items sum", ErrValidation)
)

// InsufficientStockError описывает нехватку товара при резервировании.
type InsufficientStockError struct {
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

// Is позволяет сопоставлять ошибку с ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
