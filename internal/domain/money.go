package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// moneyScale — количество знаков после запятой при округлении сумм.
const moneyScale = 2

// Money — неизменяемое денежное значение в конкретной валюте.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// NewMoney создаёт денежное значение, проверяя знак суммы и наличие валюты.
// Суммы точнее копейки отклоняются, колонки хранилища имеют тип NUMERIC(14,2).
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return Money{}, ErrCurrencyRequired
	}
	if amount.IsNegative() {
		return Money{}, ErrAmountNegative
	}
	if !amount.Equal(amount.Round(moneyScale)) {
		return Money{}, ErrAmountPrecision
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// MustMoney разбирает строковую сумму и паникует при ошибке. Используется в тестах и константах.
func MustMoney(amount, currency string) Money {
	value, err := decimal.NewFromString(amount)
	if err != nil {
		panic(err)
	}
	m, err := NewMoney(value, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero возвращает нулевую сумму в указанной валюте.
func Zero(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: strings.ToUpper(strings.TrimSpace(currency))}
}

// Add складывает суммы одной валюты.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

// Sub вычитает other; результат не может быть отрицательным.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	result := m.Amount.Sub(other.Amount)
	if result.IsNegative() {
		return Money{}, ErrAmountNegative
	}
	return Money{Amount: result, Currency: m.Currency}, nil
}

// Mul умножает сумму на целое неотрицательное количество.
func (m Money) Mul(qty int) (Money, error) {
	if qty < 0 {
		return Money{}, ErrQuantityInvalid
	}
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(qty))), Currency: m.Currency}, nil
}

// MulRate умножает сумму на долю из [0, 1] с округлением до копеек.
func (m Money) MulRate(rate decimal.Decimal) (Money, error) {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return Money{}, ErrRateInvalid
	}
	return Money{Amount: m.Amount.Mul(rate).Round(moneyScale), Currency: m.Currency}, nil
}

// Cmp сравнивает суммы одной валюты: -1, 0 или 1.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	return m.Amount.Cmp(other.Amount), nil
}

// GreaterThanOrEqual сравнивает суммы без учёта валюты (валюта проверяется вызывающим кодом).
func (m Money) GreaterThanOrEqual(amount decimal.Decimal) bool {
	return m.Amount.GreaterThanOrEqual(amount)
}

// Equal сравнивает значения, а не представление: 10 и 10.00 равны.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// IsZero сообщает, равна ли сумма нулю.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// String форматирует сумму как "200.00 BRL".
func (m Money) String() string {
	return m.Amount.StringFixed(moneyScale) + " " + m.Currency
}

func (m Money) sameCurrency(other Money) error {
	if m.Currency != other.Currency {
		return ErrCurrencyMismatch
	}
	return nil
}
