package domain

import "strings"

// Address — адрес доставки, хранится как значение внутри заказа.
type Address struct {
	Street  string
	City    string
	State   string
	ZipCode string
	Country string
}

// NewAddress нормализует поля и проверяет обязательные из них.
func NewAddress(street, city, state, zipCode, country string) (Address, error) {
	addr := Address{
		Street:  strings.TrimSpace(street),
		City:    strings.TrimSpace(city),
		State:   strings.TrimSpace(state),
		ZipCode: strings.TrimSpace(zipCode),
		Country: strings.TrimSpace(country),
	}
	if err := addr.Validate(); err != nil {
		return Address{}, err
	}
	return addr, nil
}

// Validate проверяет, что street/city/state/zip не пустые.
func (a Address) Validate() error {
	for _, field := range []string{a.Street, a.City, a.State, a.ZipCode} {
		if strings.TrimSpace(field) == "" {
			return ErrAddressIncomplete
		}
	}
	return nil
}
