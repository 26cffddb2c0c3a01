package shop

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/myshop/internal/domain"
)

func TestPricingPolicy_ShippingCost(t *testing.T) {
	policy := DefaultPricingPolicy()

	tests := []struct {
		subtotal string
		want     string
	}{
		{subtotal: "50.00", want: "15.00"},
		{subtotal: "199.99", want: "15.00"},
		{subtotal: "200.00", want: "0"},
		{subtotal: "600.00", want: "0"},
	}

	for _, tc := range tests {
		t.Run(tc.subtotal, func(t *testing.T) {
			got := policy.ShippingCost(domain.MustMoney(tc.subtotal, "BRL"))
			require.True(t, got.Equal(domain.MustMoney(tc.want, "BRL")), "got %s", got)
		})
	}
}

func TestPricingPolicy_Discount(t *testing.T) {
	policy := DefaultPricingPolicy()

	tests := []struct {
		subtotal string
		want     string
	}{
		{subtotal: "499.99", want: "0"},
		{subtotal: "500.00", want: "50.00"},
		{subtotal: "600.00", want: "60.00"},
		{subtotal: "555.55", want: "55.56"},
	}

	for _, tc := range tests {
		t.Run(tc.subtotal, func(t *testing.T) {
			got, err := policy.Discount(domain.MustMoney(tc.subtotal, "BRL"))
			require.NoError(t, err)
			require.True(t, got.Equal(domain.MustMoney(tc.want, "BRL")), "got %s", got)
		})
	}
}

func TestPricingPolicy_Validate(t *testing.T) {
	require.NoError(t, DefaultPricingPolicy().Validate())

	negative := DefaultPricingPolicy()
	negative.FlatShippingCost = decimal.NewFromInt(-1)
	require.True(t, errors.Is(negative.Validate(), domain.ErrValidation))

	rate := DefaultPricingPolicy()
	rate.DiscountRate = decimal.RequireFromString("1.5")
	require.ErrorIs(t, rate.Validate(), domain.ErrRateInvalid)
}
