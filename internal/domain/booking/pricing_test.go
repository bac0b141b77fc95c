package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceBreakdownNormalize(t *testing.T) {
	p, err := PriceBreakdown{UpfrontAmount: 2000, LaterAmount: 3000, Currency: " USD "}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "usd", p.Currency)
	assert.Equal(t, int64(5000), p.Total())

	tests := []struct {
		name  string
		price PriceBreakdown
	}{
		{"negative upfront", PriceBreakdown{UpfrontAmount: -1, LaterAmount: 10, Currency: "usd"}},
		{"negative later", PriceBreakdown{UpfrontAmount: 10, LaterAmount: -1, Currency: "usd"}},
		{"zero total", PriceBreakdown{Currency: "usd"}},
		{"short currency", PriceBreakdown{UpfrontAmount: 10, Currency: "us"}},
		{"numeric currency", PriceBreakdown{UpfrontAmount: 10, Currency: "840"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.price.Normalize()
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestDepositPricingStrategySplit(t *testing.T) {
	s := NewDepositPricingStrategy()

	tests := []struct {
		name        string
		total       int64
		wantUpfront int64
		wantLater   int64
	}{
		{"even split", 5000, 2000, 3000},
		{"rounds upfront up", 1001, 500, 501},
		{"floor applies", 1000, 500, 500},
		{"floor capped at total", 300, 300, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := s.Split(tt.total, "USD")
			require.NoError(t, err)
			assert.Equal(t, tt.wantUpfront, p.UpfrontAmount)
			assert.Equal(t, tt.wantLater, p.LaterAmount)
			assert.Equal(t, tt.total, p.Total())
			assert.Equal(t, "usd", p.Currency)
		})
	}

	_, err := s.Split(0, "usd")
	assert.ErrorIs(t, err, ErrValidation)
}
