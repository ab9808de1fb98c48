package pricing_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/robertarktes/tour-bookings/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tour(base, discount string) domain.Tour {
	return domain.Tour{
		ID:              1,
		BasePrice:       decimal.RequireFromString(base),
		DiscountPercent: decimal.RequireFromString(discount),
	}
}

func TestQuote_DiscountAndStars(t *testing.T) {
	got, err := pricing.Quote(tour("1000", "10"), domain.Hotel{Star: 4})
	require.NoError(t, err)
	assert.Equal(t, "1260.00", got.StringFixed(2))
}

func TestTotal_MultipliesBeforeRounding(t *testing.T) {
	// unit price 10.005 * 1.1 = 11.0055; rounding the unit first would give 33.03
	got, err := pricing.Total(tour("10.005", "0"), domain.Hotel{Star: 1}, 3)
	require.NoError(t, err)
	assert.Equal(t, "33.02", got.StringFixed(2))
}

func TestRound_HalfAwayFromZero(t *testing.T) {
	assert.Equal(t, "0.13", pricing.Round(decimal.RequireFromString("0.125")).StringFixed(2))
	assert.Equal(t, "-0.13", pricing.Round(decimal.RequireFromString("-0.125")).StringFixed(2))
	assert.Equal(t, "2.00", pricing.Round(decimal.RequireFromString("1.995")).StringFixed(2))
}

func TestPrice_Deterministic(t *testing.T) {
	for base := int64(0); base <= 5000; base += 250 {
		for discount := int64(0); discount <= 100; discount += 5 {
			for star := pricing.MinStar; star <= pricing.MaxStar; star++ {
				tr := domain.Tour{BasePrice: decimal.NewFromInt(base), DiscountPercent: decimal.NewFromInt(discount)}
				h := domain.Hotel{Star: star}
				first, err := pricing.Price(tr, h)
				require.NoError(t, err)
				second, err := pricing.Price(tr, h)
				require.NoError(t, err)
				assert.True(t, first.Equal(second))
				assert.False(t, first.IsNegative(), "base=%d discount=%d star=%d", base, discount, star)
			}
		}
	}
}

func TestPrice_FullDiscountIsFree(t *testing.T) {
	got, err := pricing.Quote(tour("999.99", "100"), domain.Hotel{Star: 5})
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestPrice_InvalidInput(t *testing.T) {
	cases := map[string]struct {
		tour  domain.Tour
		hotel domain.Hotel
	}{
		"negative base":     {tour("-1", "0"), domain.Hotel{Star: 3}},
		"negative discount": {tour("100", "-0.01"), domain.Hotel{Star: 3}},
		"discount over 100": {tour("100", "100.5"), domain.Hotel{Star: 3}},
		"zero stars":        {tour("100", "0"), domain.Hotel{Star: 0}},
		"six stars":         {tour("100", "0"), domain.Hotel{Star: 6}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := pricing.Price(tc.tour, tc.hotel)
			assert.True(t, errors.Is(err, domain.ErrInvalidPricingInput), "got %v", err)
		})
	}
}

func TestTotal_RejectsNonPositivePersons(t *testing.T) {
	_, err := pricing.Total(tour("100", "0"), domain.Hotel{Star: 3}, 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}
