// Package pricing derives the price a hotel charges for a tour.
//
// The unit price is basePrice * (1 - discount/100) * (1 + star/10). All
// arithmetic is exact decimal; rounding to cents happens once, when a price
// leaves this package through Quote or Total.
package pricing

import (
	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	MinStar = 1
	MaxStar = 5
)

var (
	hundred = decimal.NewFromInt(100)
	ten     = decimal.NewFromInt(10)
	one     = decimal.NewFromInt(1)
)

// Price returns the unrounded unit price of tour at hotel.
func Price(tour domain.Tour, hotel domain.Hotel) (decimal.Decimal, error) {
	if err := validate(tour, hotel); err != nil {
		return decimal.Zero, err
	}
	base := tour.BasePrice.Mul(one.Sub(tour.DiscountPercent.Div(hundred)))
	return base.Mul(one.Add(decimal.NewFromInt(int64(hotel.Star)).Div(ten))), nil
}

// Quote is the unit price as shown to a caller.
func Quote(tour domain.Tour, hotel domain.Hotel) (decimal.Decimal, error) {
	p, err := Price(tour, hotel)
	if err != nil {
		return decimal.Zero, err
	}
	return Round(p), nil
}

// Total is the price of a booking for persons people.
func Total(tour domain.Tour, hotel domain.Hotel, persons int) (decimal.Decimal, error) {
	if persons <= 0 {
		return decimal.Zero, errors.Wrapf(domain.ErrInvalidInput, "person count %d", persons)
	}
	p, err := Price(tour, hotel)
	if err != nil {
		return decimal.Zero, err
	}
	return Round(p.Mul(decimal.NewFromInt(int64(persons)))), nil
}

// Round rounds to two places, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func validate(tour domain.Tour, hotel domain.Hotel) error {
	switch {
	case tour.BasePrice.IsNegative():
		return errors.Wrapf(domain.ErrInvalidPricingInput, "tour %d: base price %s", tour.ID, tour.BasePrice)
	case tour.DiscountPercent.IsNegative() || tour.DiscountPercent.GreaterThan(hundred):
		return errors.Wrapf(domain.ErrInvalidPricingInput, "tour %d: discount %s%%", tour.ID, tour.DiscountPercent)
	case hotel.Star < MinStar || hotel.Star > MaxStar:
		return errors.Wrapf(domain.ErrInvalidPricingInput, "hotel %d: star rating %d", hotel.ID, hotel.Star)
	}
	return nil
}
