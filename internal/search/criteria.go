package search

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/shopspring/decimal"
)

type SortMode string

const (
	SortNone   SortMode = ""
	SortRating SortMode = "rating"
)

// Criteria holds optional predicates. A nil or empty field imposes no constraint.
type Criteria struct {
	// tour level
	Country       string
	MinDeparture  *time.Time
	MaxArrival    *time.Time
	MinTourRating *float64
	MinDiscount   *decimal.Decimal // strictly greater than

	// offer level
	Passengers     *int
	MinHotelRating *float64
	MinPrice       *decimal.Decimal
	MaxPrice       *decimal.Decimal
	City           string
	HotelType      string
	AllowChildren  *bool
	FreeWifi       *bool
	Nutrition      string

	Sort SortMode
}

func (c Criteria) Validate() error {
	if c.Passengers != nil && *c.Passengers < 0 {
		return errors.Wrapf(domain.ErrInvalidInput, "passengers %d", *c.Passengers)
	}
	for name, r := range map[string]*float64{"tour rating": c.MinTourRating, "hotel rating": c.MinHotelRating} {
		if r != nil && (*r < 0 || *r > 5) {
			return errors.Wrapf(domain.ErrInvalidInput, "%s %v out of range", name, *r)
		}
	}
	if c.MinPrice != nil && c.MinPrice.IsNegative() {
		return errors.Wrapf(domain.ErrInvalidInput, "min price %s", c.MinPrice)
	}
	if c.MaxPrice != nil && c.MaxPrice.IsNegative() {
		return errors.Wrapf(domain.ErrInvalidInput, "max price %s", c.MaxPrice)
	}
	if c.MinPrice != nil && c.MaxPrice != nil && c.MinPrice.GreaterThan(*c.MaxPrice) {
		return errors.Wrapf(domain.ErrInvalidInput, "min price %s above max price %s", c.MinPrice, c.MaxPrice)
	}
	if c.MinDeparture != nil && c.MaxArrival != nil && c.MinDeparture.After(*c.MaxArrival) {
		return errors.Wrap(domain.ErrInvalidInput, "departure after arrival")
	}
	switch c.Sort {
	case SortNone, SortRating:
	default:
		return errors.Wrapf(domain.ErrInvalidInput, "sort %q", c.Sort)
	}
	return nil
}

func (c Criteria) matchTour(t domain.Tour) bool {
	if c.Country != "" && !strings.EqualFold(t.Country, c.Country) {
		return false
	}
	if c.MinDeparture != nil && t.DepartureDate.Before(domain.Date(*c.MinDeparture)) {
		return false
	}
	if c.MaxArrival != nil && t.ArrivalDate.After(domain.Date(*c.MaxArrival)) {
		return false
	}
	if c.MinTourRating != nil && float64(t.Star) < *c.MinTourRating {
		return false
	}
	if c.MinDiscount != nil && !t.DiscountPercent.GreaterThan(*c.MinDiscount) {
		return false
	}
	return true
}

func (c Criteria) filtersOffers() bool {
	return c.Passengers != nil || c.MinHotelRating != nil || c.MinPrice != nil || c.MaxPrice != nil ||
		c.City != "" || c.HotelType != "" || c.AllowChildren != nil || c.FreeWifi != nil || c.Nutrition != ""
}

func (c Criteria) matchOffer(o domain.Offering, price decimal.Decimal) bool {
	h := o.Hotel
	switch {
	case c.Passengers != nil && o.AvailableCapacity < *c.Passengers:
		return false
	case c.MinHotelRating != nil && float64(h.Star) < *c.MinHotelRating:
		return false
	case c.MinPrice != nil && price.LessThan(*c.MinPrice):
		return false
	case c.MaxPrice != nil && price.GreaterThan(*c.MaxPrice):
		return false
	case c.City != "" && !strings.EqualFold(h.City, c.City):
		return false
	case c.HotelType != "" && !strings.EqualFold(h.Type, c.HotelType):
		return false
	case c.AllowChildren != nil && h.AllowChildren != *c.AllowChildren:
		return false
	case c.FreeWifi != nil && h.FreeWifi != *c.FreeWifi:
		return false
	case c.Nutrition != "" && !strings.EqualFold(h.NutritionType, c.Nutrition):
		return false
	}
	return true
}
