// Package search filters the tour catalog.
package search

import (
	"context"
	"iter"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/robertarktes/tour-bookings/internal/observability"
	"github.com/robertarktes/tour-bookings/internal/pricing"
	"github.com/shopspring/decimal"
)

// Source returns the catalog in a stable order, offerings populated with their hotel.
type Source interface {
	Tours(ctx context.Context) ([]domain.Tour, error)
}

type Offer struct {
	domain.Offering
	UnitPrice decimal.Decimal
}

type Result struct {
	Tour   domain.Tour
	Offers []Offer
}

type Engine struct {
	source Source
	logger observability.Logger
}

func NewEngine(source Source, logger observability.Logger) *Engine {
	return &Engine{source: source, logger: logger}
}

// Find yields the tours matching c. Nothing is read until the sequence is
// iterated, and every iteration reads the source again.
func (e *Engine) Find(ctx context.Context, c Criteria) iter.Seq2[Result, error] {
	return func(yield func(Result, error) bool) {
		if err := c.Validate(); err != nil {
			yield(Result{}, err)
			return
		}
		tours, err := e.source.Tours(ctx)
		if err != nil {
			yield(Result{}, domain.StorageFailure(err, "load catalog"))
			return
		}
		if c.Sort == SortRating {
			tours = slices.Clone(tours)
			slices.SortStableFunc(tours, func(a, b domain.Tour) int { return b.Star - a.Star })
		}
		for _, t := range tours {
			if err := ctx.Err(); err != nil {
				yield(Result{}, err)
				return
			}
			res, ok := e.match(c, t)
			if !ok {
				continue
			}
			if !yield(res, nil) {
				return
			}
		}
	}
}

// Collect drains Find into a slice.
func (e *Engine) Collect(ctx context.Context, c Criteria) ([]Result, error) {
	results := []Result{}
	for res, err := range e.Find(ctx, c) {
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) All(ctx context.Context) ([]Result, error) {
	return e.Collect(ctx, Criteria{})
}

// Actual lists tours discounted by more than threshold percent.
func (e *Engine) Actual(ctx context.Context, threshold decimal.Decimal) ([]Result, error) {
	return e.Collect(ctx, Criteria{MinDiscount: &threshold})
}

func (e *Engine) ByCountry(ctx context.Context, country string) ([]Result, error) {
	if country == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "country is required")
	}
	return e.Collect(ctx, Criteria{Country: country})
}

func (e *Engine) ByPriceRange(ctx context.Context, low, high *decimal.Decimal) ([]Result, error) {
	return e.Collect(ctx, Criteria{MinPrice: low, MaxPrice: high})
}

// ByRating lists tours rated at least rating, best first.
func (e *Engine) ByRating(ctx context.Context, rating string) ([]Result, error) {
	floor, err := ParseRating(rating)
	if err != nil {
		return nil, err
	}
	return e.Collect(ctx, Criteria{MinTourRating: &floor, Sort: SortRating})
}

func (e *Engine) match(c Criteria, t domain.Tour) (Result, bool) {
	if !c.matchTour(t) {
		return Result{}, false
	}
	offers := make([]Offer, 0, len(t.Offerings))
	for _, o := range t.Offerings {
		price, err := pricing.Quote(t, o.Hotel)
		if err != nil {
			e.logger.WithField("tour_id", t.ID).WithField("hotel_id", o.HotelID).WithError(err).Warn("skipping unpriceable offering")
			continue
		}
		if c.matchOffer(o, price) {
			offers = append(offers, Offer{Offering: o, UnitPrice: price})
		}
	}
	if c.filtersOffers() && len(offers) == 0 {
		return Result{}, false
	}
	return Result{Tour: t, Offers: offers}, true
}
