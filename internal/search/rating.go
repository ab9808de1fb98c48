package search

import (
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-bookings/internal/domain"
)

// ParseRating accepts "4.5" and "4,5" alike.
func ParseRating(s string) (float64, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	rating, err := strconv.ParseFloat(normalized, 64)
	if err != nil || math.IsNaN(rating) || math.IsInf(rating, 0) {
		return 0, errors.Wrapf(domain.ErrInvalidRatingFormat, "%q", s)
	}
	return rating, nil
}
