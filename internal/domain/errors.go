package domain

import (
	"context"

	"github.com/cockroachdb/errors"
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrInvalidPricingInput  = errors.New("invalid pricing input")
	ErrStorageFailure       = errors.New("storage failure")
	ErrNotificationFailure  = errors.New("notification failure")
)

// Specific causes. Each is marked with its class so errors.Is matches both.
var (
	ErrTourNotFound        = errors.Mark(errors.New("tour not found"), ErrNotFound)
	ErrHotelNotFound       = errors.Mark(errors.New("hotel not found"), ErrNotFound)
	ErrOfferingNotFound    = errors.Mark(errors.New("hotel is not offered for this tour"), ErrNotFound)
	ErrUserNotFound        = errors.Mark(errors.New("user not found"), ErrNotFound)
	ErrBookingNotFound     = errors.Mark(errors.New("booking not found"), ErrNotFound)
	ErrBookingExists       = errors.Mark(errors.New("booking already recorded"), ErrConflict)
	ErrInvalidRatingFormat = errors.Mark(errors.New("invalid rating format"), ErrInvalidInput)
)

// StorageFailure marks err as a durability failure, keeping its message.
func StorageFailure(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, op), ErrStorageFailure)
}

// Reason classifies err for callers and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientCapacity):
		return "insufficient_capacity"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidPricingInput):
		return "invalid_pricing_input"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	case errors.Is(err, ErrNotificationFailure):
		return "notification_failure"
	default:
		return "storage_failure"
	}
}
