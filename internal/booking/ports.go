package booking

import (
	"context"

	"github.com/google/uuid"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/robertarktes/tour-bookings/internal/notification"
)

type Catalog interface {
	Tour(ctx context.Context, id int64) (domain.Tour, error)
	// Offering returns the TourHotel row with its Hotel populated.
	Offering(ctx context.Context, tourID, hotelID int64) (domain.Offering, error)
}

// Tx is the unit of work that commits a booking. Everything done through it
// is persisted together or not at all.
type Tx interface {
	// TryReserve decrements the offering's capacity by persons if at least
	// that much remains; otherwise it returns ErrInsufficientCapacity and
	// changes nothing.
	TryReserve(ctx context.Context, key domain.OfferingKey, persons int) (domain.Reservation, error)
	InsertBooking(ctx context.Context, b domain.BookedTour) error
	EnqueueNotification(ctx context.Context, msg notification.Message) error
}

type Store interface {
	Catalog
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Booking(ctx context.Context, id uuid.UUID) (domain.BookedTour, error)
	BookingsByUser(ctx context.Context, userID string) ([]domain.BookedTour, error)
}

// Directory resolves identity-provider user ids to mail addresses.
type Directory interface {
	Email(ctx context.Context, userID string) (string, error)
}

type Auditor interface {
	LogBooking(ctx context.Context, b domain.BookedTour) error
	LogRejection(ctx context.Context, userID string, reason string, data map[string]interface{}) error
}
