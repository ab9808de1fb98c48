package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/robertarktes/tour-bookings/internal/notification"
)

// Ledger is the booking unit of work bound to one transaction.
type Ledger struct {
	tx pgx.Tx
}

// TryReserve is a single conditional UPDATE: the check and the decrement are
// one statement, so concurrent reservations can never drive capacity below
// zero.
func (l *Ledger) TryReserve(ctx context.Context, key domain.OfferingKey, persons int) (domain.Reservation, error) {
	if persons <= 0 {
		return domain.Reservation{}, errors.Wrapf(domain.ErrInvalidInput, "person count %d", persons)
	}
	var remaining int
	err := l.tx.QueryRow(ctx, `
		UPDATE tour_hotels SET available_capacity = available_capacity - $3
		WHERE tour_id = $1 AND hotel_id = $2 AND available_capacity >= $3
		RETURNING available_capacity
	`, key.TourID, key.HotelID, persons).Scan(&remaining)
	if err == nil {
		return domain.NewReservation(key, persons, remaining), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Reservation{}, domain.StorageFailure(err, "reserve capacity")
	}

	var left int
	err = l.tx.QueryRow(ctx, `
		SELECT available_capacity FROM tour_hotels WHERE tour_id = $1 AND hotel_id = $2
	`, key.TourID, key.HotelID).Scan(&left)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reservation{}, errors.Wrapf(domain.ErrOfferingNotFound, "tour %d hotel %d", key.TourID, key.HotelID)
	}
	if err != nil {
		return domain.Reservation{}, domain.StorageFailure(err, "read capacity")
	}
	return domain.Reservation{}, errors.Wrapf(domain.ErrInsufficientCapacity, "%d requested, %d left", persons, left)
}

func (l *Ledger) InsertBooking(ctx context.Context, b domain.BookedTour) error {
	_, err := l.tx.Exec(ctx, `
		INSERT INTO booked_tours (id, user_id, tour_id, hotel_id, person_count, total_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.ID, b.UserID, b.TourID, b.HotelID, b.PersonCount, b.TotalPrice, b.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return errors.Wrapf(domain.ErrBookingExists, "booking %s", b.ID)
	}
	return domain.StorageFailure(err, "insert booking")
}

func (l *Ledger) EnqueueNotification(ctx context.Context, msg notification.Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return errors.Wrap(err, "encode notification")
	}
	err = insertOutbox(ctx, l.tx, OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "booking",
		AggregateID:   msg.BookingID,
		EventType:     notification.EventBookingConfirmed,
		Payload:       payload,
		DedupeKey:     msg.ID.String(),
	})
	return domain.StorageFailure(err, "insert outbox")
}
