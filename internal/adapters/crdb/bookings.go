package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/tour-bookings/internal/domain"
)

func (r *Repository) Booking(ctx context.Context, id uuid.UUID) (domain.BookedTour, error) {
	var b domain.BookedTour
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, tour_id, hotel_id, person_count, total_price, created_at
		FROM booked_tours WHERE id = $1
	`, id).Scan(&b.ID, &b.UserID, &b.TourID, &b.HotelID, &b.PersonCount, &b.TotalPrice, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BookedTour{}, errors.Wrapf(domain.ErrBookingNotFound, "booking %s", id)
	}
	if err != nil {
		return domain.BookedTour{}, domain.StorageFailure(err, "read booking")
	}
	return b, nil
}

func (r *Repository) BookingsByUser(ctx context.Context, userID string) ([]domain.BookedTour, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, tour_id, hotel_id, person_count, total_price, created_at
		FROM booked_tours WHERE user_id = $1 ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, domain.StorageFailure(err, "query bookings")
	}
	defer rows.Close()

	bookings := []domain.BookedTour{}
	for rows.Next() {
		var b domain.BookedTour
		if err := rows.Scan(&b.ID, &b.UserID, &b.TourID, &b.HotelID, &b.PersonCount, &b.TotalPrice, &b.CreatedAt); err != nil {
			return nil, domain.StorageFailure(err, "scan booking")
		}
		bookings = append(bookings, b)
	}
	return bookings, domain.StorageFailure(rows.Err(), "read bookings")
}

// Email looks the user up in the identity service's users table.
func (r *Repository) Email(ctx context.Context, userID string) (string, error) {
	var email string
	err := r.pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", errors.Wrapf(domain.ErrUserNotFound, "user %q", userID)
	}
	if err != nil {
		return "", domain.StorageFailure(err, "read user")
	}
	return email, nil
}

// AddUser is used by seeding and tests; production rows come from the
// identity service.
func (r *Repository) AddUser(ctx context.Context, id, email string) error {
	_, err := r.pool.Exec(ctx, `UPSERT INTO users (id, email) VALUES ($1, $2)`, id, email)
	return domain.StorageFailure(err, "upsert user")
}
