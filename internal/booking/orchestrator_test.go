package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/tour-bookings/internal/adapters/memory"
	"github.com/robertarktes/tour-bookings/internal/booking"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/robertarktes/tour-bookings/internal/notification"
	"github.com/robertarktes/tour-bookings/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = domain.OfferingKey{TourID: 1, HotelID: 10}

func newFixture(t *testing.T, capacity int) (*memory.Store, *memory.AuditLog, *booking.Orchestrator) {
	t.Helper()
	s := memory.NewStore()
	s.AddTour(domain.Tour{
		ID:              1,
		Name:            "Pyramids",
		Country:         "Egypt",
		DepartureDate:   time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
		ArrivalDate:     time.Date(2026, 12, 10, 0, 0, 0, 0, time.UTC),
		Star:            4,
		BasePrice:       decimal.NewFromInt(1000),
		DiscountPercent: decimal.NewFromInt(10),
	})
	s.AddHotel(domain.Hotel{ID: 10, Name: "Giza Palace", Star: 4})
	s.AddHotel(domain.Hotel{ID: 11, Name: "Broken", Star: 9})
	require.NoError(t, s.AddOffering(1, 10, capacity))
	require.NoError(t, s.AddOffering(1, 11, capacity))
	s.AddUser("u-1", "guest@example.com")

	audit := &memory.AuditLog{}
	return s, audit, booking.NewOrchestrator(s, s, audit, observability.NewDiscardLogger())
}

func TestBook_Confirms(t *testing.T) {
	s, audit, o := newFixture(t, 5)

	conf, err := o.Book(context.Background(), booking.Request{TourID: 1, HotelID: 10, Persons: 2, UserID: "u-1"})
	require.NoError(t, err)

	assert.Equal(t, domain.StateNotificationSent, conf.State)
	assert.Equal(t, "1260.00", conf.UnitPrice.StringFixed(2))
	assert.Equal(t, "2520.00", conf.Booking.TotalPrice.StringFixed(2))
	assert.Equal(t, 3, conf.Remaining)
	assert.Equal(t, 3, s.Capacity(key))

	require.Len(t, s.Bookings(), 1)
	assert.Equal(t, conf.Booking.ID, s.Bookings()[0].ID)

	outbox := s.Outbox()
	require.Len(t, outbox, 1)
	assert.Equal(t, "guest@example.com", outbox[0].Recipient)
	assert.Equal(t, conf.Booking.ID, outbox[0].BookingID)
	assert.Equal(t, "2520.00", outbox[0].TotalPrice)

	entries := audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "booking.confirmed", entries[0].Action)

	got, err := o.Get(context.Background(), conf.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, conf.Booking.ID, got.ID)
	list, err := o.ListByUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBook_RejectionsChangeNothing(t *testing.T) {
	cases := []struct {
		name  string
		req   booking.Request
		class error
		state domain.BookingState
	}{
		{"zero persons", booking.Request{TourID: 1, HotelID: 10, Persons: 0, UserID: "u-1"}, domain.ErrInvalidInput, domain.StateRejected},
		{"negative persons", booking.Request{TourID: 1, HotelID: 10, Persons: -2, UserID: "u-1"}, domain.ErrInvalidInput, domain.StateRejected},
		{"no user", booking.Request{TourID: 1, HotelID: 10, Persons: 1}, domain.ErrInvalidInput, domain.StateRejected},
		{"unknown tour", booking.Request{TourID: 7, HotelID: 10, Persons: 1, UserID: "u-1"}, domain.ErrTourNotFound, domain.StateRejected},
		{"hotel not offered", booking.Request{TourID: 1, HotelID: 12, Persons: 1, UserID: "u-1"}, domain.ErrOfferingNotFound, domain.StateRejected},
		{"unknown user", booking.Request{TourID: 1, HotelID: 10, Persons: 1, UserID: "ghost"}, domain.ErrUserNotFound, domain.StateRejected},
		{"too many persons", booking.Request{TourID: 1, HotelID: 10, Persons: 6, UserID: "u-1"}, domain.ErrInsufficientCapacity, domain.StateRejected},
		{"corrupt hotel stars", booking.Request{TourID: 1, HotelID: 11, Persons: 1, UserID: "u-1"}, domain.ErrInvalidPricingInput, domain.StateRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, audit, o := newFixture(t, 5)

			conf, err := o.Book(context.Background(), tc.req)
			assert.Nil(t, conf)
			assert.True(t, errors.Is(err, tc.class), "got %v", err)

			var rej *booking.Rejection
			require.True(t, errors.As(err, &rej))
			assert.Equal(t, tc.state, rej.State)

			assert.Equal(t, 5, s.Capacity(key))
			assert.Empty(t, s.Bookings())
			assert.Empty(t, s.Outbox())
			require.Len(t, audit.Entries(), 1)
			assert.Equal(t, "booking.rejected", audit.Entries()[0].Action)
		})
	}
}

func TestBook_ThreeAndThreeOfFive(t *testing.T) {
	s, _, o := newFixture(t, 5)
	req := booking.Request{TourID: 1, HotelID: 10, Persons: 3, UserID: "u-1"}

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := o.Book(context.Background(), req)
			errs <- err
		}()
	}
	var failures []error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			failures = append(failures, err)
		}
	}
	require.Len(t, failures, 1)
	assert.True(t, errors.Is(failures[0], domain.ErrInsufficientCapacity))
	assert.Equal(t, 2, s.Capacity(key))
	assert.Len(t, s.Bookings(), 1)
}

type failingStore struct {
	*memory.Store
	err error
}

func (f failingStore) InTx(ctx context.Context, fn func(tx booking.Tx) error) error {
	return f.Store.InTx(ctx, func(tx booking.Tx) error {
		return fn(failingTx{Tx: tx, err: f.err})
	})
}

type failingTx struct {
	booking.Tx
	err error
}

func (f failingTx) InsertBooking(ctx context.Context, b domain.BookedTour) error {
	return f.err
}

func TestBook_StorageFailureRollsBackReservation(t *testing.T) {
	s, audit, _ := newFixture(t, 5)
	o := booking.NewOrchestrator(failingStore{Store: s, err: errors.New("disk full")}, s, audit, observability.NewDiscardLogger())

	_, err := o.Book(context.Background(), booking.Request{TourID: 1, HotelID: 10, Persons: 2, UserID: "u-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStorageFailure), "got %v", err)

	var rej *booking.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, domain.StateFailed, rej.State)
	assert.Equal(t, domain.StateCapacityReserved, rej.At)

	assert.Equal(t, 5, s.Capacity(key))
	assert.Empty(t, s.Bookings())
	assert.Empty(t, s.Outbox())
}

func TestBook_CancelledBeforeReserveLeavesNoMutation(t *testing.T) {
	s, _, o := newFixture(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Book(ctx, booking.Request{TourID: 1, HotelID: 10, Persons: 1, UserID: "u-1"})
	assert.ErrorIs(t, err, context.Canceled)
	var rej *booking.Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, domain.StateFailed, rej.State)
	assert.Equal(t, 5, s.Capacity(key))
}

func TestBook_NotificationMessageDecodes(t *testing.T) {
	s, _, o := newFixture(t, 5)
	_, err := o.Book(context.Background(), booking.Request{TourID: 1, HotelID: 10, Persons: 1, UserID: "u-1"})
	require.NoError(t, err)

	data, err := s.Outbox()[0].Encode()
	require.NoError(t, err)
	msg, err := notification.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "Giza Palace", msg.HotelName)
	assert.Equal(t, "2026-12-01", msg.DepartureDate)
}

func TestListByUser_RequiresUser(t *testing.T) {
	_, _, o := newFixture(t, 5)
	_, err := o.ListByUser(context.Background(), " ")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

// ambiguousStore commits the unit of work but reports a timeout, the way a
// commit acknowledgement lost to a deadline looks to the caller. Its
// Booking lookup misses while hideBookings is set.
type ambiguousStore struct {
	*memory.Store
	lost         bool
	hideBookings bool
}

func (a *ambiguousStore) InTx(ctx context.Context, fn func(tx booking.Tx) error) error {
	if err := a.Store.InTx(ctx, fn); err != nil {
		return err
	}
	if a.lost {
		a.lost = false
		return context.DeadlineExceeded
	}
	return nil
}

func (a *ambiguousStore) Booking(ctx context.Context, id uuid.UUID) (domain.BookedTour, error) {
	if a.hideBookings {
		a.hideBookings = false
		return domain.BookedTour{}, domain.ErrBookingNotFound
	}
	return a.Store.Booking(ctx, id)
}

func TestBook_RepeatedIDReturnsRecordedBooking(t *testing.T) {
	s, _, o := newFixture(t, 5)
	req := booking.Request{ID: uuid.New(), TourID: 1, HotelID: 10, Persons: 2, UserID: "u-1"}

	first, err := o.Book(context.Background(), req)
	require.NoError(t, err)
	again, err := o.Book(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, again.Replayed)
	assert.Equal(t, first.Booking.ID, again.Booking.ID)
	assert.Equal(t, "1260.00", again.UnitPrice.StringFixed(2))
	assert.Equal(t, 3, again.Remaining)
	assert.Len(t, s.Bookings(), 1)
	assert.Len(t, s.Outbox(), 1)
	assert.Equal(t, 3, s.Capacity(key))

	req.Persons = 1
	_, err = o.Book(context.Background(), req)
	assert.True(t, errors.Is(err, domain.ErrConflict), "got %v", err)
	assert.Equal(t, 3, s.Capacity(key))
}

func TestBook_RetryAfterLostCommitDoesNotBookTwice(t *testing.T) {
	s, audit, _ := newFixture(t, 5)
	store := &ambiguousStore{Store: s, lost: true}
	o := booking.NewOrchestrator(store, s, audit, observability.NewDiscardLogger())
	req := booking.Request{ID: uuid.New(), TourID: 1, HotelID: 10, Persons: 2, UserID: "u-1"}

	_, err := o.Book(context.Background(), req)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	require.Len(t, s.Bookings(), 1, "the lost commit did land")

	// The retry misses the prior booking on its first read and only finds
	// it when the insert collides.
	store.hideBookings = true
	conf, err := o.Book(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, conf.Replayed)
	assert.Equal(t, req.ID, conf.Booking.ID)
	assert.Len(t, s.Bookings(), 1)
	assert.Len(t, s.Outbox(), 1)
	assert.Equal(t, 3, s.Capacity(key))
}
