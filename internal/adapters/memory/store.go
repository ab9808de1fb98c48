// Package memory is an in-process catalog and booking store. Transactions are
// serialized by a single mutex, so the capacity check-and-decrement in
// TryReserve is atomic with respect to every other transaction.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/tour-bookings/internal/booking"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/robertarktes/tour-bookings/internal/notification"
)

type Store struct {
	mu sync.Mutex

	tours     map[int64]domain.Tour
	tourOrder []int64
	hotels    map[int64]domain.Hotel
	capacity  map[domain.OfferingKey]int
	offerings []domain.OfferingKey
	images    []domain.Image
	users     map[string]string

	bookings []domain.BookedTour
	outbox   []notification.Message
}

func NewStore() *Store {
	return &Store{
		tours:    map[int64]domain.Tour{},
		hotels:   map[int64]domain.Hotel{},
		capacity: map[domain.OfferingKey]int{},
		users:    map[string]string{},
	}
}

func (s *Store) AddTour(t domain.Tour) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tours[t.ID]; !ok {
		s.tourOrder = append(s.tourOrder, t.ID)
	}
	t.Offerings, t.Images = nil, nil
	s.tours[t.ID] = t
}

func (s *Store) AddHotel(h domain.Hotel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h.Images, h.TourIDs, h.AvailableCapacity = nil, nil, 0
	s.hotels[h.ID] = h
}

func (s *Store) AddOffering(tourID, hotelID int64, capacity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tours[tourID]; !ok {
		return domain.ErrTourNotFound
	}
	if _, ok := s.hotels[hotelID]; !ok {
		return domain.ErrHotelNotFound
	}
	if capacity < 0 {
		return errors.Wrapf(domain.ErrInvalidInput, "capacity %d", capacity)
	}
	key := domain.OfferingKey{TourID: tourID, HotelID: hotelID}
	if _, ok := s.capacity[key]; ok {
		return errors.Wrapf(domain.ErrConflict, "offering %d/%d exists", tourID, hotelID)
	}
	s.capacity[key] = capacity
	s.offerings = append(s.offerings, key)
	return nil
}

func (s *Store) AddImage(img domain.Image) error {
	if (img.TourID == nil) == (img.HotelID == nil) {
		return errors.Wrap(domain.ErrInvalidInput, "image must belong to exactly one tour or hotel")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, img)
	return nil
}

func (s *Store) AddUser(id, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = email
}

func (s *Store) Capacity(key domain.OfferingKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity[key]
}

func (s *Store) Bookings() []domain.BookedTour {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.bookings)
}

func (s *Store) Outbox() []notification.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.outbox)
}

func (s *Store) Tours(ctx context.Context) ([]domain.Tour, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tours := make([]domain.Tour, 0, len(s.tourOrder))
	for _, id := range s.tourOrder {
		tours = append(tours, s.assembleTour(id))
	}
	return tours, nil
}

func (s *Store) Tour(ctx context.Context, id int64) (domain.Tour, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tours[id]; !ok {
		return domain.Tour{}, errors.Wrapf(domain.ErrTourNotFound, "tour %d", id)
	}
	return s.assembleTour(id), nil
}

func (s *Store) Offering(ctx context.Context, tourID, hotelID int64) (domain.Offering, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.OfferingKey{TourID: tourID, HotelID: hotelID}
	c, ok := s.capacity[key]
	if !ok {
		return domain.Offering{}, errors.Wrapf(domain.ErrOfferingNotFound, "tour %d hotel %d", tourID, hotelID)
	}
	return domain.Offering{TourID: tourID, HotelID: hotelID, AvailableCapacity: c, Hotel: s.assembleHotel(hotelID)}, nil
}

// Hotels returns the hotels among ids that exist, in the order asked.
func (s *Store) Hotels(ctx context.Context, ids []int64) ([]domain.Hotel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hotels := []domain.Hotel{}
	for _, id := range ids {
		if _, ok := s.hotels[id]; ok {
			hotels = append(hotels, s.assembleHotel(id))
		}
	}
	return hotels, nil
}

func (s *Store) Email(ctx context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.users[userID]
	if !ok {
		return "", errors.Wrapf(domain.ErrUserNotFound, "user %q", userID)
	}
	return email, nil
}

func (s *Store) Booking(ctx context.Context, id uuid.UUID) (domain.BookedTour, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.ID == id {
			return b, nil
		}
	}
	return domain.BookedTour{}, errors.Wrapf(domain.ErrBookingNotFound, "booking %s", id)
}

func (s *Store) BookingsByUser(ctx context.Context, userID string) ([]domain.BookedTour, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.BookedTour{}
	for _, b := range s.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

// InTx runs fn while holding the store lock and discards everything fn did
// if it fails or ctx ends first.
func (s *Store) InTx(ctx context.Context, fn func(tx booking.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	capacity := maps.Clone(s.capacity)
	nBookings, nOutbox := len(s.bookings), len(s.outbox)

	tx := &memTx{s: s}
	err := fn(tx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.capacity = capacity
		s.bookings = s.bookings[:nBookings]
		s.outbox = s.outbox[:nOutbox]
		return err
	}
	return nil
}

type memTx struct {
	s *Store
}

func (t *memTx) TryReserve(ctx context.Context, key domain.OfferingKey, persons int) (domain.Reservation, error) {
	if persons <= 0 {
		return domain.Reservation{}, errors.Wrapf(domain.ErrInvalidInput, "person count %d", persons)
	}
	c, ok := t.s.capacity[key]
	if !ok {
		return domain.Reservation{}, errors.Wrapf(domain.ErrOfferingNotFound, "tour %d hotel %d", key.TourID, key.HotelID)
	}
	if c < persons {
		return domain.Reservation{}, errors.Wrapf(domain.ErrInsufficientCapacity, "%d requested, %d left", persons, c)
	}
	t.s.capacity[key] = c - persons
	return domain.NewReservation(key, persons, c-persons), nil
}

func (t *memTx) InsertBooking(ctx context.Context, b domain.BookedTour) error {
	for _, existing := range t.s.bookings {
		if existing.ID == b.ID {
			return errors.Wrapf(domain.ErrBookingExists, "booking %s", b.ID)
		}
	}
	t.s.bookings = append(t.s.bookings, b)
	return nil
}

func (t *memTx) EnqueueNotification(ctx context.Context, msg notification.Message) error {
	t.s.outbox = append(t.s.outbox, msg)
	return nil
}

func (s *Store) assembleTour(id int64) domain.Tour {
	t := s.tours[id]
	for _, key := range s.offerings {
		if key.TourID == id {
			t.Offerings = append(t.Offerings, domain.Offering{
				TourID:            key.TourID,
				HotelID:           key.HotelID,
				AvailableCapacity: s.capacity[key],
				Hotel:             s.assembleHotel(key.HotelID),
			})
		}
	}
	for _, img := range s.images {
		if img.TourID != nil && *img.TourID == id {
			t.Images = append(t.Images, img)
		}
	}
	return t
}

func (s *Store) assembleHotel(id int64) domain.Hotel {
	h := s.hotels[id]
	for _, key := range s.offerings {
		if key.HotelID == id {
			h.AvailableCapacity += s.capacity[key]
			h.TourIDs = append(h.TourIDs, key.TourID)
		}
	}
	for _, img := range s.images {
		if img.HotelID != nil && *img.HotelID == id {
			h.Images = append(h.Images, img)
		}
	}
	return h
}
