package memory_test

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-bookings/internal/adapters/memory"
	"github.com/robertarktes/tour-bookings/internal/booking"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func seeded(t *testing.T, capacity int) (*memory.Store, domain.OfferingKey) {
	t.Helper()
	s := memory.NewStore()
	s.AddTour(domain.Tour{ID: 1, Name: "Nile", Country: "Egypt"})
	s.AddHotel(domain.Hotel{ID: 10, Name: "Cairo Inn", Star: 3})
	require.NoError(t, s.AddOffering(1, 10, capacity))
	return s, domain.OfferingKey{TourID: 1, HotelID: 10}
}

func reserve(ctx context.Context, s *memory.Store, key domain.OfferingKey, n int) error {
	return s.InTx(ctx, func(tx booking.Tx) error {
		_, err := tx.TryReserve(ctx, key, n)
		return err
	})
}

func TestTryReserve_ConcurrentConservesCapacity(t *testing.T) {
	const initial = 100
	s, key := seeded(t, initial)
	ctx := context.Background()

	var reserved atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 64; i++ {
		n := rand.Intn(7) + 1
		g.Go(func() error {
			err := reserve(gctx, s, key, n)
			switch {
			case err == nil:
				reserved.Add(int64(n))
			case errors.Is(err, domain.ErrInsufficientCapacity):
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	left := s.Capacity(key)
	assert.GreaterOrEqual(t, left, 0)
	assert.Equal(t, initial-int(reserved.Load()), left)
}

func TestTryReserve_ThreeAndThreeOfFive(t *testing.T) {
	s, key := seeded(t, 5)
	ctx := context.Background()

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- reserve(ctx, s, key, 3) }()
	}
	var ok, rejected int
	for i := 0; i < 2; i++ {
		err := <-errs
		if err == nil {
			ok++
		} else if errors.Is(err, domain.ErrInsufficientCapacity) {
			rejected++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 2, s.Capacity(key))
}

func TestTryReserve_UnknownOffering(t *testing.T) {
	s, _ := seeded(t, 5)
	err := reserve(context.Background(), s, domain.OfferingKey{TourID: 1, HotelID: 99}, 1)
	assert.True(t, errors.Is(err, domain.ErrOfferingNotFound))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s, key := seeded(t, 5)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx booking.Tx) error {
		if _, err := tx.TryReserve(ctx, key, 2); err != nil {
			return err
		}
		if err := tx.InsertBooking(ctx, domain.BookedTour{UserID: "u"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 5, s.Capacity(key))
	assert.Empty(t, s.Bookings())
}

func TestInTx_CancelledContextCommitsNothing(t *testing.T) {
	s, key := seeded(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := reserve(ctx, s, key, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, s.Capacity(key))
}

func TestAddOffering_Duplicate(t *testing.T) {
	s, _ := seeded(t, 5)
	err := s.AddOffering(1, 10, 3)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestAddImage_ExactlyOneOwner(t *testing.T) {
	s := memory.NewStore()
	id := int64(1)
	assert.Error(t, s.AddImage(domain.Image{Path: "a.jpg"}))
	assert.Error(t, s.AddImage(domain.Image{Path: "a.jpg", TourID: &id, HotelID: &id}))
	assert.NoError(t, s.AddImage(domain.Image{Path: "a.jpg", TourID: &id}))
}
