package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertarktes/tour-bookings/internal/adapters/memory"
	"github.com/robertarktes/tour-bookings/internal/catalog"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/robertarktes/tour-bookings/internal/observability"
)

type countingStore struct {
	*memory.Store
	hotelReads int
}

func (c *countingStore) Hotels(ctx context.Context, ids []int64) ([]domain.Hotel, error) {
	c.hotelReads++
	return c.Store.Hotels(ctx, ids)
}

type mapCache struct {
	hotels map[int64]domain.Hotel
	ttl    time.Duration
	err    error
}

func (m *mapCache) Hotel(ctx context.Context, id int64) (domain.Hotel, bool, error) {
	if m.err != nil {
		return domain.Hotel{}, false, m.err
	}
	h, ok := m.hotels[id]
	return h, ok, nil
}

func (m *mapCache) SetHotel(ctx context.Context, h domain.Hotel, ttl time.Duration) error {
	m.hotels[h.ID] = h
	m.ttl = ttl
	return nil
}

func (m *mapCache) InvalidateHotel(ctx context.Context, ids ...int64) error {
	for _, id := range ids {
		delete(m.hotels, id)
	}
	return nil
}

type prefixLinker struct{}

func (prefixLinker) URL(ctx context.Context, path string) (string, error) {
	return "https://img.example.com/" + path, nil
}

func newFixture(t *testing.T) (*countingStore, *mapCache, *catalog.Service) {
	t.Helper()
	mem := memory.NewStore()
	mem.AddTour(domain.Tour{ID: 1, Name: "Nile", Country: "Egypt"})
	mem.AddHotel(domain.Hotel{ID: 10, Name: "Pyramids Inn", City: "Cairo"})
	mem.AddHotel(domain.Hotel{ID: 11, Name: "Luxor Palace", City: "Luxor"})
	require.NoError(t, mem.AddOffering(1, 10, 5))
	hotelID := int64(10)
	require.NoError(t, mem.AddImage(domain.Image{ID: 1, Path: "hotels/10.jpg", HotelID: &hotelID}))

	store := &countingStore{Store: mem}
	cache := &mapCache{hotels: map[int64]domain.Hotel{}}
	return store, cache, catalog.NewService(store, cache, prefixLinker{}, time.Minute, observability.NewDiscardLogger())
}

func TestService_HotelsInRequestedOrder(t *testing.T) {
	_, _, svc := newFixture(t)

	hotels, err := svc.Hotels(context.Background(), []int64{11, 99, 10})
	require.NoError(t, err)
	require.Len(t, hotels, 2)
	assert.Equal(t, int64(11), hotels[0].ID)
	assert.Equal(t, int64(10), hotels[1].ID)
	assert.Equal(t, 5, hotels[1].AvailableCapacity)
	require.Len(t, hotels[1].Images, 1)
	assert.Equal(t, "https://img.example.com/hotels/10.jpg", hotels[1].Images[0].URL)
}

func TestService_HotelCacheAside(t *testing.T) {
	store, cache, svc := newFixture(t)
	ctx := context.Background()

	_, err := svc.Hotel(ctx, 10)
	require.NoError(t, err)
	_, err = svc.Hotel(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, store.hotelReads)
	assert.Equal(t, time.Minute, cache.ttl)
	assert.Empty(t, cache.hotels[10].Images[0].URL, "links must not be cached")

	svc.Invalidate(ctx, 10)
	_, err = svc.Hotel(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, store.hotelReads)
}

func TestService_CacheFailureFallsBackToStore(t *testing.T) {
	_, cache, svc := newFixture(t)
	cache.err = errors.New("redis down")

	h, err := svc.Hotel(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, "Luxor Palace", h.Name)
}

func TestService_UnknownHotel(t *testing.T) {
	_, _, svc := newFixture(t)

	_, err := svc.Hotel(context.Background(), 99)
	assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
}

func TestService_ToursLinkImages(t *testing.T) {
	_, _, svc := newFixture(t)

	tours, err := svc.Tours(context.Background())
	require.NoError(t, err)
	require.Len(t, tours, 1)
	require.Len(t, tours[0].Offerings, 1)
	assert.Equal(t, "https://img.example.com/hotels/10.jpg", tours[0].Offerings[0].Hotel.Images[0].URL)
}
