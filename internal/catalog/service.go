// Package catalog serves tours and hotels to readers, with a hotel cache in
// front of the store and image paths resolved to download links.
package catalog

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/robertarktes/tour-bookings/internal/observability"
)

type Store interface {
	Tours(ctx context.Context) ([]domain.Tour, error)
	Hotels(ctx context.Context, ids []int64) ([]domain.Hotel, error)
}

type Cache interface {
	Hotel(ctx context.Context, id int64) (domain.Hotel, bool, error)
	SetHotel(ctx context.Context, h domain.Hotel, ttl time.Duration) error
	InvalidateHotel(ctx context.Context, ids ...int64) error
}

type Linker interface {
	URL(ctx context.Context, path string) (string, error)
}

type Service struct {
	store  Store
	cache  Cache
	linker Linker
	ttl    time.Duration
	logger observability.Logger
}

// NewService wires the catalog. cache and linker are optional.
func NewService(store Store, cache Cache, linker Linker, ttl time.Duration, logger observability.Logger) *Service {
	return &Service{store: store, cache: cache, linker: linker, ttl: ttl, logger: logger}
}

// Tours satisfies search.Source.
func (s *Service) Tours(ctx context.Context) ([]domain.Tour, error) {
	tours, err := s.store.Tours(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tours {
		s.link(ctx, tours[i].Images)
		for j := range tours[i].Offerings {
			s.link(ctx, tours[i].Offerings[j].Hotel.Images)
		}
	}
	return tours, nil
}

func (s *Service) Hotel(ctx context.Context, id int64) (domain.Hotel, error) {
	hotels, err := s.Hotels(ctx, []int64{id})
	if err != nil {
		return domain.Hotel{}, err
	}
	if len(hotels) == 0 {
		return domain.Hotel{}, errors.Wrapf(domain.ErrHotelNotFound, "hotel %d", id)
	}
	return hotels[0], nil
}

// Hotels returns the hotels among ids that exist, in the order asked.
// Unknown ids are skipped.
func (s *Service) Hotels(ctx context.Context, ids []int64) ([]domain.Hotel, error) {
	found := make(map[int64]domain.Hotel, len(ids))
	var misses []int64
	for _, id := range ids {
		if _, seen := found[id]; seen {
			continue
		}
		if h, ok := s.cached(ctx, id); ok {
			found[id] = h
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) > 0 {
		loaded, err := s.store.Hotels(ctx, misses)
		if err != nil {
			return nil, err
		}
		for _, h := range loaded {
			found[h.ID] = h
			s.remember(ctx, h)
		}
	}

	hotels := make([]domain.Hotel, 0, len(ids))
	for _, id := range ids {
		if h, ok := found[id]; ok {
			h.Images = append([]domain.Image(nil), h.Images...)
			s.link(ctx, h.Images)
			hotels = append(hotels, h)
		}
	}
	return hotels, nil
}

// Invalidate drops cached hotels whose capacity or content changed.
func (s *Service) Invalidate(ctx context.Context, ids ...int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateHotel(ctx, ids...); err != nil {
		s.logger.WithError(err).Warn("failed to invalidate hotel cache")
	}
}

func (s *Service) cached(ctx context.Context, id int64) (domain.Hotel, bool) {
	if s.cache == nil {
		return domain.Hotel{}, false
	}
	h, ok, err := s.cache.Hotel(ctx, id)
	if err != nil {
		s.logger.WithField("hotel_id", id).WithError(err).Warn("hotel cache read failed")
		return domain.Hotel{}, false
	}
	return h, ok
}

func (s *Service) remember(ctx context.Context, h domain.Hotel) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetHotel(ctx, h, s.ttl); err != nil {
		s.logger.WithField("hotel_id", h.ID).WithError(err).Warn("hotel cache write failed")
	}
}

// link fills in image URLs. An image whose link cannot be made is served
// without one.
func (s *Service) link(ctx context.Context, images []domain.Image) {
	if s.linker == nil {
		return
	}
	for i := range images {
		url, err := s.linker.URL(ctx, images[i].Path)
		if err != nil {
			s.logger.WithField("path", images[i].Path).WithError(err).Warn("failed to link image")
			continue
		}
		images[i].URL = url
	}
}
