package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"golang.org/x/sync/errgroup"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const hotelColumns = `
	SELECT h.id, h.name, h.city, h.type, h.description, h.star, h.allow_children, h.free_wifi, h.nutrition_type,
		COALESCE(SUM(th.available_capacity), 0)::INT8,
		array_remove(array_agg(th.tour_id ORDER BY th.tour_id), NULL)
	FROM hotels h LEFT JOIN tour_hotels th ON th.hotel_id = h.id
`

// Tours reads the whole catalog. The reads run concurrently and are
// not one snapshot; a booking landing in between can make a tour's seat
// count differ from the sum over its hotels by that booking.
func (r *Repository) Tours(ctx context.Context) ([]domain.Tour, error) {
	return r.tours(ctx, nil)
}

func (r *Repository) Tour(ctx context.Context, id int64) (domain.Tour, error) {
	tours, err := r.tours(ctx, []int64{id})
	if err != nil {
		return domain.Tour{}, err
	}
	if len(tours) == 0 {
		return domain.Tour{}, errors.Wrapf(domain.ErrTourNotFound, "tour %d", id)
	}
	return tours[0], nil
}

func (r *Repository) tours(ctx context.Context, ids []int64) ([]domain.Tour, error) {
	var (
		tours  []domain.Tour
		hotels map[int64]domain.Hotel
		links  []domain.Offering
		images []domain.Image
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tours, err = loadTours(gctx, r.pool, ids)
		return err
	})
	g.Go(func() (err error) {
		hs, err := loadHotels(gctx, r.pool, hotelFilter{tourIDs: ids})
		hotels = make(map[int64]domain.Hotel, len(hs))
		for _, h := range hs {
			hotels[h.ID] = h
		}
		return err
	})
	g.Go(func() (err error) {
		links, err = loadOfferings(gctx, r.pool, ids)
		return err
	})
	g.Go(func() (err error) {
		images, err = loadImages(gctx, r.pool, `tour_id IS NOT NULL AND ($1::INT8[] IS NULL OR tour_id = ANY($1))`, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	index := make(map[int64]int, len(tours))
	for i, t := range tours {
		index[t.ID] = i
	}
	for _, o := range links {
		i, ok := index[o.TourID]
		if !ok {
			continue
		}
		o.Hotel = hotels[o.HotelID]
		tours[i].Offerings = append(tours[i].Offerings, o)
	}
	for _, img := range images {
		if img.TourID == nil {
			continue
		}
		if i, ok := index[*img.TourID]; ok {
			tours[i].Images = append(tours[i].Images, img)
		}
	}
	return tours, nil
}

func (r *Repository) Offering(ctx context.Context, tourID, hotelID int64) (domain.Offering, error) {
	o := domain.Offering{TourID: tourID, HotelID: hotelID}
	err := r.pool.QueryRow(ctx, `
		SELECT available_capacity FROM tour_hotels WHERE tour_id = $1 AND hotel_id = $2
	`, tourID, hotelID).Scan(&o.AvailableCapacity)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Offering{}, errors.Wrapf(domain.ErrOfferingNotFound, "tour %d hotel %d", tourID, hotelID)
	}
	if err != nil {
		return domain.Offering{}, domain.StorageFailure(err, "read offering")
	}
	hotels, err := r.Hotels(ctx, []int64{hotelID})
	if err != nil {
		return domain.Offering{}, err
	}
	if len(hotels) == 1 {
		o.Hotel = hotels[0]
	}
	return o, nil
}

// Hotels returns the hotels among ids that exist, in the order asked, with
// their images attached.
func (r *Repository) Hotels(ctx context.Context, ids []int64) ([]domain.Hotel, error) {
	if len(ids) == 0 {
		return []domain.Hotel{}, nil
	}
	found, err := loadHotels(ctx, r.pool, hotelFilter{ids: ids})
	if err != nil {
		return nil, err
	}
	images, err := loadImages(ctx, r.pool, `hotel_id = ANY($1::INT8[])`, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]domain.Hotel, len(found))
	for _, h := range found {
		byID[h.ID] = h
	}
	for _, img := range images {
		if img.HotelID == nil {
			continue
		}
		if h, ok := byID[*img.HotelID]; ok {
			h.Images = append(h.Images, img)
			byID[h.ID] = h
		}
	}
	hotels := make([]domain.Hotel, 0, len(ids))
	for _, id := range ids {
		if h, ok := byID[id]; ok {
			hotels = append(hotels, h)
		}
	}
	return hotels, nil
}

func (r *Repository) CreateTour(ctx context.Context, t domain.Tour) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tours (id, name, description, country, departure_date, arrival_date, star, base_price, discount_percent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.Name, t.Description, t.Country, domain.Date(t.DepartureDate), domain.Date(t.ArrivalDate), t.Star, t.BasePrice, t.DiscountPercent)
	return domain.StorageFailure(err, "insert tour")
}

func (r *Repository) CreateHotel(ctx context.Context, h domain.Hotel) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO hotels (id, name, city, type, description, star, allow_children, free_wifi, nutrition_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, h.ID, h.Name, h.City, h.Type, h.Description, h.Star, h.AllowChildren, h.FreeWifi, h.NutritionType)
	return domain.StorageFailure(err, "insert hotel")
}

// AddOffering links a tour to a hotel. Linking the same pair twice is a
// conflict; the existing capacity is left untouched.
func (r *Repository) AddOffering(ctx context.Context, tourID, hotelID int64, capacity int) error {
	if capacity < 0 {
		return errors.Wrapf(domain.ErrInvalidInput, "capacity %d", capacity)
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO tour_hotels (tour_id, hotel_id, available_capacity) VALUES ($1, $2, $3)
		ON CONFLICT (tour_id, hotel_id) DO NOTHING
	`, tourID, hotelID, capacity)
	if err != nil {
		return domain.StorageFailure(err, "insert offering")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrConflict, "offering %d/%d exists", tourID, hotelID)
	}
	return nil
}

func (r *Repository) AddImage(ctx context.Context, img domain.Image) error {
	if (img.TourID == nil) == (img.HotelID == nil) {
		return errors.Wrap(domain.ErrInvalidInput, "image must belong to exactly one tour or hotel")
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO images (id, path, tour_id, hotel_id) VALUES ($1, $2, $3, $4)
	`, img.ID, img.Path, img.TourID, img.HotelID)
	return domain.StorageFailure(err, "insert image")
}

func loadTours(ctx context.Context, q querier, ids []int64) ([]domain.Tour, error) {
	rows, err := q.Query(ctx, `
		SELECT id, name, description, country, departure_date, arrival_date, star, base_price, discount_percent
		FROM tours WHERE $1::INT8[] IS NULL OR id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, domain.StorageFailure(err, "query tours")
	}
	defer rows.Close()

	tours := []domain.Tour{}
	for rows.Next() {
		var t domain.Tour
		err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Country, &t.DepartureDate, &t.ArrivalDate, &t.Star, &t.BasePrice, &t.DiscountPercent)
		if err != nil {
			return nil, domain.StorageFailure(err, "scan tour")
		}
		tours = append(tours, t)
	}
	return tours, domain.StorageFailure(rows.Err(), "read tours")
}

// hotelFilter narrows loadHotels. A nil field does not filter.
type hotelFilter struct {
	ids     []int64
	tourIDs []int64 // hotels offered by any of these tours
}

func loadHotels(ctx context.Context, q querier, f hotelFilter) ([]domain.Hotel, error) {
	rows, err := q.Query(ctx, hotelColumns+`
		WHERE ($1::INT8[] IS NULL OR h.id = ANY($1))
			AND ($2::INT8[] IS NULL OR h.id IN (SELECT hotel_id FROM tour_hotels WHERE tour_id = ANY($2)))
		GROUP BY h.id, h.name, h.city, h.type, h.description, h.star, h.allow_children, h.free_wifi, h.nutrition_type
		ORDER BY h.id
	`, f.ids, f.tourIDs)
	if err != nil {
		return nil, domain.StorageFailure(err, "query hotels")
	}
	defer rows.Close()

	var hotels []domain.Hotel
	for rows.Next() {
		var h domain.Hotel
		err := rows.Scan(&h.ID, &h.Name, &h.City, &h.Type, &h.Description, &h.Star, &h.AllowChildren, &h.FreeWifi, &h.NutritionType, &h.AvailableCapacity, &h.TourIDs)
		if err != nil {
			return nil, domain.StorageFailure(err, "scan hotel")
		}
		hotels = append(hotels, h)
	}
	return hotels, domain.StorageFailure(rows.Err(), "read hotels")
}

func loadOfferings(ctx context.Context, q querier, tourIDs []int64) ([]domain.Offering, error) {
	rows, err := q.Query(ctx, `
		SELECT tour_id, hotel_id, available_capacity FROM tour_hotels
		WHERE $1::INT8[] IS NULL OR tour_id = ANY($1)
		ORDER BY tour_id, hotel_id
	`, tourIDs)
	if err != nil {
		return nil, domain.StorageFailure(err, "query offerings")
	}
	defer rows.Close()

	var offerings []domain.Offering
	for rows.Next() {
		var o domain.Offering
		if err := rows.Scan(&o.TourID, &o.HotelID, &o.AvailableCapacity); err != nil {
			return nil, domain.StorageFailure(err, "scan offering")
		}
		offerings = append(offerings, o)
	}
	return offerings, domain.StorageFailure(rows.Err(), "read offerings")
}

// loadImages reads the images matching where, which takes one INT8[]
// argument.
func loadImages(ctx context.Context, q querier, where string, ids []int64) ([]domain.Image, error) {
	rows, err := q.Query(ctx, `SELECT id, path, tour_id, hotel_id FROM images WHERE `+where+` ORDER BY id`, ids)
	if err != nil {
		return nil, domain.StorageFailure(err, "query images")
	}
	defer rows.Close()

	var images []domain.Image
	for rows.Next() {
		var img domain.Image
		if err := rows.Scan(&img.ID, &img.Path, &img.TourID, &img.HotelID); err != nil {
			return nil, domain.StorageFailure(err, "scan image")
		}
		images = append(images, img)
	}
	return images, domain.StorageFailure(rows.Err(), "read images")
}
