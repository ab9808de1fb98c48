package http

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/robertarktes/tour-bookings/internal/search"
)

const dateLayout = "2006-01-02"

type imageDTO struct {
	ID   int64  `json:"id"`
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
}

type hotelDTO struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	City              string     `json:"city"`
	Type              string     `json:"type"`
	Description       string     `json:"description"`
	Star              int        `json:"star"`
	AllowChildren     bool       `json:"allow_children"`
	FreeWifi          bool       `json:"free_wifi"`
	NutritionType     string     `json:"nutrition_type"`
	AvailableCapacity int        `json:"available_capacity"`
	TourIDs           []int64    `json:"tour_ids"`
	Images            []imageDTO `json:"images"`
}

type offerDTO struct {
	Hotel             hotelDTO `json:"hotel"`
	AvailableCapacity int      `json:"available_capacity"`
	UnitPrice         string   `json:"unit_price"`
}

type tourDTO struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	Country         string     `json:"country"`
	DepartureDate   string     `json:"departure_date"`
	ArrivalDate     string     `json:"arrival_date"`
	Star            int        `json:"star"`
	BasePrice       string     `json:"base_price"`
	DiscountPercent string     `json:"discount_percent"`
	AvailableSeats  int        `json:"available_seats"`
	Images          []imageDTO `json:"images"`
	Offers          []offerDTO `json:"offers"`
}

type bookingDTO struct {
	ID         uuid.UUID `json:"id"`
	UserID     string    `json:"user_id"`
	TourID     int64     `json:"tour_id"`
	HotelID    int64     `json:"hotel_id"`
	Persons    int       `json:"persons"`
	TotalPrice string    `json:"total_price"`
	CreatedAt  string    `json:"created_at"`
}

type bookingRequest struct {
	TourID  int64  `json:"tour_id" validate:"required,gt=0"`
	HotelID int64  `json:"hotel_id" validate:"required,gt=0"`
	Persons int    `json:"persons" validate:"required,gt=0"`
	UserID  string `json:"user_id" validate:"required"`
}

// fingerprint identifies the booking asked for, independent of JSON layout.
func (r bookingRequest) fingerprint() string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(r.TourID, 10) + "/" +
		strconv.FormatInt(r.HotelID, 10) + "/" +
		strconv.Itoa(r.Persons) + "/" + r.UserID))
	return hex.EncodeToString(sum[:])
}

type bookingResponse struct {
	BookingID  uuid.UUID `json:"booking_id"`
	TotalPrice string    `json:"total_price"`
	UnitPrice  string    `json:"unit_price"`
	State      string    `json:"state"`
}

// searchRequest mirrors search.Criteria. Ratings are strings so "4,5" is
// accepted; dates are calendar dates.
type searchRequest struct {
	Country        string           `json:"country"`
	MinDeparture   string           `json:"min_departure" validate:"omitempty,datetime=2006-01-02"`
	MaxArrival     string           `json:"max_arrival" validate:"omitempty,datetime=2006-01-02"`
	MinTourRating  *string          `json:"min_tour_rating"`
	MinHotelRating *string          `json:"min_hotel_rating"`
	Passengers     *int             `json:"passengers" validate:"omitempty,gte=0"`
	MinPrice       *decimal.Decimal `json:"min_price"`
	MaxPrice       *decimal.Decimal `json:"max_price"`
	City           string           `json:"city"`
	HotelType      string           `json:"hotel_type"`
	AllowChildren  *bool            `json:"allow_children"`
	FreeWifi       *bool            `json:"free_wifi"`
	Nutrition      string           `json:"nutrition"`
	Sort           string           `json:"sort" validate:"omitempty,oneof=rating"`
}

func (s searchRequest) criteria() (search.Criteria, error) {
	c := search.Criteria{
		Country:       s.Country,
		Passengers:    s.Passengers,
		MinPrice:      s.MinPrice,
		MaxPrice:      s.MaxPrice,
		City:          s.City,
		HotelType:     s.HotelType,
		AllowChildren: s.AllowChildren,
		FreeWifi:      s.FreeWifi,
		Nutrition:     s.Nutrition,
		Sort:          search.SortMode(s.Sort),
	}
	var err error
	if c.MinDeparture, err = parseDate(s.MinDeparture); err != nil {
		return c, err
	}
	if c.MaxArrival, err = parseDate(s.MaxArrival); err != nil {
		return c, err
	}
	if c.MinTourRating, err = parseRating(s.MinTourRating); err != nil {
		return c, err
	}
	if c.MinHotelRating, err = parseRating(s.MinHotelRating); err != nil {
		return c, err
	}
	return c, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "date %q", s), domain.ErrInvalidInput)
	}
	return &t, nil
}

func parseRating(s *string) (*float64, error) {
	if s == nil {
		return nil, nil
	}
	r, err := search.ParseRating(*s)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func toImages(images []domain.Image) []imageDTO {
	out := make([]imageDTO, 0, len(images))
	for _, img := range images {
		out = append(out, imageDTO{ID: img.ID, Path: img.Path, URL: img.URL})
	}
	return out
}

func toHotel(h domain.Hotel) hotelDTO {
	tourIDs := h.TourIDs
	if tourIDs == nil {
		tourIDs = []int64{}
	}
	return hotelDTO{
		ID:                h.ID,
		Name:              h.Name,
		City:              h.City,
		Type:              h.Type,
		Description:       h.Description,
		Star:              h.Star,
		AllowChildren:     h.AllowChildren,
		FreeWifi:          h.FreeWifi,
		NutritionType:     h.NutritionType,
		AvailableCapacity: h.AvailableCapacity,
		TourIDs:           tourIDs,
		Images:            toImages(h.Images),
	}
}

func toTour(r search.Result) tourDTO {
	t := r.Tour
	offers := make([]offerDTO, 0, len(r.Offers))
	for _, o := range r.Offers {
		offers = append(offers, offerDTO{
			Hotel:             toHotel(o.Hotel),
			AvailableCapacity: o.AvailableCapacity,
			UnitPrice:         o.UnitPrice.StringFixed(2),
		})
	}
	return tourDTO{
		ID:              t.ID,
		Name:            t.Name,
		Description:     t.Description,
		Country:         t.Country,
		DepartureDate:   t.DepartureDate.Format(dateLayout),
		ArrivalDate:     t.ArrivalDate.Format(dateLayout),
		Star:            t.Star,
		BasePrice:       t.BasePrice.StringFixed(2),
		DiscountPercent: t.DiscountPercent.String(),
		AvailableSeats:  t.AvailableSeats(),
		Images:          toImages(t.Images),
		Offers:          offers,
	}
}

func toTours(results []search.Result) []tourDTO {
	out := make([]tourDTO, 0, len(results))
	for _, r := range results {
		out = append(out, toTour(r))
	}
	return out
}

func toBooking(b domain.BookedTour) bookingDTO {
	return bookingDTO{
		ID:         b.ID,
		UserID:     b.UserID,
		TourID:     b.TourID,
		HotelID:    b.HotelID,
		Persons:    b.PersonCount,
		TotalPrice: b.TotalPrice.StringFixed(2),
		CreatedAt:  b.CreatedAt.UTC().Format(time.RFC3339),
	}
}
