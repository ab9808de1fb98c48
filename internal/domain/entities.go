package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Tour struct {
	ID              int64
	Name            string
	Description     string
	Country         string
	DepartureDate   time.Time
	ArrivalDate     time.Time
	Star            int
	BasePrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	Offerings       []Offering
	Images          []Image
}

// AvailableSeats is the sum of the tour's offering capacities. Reporting only;
// bookings are checked against a single offering.
func (t Tour) AvailableSeats() int {
	seats := 0
	for _, o := range t.Offerings {
		seats += o.AvailableCapacity
	}
	return seats
}

type Hotel struct {
	ID                int64
	Name              string
	City              string
	Type              string
	Description       string
	Star              int
	AllowChildren     bool
	FreeWifi          bool
	NutritionType     string
	AvailableCapacity int
	Images            []Image
	TourIDs           []int64
}

// Offering is a TourHotel row: the tour can be booked at the hotel. Its
// AvailableCapacity is the authoritative counter consumed by bookings.
type Offering struct {
	TourID            int64
	HotelID           int64
	AvailableCapacity int
	Hotel             Hotel
}

type OfferingKey struct {
	TourID  int64
	HotelID int64
}

func (o Offering) Key() OfferingKey {
	return OfferingKey{TourID: o.TourID, HotelID: o.HotelID}
}

// Image belongs to exactly one tour or one hotel. URL is filled in when the
// image is served and is never stored.
type Image struct {
	ID      int64
	Path    string
	URL     string
	TourID  *int64
	HotelID *int64
}

type BookedTour struct {
	ID          uuid.UUID
	UserID      string
	TourID      int64
	HotelID     int64
	PersonCount int
	TotalPrice  decimal.Decimal
	CreatedAt   time.Time
}

// Date truncates t to a calendar date in UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
