package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingState string

const (
	StateReceived         BookingState = "RECEIVED"
	StateValidated        BookingState = "VALIDATED"
	StatePriced           BookingState = "PRICED"
	StateCapacityReserved BookingState = "CAPACITY_RESERVED"
	StateRecorded         BookingState = "RECORDED"
	StateNotificationSent BookingState = "NOTIFICATION_SENT"
	StateRejected         BookingState = "REJECTED"
	StateFailed           BookingState = "FAILED"
)

func (s BookingState) Terminal() bool {
	return s == StateNotificationSent || s == StateRejected || s == StateFailed
}

func NewBookedTour(userID string, key OfferingKey, persons int, total decimal.Decimal, now time.Time) BookedTour {
	return BookedTour{
		ID:          uuid.New(),
		UserID:      userID,
		TourID:      key.TourID,
		HotelID:     key.HotelID,
		PersonCount: persons,
		TotalPrice:  total,
		CreatedAt:   now.UTC(),
	}
}
