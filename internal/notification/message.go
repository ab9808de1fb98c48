// Package notification carries booking confirmations from the booking engine
// to the mail dispatcher. The engine only builds a Message; rendering and
// delivery happen on the consumer side.
package notification

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/tour-bookings/internal/domain"
)

const EventBookingConfirmed = "booking.confirmed"

type Message struct {
	ID            uuid.UUID `json:"id"`
	Recipient     string    `json:"recipient"`
	Subject       string    `json:"subject"`
	BookingID     uuid.UUID `json:"booking_id"`
	TourName      string    `json:"tour_name"`
	HotelName     string    `json:"hotel_name"`
	Country       string    `json:"country"`
	DepartureDate string    `json:"departure_date"`
	ArrivalDate   string    `json:"arrival_date"`
	Persons       int       `json:"persons"`
	TotalPrice    string    `json:"total_price"`
}

func BookingConfirmed(b domain.BookedTour, tour domain.Tour, hotel domain.Hotel, recipient string) Message {
	return Message{
		ID:            uuid.New(),
		Recipient:     recipient,
		Subject:       "Tour booking confirmed",
		BookingID:     b.ID,
		TourName:      tour.Name,
		HotelName:     hotel.Name,
		Country:       tour.Country,
		DepartureDate: tour.DepartureDate.Format(time.DateOnly),
		ArrivalDate:   tour.ArrivalDate.Format(time.DateOnly),
		Persons:       b.PersonCount,
		TotalPrice:    b.TotalPrice.StringFixed(2),
	}
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, errors.Mark(errors.Wrap(err, "decode notification"), domain.ErrInvalidInput)
	}
	if m.Recipient == "" || m.ID == uuid.Nil {
		return Message{}, errors.Wrap(domain.ErrInvalidInput, "notification without id or recipient")
	}
	return m, nil
}

// Rendered is what the mail sender receives.
type Rendered struct {
	Recipient string
	Subject   string
	Body      string
}

func Render(m Message) Rendered {
	body := fmt.Sprintf(
		"Your tour %q (%s) at %s is booked for %d person(s).\nTravel dates: %s to %s.\nTotal price: %s.\nBooking reference: %s\n",
		m.TourName, m.Country, m.HotelName, m.Persons, m.DepartureDate, m.ArrivalDate, m.TotalPrice, m.BookingID,
	)
	return Rendered{Recipient: m.Recipient, Subject: m.Subject, Body: body}
}
