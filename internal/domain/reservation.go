package domain

// Reservation is the outcome of a successful capacity decrement.
type Reservation struct {
	Offering  OfferingKey
	Persons   int
	Remaining int
}

func NewReservation(key OfferingKey, persons, remaining int) Reservation {
	return Reservation{Offering: key, Persons: persons, Remaining: remaining}
}
