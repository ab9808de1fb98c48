// Package booking runs the booking workflow: validate, price, reserve
// capacity and record the booking in one transaction, then hand the
// confirmation to the notification outbox.
package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/robertarktes/tour-bookings/internal/notification"
	"github.com/robertarktes/tour-bookings/internal/observability"
	"github.com/robertarktes/tour-bookings/internal/pricing"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Request asks for one booking. When ID is set the booking is recorded
// under it, and repeating the request returns the recorded booking
// instead of reserving again.
type Request struct {
	ID      uuid.UUID
	TourID  int64
	HotelID int64
	Persons int
	UserID  string
}

type Confirmation struct {
	Booking   domain.BookedTour
	UnitPrice decimal.Decimal
	Remaining int
	State     domain.BookingState
	Replayed  bool
}

// Rejection is returned for every booking that did not complete. State is
// StateRejected for validation and capacity failures and StateFailed when
// the commit itself failed; in both cases nothing was persisted.
type Rejection struct {
	State  domain.BookingState
	At     domain.BookingState
	Reason error
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("booking %s after %s: %v", strings.ToLower(string(r.State)), strings.ToLower(string(r.At)), r.Reason)
}

func (r *Rejection) Unwrap() error {
	return r.Reason
}

type Orchestrator struct {
	store     Store
	directory Directory
	audit     Auditor
	logger    observability.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewOrchestrator(store Store, directory Directory, audit Auditor, logger observability.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		directory: directory,
		audit:     audit,
		logger:    logger,
		tracer:    otel.Tracer("booking"),
		now:       time.Now,
	}
}

func (o *Orchestrator) Book(ctx context.Context, req Request) (*Confirmation, error) {
	ctx, span := o.tracer.Start(ctx, "booking.Book", trace.WithAttributes(
		attribute.Int64("tour_id", req.TourID),
		attribute.Int64("hotel_id", req.HotelID),
		attribute.Int("persons", req.Persons),
	))
	defer span.End()

	log := o.logger.WithField("tour_id", req.TourID).WithField("hotel_id", req.HotelID).WithField("user_id", req.UserID)
	w := &workflow{o: o, req: req, log: log, span: span, state: domain.StateReceived}

	if req.Persons <= 0 {
		return w.reject(ctx, errors.Wrapf(domain.ErrInvalidInput, "person count must be positive, got %d", req.Persons))
	}
	if strings.TrimSpace(req.UserID) == "" {
		return w.reject(ctx, errors.Wrap(domain.ErrInvalidInput, "user id is required"))
	}
	if req.ID != uuid.Nil {
		prior, err := o.store.Booking(ctx, req.ID)
		switch {
		case err == nil:
			return w.replay(ctx, prior)
		case !errors.Is(err, domain.ErrBookingNotFound):
			return w.reject(ctx, err)
		}
	}
	tour, err := o.store.Tour(ctx, req.TourID)
	if err != nil {
		return w.reject(ctx, err)
	}
	offering, err := o.store.Offering(ctx, req.TourID, req.HotelID)
	if err != nil {
		return w.reject(ctx, err)
	}
	recipient, err := o.directory.Email(ctx, req.UserID)
	if err != nil {
		return w.reject(ctx, err)
	}
	w.advance(domain.StateValidated)

	unit, err := pricing.Quote(tour, offering.Hotel)
	if err != nil {
		return w.reject(ctx, err)
	}
	total, err := pricing.Total(tour, offering.Hotel, req.Persons)
	if err != nil {
		return w.reject(ctx, err)
	}
	w.advance(domain.StatePriced)

	if err := ctx.Err(); err != nil {
		return w.reject(ctx, err)
	}

	booked := domain.NewBookedTour(req.UserID, offering.Key(), req.Persons, total, o.now())
	if req.ID != uuid.Nil {
		booked.ID = req.ID
	}
	msg := notification.BookingConfirmed(booked, tour, offering.Hotel, recipient)

	var reservation domain.Reservation
	err = o.store.InTx(ctx, func(tx Tx) error {
		r, err := tx.TryReserve(ctx, offering.Key(), req.Persons)
		if err != nil {
			return err
		}
		reservation = r
		w.advance(domain.StateCapacityReserved)
		if err := tx.InsertBooking(ctx, booked); err != nil {
			return err
		}
		if err := tx.EnqueueNotification(ctx, msg); err != nil {
			return err
		}
		return nil
	})
	if errors.Is(err, domain.ErrBookingExists) && req.ID != uuid.Nil {
		prior, gerr := o.store.Booking(ctx, req.ID)
		if gerr != nil {
			return w.reject(ctx, gerr)
		}
		return w.replay(ctx, prior)
	}
	if err != nil {
		return w.reject(ctx, err)
	}
	w.advance(domain.StateRecorded)

	// The outbox row committed with the booking is the hand-off; delivery
	// problems are the dispatcher's to retry.
	w.advance(domain.StateNotificationSent)

	if err := o.audit.LogBooking(ctx, booked); err != nil {
		log.WithError(err).Warn("failed to audit booking")
	}
	observability.BookingsTotal.WithLabelValues(string(domain.StateNotificationSent), "").Inc()
	log.WithField("booking_id", booked.ID).WithField("total_price", booked.TotalPrice.StringFixed(2)).Info("tour booked")

	return &Confirmation{
		Booking:   booked,
		UnitPrice: unit,
		Remaining: reservation.Remaining,
		State:     domain.StateNotificationSent,
	}, nil
}

func (o *Orchestrator) Get(ctx context.Context, id uuid.UUID) (domain.BookedTour, error) {
	return o.store.Booking(ctx, id)
}

func (o *Orchestrator) ListByUser(ctx context.Context, userID string) ([]domain.BookedTour, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "user id is required")
	}
	return o.store.BookingsByUser(ctx, userID)
}

type workflow struct {
	o     *Orchestrator
	req   Request
	log   observability.Logger
	span  trace.Span
	state domain.BookingState
}

func (w *workflow) advance(next domain.BookingState) {
	w.state = next
	w.span.AddEvent(string(next))
	w.log.WithField("state", next).Debug("booking state changed")
}

// replay answers a repeated request with the booking already recorded
// under its id. A different booking under the same id is a conflict.
func (w *workflow) replay(ctx context.Context, prior domain.BookedTour) (*Confirmation, error) {
	req := w.req
	same := prior.UserID == req.UserID && prior.TourID == req.TourID &&
		prior.HotelID == req.HotelID && prior.PersonCount == req.Persons
	if !same {
		return w.reject(ctx, errors.Wrapf(domain.ErrConflict, "booking %s was recorded for a different request", prior.ID))
	}
	remaining := 0
	if o, err := w.o.store.Offering(ctx, req.TourID, req.HotelID); err == nil {
		remaining = o.AvailableCapacity
	}
	w.log.WithField("booking_id", prior.ID).Info("booking already recorded")
	return &Confirmation{
		Booking:   prior,
		UnitPrice: prior.TotalPrice.Div(decimal.NewFromInt(int64(prior.PersonCount))),
		Remaining: remaining,
		State:     domain.StateNotificationSent,
		Replayed:  true,
	}, nil
}

func (w *workflow) reject(ctx context.Context, err error) (*Confirmation, error) {
	final := domain.StateRejected
	switch domain.Reason(err) {
	case "storage_failure", "timeout":
		final = domain.StateFailed
		if domain.Reason(err) == "storage_failure" && !errors.Is(err, domain.ErrStorageFailure) {
			err = domain.StorageFailure(err, "commit booking")
		}
	}
	reason := domain.Reason(err)

	w.span.SetStatus(codes.Error, reason)
	w.span.RecordError(err)
	observability.BookingsTotal.WithLabelValues(string(final), reason).Inc()
	w.log.WithField("state", final).WithField("reason", reason).WithError(err).Warn("booking not completed")

	if aerr := w.o.audit.LogRejection(context.WithoutCancel(ctx), w.req.UserID, reason, map[string]interface{}{
		"tour_id":  w.req.TourID,
		"hotel_id": w.req.HotelID,
		"persons":  w.req.Persons,
		"state":    string(w.state),
		"error":    err.Error(),
	}); aerr != nil {
		w.log.WithError(aerr).Warn("failed to audit rejection")
	}
	return nil, &Rejection{State: final, At: w.state, Reason: err}
}
