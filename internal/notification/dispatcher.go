package notification

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/robertarktes/tour-bookings/internal/observability"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Deduper tracks each message key as pending while a send is in flight and
// done once it succeeded. A pending mark left by a crashed worker expires.
type Deduper interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (claimed, done bool, err error)
	Done(ctx context.Context, key string, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

type Dispatcher struct {
	sender     Sender
	dedupe     Deduper
	logger     observability.Logger
	pendingTTL time.Duration
	dedupeTTL  time.Duration
}

func NewDispatcher(sender Sender, dedupe Deduper, logger observability.Logger) *Dispatcher {
	return &Dispatcher{
		sender:     sender,
		dedupe:     dedupe,
		logger:     logger,
		pendingTTL: 2 * time.Minute,
		dedupeTTL:  7 * 24 * time.Hour,
	}
}

// Handle delivers one encoded Message. A returned error marked
// ErrNotificationFailure is transient and the delivery should be retried;
// ErrInvalidInput means the payload can never be delivered.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) error {
	msg, err := Decode(payload)
	if err != nil {
		observability.NotificationsTotal.WithLabelValues("invalid").Inc()
		return err
	}
	log := d.logger.WithField("notification_id", msg.ID).WithField("booking_id", msg.BookingID)

	key := "notified:" + msg.ID.String()
	claimed, done, err := d.dedupe.Claim(ctx, key, d.pendingTTL)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "dedupe notification"), domain.ErrNotificationFailure)
	}
	if done {
		observability.NotificationsTotal.WithLabelValues("duplicate").Inc()
		log.Debug("notification already delivered")
		return nil
	}
	if !claimed {
		return errors.Mark(errors.Newf("notification %s is being delivered elsewhere", msg.ID), domain.ErrNotificationFailure)
	}

	r := Render(msg)
	if err := d.sender.Send(ctx, r.Recipient, r.Subject, r.Body); err != nil {
		if ferr := d.dedupe.Forget(ctx, key); ferr != nil {
			log.WithError(ferr).Warn("failed to clear dedupe key")
		}
		observability.NotificationsTotal.WithLabelValues("failed").Inc()
		return errors.Mark(errors.Wrap(err, "send notification"), domain.ErrNotificationFailure)
	}
	if err := d.dedupe.Done(ctx, key, d.dedupeTTL); err != nil {
		log.WithError(err).Warn("failed to record delivered notification")
	}
	observability.NotificationsTotal.WithLabelValues("sent").Inc()
	log.Info("booking notification sent")
	return nil
}
