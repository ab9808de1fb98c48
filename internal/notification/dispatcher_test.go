package notification_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/robertarktes/tour-bookings/internal/notification"
	"github.com/robertarktes/tour-bookings/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	fail error
	sent []notification.Rendered
}

func (s *fakeSender) Send(_ context.Context, to, subject, body string) error {
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, notification.Rendered{Recipient: to, Subject: subject, Body: body})
	return nil
}

type mark struct {
	done    bool
	expires time.Time
}

// memDedupe expires marks against a clock the test moves by hand.
type memDedupe struct {
	mu   sync.Mutex
	now  time.Time
	keys map[string]mark
}

func (d *memDedupe) Claim(_ context.Context, key string, ttl time.Duration) (bool, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.keys == nil {
		d.keys = map[string]mark{}
	}
	if m, ok := d.keys[key]; ok && d.now.Before(m.expires) {
		return false, m.done, nil
	}
	d.keys[key] = mark{expires: d.now.Add(ttl)}
	return true, false, nil
}

func (d *memDedupe) Done(_ context.Context, key string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[key] = mark{done: true, expires: d.now.Add(ttl)}
	return nil
}

func (d *memDedupe) advance(by time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = d.now.Add(by)
}

func (d *memDedupe) Forget(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.keys, key)
	return nil
}

func confirmedPayload(t *testing.T) []byte {
	t.Helper()
	tour := domain.Tour{
		Name:          "Red Sea",
		Country:       "Egypt",
		DepartureDate: time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		ArrivalDate:   time.Date(2026, 11, 8, 0, 0, 0, 0, time.UTC),
	}
	b := domain.NewBookedTour("u-1", domain.OfferingKey{TourID: 1, HotelID: 2}, 2, decimal.RequireFromString("2520"), time.Now())
	data, err := notification.BookingConfirmed(b, tour, domain.Hotel{Name: "Coral"}, "guest@example.com").Encode()
	require.NoError(t, err)
	return data
}

func TestDispatcher_SendsRenderedMessage(t *testing.T) {
	sender := &fakeSender{}
	d := notification.NewDispatcher(sender, &memDedupe{}, observability.NewDiscardLogger())

	require.NoError(t, d.Handle(context.Background(), confirmedPayload(t)))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "guest@example.com", sender.sent[0].Recipient)
	assert.Contains(t, sender.sent[0].Body, "2 person(s)")
	assert.Contains(t, sender.sent[0].Body, "2520.00")
	assert.Contains(t, sender.sent[0].Body, "2026-11-01 to 2026-11-08")
}

func TestDispatcher_RedeliveryIsNotSentTwice(t *testing.T) {
	sender := &fakeSender{}
	d := notification.NewDispatcher(sender, &memDedupe{}, observability.NewDiscardLogger())
	payload := confirmedPayload(t)

	require.NoError(t, d.Handle(context.Background(), payload))
	require.NoError(t, d.Handle(context.Background(), payload))
	assert.Len(t, sender.sent, 1)
}

func TestDispatcher_SendFailureIsRetryable(t *testing.T) {
	sender := &fakeSender{fail: errors.New("smtp unavailable")}
	d := notification.NewDispatcher(sender, &memDedupe{}, observability.NewDiscardLogger())
	payload := confirmedPayload(t)

	err := d.Handle(context.Background(), payload)
	assert.True(t, errors.Is(err, domain.ErrNotificationFailure))

	sender.fail = nil
	require.NoError(t, d.Handle(context.Background(), payload))
	assert.Len(t, sender.sent, 1)
}

func TestDispatcher_RedeliveredAfterCrashIsSent(t *testing.T) {
	sender := &fakeSender{}
	dedupe := &memDedupe{now: time.Now()}
	d := notification.NewDispatcher(sender, dedupe, observability.NewDiscardLogger())
	payload := confirmedPayload(t)
	msg, err := notification.Decode(payload)
	require.NoError(t, err)

	// A worker claimed the message and died before sending.
	claimed, _, err := dedupe.Claim(context.Background(), "notified:"+msg.ID.String(), 2*time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	err = d.Handle(context.Background(), payload)
	assert.True(t, errors.Is(err, domain.ErrNotificationFailure), "in-flight claim must be retried, got %v", err)
	assert.Empty(t, sender.sent)

	dedupe.advance(3 * time.Minute)
	require.NoError(t, d.Handle(context.Background(), payload))
	require.Len(t, sender.sent, 1)

	require.NoError(t, d.Handle(context.Background(), payload))
	assert.Len(t, sender.sent, 1)
}

func TestDispatcher_GarbageIsInvalid(t *testing.T) {
	d := notification.NewDispatcher(&fakeSender{}, &memDedupe{}, observability.NewDiscardLogger())
	err := d.Handle(context.Background(), []byte("{not json"))
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}
