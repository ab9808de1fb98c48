package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertarktes/tour-bookings/internal/adapters/crdb"
	"github.com/robertarktes/tour-bookings/internal/observability"
)

type fakeSource struct {
	records []crdb.OutboxRecord
	oldest  time.Time
}

func (f *fakeSource) PublishOutbox(ctx context.Context, limit int, publish func(ctx context.Context, rec crdb.OutboxRecord) error) (int, error) {
	n := 0
	for _, rec := range f.records {
		if n == limit {
			break
		}
		if err := publish(ctx, rec); err != nil {
			f.records = f.records[n:]
			return n, err
		}
		n++
	}
	f.records = f.records[n:]
	return n, nil
}

func (f *fakeSource) OldestUnpublished(ctx context.Context) (time.Time, bool, error) {
	if len(f.records) == 0 {
		return time.Time{}, false, nil
	}
	return f.oldest, true, nil
}

type flakyBroker struct {
	failures int
	sent     []string
}

func (b *flakyBroker) Publish(ctx context.Context, key, messageID string, body []byte) error {
	if b.failures > 0 {
		b.failures--
		return errors.New("channel closed")
	}
	b.sent = append(b.sent, key+"/"+messageID)
	return nil
}

func record(key string) crdb.OutboxRecord {
	return crdb.OutboxRecord{ID: uuid.New(), EventType: "booking.confirmed", DedupeKey: key, Payload: []byte(`{}`)}
}

func newTestPublisher(src Source, broker Broker, batch int) *Publisher {
	p := NewPublisher(src, broker, batch, observability.NewDiscardLogger())
	p.backoff = time.Millisecond
	return p
}

func TestPublisher_RelaysBatchInOrder(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{records: []crdb.OutboxRecord{record("a"), record("b"), record("c")}, oldest: now.Add(-30 * time.Second)}
	broker := &flakyBroker{}
	p := newTestPublisher(src, broker, 2)
	p.now = func() time.Time { return now }

	n, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"booking.confirmed/a", "booking.confirmed/b"}, broker.sent)
	assert.InDelta(t, 30, testutil.ToFloat64(observability.OutboxLag), 0.001)

	n, err = p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPublisher_RetriesTransientFailures(t *testing.T) {
	src := &fakeSource{records: []crdb.OutboxRecord{record("a")}}
	broker := &flakyBroker{failures: 2}
	before := testutil.ToFloat64(observability.RabbitPublishRetries)

	n, err := newTestPublisher(src, broker, 10).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, before+2, testutil.ToFloat64(observability.RabbitPublishRetries))
}

func TestPublisher_LeavesRecordsWhenBrokerIsDown(t *testing.T) {
	src := &fakeSource{records: []crdb.OutboxRecord{record("a"), record("b")}}
	broker := &flakyBroker{failures: publishAttempts}

	n, err := newTestPublisher(src, broker, 10).RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, src.records, 2)
	assert.Empty(t, broker.sent)
}
