// Package outbox relays committed outbox records to the message broker.
package outbox

import (
	"context"
	"time"

	"github.com/robertarktes/tour-bookings/internal/adapters/crdb"
	"github.com/robertarktes/tour-bookings/internal/observability"
)

type Source interface {
	PublishOutbox(ctx context.Context, limit int, publish func(ctx context.Context, rec crdb.OutboxRecord) error) (int, error)
	OldestUnpublished(ctx context.Context) (time.Time, bool, error)
}

type Broker interface {
	Publish(ctx context.Context, key, messageID string, body []byte) error
}

const publishAttempts = 3

type Publisher struct {
	source  Source
	broker  Broker
	batch   int
	backoff time.Duration
	logger  observability.Logger
	now     func() time.Time
}

func NewPublisher(source Source, broker Broker, batch int, logger observability.Logger) *Publisher {
	return &Publisher{source: source, broker: broker, batch: batch, backoff: 200 * time.Millisecond, logger: logger, now: time.Now}
}

// RunOnce relays one batch and returns how many records went out. Records
// that could not be published stay in the outbox for the next run.
func (p *Publisher) RunOnce(ctx context.Context) (int, error) {
	p.observeLag(ctx)

	n, err := p.source.PublishOutbox(ctx, p.batch, p.publish)
	log := p.logger.WithField("published", n)
	if err != nil {
		log.WithError(err).Error("outbox relay stopped early")
		return n, err
	}
	if n > 0 {
		log.Debug("outbox batch relayed")
	}
	return n, nil
}

func (p *Publisher) publish(ctx context.Context, rec crdb.OutboxRecord) error {
	var err error
	for attempt := 0; attempt < publishAttempts; attempt++ {
		if attempt > 0 {
			observability.RabbitPublishRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.backoff << (attempt - 1)):
			}
		}
		if err = p.broker.Publish(ctx, rec.EventType, rec.DedupeKey, rec.Payload); err == nil {
			return nil
		}
		p.logger.WithField("outbox_id", rec.ID).WithError(err).Warn("publish failed")
	}
	return err
}

func (p *Publisher) observeLag(ctx context.Context) {
	oldest, ok, err := p.source.OldestUnpublished(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("failed to read outbox lag")
		return
	}
	if !ok {
		observability.OutboxLag.Set(0)
		return
	}
	observability.OutboxLag.Set(p.now().Sub(oldest).Seconds())
}
