package crdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/tour-bookings/internal/domain"
)

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED, FAILED
	DedupeKey     string
}

func insertOutbox(ctx context.Context, tx pgx.Tx, record OutboxRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6)
	`, record.ID, record.AggregateType, record.AggregateID, record.EventType, string(record.Payload), record.DedupeKey)
	return err
}

// PublishOutbox locks up to limit NEW records, hands each to publish in
// creation order and marks the ones that went out as PUBLISHED. It stops at
// the first publish error and still commits what was published before it;
// the remaining records stay NEW for the next run. A record may be handed to
// publish more than once if the commit fails, so consumers dedupe on
// DedupeKey.
func (r *Repository) PublishOutbox(ctx context.Context, limit int, publish func(ctx context.Context, rec OutboxRecord) error) (int, error) {
	var (
		published  int
		publishErr error
	)
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		published, publishErr = 0, nil
		records, err := lockUnpublished(ctx, tx, limit)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if publishErr = publish(ctx, rec); publishErr != nil {
				break
			}
			published++
		}
		return markPublished(ctx, tx, records[:published])
	})
	if err != nil {
		return 0, err
	}
	return published, publishErr
}

func lockUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]OutboxRecord, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json::STRING, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, domain.StorageFailure(err, "lock outbox")
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		var payload string
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, domain.StorageFailure(err, "scan outbox")
		}
		rec.Payload = []byte(payload)
		records = append(records, rec)
	}
	return records, domain.StorageFailure(rows.Err(), "read outbox")
}

func markPublished(ctx context.Context, tx pgx.Tx, done []OutboxRecord) error {
	now := time.Now()
	for _, rec := range done {
		_, err := tx.Exec(ctx, `
			UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
		`, rec.ID, now)
		if err != nil {
			return domain.StorageFailure(err, "mark outbox published")
		}
	}
	return nil
}

// OldestUnpublished reports the creation time of the oldest NEW record.
func (r *Repository) OldestUnpublished(ctx context.Context) (time.Time, bool, error) {
	var created *time.Time
	err := r.pool.QueryRow(ctx, `SELECT min(created_at) FROM outbox WHERE status = 'NEW'`).Scan(&created)
	if err != nil {
		return time.Time{}, false, domain.StorageFailure(err, "read outbox lag")
	}
	if created == nil {
		return time.Time{}, false, nil
	}
	return *created, true, nil
}
