package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/tour-bookings/internal/booking"
	"github.com/robertarktes/tour-bookings/internal/domain"
	"github.com/robertarktes/tour-bookings/internal/observability"
)

const (
	SerializationFailureCode = "40001"
	uniqueViolationCode      = "23505"

	maxTxAttempts = 3
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn in a SERIALIZABLE transaction, retrying it when the
// database reports a serialization conflict. fn may therefore run more
// than once and must not have side effects outside tx.
func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() { observability.DBTxDuration.Observe(time.Since(start).Seconds()) }()

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = r.runTx(ctx, fn)
		if !errors.Is(err, domain.ErrSerializationFailure) || ctx.Err() != nil {
			return err
		}
		observability.DBTxRetries.Inc()
	}
	return err
}

func (r *Repository) runTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return domain.StorageFailure(err, "begin transaction")
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return markSerialization(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return markSerialization(domain.StorageFailure(err, "commit transaction"))
	}
	return nil
}

func markSerialization(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
		return errors.Mark(err, domain.ErrSerializationFailure)
	}
	return err
}

// InTx commits a booking unit of work.
func (r *Repository) InTx(ctx context.Context, fn func(tx booking.Tx) error) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&Ledger{tx: tx})
	})
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

var _ booking.Store = (*Repository)(nil)
