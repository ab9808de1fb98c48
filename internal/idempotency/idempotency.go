// Package idempotency replays stored responses for repeated request keys and
// keeps two requests with the same key from running at once.
package idempotency

import (
	"context"
	"time"

	redisadapter "github.com/robertarktes/tour-bookings/internal/adapters/redis"
)

// Backend is implemented by redisadapter.Idempotency.
type Backend interface {
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error)
	Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

const lockTTL = 30 * time.Second

type Idempotency struct {
	backend Backend
	ttl     time.Duration
}

func NewIdempotency(backend Backend, ttl time.Duration) *Idempotency {
	return &Idempotency{backend: backend, ttl: ttl}
}

// Response is a stored answer. Fingerprint identifies the request that
// produced it so a key reused for a different request can be told apart.
type Response struct {
	Status      int
	Result      []byte
	Fingerprint string
}

// Get returns the stored response for key, or nil if there is none.
func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	stored, err := i.backend.Get(ctx, key)
	if err != nil || stored == nil {
		return nil, err
	}
	return &Response{Status: stored.Status, Result: stored.Result, Fingerprint: stored.Fingerprint}, nil
}

// Begin claims key for one in-flight request. It reports false while
// another request holds the claim.
func (i *Idempotency) Begin(ctx context.Context, key string) (bool, error) {
	return i.backend.Lock(ctx, key, lockTTL)
}

func (i *Idempotency) Release(ctx context.Context, key string) error {
	return i.backend.Unlock(ctx, key)
}

// Set stores resp for the configured TTL. Server errors are not stored so
// the client can retry them.
func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	if resp.Status >= 500 {
		return nil
	}
	return i.backend.Set(ctx, key, redisadapter.IdempResponse{
		Status:      resp.Status,
		Result:      resp.Result,
		Fingerprint: resp.Fingerprint,
	}, i.ttl)
}
