package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// Idempotency stores one response per client key under "idemp:resp:" and an
// in-flight marker under "idemp:lock:".
type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

type IdempResponse struct {
	Status      int    `json:"status"`
	Result      []byte `json:"result"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

func (i *Idempotency) Get(ctx context.Context, key string) (*IdempResponse, error) {
	val, err := i.client.Get(ctx, "idemp:resp:"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp IdempResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, errors.Wrapf(err, "stored response for %q", key)
	}
	return &resp, nil
}

// Set stores resp unless a response for key is already stored.
func (i *Idempotency) Set(ctx context.Context, key string, resp IdempResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return i.client.SetNX(ctx, "idemp:resp:"+key, data, ttl).Err()
}

func (i *Idempotency) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return i.client.SetNX(ctx, "idemp:lock:"+key, 1, ttl).Result()
}

func (i *Idempotency) Unlock(ctx context.Context, key string) error {
	return i.client.Del(ctx, "idemp:lock:"+key).Err()
}
