package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/tour-bookings/internal/domain"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func hotelKey(id int64) string {
	return "hotel:" + strconv.FormatInt(id, 10)
}

// Hotel returns a cached hotel, or false on a miss.
func (c *Cache) Hotel(ctx context.Context, id int64) (domain.Hotel, bool, error) {
	val, err := c.client.Get(ctx, hotelKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Hotel{}, false, nil
	}
	if err != nil {
		return domain.Hotel{}, false, err
	}
	var h domain.Hotel
	if err := json.Unmarshal(val, &h); err != nil {
		return domain.Hotel{}, false, err
	}
	return h, true, nil
}

func (c *Cache) SetHotel(ctx context.Context, h domain.Hotel, ttl time.Duration) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, hotelKey(h.ID), data, ttl).Err()
}

func (c *Cache) InvalidateHotel(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = hotelKey(id)
	}
	return c.client.Del(ctx, keys...).Err()
}

const (
	pendingMark = "pending"
	doneMark    = "done"
)

// Claim marks key pending for ttl. claimed reports whether this caller
// set the mark; done reports that an earlier caller already finished.
// Neither means another caller holds a pending mark that has not expired.
func (c *Cache) Claim(ctx context.Context, key string, ttl time.Duration) (claimed, done bool, err error) {
	k := "once:" + key
	claimed, err = c.client.SetNX(ctx, k, pendingMark, ttl).Result()
	if err != nil || claimed {
		return claimed, false, err
	}
	val, err := c.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return false, val == doneMark, nil
}

// Done replaces a pending mark with a finished one kept for ttl.
func (c *Cache) Done(ctx context.Context, key string, ttl time.Duration) error {
	return c.client.Set(ctx, "once:"+key, doneMark, ttl).Err()
}

func (c *Cache) Forget(ctx context.Context, key string) error {
	return c.client.Del(ctx, "once:"+key).Err()
}
