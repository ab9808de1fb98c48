package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr     string
	CRDBDSN      string
	MongoURI     string
	MongoDB      string
	RedisAddr    string
	RabbitURL    string
	OTLPEndpoint string

	BookingTimeout     time.Duration
	IdempotencyTTL     time.Duration
	HotelCacheTTL      time.Duration
	ActualTourDiscount decimal.Decimal
	RateLimitPerMinute int

	OutboxInterval  time.Duration
	OutboxBatchSize int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	ImageBucket string
	ImageURLTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		CRDBDSN:      os.Getenv("CRDB_DSN"),
		MongoURI:     os.Getenv("MONGO_URI"),
		MongoDB:      getenv("MONGO_DB", "tours"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RabbitURL:    os.Getenv("RABBIT_URL"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		MailFrom:     os.Getenv("MAIL_FROM"),
		ImageBucket:  os.Getenv("IMAGE_BUCKET"),
	}

	var err error
	if cfg.BookingTimeout, err = duration("BOOKING_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = duration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.HotelCacheTTL, err = duration("HOTEL_CACHE_TTL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.OutboxInterval, err = duration("OUTBOX_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ImageURLTTL, err = duration("IMAGE_URL_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.OutboxBatchSize, err = integer("OUTBOX_BATCH_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = integer("RATE_LIMIT_PER_MINUTE", 30); err != nil {
		return nil, err
	}
	if cfg.SMTPPort, err = integer("SMTP_PORT", 587); err != nil {
		return nil, err
	}

	cfg.ActualTourDiscount = decimal.NewFromInt(5)
	if v := os.Getenv("ACTUAL_TOUR_MIN_DISCOUNT"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, errors.Wrapf(err, "ACTUAL_TOUR_MIN_DISCOUNT=%q", v)
		}
		cfg.ActualTourDiscount = d
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "%s=%q", key, v)
	}
	if d <= 0 {
		return 0, errors.Newf("%s must be positive, got %s", key, v)
	}
	return d, nil
}

func integer(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "%s=%q", key, v)
	}
	if n <= 0 {
		return 0, errors.Newf("%s must be positive, got %d", key, n)
	}
	return n, nil
}
