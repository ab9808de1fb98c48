package crdb

import "context"

// Schema creates the tables this service reads and writes. The users table
// is owned by the identity service; it is created here only when missing.
const Schema = `
CREATE TABLE IF NOT EXISTS tours (
	id BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	country TEXT NOT NULL,
	departure_date DATE NOT NULL,
	arrival_date DATE NOT NULL,
	star SMALLINT NOT NULL,
	base_price NUMERIC(12,2) NOT NULL,
	discount_percent NUMERIC(5,2) NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS hotels (
	id BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	city TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	star SMALLINT NOT NULL,
	allow_children BOOL NOT NULL DEFAULT false,
	free_wifi BOOL NOT NULL DEFAULT false,
	nutrition_type TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS tour_hotels (
	tour_id BIGINT NOT NULL REFERENCES tours (id),
	hotel_id BIGINT NOT NULL REFERENCES hotels (id),
	available_capacity INT NOT NULL CHECK (available_capacity >= 0),
	PRIMARY KEY (tour_id, hotel_id)
);
CREATE TABLE IF NOT EXISTS images (
	id BIGINT PRIMARY KEY,
	path TEXT NOT NULL,
	tour_id BIGINT REFERENCES tours (id),
	hotel_id BIGINT REFERENCES hotels (id),
	CHECK ((tour_id IS NULL) != (hotel_id IS NULL))
);
CREATE TABLE IF NOT EXISTS booked_tours (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	tour_id BIGINT NOT NULL,
	hotel_id BIGINT NOT NULL,
	person_count INT NOT NULL CHECK (person_count > 0),
	total_price NUMERIC(14,2) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	FOREIGN KEY (tour_id, hotel_id) REFERENCES tour_hotels (tour_id, hotel_id),
	INDEX booked_tours_user_idx (user_id, created_at)
);
CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL UNIQUE,
	INDEX outbox_status_idx (status, created_at)
);
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL
);
`

func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, Schema)
	return err
}
