package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createEventsTable,
		createSeatsTable,
		createOrdersTable,
		createOrderSeatsTable,
		createPurchaseRecordsTable,
		createSeatSweepIndex,
		createOrderSweepIndex,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    id BIGSERIAL PRIMARY KEY,
    title VARCHAR(500) NOT NULL,
    total_seats INTEGER NOT NULL DEFAULT 0,
    available_seats INTEGER NOT NULL DEFAULT 0,
    locked_seats INTEGER NOT NULL DEFAULT 0,
    sold_seats INTEGER NOT NULL DEFAULT 0,
    version BIGINT NOT NULL DEFAULT 0,
    sale_start TIMESTAMP NOT NULL,
    sale_end TIMESTAMP NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    per_user_limit INTEGER NOT NULL DEFAULT 4,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW(),

    CHECK (status IN ('PENDING', 'SELLING', 'SOLD_OUT', 'ENDED')),
    CHECK (available_seats >= 0 AND locked_seats >= 0 AND sold_seats >= 0),
    CHECK (available_seats + locked_seats + sold_seats = total_seats)
);`

const createSeatsTable = `
CREATE EXTENSION IF NOT EXISTS "uuid-ossp";
CREATE TABLE IF NOT EXISTS seats (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    event_id BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    zone VARCHAR(50) NOT NULL DEFAULT '',
    row_number INTEGER NOT NULL,
    seat_number INTEGER NOT NULL,
    code VARCHAR(50) NOT NULL,
    price BIGINT NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'AVAILABLE',
    lock_time TIMESTAMP,
    lock_expire_time TIMESTAMP,
    holding_order_id BIGINT,
    holding_user_id BIGINT,
    version BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW(),

    UNIQUE(event_id, zone, row_number, seat_number),
    CHECK (status IN ('AVAILABLE', 'LOCKED', 'SOLD'))
);`

const createOrdersTable = `
CREATE TABLE IF NOT EXISTS orders (
    id BIGSERIAL PRIMARY KEY,
    order_no VARCHAR(64) UNIQUE NOT NULL,
    event_id BIGINT NOT NULL REFERENCES events(id),
    user_id BIGINT NOT NULL,
    seat_count INTEGER NOT NULL,
    total_amount BIGINT NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    idempotency_key VARCHAR(128) UNIQUE NOT NULL,
    expire_time TIMESTAMP NOT NULL,
    pay_type VARCHAR(32),
    pay_time TIMESTAMP,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW(),

    CHECK (status IN ('PENDING', 'PAID', 'CANCELLED', 'TIMEOUT'))
);`

const createOrderSeatsTable = `
CREATE TABLE IF NOT EXISTS order_seats (
    order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    seat_id UUID NOT NULL REFERENCES seats(id),
    event_id BIGINT NOT NULL,
    price_snapshot BIGINT NOT NULL DEFAULT 0,

    PRIMARY KEY (order_id, seat_id)
);`

const createPurchaseRecordsTable = `
CREATE TABLE IF NOT EXISTS user_purchase_records (
    user_id BIGINT NOT NULL,
    event_id BIGINT NOT NULL,
    ticket_count INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, event_id),
    CHECK (ticket_count >= 0)
);`

// Partial indexes for the sweeper's scans.
const createSeatSweepIndex = `
CREATE INDEX IF NOT EXISTS seats_locked_expire_idx
ON seats (lock_expire_time) WHERE status = 'LOCKED';`

const createOrderSweepIndex = `
CREATE INDEX IF NOT EXISTS orders_pending_expire_idx
ON orders (expire_time) WHERE status = 'PENDING';`
