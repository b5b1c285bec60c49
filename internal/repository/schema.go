package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is the application DDL, applied idempotently at boot. River's own
// tables are created separately by rivermigrate.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            uuid PRIMARY KEY,
	email         text NOT NULL UNIQUE,
	name          text NOT NULL,
	password_hash text NOT NULL,
	role          text NOT NULL,
	balance_cents bigint NOT NULL DEFAULT 0 CHECK (balance_cents >= 0),
	created_at    timestamptz NOT NULL DEFAULT now(),
	updated_at    timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS providers (
	user_id              uuid PRIMARY KEY REFERENCES users(id),
	rate_per_minute_cents bigint NOT NULL CHECK (rate_per_minute_cents > 0),
	specialization       text NOT NULL DEFAULT '',
	online               boolean NOT NULL DEFAULT false,
	verified             boolean NOT NULL DEFAULT false,
	pending_cents        bigint NOT NULL DEFAULT 0 CHECK (pending_cents >= 0),
	available_cents      bigint NOT NULL DEFAULT 0 CHECK (available_cents >= 0),
	lifetime_cents       bigint NOT NULL DEFAULT 0 CHECK (lifetime_cents >= 0),
	created_at           timestamptz NOT NULL DEFAULT now(),
	updated_at           timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
	id                  uuid PRIMARY KEY,
	requester_id        uuid NOT NULL REFERENCES users(id),
	provider_id         uuid NOT NULL REFERENCES providers(user_id),
	kind                text NOT NULL,
	rate_per_minute_cents bigint NOT NULL,
	status              text NOT NULL,
	total_amount_cents  bigint NOT NULL DEFAULT 0 CHECK (total_amount_cents >= 0),
	requester_lock      uuid NOT NULL,
	provider_lock       uuid NOT NULL,
	started_at          timestamptz,
	ended_at            timestamptz,
	created_at          timestamptz NOT NULL DEFAULT now(),
	updated_at          timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS sessions_requester_idx ON sessions (requester_id);
CREATE INDEX IF NOT EXISTS sessions_provider_idx ON sessions (provider_id);
CREATE INDEX IF NOT EXISTS sessions_status_idx ON sessions (status);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id                  uuid PRIMARY KEY,
	user_id             uuid NOT NULL REFERENCES users(id),
	direction           text NOT NULL,
	amount_cents        bigint NOT NULL CHECK (amount_cents > 0),
	reason              text NOT NULL,
	reference_id        uuid,
	balance_after_cents bigint NOT NULL CHECK (balance_after_cents >= 0),
	created_at          timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ledger_entries_user_idx ON ledger_entries (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS earnings (
	id               uuid PRIMARY KEY,
	session_id       uuid NOT NULL UNIQUE REFERENCES sessions(id),
	provider_id      uuid NOT NULL REFERENCES providers(user_id),
	total_cents      bigint NOT NULL,
	commission_cents bigint NOT NULL,
	provider_cents   bigint NOT NULL,
	status           text NOT NULL DEFAULT 'PENDING',
	created_at       timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS earnings_provider_idx ON earnings (provider_id, created_at DESC);

CREATE TABLE IF NOT EXISTS party_locks (
	key        text PRIMARY KEY,
	holder     uuid NOT NULL,
	expires_at timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS system_settings (
	id                 boolean PRIMARY KEY DEFAULT true CHECK (id),
	commission_percent bigint NOT NULL DEFAULT 20,
	min_start_cents    bigint NOT NULL DEFAULT 1500,
	updated_at         timestamptz NOT NULL DEFAULT now()
);
INSERT INTO system_settings (id) VALUES (true) ON CONFLICT (id) DO NOTHING;
`

// EnsureSchema applies the application schema. Safe to run on every boot.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
