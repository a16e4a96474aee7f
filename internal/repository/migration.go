package repository

import (
	"context"
	"fmt"
	"strings"
)

// Tables lists every table owned by the call core, parents last.
var Tables = []string{
	"consumer_acks",
	"consumers",
	"producer_servers",
	"producer_clients",
	"connect_acks",
	"connect_requests",
	"transports",
	"transport_requests",
	"peers",
	"routers",
	"rooms",
	"call_histories",
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id            TEXT PRIMARY KEY,
		hunt          TEXT NOT NULL,
		call          TEXT NOT NULL UNIQUE,
		routed_server TEXT NOT NULL,
		created_by    TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rooms_routed_server ON rooms (routed_server)`,

	`CREATE TABLE IF NOT EXISTS routers (
		id             TEXT PRIMARY KEY,
		call           TEXT NOT NULL UNIQUE,
		created_server TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_routers_created_server ON routers (created_server)`,

	// (hunt, call, tab) is deliberately not unique: a rejoin deletes the
	// stale peer and inserts the new one under the call lock.
	`CREATE TABLE IF NOT EXISTS peers (
		id                 TEXT PRIMARY KEY,
		hunt               TEXT NOT NULL,
		call               TEXT NOT NULL,
		tab                TEXT NOT NULL,
		created_server     TEXT NOT NULL,
		created_by         TEXT NOT NULL,
		muted              BOOLEAN NOT NULL DEFAULT FALSE,
		deafened           BOOLEAN NOT NULL DEFAULT FALSE,
		initial_peer_state TEXT NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_peers_call ON peers (call)`,
	`CREATE INDEX IF NOT EXISTS idx_peers_tab ON peers (hunt, call, tab)`,
	`CREATE INDEX IF NOT EXISTS idx_peers_created_server ON peers (created_server)`,

	`CREATE TABLE IF NOT EXISTS transport_requests (
		id               TEXT PRIMARY KEY,
		created_server   TEXT NOT NULL,
		routed_server    TEXT NOT NULL,
		call             TEXT NOT NULL,
		peer             TEXT NOT NULL,
		created_by       TEXT NOT NULL,
		rtp_capabilities TEXT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transport_requests_peer ON transport_requests (peer)`,
	`CREATE INDEX IF NOT EXISTS idx_transport_requests_routed ON transport_requests (routed_server)`,

	`CREATE TABLE IF NOT EXISTS transports (
		id                TEXT PRIMARY KEY,
		transport_request TEXT NOT NULL,
		created_server    TEXT NOT NULL,
		call              TEXT NOT NULL,
		peer              TEXT NOT NULL,
		direction         TEXT NOT NULL,
		transport_id      TEXT NOT NULL,
		ice_parameters    TEXT NOT NULL,
		ice_candidates    TEXT NOT NULL,
		dtls_parameters   TEXT NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (transport_request, direction)
	)`,

	`CREATE TABLE IF NOT EXISTS connect_requests (
		id                 TEXT PRIMARY KEY,
		transport_request  TEXT NOT NULL,
		created_server     TEXT NOT NULL,
		routed_server      TEXT NOT NULL,
		call               TEXT NOT NULL,
		peer               TEXT NOT NULL,
		transport          TEXT NOT NULL UNIQUE,
		connect_parameters TEXT NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS connect_acks (
		id                TEXT PRIMARY KEY,
		transport_request TEXT NOT NULL,
		created_server    TEXT NOT NULL,
		call              TEXT NOT NULL,
		peer              TEXT NOT NULL,
		transport         TEXT NOT NULL UNIQUE,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS producer_clients (
		id                TEXT PRIMARY KEY,
		transport_request TEXT NOT NULL,
		created_server    TEXT NOT NULL,
		routed_server     TEXT NOT NULL,
		call              TEXT NOT NULL,
		peer              TEXT NOT NULL,
		transport         TEXT NOT NULL,
		track_id          TEXT NOT NULL,
		kind              TEXT NOT NULL,
		rtp_parameters    TEXT NOT NULL,
		paused            BOOLEAN NOT NULL DEFAULT FALSE,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (transport, track_id)
	)`,

	`CREATE TABLE IF NOT EXISTS producer_servers (
		id                TEXT PRIMARY KEY,
		transport_request TEXT NOT NULL,
		created_server    TEXT NOT NULL,
		call              TEXT NOT NULL,
		peer              TEXT NOT NULL,
		transport         TEXT NOT NULL,
		producer_client   TEXT NOT NULL UNIQUE,
		track_id          TEXT NOT NULL,
		kind              TEXT NOT NULL,
		producer_id       TEXT NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_producer_servers_call ON producer_servers (call)`,

	`CREATE TABLE IF NOT EXISTS consumers (
		id                TEXT PRIMARY KEY,
		transport_request TEXT NOT NULL,
		created_server    TEXT NOT NULL,
		call              TEXT NOT NULL,
		peer              TEXT NOT NULL,
		transport         TEXT NOT NULL,
		producer_server   TEXT NOT NULL,
		producer_peer     TEXT NOT NULL,
		producer_id       TEXT NOT NULL,
		consumer_id       TEXT NOT NULL,
		kind              TEXT NOT NULL,
		rtp_parameters    TEXT NOT NULL,
		paused            BOOLEAN NOT NULL DEFAULT TRUE,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (transport, producer_server)
	)`,

	`CREATE TABLE IF NOT EXISTS consumer_acks (
		id                TEXT PRIMARY KEY,
		transport_request TEXT NOT NULL,
		created_server    TEXT NOT NULL,
		routed_server     TEXT NOT NULL,
		call              TEXT NOT NULL,
		peer              TEXT NOT NULL,
		consumer          TEXT NOT NULL UNIQUE,
		paused            BOOLEAN NOT NULL DEFAULT FALSE,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS call_histories (
		call          TEXT PRIMARY KEY,
		hunt          TEXT NOT NULL,
		last_activity TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_call_histories_hunt ON call_histories (hunt)`,
}

// InitSchema creates every table and index. Safe to run repeatedly.
func InitSchema(ctx context.Context, db DBTX) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// DropSchema drops every call table.
func DropSchema(ctx context.Context, db DBTX) error {
	for _, table := range Tables {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return nil
}

// TruncateAll empties every call table while keeping the schema.
func TruncateAll(ctx context.Context, db DBTX) error {
	if _, err := db.ExecContext(ctx, `TRUNCATE TABLE `+strings.Join(Tables, ", ")); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	return nil
}
