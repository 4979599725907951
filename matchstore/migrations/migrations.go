// Package migrations holds the embedded schema migration for the
// order_matches table, applied with github.com/rubenv/sql-migrate the way
// the teacher's historydb migrates its schema at startup.
package migrations

import migrate "github.com/rubenv/sql-migrate"

// Source is the in-memory migration set for the matchstore schema.
var Source = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "0001_order_matches",
			Up: []string{`
CREATE TABLE order_matches (
	match_id        VARCHAR PRIMARY KEY,
	listing_id      VARCHAR NOT NULL,
	offer_id        VARCHAR NOT NULL,
	match_type      SMALLINT NOT NULL,
	order_items     JSONB NOT NULL,
	status          SMALLINT NOT NULL DEFAULT 1,
	state_code      VARCHAR NOT NULL DEFAULT '',
	state_message   VARCHAR NOT NULL DEFAULT '',
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX idx_order_matches_status ON order_matches (status);
`},
			Down: []string{`DROP TABLE order_matches;`},
		},
	},
}
