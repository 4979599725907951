// Package matchstore is the durable backing store for order matches: a
// Postgres table accessed through sqlx/meddler, migrated with sql-migrate,
// with change notifications delivered through pq.Listener. It backs the
// matchsource package's C1 subscription.
package matchstore

import (
	"encoding/json"

	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/russross/meddler"

	"ordermatch-pipeline/common"
	"ordermatch-pipeline/matchstore/migrations"
)

// Row is the meddler-mapped row shape of the order_matches table.
type Row struct {
	MatchID      string `meddler:"match_id"`
	ListingID    string `meddler:"listing_id"`
	OfferID      string `meddler:"offer_id"`
	MatchType    int    `meddler:"match_type"`
	OrderItemsJSON []byte `meddler:"order_items,json"`
	Status       int    `meddler:"status"`
	StateCode    string `meddler:"state_code"`
	StateMessage string `meddler:"state_message"`
}

// Store wraps a Postgres connection pool for CRUD access to order_matches.
type Store struct {
	db *sqlx.DB
}

// New wraps an already-open sqlx.DB.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded schema migration, creating order_matches if
// it does not already exist.
func Migrate(db *sqlx.DB) error {
	_, err := migrate.Exec(db.DB, "postgres", migrations.Source, migrate.Up)
	return common.Wrap(err)
}

// DB returns the underlying sqlx.DB, for internal testing use only.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func rowToMatch(r *Row) (*common.Match, error) {
	var items common.NFTSet
	if err := json.Unmarshal(r.OrderItemsJSON, &items); err != nil {
		return nil, common.Wrap(err)
	}
	return &common.Match{
		ID:        common.MatchID(r.MatchID),
		ListingID: common.OrderID(r.ListingID),
		OfferID:   common.OrderID(r.OfferID),
		MatchData: common.MatchData{OrderItems: items},
		Type:      common.MatchType(r.MatchType),
		State: common.MatchState{
			Status:  common.MatchStatus(r.Status),
			Code:    r.StateCode,
			Message: r.StateMessage,
		},
	}, nil
}

// Get returns the match document with the given id, or sql.ErrNoRows if
// absent.
func (s *Store) Get(id common.MatchID) (*common.Match, error) {
	row := new(Row)
	err := meddler.QueryRow(s.db, row, `SELECT match_id, listing_id, offer_id, match_type,
		order_items, status, state_code, state_message
		FROM order_matches WHERE match_id = $1`, string(id))
	if err != nil {
		return nil, common.Wrap(err)
	}
	return rowToMatch(row)
}

// ListActive returns every match document currently in the Active status,
// the snapshot matchsource replays on startup.
func (s *Store) ListActive() ([]*common.Match, error) {
	var rows []*Row
	err := meddler.QueryAll(s.db, &rows, `SELECT match_id, listing_id, offer_id, match_type,
		order_items, status, state_code, state_message
		FROM order_matches WHERE status = $1`, int(common.MatchActive))
	if err != nil {
		return nil, common.Wrap(err)
	}
	out := make([]*common.Match, len(rows))
	for i, r := range rows {
		m, err := rowToMatch(r)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

// SetState merges a new status/code/message onto a match document. Used by
// onCompleted/onReverted/onInvalidated/onProgress, all of which are
// idempotent: writing the same terminal state twice is a no-op success.
func (s *Store) SetState(id common.MatchID, state common.MatchState) error {
	_, err := s.db.Exec(`UPDATE order_matches SET status = $1, state_code = $2,
		state_message = $3, updated_at = now() WHERE match_id = $4`,
		int(state.Status), state.Code, state.Message, string(id))
	return common.Wrap(err)
}

// notifyChannel is the Postgres NOTIFY channel the matchstore triggers on
// INSERT/UPDATE of order_matches; a trigger publishing to it is assumed to
// be provisioned alongside the schema, outside this package's migration,
// since it is operator-environment specific.
const notifyChannel = "order_matches_changed"

// ListenerFactory builds a *pq.Listener bound to notifyChannel, to be
// consumed by matchsource's subscription loop. Kept as a factory rather
// than a constructed value so callers control the listener's event/error
// callbacks and reconnect minimum/maximum intervals.
type ListenerFactory func() (Listener, error)

// Listener is the subset of *pq.Listener the subscription loop drives,
// narrowed to keep matchsource testable without a real Postgres connection.
type Listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *Notification
	Close() error
}

// Notification mirrors pq.Notification's fields the loop cares about.
type Notification struct {
	Channel string
	Extra   string
}

// NotifyChannel returns the channel name listeners should subscribe to.
func NotifyChannel() string { return notifyChannel }
