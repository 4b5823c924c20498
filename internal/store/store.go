// Package store persists quota state in the relational database: limit
// overrides, usage rows, and the reservation protocol that mutates them
// under row locks.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lijhnihaoa/blockquota/internal/db"
	"github.com/lijhnihaoa/blockquota/internal/quota"
)

const (
	maxTxRetries   = 5
	txRetryBackoff = 25 * time.Millisecond
)

// SyncFunc recalculates committed usage from the source-of-truth tables
// inside the caller's transaction. It returns fresh in_use values keyed
// by resource name; a provider may return more than one key when a
// single recount covers related resources.
type SyncFunc func(ctx context.Context, tx *gorm.DB, projectID string, res quota.Resource) (map[string]int64, error)

// Store implements the override and reservation stores over gorm.
type Store struct {
	conn  *gorm.DB
	syncs map[string]SyncFunc
}

var (
	_ quota.OverrideStore    = (*Store)(nil)
	_ quota.ReservationStore = (*Store)(nil)
	_ quota.ResourceRenamer  = (*Store)(nil)
)

// New wraps a database connection. Sync providers must be registered
// before the first Reserve call.
func New(conn *gorm.DB) *Store {
	return &Store{conn: conn, syncs: make(map[string]SyncFunc)}
}

// RegisterSync binds a usage-recalculation provider to a sync name.
func (s *Store) RegisterSync(name string, fn SyncFunc) {
	s.syncs[name] = fn
}

func (s *Store) sync(name string) (SyncFunc, error) {
	fn, ok := s.syncs[name]
	if !ok {
		return nil, fmt.Errorf("no sync provider registered for %q", name)
	}
	return fn, nil
}

// withRetry runs fn in a transaction, retrying on serialization
// conflicts and lock contention.
func (s *Store) withRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var errTx error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		errTx = s.conn.WithContext(ctx).Transaction(fn)
		if errTx == nil || !isRetryableTxError(errTx) {
			return errTx
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(txRetryBackoff * time.Duration(attempt+1)):
		}
	}
	return errTx
}

// lockForUpdate adds a row lock on engines that support it. SQLite runs
// with a single writer connection and needs none.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if db.IsSQLite(tx) {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
