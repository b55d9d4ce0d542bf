package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/coopenergy/platform/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db          *sqlx.DB
	lockTimeout time.Duration
	now         func() time.Time
}

var _ storage.CooperativeStore = (*Store)(nil)
var _ storage.PlantStore = (*Store)(nil)
var _ storage.PlantConfigStore = (*Store)(nil)
var _ storage.PlantGroupStore = (*Store)(nil)
var _ storage.VendorStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout bounds how long a transaction waits for row and scope
// locks. Zero leaves the server default in place.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store using the provided database handle.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:  sqlx.NewDb(db, "postgres"),
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withTx runs fn inside a transaction. Any error, including a failed commit,
// rolls the transaction back before it is returned.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return classify(err)
		}
	}
	if err = fn(tx); err != nil {
		return classify(err)
	}
	if err = tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// Postgres error codes the store classifies.
const (
	codeUniqueViolation   = "23505"
	codeLockNotAvailable  = "55P03"
	codeSerialization     = "40001"
	codeDeadlockDetected  = "40P01"
	singleFlagIndexSuffix = "_single_flag_idx"
)

// classify maps driver errors onto storage sentinels. Errors that already
// carry a sentinel pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case codeLockNotAvailable, codeSerialization, codeDeadlockDetected:
		return fmt.Errorf("%w: %s", storage.ErrLockTimeout, pqErr.Message)
	case codeUniqueViolation:
		// The single-flag index only fires when two writers raced past the
		// scope lock; the loser can simply retry.
		if strings.HasSuffix(pqErr.Constraint, singleFlagIndexSuffix) {
			return fmt.Errorf("%w: %s", storage.ErrLockTimeout, pqErr.Message)
		}
		return fmt.Errorf("%w: %s", storage.ErrDuplicate, pqErr.Message)
	default:
		return err
	}
}

func notFound(label, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", label, id, storage.ErrNotFound)
	}
	return err
}

func rowsAffected(res sql.Result, label, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", label, id, storage.ErrNotFound)
	}
	return nil
}
