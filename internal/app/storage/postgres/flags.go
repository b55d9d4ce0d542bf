package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/coopenergy/platform/internal/app/domain/exclusive"
	"github.com/coopenergy/platform/internal/app/storage"
)

// flagTable describes a table whose live rows carry a flag that at most one
// row per scope may hold. All flag writes for the table go through it.
//
// Lock order is always scope lock, then row locks. Promote reads the scope of
// its target without a lock (scope keys are immutable), takes the scope lock
// and only then locks the target row, so two promotions in one scope never
// hold row locks the other needs.
type flagTable struct {
	table     string
	label     string
	scope     string
	secondary string
	flag      string
	// eligible is an SQL predicate a row must satisfy to receive the flag.
	eligible string
}

// rowMutation is the shape of the flagTable operations that act on one row.
type rowMutation func(ctx context.Context, tx *sqlx.Tx, id string, now time.Time) error

// lockScope serializes flag writers within one scope until the transaction
// ends. Inserts are covered too, which row locks alone would not give.
func (t flagTable) lockScope(ctx context.Context, tx *sqlx.Tx, scope string) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, t.table+":"+scope)
	return err
}

func (t flagTable) scopeOf(ctx context.Context, tx *sqlx.Tx, id string) (string, error) {
	var scope string
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 AND deleted_at IS NULL`, t.scope, t.table)
	if err := tx.GetContext(ctx, &scope, q, id); err != nil {
		return "", notFound(t.label, id, err)
	}
	return scope, nil
}

// promote makes id the single flag holder of its scope.
func (t flagTable) promote(ctx context.Context, tx *sqlx.Tx, id string, now time.Time) error {
	scope, err := t.scopeOf(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := t.lockScope(ctx, tx, scope); err != nil {
		return err
	}
	return t.promoteLocked(ctx, tx, scope, id, now)
}

// promoteLocked expects the scope lock to be held.
func (t flagTable) promoteLocked(ctx context.Context, tx *sqlx.Tx, scope, id string, now time.Time) error {
	eligible := t.eligible
	if eligible == "" {
		eligible = "TRUE"
	}

	var ok bool
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, eligible, t.table)
	if err := tx.GetContext(ctx, &ok, q, id); err != nil {
		return notFound(t.label, id, err)
	}
	if !ok {
		return fmt.Errorf("%s %s is not eligible for the flag: %w", t.label, id, storage.ErrProtectedState)
	}

	clear := fmt.Sprintf(`UPDATE %s SET %s = FALSE, updated_at = $3 WHERE %s = $1 AND id <> $2 AND %s AND deleted_at IS NULL`,
		t.table, t.flag, t.scope, t.flag)
	if _, err := tx.ExecContext(ctx, clear, scope, id, now); err != nil {
		return err
	}

	set := fmt.Sprintf(`UPDATE %s SET %s = TRUE, updated_at = $2 WHERE id = $1`, t.table, t.flag)
	_, err := tx.ExecContext(ctx, set, id, now)
	return err
}

// demote clears the flag of id. It never sets the flag anywhere, so it needs
// no scope lock.
func (t flagTable) demote(ctx context.Context, tx *sqlx.Tx, id string, now time.Time) error {
	q := fmt.Sprintf(`UPDATE %s SET %s = FALSE, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, t.table, t.flag)
	res, err := tx.ExecContext(ctx, q, id, now)
	if err != nil {
		return err
	}
	return rowsAffected(res, t.label, id)
}

// toggleActive flips is_active unless the row holds the flag.
func (t flagTable) toggleActive(ctx context.Context, tx *sqlx.Tx, id string, now time.Time) error {
	var flagged bool
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, t.flag, t.table)
	if err := tx.GetContext(ctx, &flagged, q, id); err != nil {
		return notFound(t.label, id, err)
	}
	if flagged {
		return fmt.Errorf("%s %s holds the scope flag and cannot be toggled: %w", t.label, id, storage.ErrProtectedState)
	}
	upd := fmt.Sprintf(`UPDATE %s SET is_active = NOT is_active, updated_at = $2 WHERE id = $1`, t.table)
	_, err := tx.ExecContext(ctx, upd, id, now)
	return err
}

// create runs insert under the scope lock after checking the scope/secondary
// pair is free, then promotes the new row when wantsFlag is set. insert must
// write the flag as false. A unique violation from insert is classified as a
// duplicate by withTx.
func (t flagTable) create(ctx context.Context, tx *sqlx.Tx, id, scope, secondary string, wantsFlag bool, now time.Time, insert func() error) error {
	if err := t.lockScope(ctx, tx, scope); err != nil {
		return err
	}

	var exists bool
	q := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1 AND %s = $2 AND deleted_at IS NULL)`,
		t.table, t.scope, t.secondary)
	if err := tx.GetContext(ctx, &exists, q, scope, secondary); err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%s %s/%s: %w", t.label, scope, secondary, storage.ErrDuplicate)
	}

	if err := insert(); err != nil {
		return err
	}
	if !wantsFlag {
		return nil
	}
	return t.promoteLocked(ctx, tx, scope, id, now)
}

// softDelete marks id deleted and drops its flag, leaving the scope without
// a holder if it had one.
func (t flagTable) softDelete(ctx context.Context, db sqlx.ExecerContext, id string, now time.Time) error {
	q := fmt.Sprintf(`UPDATE %s SET deleted_at = $2, %s = FALSE, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, t.table, t.flag)
	res, err := db.ExecContext(ctx, q, id, now)
	if err != nil {
		return err
	}
	return rowsAffected(res, t.label, id)
}

func (t flagTable) statistics(ctx context.Context, db sqlx.QueryerContext, scope string) (exclusive.Statistics, error) {
	var row struct {
		Total     int    `db:"total"`
		Active    int    `db:"active"`
		DefaultID string `db:"default_id"`
	}
	q := fmt.Sprintf(`SELECT COUNT(*) AS total,
		COUNT(*) FILTER (WHERE is_active) AS active,
		COALESCE(MAX(id) FILTER (WHERE %s), '') AS default_id
		FROM %s WHERE %s = $1 AND deleted_at IS NULL`, t.flag, t.table, t.scope)
	if err := sqlx.GetContext(ctx, db, &row, q, scope); err != nil {
		return exclusive.Statistics{}, err
	}
	return exclusive.Statistics{
		Scope:      scope,
		Total:      row.Total,
		Active:     row.Active,
		Inactive:   row.Total - row.Active,
		HasDefault: row.DefaultID != "",
		DefaultID:  row.DefaultID,
	}, nil
}
