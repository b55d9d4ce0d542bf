package memory

import (
	"fmt"
	"time"

	"github.com/coopenergy/platform/internal/app/domain/exclusive"
	"github.com/coopenergy/platform/internal/app/storage"
)

// flagAccess exposes the scope, secondary key and flags of a row type.
type flagAccess[T any] struct {
	id        func(T) string
	scope     func(T) string
	secondary func(T) string
	flagged   func(T) bool
	setFlag   func(*T, bool)
	active    func(T) bool
	setActive func(*T, bool)
	deleted   func(T) bool
	markDel   func(*T, time.Time)
	touch     func(*T, time.Time)
	// eligible, when set, must hold for a row to receive the flag.
	eligible func(T) bool
	clone    func(T) T
}

// flagTable keeps at most one flagged live row per scope. Callers hold the
// store lock for every method.
type flagTable[T any] struct {
	name   string
	rows   map[string]T
	order  []string
	access flagAccess[T]
}

func newFlagTable[T any](name string, access flagAccess[T]) *flagTable[T] {
	if access.clone == nil {
		access.clone = func(v T) T { return v }
	}
	return &flagTable[T]{name: name, rows: make(map[string]T), access: access}
}

func (t *flagTable[T]) live(id string) (T, error) {
	row, ok := t.rows[id]
	if !ok || t.access.deleted(row) {
		var zero T
		return zero, fmt.Errorf("%s %s: %w", t.name, id, storage.ErrNotFound)
	}
	return row, nil
}

func (t *flagTable[T]) get(id string) (T, error) {
	row, err := t.live(id)
	if err != nil {
		return row, err
	}
	return t.access.clone(row), nil
}

func (t *flagTable[T]) insert(row T, wantsFlag bool, now time.Time) (T, error) {
	a := t.access
	scope, secondary := a.scope(row), a.secondary(row)
	for _, existing := range t.rows {
		if a.deleted(existing) {
			continue
		}
		if a.scope(existing) == scope && a.secondary(existing) == secondary {
			var zero T
			return zero, fmt.Errorf("%s %s/%s: %w", t.name, scope, secondary, storage.ErrDuplicate)
		}
	}
	if wantsFlag && a.eligible != nil && !a.eligible(row) {
		var zero T
		return zero, fmt.Errorf("%s %s is not eligible for the flag: %w", t.name, a.id(row), storage.ErrProtectedState)
	}

	a.setFlag(&row, false)
	a.touch(&row, now)
	id := a.id(row)
	t.rows[id] = a.clone(row)
	t.order = append(t.order, id)

	if wantsFlag {
		return t.promote(id, now)
	}
	return a.clone(row), nil
}

func (t *flagTable[T]) replace(row T) {
	t.rows[t.access.id(row)] = t.access.clone(row)
}

func (t *flagTable[T]) promote(id string, now time.Time) (T, error) {
	a := t.access
	target, err := t.live(id)
	if err != nil {
		return target, err
	}
	if a.eligible != nil && !a.eligible(target) {
		var zero T
		return zero, fmt.Errorf("%s %s is not eligible for the flag: %w", t.name, id, storage.ErrProtectedState)
	}

	scope := a.scope(target)
	for otherID, other := range t.rows {
		if otherID == id || a.deleted(other) || !a.flagged(other) || a.scope(other) != scope {
			continue
		}
		a.setFlag(&other, false)
		a.touch(&other, now)
		t.rows[otherID] = other
	}

	a.setFlag(&target, true)
	a.touch(&target, now)
	t.rows[id] = target
	return a.clone(target), nil
}

func (t *flagTable[T]) demote(id string, now time.Time) (T, error) {
	target, err := t.live(id)
	if err != nil {
		return target, err
	}
	t.access.setFlag(&target, false)
	t.access.touch(&target, now)
	t.rows[id] = target
	return t.access.clone(target), nil
}

func (t *flagTable[T]) toggleActive(id string, now time.Time) (T, error) {
	a := t.access
	target, err := t.live(id)
	if err != nil {
		return target, err
	}
	if a.flagged(target) {
		var zero T
		return zero, fmt.Errorf("%s %s holds the scope flag and cannot be toggled: %w", t.name, id, storage.ErrProtectedState)
	}
	a.setActive(&target, !a.active(target))
	a.touch(&target, now)
	t.rows[id] = target
	return a.clone(target), nil
}

// remove soft-deletes a row. A deleted row never keeps the flag, so removing
// the current holder leaves the scope without one.
func (t *flagTable[T]) remove(id string, now time.Time) error {
	target, err := t.live(id)
	if err != nil {
		return err
	}
	t.access.setFlag(&target, false)
	t.access.markDel(&target, now)
	t.rows[id] = target
	return nil
}

func (t *flagTable[T]) flagHolder(scope string) (T, error) {
	a := t.access
	for _, row := range t.rows {
		if a.deleted(row) || a.scope(row) != scope {
			continue
		}
		if a.flagged(row) && a.active(row) {
			return a.clone(row), nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%s for scope %s: %w", t.name, scope, storage.ErrNotFound)
}

func (t *flagTable[T]) list(scope string) []T {
	a := t.access
	out := make([]T, 0)
	for _, id := range t.order {
		row := t.rows[id]
		if a.deleted(row) {
			continue
		}
		if scope != "" && a.scope(row) != scope {
			continue
		}
		out = append(out, a.clone(row))
	}
	return out
}

func (t *flagTable[T]) statistics(scope string) exclusive.Statistics {
	a := t.access
	stats := exclusive.Statistics{Scope: scope}
	for _, row := range t.list(scope) {
		stats.Total++
		if a.active(row) {
			stats.Active++
		} else {
			stats.Inactive++
		}
		if a.flagged(row) {
			stats.HasDefault = true
			stats.DefaultID = a.id(row)
		}
	}
	return stats
}
