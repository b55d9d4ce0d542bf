package storage

import "errors"

var (
	// ErrNotFound is returned when a row does not exist or is soft-deleted.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a row already exists for a scope/secondary
	// key pair.
	ErrDuplicate = errors.New("record already exists")
	// ErrProtectedState is returned when the current state of a row forbids the
	// requested change, e.g. deactivating the default row of a scope.
	ErrProtectedState = errors.New("record state forbids operation")
	// ErrLockTimeout is returned when the scope lock could not be acquired in
	// time. It is transient and safe to retry.
	ErrLockTimeout = errors.New("scope lock timeout")
)
