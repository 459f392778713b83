package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("record already exists")
	// ErrStale is returned by conditional updates when the row left the expected status.
	ErrStale = errors.New("record changed concurrently")
)
