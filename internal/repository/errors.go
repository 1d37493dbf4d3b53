package repository

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable is returned when the store cannot be reached or fails mid-operation.
	ErrUnavailable = errors.New("store unavailable")
)
