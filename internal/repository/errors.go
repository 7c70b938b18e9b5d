package repository

import "errors"

// Sentinel errors every Repository implementation should return so callers
// can classify failures per spec §7 without type-asserting a concrete store.
var (
	ErrNotFound            = errors.New("repository: not found")
	ErrDuplicateConnection = errors.New("repository: duplicate connection")
)
