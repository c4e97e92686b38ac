package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors.
//
//   - ErrNotFound: entity does not exist in the store
//   - ErrAlreadyUsed: a unique key (definition name) is taken
//   - ErrConflict: a write would break a store-level constraint
//   - ErrReferenced: the row is still referenced by another table
var (
	ErrNotFound    = errors.New("not found")
	ErrAlreadyUsed = errors.New("already used")
	ErrConflict    = errors.New("conflict")
	ErrReferenced  = errors.New("still referenced")
)
