package annotations

import "errors"

var (
	// ErrNotFound reports a missing media or job record. For stage transitions
	// it means the job was deleted while its remote call was in flight.
	ErrNotFound = errors.New("annotation record not found")
	// ErrTransitionRejected reports a stage transition whose preconditions
	// do not hold for the job's current state.
	ErrTransitionRejected = errors.New("stage transition rejected")
	// ErrInvalidJob reports a submission that fails validation.
	ErrInvalidJob = errors.New("invalid annotation job")
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)
