package core

import "errors"

var (
	// ErrEmptyPayload means there was nothing to ingest.
	ErrEmptyPayload = errors.New("empty payload")
	// ErrEngineFailure means the embedded store rejected a write or read.
	ErrEngineFailure = errors.New("engine failure")
	// ErrNotFound means the table was never ingested for this tenant.
	ErrNotFound = errors.New("not found")
	// ErrTranslationUnavailable is absorbed by the translator and never returned to callers.
	ErrTranslationUnavailable = errors.New("translation unavailable")
	// ErrExecutionFailure means the SQL ran but failed.
	ErrExecutionFailure = errors.New("query execution failed")

	ErrInvalidTableName = errors.New("invalid table name")
	ErrProvision        = errors.New("cannot provision tenant store")
	ErrInvalidTenantID  = errors.New("invalid tenant id")
	ErrRemoteCall       = errors.New("remote procedure call failed")
	ErrStatementDenied  = errors.New("statement not allowed")
)
