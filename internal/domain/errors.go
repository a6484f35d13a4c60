package domain

import "errors"

// Error kinds recognized across the engine. Wrap with fmt.Errorf("...: %w")
// and test with errors.Is; the HTTP layer maps each kind to a status code.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrAuth               = errors.New("unauthorized")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrConflict           = errors.New("conflicting concurrent write")
	ErrCancelled          = errors.New("operation cancelled")
)
