package common

import "errors"

var (

	// repository specific errors
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrStorageCorruption = errors.New("storage write failed")
	ErrUnknownIndex      = errors.New("unknown index")

	// model specific errors
	ErrUnknownEntityType = errors.New("unknown entity type")
	ErrInvalidPayload    = errors.New("invalid payload")
	ErrInvalidID         = errors.New("invalid id")

	// sync specific errors
	ErrRetryableTransport = errors.New("retryable transport error")
	ErrTerminalRemote     = errors.New("terminal remote error")
	ErrOrphanedReference  = errors.New("reference to an entity that was never created remotely")

	// auth errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
