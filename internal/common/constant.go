// Package common contains shared constants and sentinel errors used across
// TechTrack components.
package common

const (
	// AuthorizationHeader carries the bearer token on outbound REST calls.
	AuthorizationHeader = "Authorization"

	// IdempotencyKeyHeader lets the backend deduplicate replayed creates.
	IdempotencyKeyHeader = "Idempotency-Key"
)
