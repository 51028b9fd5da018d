// Package client contains the client-side building blocks that talk to the
// outside world: the backend REST API and the local database bootstrap.
//
// # Overview
//
// The package provides:
//  1. A transport contract (see the Client interface) with one call per
//     queued operation: Create, Update, Delete, plus Ping for health checks.
//  2. A REST implementation (see RESTClient) that maps entity types to
//     collections (POST /tasks/, PUT /tasks/{id}, DELETE /tasks/{id}),
//     attaches the bearer token and the Idempotency-Key header, and maps
//     transport failures and HTTP statuses to sentinel errors.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) that opens the
//     SQLite database and applies the embedded goose migrations.
//
// # Error Handling
//
// Failures can be matched with errors.Is: ErrUnavailable (network, timeouts,
// 408, 429, 5xx), ErrUnauthorized (401 or an expired token), ErrRejected
// (other 4xx) and ErrInvalidResponse. Non-2xx answers are *StatusError.
//
// Concurrency & Contexts
//
// RESTClient is safe for concurrent use. Every call honors ctx cancellation.
package client
