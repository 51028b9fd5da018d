package client

import (
	"context"

	"github.com/dmitrijs2005/techtrack/internal/client/models"
)

// Client replays one queued operation against the backend per call.
type Client interface {
	// Create returns the id the backend assigned together with the stored body.
	Create(ctx context.Context, t models.EntityType, payload models.Fields, idempotencyKey string) (int64, models.Fields, error)
	Update(ctx context.Context, t models.EntityType, remoteID models.ID, payload models.Fields) (models.Fields, error)
	Delete(ctx context.Context, t models.EntityType, remoteID models.ID) error
	Ping(ctx context.Context) error
	Close() error
}

// TokenSource returns the bearer token to attach, or "" for none.
type TokenSource func(ctx context.Context) (string, error)
