package entities

import (
	"context"

	"github.com/dmitrijs2005/techtrack/internal/client/models"
)

type Repository interface {
	// GetAll returns every record of t ordered by id.
	GetAll(ctx context.Context, t models.EntityType) ([]*models.Record, error)

	// GetByID returns nil, nil when the record does not exist.
	GetByID(ctx context.Context, t models.EntityType, id models.ID) (*models.Record, error)

	// FindBy returns records whose index equals value.
	FindBy(ctx context.Context, t models.EntityType, index, value string) ([]*models.Record, error)

	// Put inserts or replaces the record and its index rows.
	Put(ctx context.Context, rec *models.Record) error

	// Remove deletes the record; removing an absent record is a no-op.
	Remove(ctx context.Context, t models.EntityType, id models.ID) error

	// RewriteID moves a record from oldID to newID, keeping every field.
	RewriteID(ctx context.Context, t models.EntityType, oldID, newID models.ID) error

	// RewriteReferences replaces oldID with newID in every field of any type
	// that references refType, returning the number of records changed.
	RewriteReferences(ctx context.Context, refType models.EntityType, oldID, newID models.ID) (int, error)

	// ResolveID follows the local-to-remote id map.
	ResolveID(ctx context.Context, t models.EntityType, id models.ID) (models.ID, error)

	MarkOutOfSync(ctx context.Context, t models.EntityType, id models.ID, reason string) error
	ClearOutOfSync(ctx context.Context, t models.EntityType, id models.ID) error
	ListOutOfSync(ctx context.Context) ([]*models.Record, error)

	// NextLocalID allocates a fresh local id that is never handed out again.
	NextLocalID(ctx context.Context) (models.ID, error)

	Clear(ctx context.Context, t models.EntityType) error
	ClearAll(ctx context.Context) error
}
