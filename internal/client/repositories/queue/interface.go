package queue

import (
	"context"
	"time"

	"github.com/dmitrijs2005/techtrack/internal/client/models"
)

type Repository interface {
	// Enqueue validates and appends e, filling in Seq, OriginID,
	// IdempotencyKey and CreatedAt. It returns the assigned sequence number.
	Enqueue(ctx context.Context, e *models.QueueEntry) (int64, error)

	// ListPending returns all entries in ascending sequence order.
	ListPending(ctx context.Context) ([]*models.QueueEntry, error)

	// Get returns nil, nil when the entry does not exist.
	Get(ctx context.Context, seq int64) (*models.QueueEntry, error)

	// FindCreate returns the pending create that established id, or nil.
	FindCreate(ctx context.Context, t models.EntityType, id models.ID) (*models.QueueEntry, error)

	// Remove deletes one entry; removing an absent entry is a no-op.
	Remove(ctx context.Context, seq int64) error
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)

	RecordAttempt(ctx context.Context, seq int64, attempts int, nextAttemptAt time.Time, lastErr string) error
	MarkSynced(ctx context.Context, seq int64, remoteID int64) error

	// Retarget rewrites oldID to newID in entry targets and in reference
	// fields of pending payloads, returning the number of entries changed.
	Retarget(ctx context.Context, t models.EntityType, oldID, newID models.ID) (int, error)
}
