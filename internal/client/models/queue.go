package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/techtrack/internal/common"
)

// QueueEntry is one pending mutation waiting to be replayed against the
// backend.
type QueueEntry struct {
	Seq      int64
	Op       Op
	Type     EntityType
	EntityID ID
	// OriginID is the target id at enqueue time; EntityID follows rewrites.
	OriginID       ID
	Payload        Fields
	IdempotencyKey string

	Attempts      int
	NextAttemptAt time.Time
	LastError     string

	// Synced means the backend already applied the operation (RemoteID holds
	// the assigned id) but local reconciliation did not complete.
	Synced   bool
	RemoteID int64

	CreatedAt time.Time
}

// Lineage is the chain of operations on one entity.
type Lineage struct {
	Type EntityType
	ID   ID
}

func (l Lineage) String() string {
	return fmt.Sprintf("%s/%s", l.Type, l.ID)
}

func (e *QueueEntry) Lineage() Lineage {
	return Lineage{Type: e.Type, ID: e.EntityID}
}

// Validate checks the entry before it is appended to the queue.
func (e *QueueEntry) Validate() error {
	if !e.Op.Valid() {
		return fmt.Errorf("%w: unknown op %q", common.ErrInvalidPayload, e.Op)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %q", common.ErrUnknownEntityType, e.Type)
	}
	if e.EntityID.IsZero() {
		return fmt.Errorf("%w: queue entry without target", common.ErrInvalidID)
	}

	switch e.Op {
	case OpCreate:
		if !e.EntityID.IsLocal() {
			return fmt.Errorf("%w: create must target a local id, got %s", common.ErrInvalidID, e.EntityID)
		}
		return ValidateFields(e.Type, e.Op, e.Payload)
	case OpUpdate:
		if len(e.Payload) == 0 {
			return fmt.Errorf("%w: empty update", common.ErrInvalidPayload)
		}
		return ValidateFields(e.Type, e.Op, e.Payload)
	default:
		if e.Payload != nil {
			return fmt.Errorf("%w: delete carries no payload", common.ErrInvalidPayload)
		}
		return nil
	}
}
