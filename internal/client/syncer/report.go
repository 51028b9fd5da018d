package syncer

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/techtrack/internal/client/models"
)

type State int

const (
	StatePending State = iota
	StateInFlight
	StateAcknowledged
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInFlight:
		return "in flight"
	case StateAcknowledged:
		return "acknowledged"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type EventKind string

const (
	EventDispatched   EventKind = "dispatched"
	EventAcknowledged EventKind = "acknowledged"
	EventRetry        EventKind = "retry"
	EventRejected     EventKind = "rejected"
	EventConflict     EventKind = "conflict"
	EventDiscarded    EventKind = "discarded"
)

// Event describes one state change of a queue entry.
type Event struct {
	Kind     EventKind
	Seq      int64
	Op       models.Op
	Type     models.EntityType
	EntityID models.ID
	// RemoteID is set on acknowledged creates and conflicts.
	RemoteID int64
	Err      error
	At       time.Time
}

// ListenerFunc receives engine events. It is called from engine goroutines
// and must not block.
type ListenerFunc func(Event)

// DrainReport summarizes one drain pass.
type DrainReport struct {
	mu sync.Mutex

	Started      time.Time
	Finished     time.Time
	Dispatched   int
	Acknowledged int
	Retried      int
	Rejected     int
	// Deferred counts entries left for a later pass without being sent.
	Deferred    int
	Conflicts   []int64
	Interrupted bool
}

func newReport(started time.Time) *DrainReport {
	return &DrainReport{Started: started}
}

func (r *DrainReport) add(fn func(r *DrainReport)) {
	r.mu.Lock()
	fn(r)
	r.mu.Unlock()
}

func (r *DrainReport) interrupted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Interrupted
}
