package syncer

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/techtrack/internal/client/client"
	"github.com/dmitrijs2005/techtrack/internal/client/connectivity"
	"github.com/dmitrijs2005/techtrack/internal/client/models"
	"github.com/dmitrijs2005/techtrack/internal/client/repositories/entities"
	"github.com/dmitrijs2005/techtrack/internal/client/repositories/queue"
	"github.com/dmitrijs2005/techtrack/internal/logging"
	"github.com/dmitrijs2005/techtrack/internal/timex"
	"github.com/stretchr/testify/require"
)

type call struct {
	Op      models.Op
	Type    models.EntityType
	ID      models.ID
	Payload models.Fields
	Key     string
}

// fakeClient plays the backend. Creates get ids from assign, falling back to
// a counter; fail decides per call whether it errors.
type fakeClient struct {
	mu     sync.Mutex
	calls  []call
	assign []int64
	nextID int64
	fail   func(c call, n int) error

	// hook runs before the call returns, outside the lock.
	hook func(ctx context.Context, c call) error
}

func newFakeClient(assign ...int64) *fakeClient {
	return &fakeClient{assign: assign, nextID: 1000}
}

func (f *fakeClient) record(ctx context.Context, c call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	n := len(f.calls)
	fail := f.fail
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, c); err != nil {
			return err
		}
	}
	if fail != nil {
		return fail(c, n)
	}
	return nil
}

func (f *fakeClient) Create(ctx context.Context, t models.EntityType, payload models.Fields, key string) (int64, models.Fields, error) {
	if err := f.record(ctx, call{Op: models.OpCreate, Type: t, Payload: payload.Clone(), Key: key}); err != nil {
		return 0, nil, err
	}

	f.mu.Lock()
	var id int64
	if len(f.assign) > 0 {
		id, f.assign = f.assign[0], f.assign[1:]
	} else {
		f.nextID++
		id = f.nextID
	}
	f.mu.Unlock()

	body := payload.Clone()
	body["id"] = float64(id)
	return id, body, nil
}

func (f *fakeClient) Update(ctx context.Context, t models.EntityType, id models.ID, payload models.Fields) (models.Fields, error) {
	if err := f.record(ctx, call{Op: models.OpUpdate, Type: t, ID: id, Payload: payload.Clone()}); err != nil {
		return nil, err
	}
	body := payload.Clone()
	body["id"] = float64(id.Int64())
	return body, nil
}

func (f *fakeClient) Delete(ctx context.Context, t models.EntityType, id models.ID) error {
	return f.record(ctx, call{Op: models.OpDelete, Type: t, ID: id})
}

func (f *fakeClient) Ping(context.Context) error { return nil }

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]call, len(f.calls))
	copy(out, f.calls)
	return out
}

var _ client.Client = (*fakeClient)(nil)

type env struct {
	db       *sql.DB
	entities *entities.SQLiteRepository
	queue    *queue.SQLiteRepository
	client   *fakeClient
	clock    *timex.FakeClock
	engine   *Engine

	mu     sync.Mutex
	events []Event
}

func (e *env) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

func newEnv(t *testing.T, fc *fakeClient, opts Options) *env {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "techtrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	e := &env{
		db:       db,
		entities: entities.NewSQLiteRepository(db),
		queue:    queue.NewSQLiteRepository(db),
		client:   fc,
		clock:    timex.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
	}

	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = RetryPolicy{BaseDelay: time.Second, MaxDelay: time.Minute}
	}
	opts.Now = e.clock.Now
	opts.Listener = func(ev Event) {
		e.mu.Lock()
		e.events = append(e.events, ev)
		e.mu.Unlock()
	}
	e.engine = NewEngine(db, fc, nil, logging.NewNopLogger(), opts)
	return e
}

// create stores a record under id and queues its create, the way the entity
// service does.
func (e *env) create(t *testing.T, typ models.EntityType, id string, fields models.Fields) int64 {
	t.Helper()
	ctx := context.Background()
	rid := models.MustParseID(id)
	require.NoError(t, e.entities.Put(ctx, &models.Record{Type: typ, ID: rid, Fields: fields.Clone()}))
	seq, err := e.queue.Enqueue(ctx, &models.QueueEntry{Op: models.OpCreate, Type: typ, EntityID: rid, Payload: fields.Clone()})
	require.NoError(t, err)
	return seq
}

func (e *env) update(t *testing.T, typ models.EntityType, id string, patch models.Fields) int64 {
	t.Helper()
	ctx := context.Background()
	rid := models.MustParseID(id)
	rec, err := e.entities.GetByID(ctx, typ, rid)
	require.NoError(t, err)
	if rec != nil {
		rec.Fields = rec.Fields.Merge(patch)
		require.NoError(t, e.entities.Put(ctx, rec))
	}
	seq, err := e.queue.Enqueue(ctx, &models.QueueEntry{Op: models.OpUpdate, Type: typ, EntityID: rid, Payload: patch.Clone()})
	require.NoError(t, err)
	return seq
}

func (e *env) delete(t *testing.T, typ models.EntityType, id string) int64 {
	t.Helper()
	ctx := context.Background()
	rid := models.MustParseID(id)
	require.NoError(t, e.entities.Remove(ctx, typ, rid))
	seq, err := e.queue.Enqueue(ctx, &models.QueueEntry{Op: models.OpDelete, Type: typ, EntityID: rid})
	require.NoError(t, err)
	return seq
}

func (e *env) record(t *testing.T, typ models.EntityType, id string) *models.Record {
	t.Helper()
	rec, err := e.entities.GetByID(context.Background(), typ, models.MustParseID(id))
	require.NoError(t, err)
	return rec
}

func (e *env) pending(t *testing.T) []*models.QueueEntry {
	t.Helper()
	entries, err := e.queue.ListPending(context.Background())
	require.NoError(t, err)
	return entries
}

func equipmentFields(serial string) models.Fields {
	return models.Fields{"name": "Linac", "serial_number": serial, "city": "Almaty", "status": "Operational"}
}

// fakeConn is a hand-driven connectivity source.
type fakeConn struct {
	mu     sync.Mutex
	online bool
	ch     chan connectivity.Transition
}

func newFakeConn(online bool) *fakeConn {
	return &fakeConn{online: online, ch: make(chan connectivity.Transition, 4)}
}

func (c *fakeConn) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *fakeConn) Subscribe() (<-chan connectivity.Transition, func()) {
	return c.ch, func() {}
}

func (c *fakeConn) set(online bool) {
	c.mu.Lock()
	from, to := connectivity.ModeOffline, connectivity.ModeOnline
	if !online {
		from, to = to, from
	}
	c.online = online
	c.mu.Unlock()
	c.ch <- connectivity.Transition{From: from, To: to, At: time.Now()}
}
