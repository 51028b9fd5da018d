package cli

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/techtrack/internal/client/client"
	"github.com/dmitrijs2005/techtrack/internal/client/config"
	"github.com/dmitrijs2005/techtrack/internal/client/connectivity"
	"github.com/dmitrijs2005/techtrack/internal/client/models"
	"github.com/dmitrijs2005/techtrack/internal/client/repositories/entities"
	"github.com/dmitrijs2005/techtrack/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/techtrack/internal/client/repositories/queue"
	"github.com/dmitrijs2005/techtrack/internal/client/services"
	"github.com/dmitrijs2005/techtrack/internal/client/syncer"
	"github.com/dmitrijs2005/techtrack/internal/common"
	"github.com/dmitrijs2005/techtrack/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	drains    int
	report    *syncer.DrainReport
	drainErr  error
	discarded []int64
	states    map[int64]syncer.State
}

func (f *fakeEngine) Drain(context.Context) (*syncer.DrainReport, error) {
	f.drains++
	return f.report, f.drainErr
}

func (f *fakeEngine) Discard(_ context.Context, seq int64) error {
	f.discarded = append(f.discarded, seq)
	return nil
}

func (f *fakeEngine) State(seq int64) (syncer.State, bool) {
	s, ok := f.states[seq]
	return s, ok
}

type fakeMode connectivity.Mode

func (m fakeMode) Mode() connectivity.Mode { return connectivity.Mode(m) }

type testApp struct {
	*App
	db     *sql.DB
	out    *bytes.Buffer
	engine *fakeEngine
}

func newTestApp(t *testing.T, mode connectivity.Mode, input string) *testApp {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "techtrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := logging.NewNopLogger()
	out := &bytes.Buffer{}
	eng := &fakeEngine{states: map[int64]syncer.State{}}
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.City = "Almaty"

	a := &App{
		config:   cfg,
		logger:   logger,
		entities: services.NewEntityService(db, services.Scope{City: cfg.City}, logger),
		session:  services.NewSessionService(db, logger),
		meta:     metadata.NewSQLiteRepository(db),
		engine:   eng,
		conn:     fakeMode(mode),
		reader:   bufio.NewReader(strings.NewReader(input)),
		out:      out,
	}
	return &testApp{App: a, db: db, out: out, engine: eng}
}

func TestGetStatus(t *testing.T) {
	a := newTestApp(t, connectivity.ModeOnline, "")
	assert.Equal(t, "(Almaty online)", a.getStatus())

	a.config.City = ""
	a.conn = nil
	assert.Equal(t, "(unknown)", a.getStatus())
}

func TestAdd_CreatesLocalRecordAndQueuesIt(t *testing.T) {
	a := newTestApp(t, connectivity.ModeOffline, "")
	ctx := context.Background()

	require.NoError(t, a.Add(ctx, []string{"equipment", "name=Linac", "serial_number=SN-1", "year=2019"}))
	assert.Equal(t, "Created equipment -1\n", a.out.String())

	rec, err := a.entities.Get(ctx, models.EntityEquipment, models.MustParseID("-1"))
	require.NoError(t, err)
	assert.Equal(t, "Almaty", rec.Fields["city"])
	assert.Equal(t, float64(2019), rec.Fields["year"])

	pending, err := a.entities.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.OpCreate, pending[0].Op)
}

func TestAdd_ReadsFieldsInteractively(t *testing.T) {
	a := newTestApp(t, connectivity.ModeOffline, "title=Calibrate MLC\npriority=high\n\n")
	ctx := context.Background()

	require.NoError(t, a.Add(ctx, []string{"task"}))
	assert.Contains(t, a.out.String(), "Known fields: title")
	assert.Contains(t, a.out.String(), "Created task -1")

	rec, err := a.entities.Get(ctx, models.EntityTask, models.MustParseID("-1"))
	require.NoError(t, err)
	assert.Equal(t, "Calibrate MLC", rec.Fields["title"])
}

func TestAdd_Errors(t *testing.T) {
	a := newTestApp(t, connectivity.ModeOffline, "")
	ctx := context.Background()

	assert.ErrorIs(t, a.Add(ctx, nil), errUsage)
	assert.ErrorIs(t, a.Add(ctx, []string{"invoice", "a=b"}), common.ErrUnknownEntityType)
	assert.ErrorIs(t, a.Add(ctx, []string{"task", "colour=red"}), common.ErrInvalidPayload)
	assert.ErrorIs(t, a.Add(ctx, []string{"task", "priority=high"}), common.ErrInvalidPayload)
	assert.ErrorIs(t, a.Add(ctx, []string{"task", "title"}), models.ErrIncorrectAssignment)

	pending, err := a.entities.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestUpdateShowDelete(t *testing.T) {
	a := newTestApp(t, connectivity.ModeOffline, "")
	ctx := context.Background()

	require.NoError(t, a.Add(ctx, []string{"task", "title=Calibrate MLC"}))
	require.NoError(t, a.Update(ctx, []string{"task", "-1", "status=in progress"}))

	rec, err := a.entities.Get(ctx, models.EntityTask, models.MustParseID("-1"))
	require.NoError(t, err)
	assert.Equal(t, "in progress", rec.Fields["status"])

	a.out.Reset()
	require.NoError(t, a.Update(ctx, []string{"task", "-1", "status=completed"}))
	assert.Equal(t, "Updated task -1\n", a.out.String())

	a.out.Reset()
	require.NoError(t, a.Show(ctx, []string{"task", "-1"}))
	assert.Equal(t, "task -1 (local)\n  city: Almaty\n  status: completed\n  title: Calibrate MLC\n", a.out.String())

	a.out.Reset()
	require.NoError(t, a.Delete(ctx, []string{"task", "-1"}))
	assert.Equal(t, "Deleted task -1\n", a.out.String())

	assert.ErrorIs(t, a.Show(ctx, []string{"task", "-1"}), common.ErrNotFound)
	assert.ErrorIs(t, a.Update(ctx, []string{"task", "-1", "status=new"}), common.ErrNotFound)
	assert.ErrorIs(t, a.Update(ctx, []string{"task", "-1"}), errUsage)
	assert.ErrorIs(t, a.Delete(ctx, []string{"task"}), errUsage)
	assert.ErrorIs(t, a.Show(ctx, []string{"task", "x"}), common.ErrInvalidID)
}

func TestList(t *testing.T) {
	a := newTestApp(t, connectivity.ModeOffline, "")
	ctx := context.Background()

	require.NoError(t, a.List(ctx, []string{"equipment"}))
	assert.Equal(t, "No equipment records\n", a.out.String())

	require.NoError(t, a.Add(ctx, []string{"equipment", "name=Linac", "serial_number=SN-1", "status=Operational"}))
	require.NoError(t, a.Add(ctx, []string{"equipment", "name=CT", "serial_number=SN-2", "status=In repair"}))

	a.out.Reset()
	require.NoError(t, a.List(ctx, []string{"equipment"}))
	lines := strings.Split(strings.TrimSpace(a.out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))

	a.out.Reset()
	require.NoError(t, a.List(ctx, []string{"equipment", "serial_number=SN-1"}))
	lines = strings.Split(strings.TrimSpace(a.out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "name=Linac")
	assert.Contains(t, lines[1], "local")

	assert.ErrorIs(t, a.List(ctx, []string{"equipment", "colour=red"}), common.ErrUnknownIndex)
	assert.ErrorIs(t, a.List(ctx, []string{"equipment", "serial_number"}), errUsage)
	assert.ErrorIs(t, a.List(ctx, nil), errUsage)
}

func TestQueue(t *testing.T) {
	a := newTestApp(t, connectivity.ModeOffline, "")
	ctx := context.Background()

	require.NoError(t, a.Queue(ctx))
	assert.Equal(t, "Queue is empty\n", a.out.String())

	require.NoError(t, a.Add(ctx, []string{"task", "title=Calibrate"}))
	require.NoError(t, a.Update(ctx, []string{"task", "-1", "priority=high"}))
	a.engine.states[2] = syncer.StateInFlight

	a.out.Reset()
	require.NoError(t, a.Queue(ctx))
	lines := strings.Split(strings.TrimSpace(a.out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "create")
	assert.Contains(t, lines[1], "pending")
	assert.Contains(t, lines[2], "update")
	assert.Contains(t, lines[2], "in flight")
}

func TestSync_OfflineKeepsQueue(t *testing.T) {
	a := newTestApp(t, connectivity.ModeOffline, "")
	ctx := context.Background()
	require.NoError(t, a.Add(ctx, []string{"task", "title=Calibrate"}))

	a.out.Reset()
	require.NoError(t, a.Sync(ctx))
	assert.Equal(t, 0, a.engine.drains)
	assert.Equal(t, "Offline: 1 change(s) stay queued until the server is reachable\n", a.out.String())
}

func TestSync_OnlineDrains(t *testing.T) {
	a := newTestApp(t, connectivity.ModeOnline, "")
	a.engine.report = &syncer.DrainReport{Dispatched: 3, Acknowledged: 2, Retried: 1, Deferred: 1}
	a.engine.drainErr = common.ErrConflict

	err := a.Sync(context.Background())
	assert.ErrorIs(t, err, common.ErrConflict)
	assert.Equal(t, 1, a.engine.drains)
	assert.Equal(t, "Sent 3, acknowledged 2, retrying 1, rejected 0, deferred 1\n", a.out.String())
}

func TestDiscard(t *testing.T) {
	a := newTestApp(t, connectivity.ModeOnline, "")
	ctx := context.Background()

	require.NoError(t, a.Discard(ctx, []string{"7"}))
	assert.Equal(t, []int64{7}, a.engine.discarded)
	assert.Equal(t, "Discarded queue entry 7\n", a.out.String())

	assert.ErrorIs(t, a.Discard(ctx, []string{"seven"}), errUsage)
	assert.ErrorIs(t, a.Discard(ctx, []string{"0"}), errUsage)
	assert.ErrorIs(t, a.Discard(ctx, nil), errUsage)
}

func TestConflicts(t *testing.T) {
	a := newTestApp(t, connectivity.ModeOnline, "")
	ctx := context.Background()

	require.NoError(t, a.Conflicts(ctx))
	assert.Equal(t, "Nothing needs attention\n", a.out.String())

	require.NoError(t, a.Add(ctx, []string{"task", "title=Calibrate"}))
	require.NoError(t, a.Add(ctx, []string{"trip", "title=Shymkent", "start_date=2026-03-02", "end_date=2026-03-04"}))
	require.NoError(t, queue.NewSQLiteRepository(a.db).MarkSynced(ctx, 1, 501))
	require.NoError(t, entities.NewSQLiteRepository(a.db).MarkOutOfSync(ctx, models.EntityTrip, models.MustParseID("-2"), "400 Bad Request"))

	a.out.Reset()
	require.NoError(t, a.Conflicts(ctx))
	assert.Equal(t, "Queue entries needing resolution (use 'discard <seq>'):\n"+
		"  #1 create task -1, server id 501\n"+
		"Records out of sync with the server:\n"+
		"  trip -2: 400 Bad Request\n", a.out.String())
}

func TestStatus(t *testing.T) {
	a := newTestApp(t, connectivity.ModeOnline, "")
	ctx := context.Background()

	require.NoError(t, a.Add(ctx, []string{"task", "title=Calibrate"}))
	a.out.Reset()
	require.NoError(t, a.Status(ctx))
	out := a.out.String()
	assert.Contains(t, out, "Mode:        online\n")
	assert.Contains(t, out, "Pending:     1\n")
	assert.Contains(t, out, "Last sync:   never\n")

	drained := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, a.meta.SetTime(ctx, metadata.KeyLastDrainAt, drained))
	a.out.Reset()
	require.NoError(t, a.Status(ctx))
	assert.Contains(t, a.out.String(), "Last sync:   "+drained.Local().Format(time.DateTime))
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "tech-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestToken(t *testing.T) {
	a := newTestApp(t, connectivity.ModeOnline, "")
	ctx := context.Background()
	valid := signedToken(t, time.Now().Add(time.Hour))

	stubPassword(t, valid, nil)
	require.NoError(t, a.Token(ctx))
	assert.Contains(t, a.out.String(), "Token saved")

	got, err := a.session.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, valid, got)

	stubPassword(t, "not-a-jwt", nil)
	assert.ErrorIs(t, a.Token(ctx), common.ErrInvalidToken)

	stubPassword(t, "", nil)
	assert.Error(t, a.Token(ctx))
}

func TestLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("cancelled", func(t *testing.T) {
		a := newTestApp(t, connectivity.ModeOffline, "n\n")
		require.NoError(t, a.Add(ctx, []string{"task", "title=Calibrate"}))

		require.NoError(t, a.Logout(ctx))
		assert.Contains(t, a.out.String(), "1 change(s) have not reached the server")
		assert.Contains(t, a.out.String(), "Logout cancelled")

		pending, err := a.entities.Pending(ctx)
		require.NoError(t, err)
		assert.Len(t, pending, 1)
	})

	t.Run("confirmed", func(t *testing.T) {
		a := newTestApp(t, connectivity.ModeOffline, "yes\n")
		require.NoError(t, a.Add(ctx, []string{"task", "title=Calibrate"}))

		require.NoError(t, a.Logout(ctx))
		assert.Contains(t, a.out.String(), "Logged out")

		pending, err := a.entities.Pending(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending)
		list, err := a.entities.List(ctx, models.EntityTask)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestNewProbe(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	api, err := client.NewRESTClient(cfg.APIBaseURL, time.Second)
	require.NoError(t, err)

	p, err := newProbe(cfg, api)
	require.NoError(t, err)
	assert.IsType(t, connectivity.ProbeFunc(nil), p)

	cfg.HealthCheck = config.HealthCheckGRPC
	p, err = newProbe(cfg, api)
	require.NoError(t, err)
	gp, ok := p.(*connectivity.GRPCHealthProbe)
	require.True(t, ok)
	require.NoError(t, gp.Close())
}

func TestNewApp_RunAndExit(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.APIBaseURL = srv.URL
	cfg.City = "Almaty"
	cfg.DatabasePath = filepath.Join(t.TempDir(), "data", "techtrack.db")

	capturePrintln(t)

	a, err := NewApp(context.Background(), cfg, logging.NewNopLogger())
	require.NoError(t, err)
	out := &bytes.Buffer{}
	a.out = out
	a.reader = bufio.NewReader(strings.NewReader("add task title=Calibrate\nexit\n"))

	done := make(chan struct{})
	go func() {
		a.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after exit")
	}
	assert.Contains(t, out.String(), "Created task -1")
	assert.Empty(t, a.closers)
}
