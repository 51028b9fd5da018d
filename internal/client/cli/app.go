package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/techtrack/internal/client/client"
	"github.com/dmitrijs2005/techtrack/internal/client/config"
	"github.com/dmitrijs2005/techtrack/internal/client/connectivity"
	"github.com/dmitrijs2005/techtrack/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/techtrack/internal/client/services"
	"github.com/dmitrijs2005/techtrack/internal/client/syncer"
	"github.com/dmitrijs2005/techtrack/internal/filex"
	"github.com/dmitrijs2005/techtrack/internal/logging"
)

// healthService is the service name asked of a grpc.health.v1 endpoint.
// Empty means overall server health.
const healthService = ""

// syncEngine is the part of syncer.Engine the commands use.
type syncEngine interface {
	Drain(ctx context.Context) (*syncer.DrainReport, error)
	Discard(ctx context.Context, seq int64) error
	State(seq int64) (syncer.State, bool)
}

// modeSource reports the current connectivity mode.
type modeSource interface {
	Mode() connectivity.Mode
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	entities services.EntityService
	session  services.SessionService
	meta     metadata.Repository
	engine   syncEngine
	conn     modeSource
	reader   *bufio.Reader
	out      io.Writer

	// background loops started by Run
	loops   []func(ctx context.Context)
	closers []io.Closer
}

// NewApp opens the local database and wires the services, the REST client,
// the connectivity monitor and the sync engine.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	dbPath, err := filex.EnsureParentDir(c.DatabasePath)
	if err != nil {
		return nil, err
	}

	db, err := client.InitDatabase(ctx, dbPath)
	if err != nil {
		logger.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	session := services.NewSessionService(db, logger)

	api, err := client.NewRESTClient(c.APIBaseURL, c.RequestTimeout, client.WithTokenSource(session.Token))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	probe, err := newProbe(c, api)
	if err != nil {
		_ = api.Close()
		_ = db.Close()
		return nil, err
	}

	monitor := connectivity.NewMonitor(probe, c.OnlineCheckInterval, logger)
	engine := syncer.NewEngine(db, api, monitor, logger, syncer.Options{
		MaxConcurrentLineages: c.MaxConcurrentLineages,
		RequestTimeout:        c.RequestTimeout,
		SyncInterval:          c.SyncInterval,
		Retry: syncer.RetryPolicy{
			BaseDelay:     c.RetryBaseDelay,
			MaxDelay:      c.RetryMaxDelay,
			JitterPercent: syncer.DefaultRetryPolicy().JitterPercent,
		},
	})

	a := &App{
		config:   c,
		logger:   logger,
		entities: services.NewEntityService(db, services.Scope{City: c.City}, logger),
		session:  session,
		meta:     metadata.NewSQLiteRepository(db),
		engine:   engine,
		conn:     monitor,
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
		loops:    []func(ctx context.Context){monitor.Start, engine.Run},
	}
	if cl, ok := probe.(io.Closer); ok {
		a.closers = append(a.closers, cl)
	}
	a.closers = append(a.closers, api, closerFunc(db.Close))
	return a, nil
}

// newProbe picks the health check named in the config.
func newProbe(c *config.Config, api client.Client) (connectivity.Probe, error) {
	switch c.HealthCheck {
	case config.HealthCheckGRPC:
		p, err := connectivity.NewGRPCHealthProbe(c.GRPCHealthAddr, healthService)
		if err != nil {
			return nil, fmt.Errorf("failed to create grpc health probe: %w", err)
		}
		return p, nil
	default:
		return connectivity.ProbeFunc(api.Ping), nil
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Run starts the background loops, runs the REPL until the user exits or ctx
// is cancelled, then stops the loops and releases resources.
func (a *App) Run(ctx context.Context) {
	defer a.Close(ctx)

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, loop := range a.loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop(ctx)
		}()
	}

	a.Root(ctx)

	cancel()
	wg.Wait()
}

// Close releases the probe, the REST client and the database, in that order.
func (a *App) Close(ctx context.Context) {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn(ctx, "close failed", "error", err)
		}
	}
	a.closers = nil
}

func (a *App) mode() connectivity.Mode {
	if a.conn == nil {
		return connectivity.ModeUnknown
	}
	return a.conn.Mode()
}

func (a *App) isOnline() bool {
	return a.mode() == connectivity.ModeOnline
}

func (a *App) lastDrain(ctx context.Context) (time.Time, error) {
	return a.meta.GetTime(ctx, metadata.KeyLastDrainAt)
}
