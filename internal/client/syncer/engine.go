package syncer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/techtrack/internal/client/client"
	"github.com/dmitrijs2005/techtrack/internal/client/connectivity"
	"github.com/dmitrijs2005/techtrack/internal/client/models"
	"github.com/dmitrijs2005/techtrack/internal/client/repositories/entities"
	"github.com/dmitrijs2005/techtrack/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/techtrack/internal/client/repositories/queue"
	"github.com/dmitrijs2005/techtrack/internal/common"
	"github.com/dmitrijs2005/techtrack/internal/dbx"
	"github.com/dmitrijs2005/techtrack/internal/logging"
	"github.com/dmitrijs2005/techtrack/internal/timex"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxConcurrentLineages = 4
	DefaultRequestTimeout        = 30 * time.Second
	DefaultSyncInterval          = time.Minute
)

// Connectivity is the part of connectivity.Monitor the engine listens to.
type Connectivity interface {
	Online() bool
	Subscribe() (<-chan connectivity.Transition, func())
}

type Options struct {
	MaxConcurrentLineages int
	RequestTimeout        time.Duration
	// SyncInterval is the period of background drains while online.
	SyncInterval time.Duration
	Retry        RetryPolicy
	Listener     ListenerFunc
	Now          timex.Clock
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrentLineages <= 0 {
		o.MaxConcurrentLineages = DefaultMaxConcurrentLineages
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.SyncInterval <= 0 {
		o.SyncInterval = DefaultSyncInterval
	}
	if o.Retry == (RetryPolicy{}) {
		o.Retry = DefaultRetryPolicy()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Engine struct {
	db       *sql.DB
	entities entities.Repository
	queue    queue.Repository
	meta     metadata.Repository
	client   client.Client
	conn     Connectivity
	logger   logging.Logger
	opts     Options

	drainMu sync.Mutex

	stateMu sync.Mutex
	states  map[int64]State

	trigger chan struct{}
}

// NewEngine builds an engine over the local database. conn may be nil when
// only Drain is used.
func NewEngine(db *sql.DB, c client.Client, conn Connectivity, logger logging.Logger, opts Options) *Engine {
	return &Engine{
		db:       db,
		entities: entities.NewSQLiteRepository(db),
		queue:    queue.NewSQLiteRepository(db),
		meta:     metadata.NewSQLiteRepository(db),
		client:   c,
		conn:     conn,
		logger:   logger,
		opts:     opts.withDefaults(),
		states:   make(map[int64]State),
		trigger:  make(chan struct{}, 1),
	}
}

// State reports the in-memory state of a queue entry seen by this engine.
func (e *Engine) State(seq int64) (State, bool) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	s, ok := e.states[seq]
	return s, ok
}

func (e *Engine) setState(seq int64, s State) {
	e.stateMu.Lock()
	e.states[seq] = s
	e.stateMu.Unlock()
}

func (e *Engine) resetStates(entries []*models.QueueEntry) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.states = make(map[int64]State, len(entries))
	for _, en := range entries {
		e.states[en.Seq] = StatePending
	}
}

func (e *Engine) emit(kind EventKind, en *models.QueueEntry, remoteID int64, err error) {
	if e.opts.Listener == nil {
		return
	}
	e.opts.Listener(Event{
		Kind:     kind,
		Seq:      en.Seq,
		Op:       en.Op,
		Type:     en.Type,
		EntityID: en.EntityID,
		RemoteID: remoteID,
		Err:      err,
		At:       e.opts.Now(),
	})
}

// Trigger asks Run for a drain as soon as possible. Triggers that arrive
// while one is already waiting are merged.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// pass is the bookkeeping of one Drain call.
type pass struct {
	report *DrainReport
	maxSeq int64

	mu        sync.Mutex
	attempted map[int64]struct{}
	halted    map[models.Lineage]struct{}
}

func (p *pass) markAttempted(seq int64) {
	p.mu.Lock()
	p.attempted[seq] = struct{}{}
	p.mu.Unlock()
}

func (p *pass) wasAttempted(seq int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.attempted[seq]
	return ok
}

func (p *pass) halt(l models.Lineage) {
	p.mu.Lock()
	p.halted[l] = struct{}{}
	p.mu.Unlock()
}

func (p *pass) isHalted(l models.Lineage) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.halted[l]
	return ok
}

type step int

const (
	stepNext step = iota // entry settled, the lineage goes on
	stepHalt             // the lineage waits for a later pass
	stepWait             // a prerequisite is still queued, retry next round
	stepStop             // the pass is interrupted
)

// Drain runs one pass over the entries queued when it starts. Passes are
// serialized. The returned error wraps common.ErrConflict when some creates
// could not be reconciled, the context error when the pass was interrupted,
// or a storage error that stopped the pass.
func (e *Engine) Drain(ctx context.Context) (*DrainReport, error) {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	p := &pass{
		report:    newReport(e.opts.Now()),
		attempted: make(map[int64]struct{}),
		halted:    make(map[models.Lineage]struct{}),
	}

	entries, err := e.queue.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending entries: %w", err)
	}
	e.resetStates(entries)
	if len(entries) > 0 {
		p.maxSeq = entries[len(entries)-1].Seq
	}

	for len(entries) > 0 {
		if ctx.Err() != nil {
			p.report.add(func(r *DrainReport) { r.Interrupted = true })
			break
		}

		plans := planRound(entries, p.maxSeq, p.wasAttempted, p.isHalted)
		if len(plans) == 0 {
			break
		}

		var (
			progressed atomic.Bool
			errMu      sync.Mutex
			errs       []error
		)
		g := new(errgroup.Group)
		g.SetLimit(e.opts.MaxConcurrentLineages)
		for _, plan := range plans {
			g.Go(func() error {
				n, err := e.runLineage(ctx, p, plan)
				if n > 0 {
					progressed.Store(true)
				}
				if err != nil {
					errMu.Lock()
					errs = append(errs, fmt.Errorf("lineage %s: %w", plan.key, err))
					errMu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
		if err := errors.Join(errs...); err != nil {
			return e.finish(ctx, p), err
		}
		if !progressed.Load() || p.report.interrupted() {
			break
		}

		entries, err = e.queue.ListPending(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			return e.finish(ctx, p), fmt.Errorf("failed to list pending entries: %w", err)
		}
	}

	report := e.finish(ctx, p)

	switch {
	case report.Interrupted:
		return report, fmt.Errorf("drain interrupted: %w", ctx.Err())
	case len(report.Conflicts) > 0:
		return report, fmt.Errorf("%w: %d entries need manual resolution", common.ErrConflict, len(report.Conflicts))
	default:
		return report, nil
	}
}

func (e *Engine) finish(ctx context.Context, p *pass) *DrainReport {
	ctx = context.WithoutCancel(ctx)
	r := p.report

	remaining, err := e.queue.ListPending(ctx)
	if err != nil {
		e.logger.Warn(ctx, "failed to count deferred entries", "error", err)
	}
	deferred := 0
	for _, en := range remaining {
		if en.Seq <= p.maxSeq && !p.wasAttempted(en.Seq) {
			deferred++
		}
	}

	now := e.opts.Now()
	r.add(func(r *DrainReport) {
		r.Deferred = deferred
		r.Finished = now
	})

	if !r.interrupted() {
		if err := e.meta.SetTime(ctx, metadata.KeyLastDrainAt, now); err != nil {
			e.logger.Warn(ctx, "failed to record drain time", "error", err)
		}
	}
	return r
}

// runLineage sends the planned entries of one lineage in order. It returns
// how many entries reached a decision.
func (e *Engine) runLineage(ctx context.Context, p *pass, plan lineagePlan) (int, error) {
	settled := 0
	for _, planned := range plan.entries {
		if p.wasAttempted(planned.Seq) {
			continue
		}
		if ctx.Err() != nil {
			p.report.add(func(r *DrainReport) { r.Interrupted = true })
			return settled, nil
		}

		en, err := e.queue.Get(ctx, planned.Seq)
		if err != nil {
			if ctx.Err() != nil {
				p.report.add(func(r *DrainReport) { r.Interrupted = true })
				return settled, nil
			}
			return settled, err
		}
		if en == nil {
			// discarded while the pass was running
			continue
		}

		st, err := e.process(ctx, p, en)
		if err != nil {
			return settled, err
		}
		switch st {
		case stepNext:
			settled++
		case stepHalt:
			return settled + 1, nil
		case stepWait:
			return settled, nil
		case stepStop:
			p.report.add(func(r *DrainReport) { r.Interrupted = true })
			return settled, nil
		}
	}
	return settled, nil
}

func (e *Engine) process(ctx context.Context, p *pass, en *models.QueueEntry) (step, error) {
	en, ready, orphanErr, err := e.prepare(ctx, en)
	if err != nil {
		if ctx.Err() != nil {
			return stepStop, nil
		}
		return stepHalt, err
	}
	if !ready {
		return stepWait, nil
	}

	if en.NextAttemptAt.After(e.opts.Now()) {
		p.halt(en.Lineage())
		return stepHalt, nil
	}

	p.markAttempted(en.Seq)

	if orphanErr != nil {
		return stepNext, e.reject(ctx, p, en, orphanErr)
	}

	// The backend already applied this create; only local reconciliation
	// is left.
	if en.Op == models.OpCreate && en.Synced {
		return e.acknowledge(ctx, p, en, en.RemoteID, nil)
	}

	e.setState(en.Seq, StateInFlight)
	p.report.add(func(r *DrainReport) { r.Dispatched++ })
	e.emit(EventDispatched, en, 0, nil)

	rctx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	remoteID, body, callErr := e.send(rctx, en)
	cancel()

	outcome, classified := Classify(ctx, callErr)
	switch outcome {
	case OutcomeCanceled:
		e.setState(en.Seq, StatePending)
		e.logger.Info(ctx, "sync interrupted", "seq", en.Seq, "lineage", en.Lineage())
		return stepStop, nil
	case OutcomeRetryable:
		p.halt(en.Lineage())
		return stepHalt, e.retry(ctx, p, en, classified)
	case OutcomeTerminal:
		return stepNext, e.reject(ctx, p, en, classified)
	}

	return e.acknowledge(ctx, p, en, remoteID, body)
}

func (e *Engine) send(ctx context.Context, en *models.QueueEntry) (int64, models.Fields, error) {
	switch en.Op {
	case models.OpCreate:
		return e.client.Create(ctx, en.Type, en.Payload, en.IdempotencyKey)
	case models.OpUpdate:
		body, err := e.client.Update(ctx, en.Type, en.EntityID, en.Payload)
		return en.EntityID.Int64(), body, err
	default:
		return en.EntityID.Int64(), nil, e.client.Delete(ctx, en.Type, en.EntityID)
	}
}

// prepare swaps local ids the entry depends on for their server ids. ready is
// false while a create the entry needs is still queued. A non-nil orphan
// error means a local id has no create left to wait for and never got a
// server id.
func (e *Engine) prepare(ctx context.Context, en *models.QueueEntry) (_ *models.QueueEntry, ready bool, orphan error, err error) {
	retargeted := false

	if en.Op != models.OpCreate && en.EntityID.IsLocal() {
		ok, orphanErr, err := e.resolveLocal(ctx, en.Type, en.EntityID)
		if err != nil || !ok {
			return en, false, nil, err
		}
		if orphanErr != nil {
			return en, true, fmt.Errorf("target %s/%s: %w", en.Type, en.EntityID, orphanErr), nil
		}
		retargeted = true
	}

	schema, err := models.SchemaFor(en.Type)
	if err != nil {
		return en, true, err, nil
	}
	for field, ref := range schema.LocalReferences(en.Payload) {
		ok, orphanErr, err := e.resolveLocal(ctx, ref.Type, ref.ID)
		if err != nil || !ok {
			return en, false, nil, err
		}
		if orphanErr != nil {
			return en, true, fmt.Errorf("%s=%s: %w", field, ref.ID, orphanErr), nil
		}
		retargeted = true
	}

	if retargeted {
		fresh, err := e.queue.Get(ctx, en.Seq)
		if err != nil {
			return en, false, nil, err
		}
		if fresh != nil {
			en = fresh
		}
	}
	return en, true, nil, nil
}

// resolveLocal makes a local id usable on the wire. ok is false while its
// create is queued. When the id map knows the server id, pending entries are
// retargeted to it.
func (e *Engine) resolveLocal(ctx context.Context, t models.EntityType, id models.ID) (ok bool, orphan error, err error) {
	create, err := e.queue.FindCreate(ctx, t, id)
	if err != nil {
		return false, nil, err
	}
	if create != nil {
		return false, nil, nil
	}

	remote, err := e.entities.ResolveID(ctx, t, id)
	if err != nil {
		return false, nil, err
	}
	if !remote.IsRemote() {
		return true, common.ErrOrphanedReference, nil
	}
	if _, err := e.queue.Retarget(ctx, t, id, remote); err != nil {
		return false, nil, err
	}
	return true, nil, nil
}

// acknowledge applies a successful call locally in one transaction.
func (e *Engine) acknowledge(ctx context.Context, p *pass, en *models.QueueEntry, remoteID int64, body models.Fields) (step, error) {
	ctx = context.WithoutCancel(ctx)

	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ents := entities.NewSQLiteRepository(tx)
		q := queue.NewSQLiteRepository(tx)

		target := en.EntityID
		switch en.Op {
		case models.OpCreate:
			newID, err := models.RemoteID(remoteID)
			if err != nil {
				return err
			}
			if err := ents.RewriteID(ctx, en.Type, en.EntityID, newID); err != nil {
				return err
			}
			if _, err := q.Retarget(ctx, en.Type, en.EntityID, newID); err != nil {
				return err
			}
			if _, err := ents.RewriteReferences(ctx, en.Type, en.EntityID, newID); err != nil {
				return err
			}
			target = newID
		case models.OpDelete:
			if err := ents.Remove(ctx, en.Type, target); err != nil {
				return err
			}
			return q.Remove(ctx, en.Seq)
		}

		if err := e.applyBody(ctx, ents, q, en, target, body); err != nil {
			return err
		}
		if err := ents.ClearOutOfSync(ctx, en.Type, target); err != nil {
			return err
		}
		return q.Remove(ctx, en.Seq)
	})

	if errors.Is(err, common.ErrConflict) && en.Op == models.OpCreate {
		p.halt(en.Lineage())
		e.conflict(ctx, p, en, remoteID, err)
		return stepHalt, nil
	}
	if err != nil {
		p.halt(en.Lineage())
		e.setState(en.Seq, StatePending)
		return stepHalt, fmt.Errorf("failed to reconcile entry %d: %w", en.Seq, err)
	}

	e.setState(en.Seq, StateAcknowledged)
	p.report.add(func(r *DrainReport) { r.Acknowledged++ })
	e.emit(EventAcknowledged, en, remoteID, nil)
	e.logger.Debug(ctx, "entry acknowledged", "seq", en.Seq, "op", en.Op, "type", en.Type, "remote_id", remoteID)
	return stepNext, nil
}

// applyBody merges the state the backend returned into the local record.
// Fields that later queued updates change keep their local value, and
// nothing is applied when a delete is queued behind this entry.
func (e *Engine) applyBody(ctx context.Context, ents *entities.SQLiteRepository, q *queue.SQLiteRepository,
	en *models.QueueEntry, target models.ID, body models.Fields) error {
	if len(body) == 0 {
		return nil
	}

	pending, err := q.ListPending(ctx)
	if err != nil {
		return err
	}
	shadowed := make(map[string]struct{})
	for _, later := range pending {
		if later.Seq <= en.Seq || later.Type != en.Type || later.EntityID != target {
			continue
		}
		if later.Op == models.OpDelete {
			return nil
		}
		for k := range later.Payload {
			shadowed[k] = struct{}{}
		}
	}

	rec, err := ents.GetByID(ctx, en.Type, target)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &models.Record{Type: en.Type, ID: target}
	}
	if rec.Fields == nil {
		rec.Fields = models.Fields{}
	}
	for k, v := range body {
		if k == "id" {
			continue
		}
		if _, ok := shadowed[k]; ok {
			continue
		}
		rec.Fields[k] = v
	}

	err = ents.Put(ctx, rec)
	if errors.Is(err, common.ErrConflict) {
		// the server state collides with another local record; keep ours
		e.logger.Warn(ctx, "server state not applied", "type", en.Type, "id", target, "error", err)
		return nil
	}
	return err
}

func (e *Engine) retry(ctx context.Context, p *pass, en *models.QueueEntry, cause error) error {
	ctx = context.WithoutCancel(ctx)

	attempts := en.Attempts + 1
	delay := e.opts.Retry.Delay(attempts)
	next := e.opts.Now().Add(delay)
	if err := e.queue.RecordAttempt(ctx, en.Seq, attempts, next, cause.Error()); err != nil {
		return err
	}

	e.setState(en.Seq, StatePending)
	p.report.add(func(r *DrainReport) { r.Retried++ })
	e.emit(EventRetry, en, 0, cause)
	e.logger.Warn(ctx, "sync failed, will retry", "seq", en.Seq, "lineage", en.Lineage(),
		"attempts", attempts, "delay", delay, "error", cause)
	return nil
}

func (e *Engine) reject(ctx context.Context, p *pass, en *models.QueueEntry, cause error) error {
	ctx = context.WithoutCancel(ctx)

	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := queue.NewSQLiteRepository(tx).Remove(ctx, en.Seq); err != nil {
			return err
		}
		return entities.NewSQLiteRepository(tx).MarkOutOfSync(ctx, en.Type, en.EntityID, cause.Error())
	})
	if err != nil {
		return fmt.Errorf("failed to drop rejected entry %d: %w", en.Seq, err)
	}

	e.setState(en.Seq, StateFailed)
	p.report.add(func(r *DrainReport) { r.Rejected++ })
	e.emit(EventRejected, en, 0, cause)
	e.logger.Error(ctx, "entry rejected", "seq", en.Seq, "op", en.Op, "lineage", en.Lineage(), "error", cause)
	return nil
}

// conflict keeps the entry queued but remembers that the backend already
// applied it, so it is never sent again.
func (e *Engine) conflict(ctx context.Context, p *pass, en *models.QueueEntry, remoteID int64, cause error) {
	if err := e.queue.MarkSynced(ctx, en.Seq, remoteID); err != nil {
		e.logger.Error(ctx, "failed to mark entry synced", "seq", en.Seq, "error", err)
	}

	e.setState(en.Seq, StatePending)
	p.report.add(func(r *DrainReport) { r.Conflicts = append(r.Conflicts, en.Seq) })
	e.emit(EventConflict, en, remoteID, cause)
	e.logger.Error(ctx, "reconciliation conflict", "seq", en.Seq, "lineage", en.Lineage(), "remote_id", remoteID, "error", cause)
}

// Discard drops a queued entry that cannot be synced, typically one left by
// a conflict. The record is flagged out of sync.
func (e *Engine) Discard(ctx context.Context, seq int64) error {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	var en *models.QueueEntry
	err := dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		q := queue.NewSQLiteRepository(tx)
		var err error
		en, err = q.Get(ctx, seq)
		if err != nil {
			return err
		}
		if en == nil {
			return fmt.Errorf("%w: queue entry %d", common.ErrNotFound, seq)
		}
		if err := q.Remove(ctx, seq); err != nil {
			return err
		}
		return entities.NewSQLiteRepository(tx).MarkOutOfSync(ctx, en.Type, en.EntityID, "local change discarded")
	})
	if err != nil {
		return err
	}

	e.setState(seq, StateFailed)
	e.emit(EventDiscarded, en, en.RemoteID, nil)
	e.logger.Info(ctx, "queue entry discarded", "seq", seq, "lineage", en.Lineage())
	return nil
}

// Run drains in the background until ctx is done: when the backend comes
// online, every SyncInterval while online, and on Trigger. Going offline
// cancels the running pass.
func (e *Engine) Run(ctx context.Context) {
	transitions, unsubscribe := e.conn.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(e.opts.SyncInterval)
	defer ticker.Stop()

	var (
		cancelPass context.CancelFunc
		passDone   chan struct{}
		again      bool
	)

	start := func() {
		if passDone != nil {
			again = true
			return
		}
		pctx, cancel := context.WithCancel(ctx)
		cancelPass = cancel
		passDone = make(chan struct{})
		go func(done chan struct{}) {
			defer close(done)
			e.runPass(pctx)
		}(passDone)
	}

	stop := func() {
		if cancelPass != nil {
			cancelPass()
		}
		again = false
	}

	if e.conn.Online() {
		start()
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			if passDone != nil {
				<-passDone
			}
			return

		case tr, ok := <-transitions:
			if !ok {
				transitions = nil
				continue
			}
			switch tr.To {
			case connectivity.ModeOnline:
				start()
			case connectivity.ModeOffline:
				stop()
			}

		case <-ticker.C:
			if e.conn.Online() {
				start()
			}

		case <-e.trigger:
			if e.conn.Online() {
				start()
			}

		case <-passDone:
			cancelPass()
			cancelPass, passDone = nil, nil
			if again && e.conn.Online() {
				again = false
				start()
			}
		}
	}
}

func (e *Engine) runPass(ctx context.Context) {
	report, err := e.Drain(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		e.logger.Info(ctx, "drain interrupted")
	case errors.Is(err, common.ErrConflict):
		e.logger.Warn(ctx, "drain finished with conflicts", "error", err)
	default:
		e.logger.Error(ctx, "drain failed", "error", err)
	}
	if report == nil {
		return
	}

	report.mu.Lock()
	defer report.mu.Unlock()
	if report.Dispatched+report.Rejected+len(report.Conflicts) > 0 {
		e.logger.Info(ctx, "drain finished",
			"dispatched", report.Dispatched,
			"acknowledged", report.Acknowledged,
			"retried", report.Retried,
			"rejected", report.Rejected,
			"deferred", report.Deferred,
			"conflicts", len(report.Conflicts),
			"took", report.Finished.Sub(report.Started))
	}
}
