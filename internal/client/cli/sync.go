package cli

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/techtrack/internal/client/models"
	"github.com/dmitrijs2005/techtrack/internal/client/syncer"
)

// Queue prints the pending queue in drain order.
func (a *App) Queue(ctx context.Context) error {
	entries, err := a.entities.Pending(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "Queue is empty")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tOP\tTYPE\tID\tSTATE\tATTEMPTS\tNEXT TRY\tLAST ERROR")
	for _, en := range entries {
		next := "-"
		if !en.NextAttemptAt.IsZero() {
			next = en.NextAttemptAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			en.Seq, en.Op, en.Type, en.EntityID, a.entryState(en), en.Attempts, next, en.LastError)
	}
	return w.Flush()
}

func (a *App) entryState(en *models.QueueEntry) string {
	if en.Synced {
		return "conflict"
	}
	if a.engine != nil {
		if s, ok := a.engine.State(en.Seq); ok {
			return s.String()
		}
	}
	return syncer.StatePending.String()
}

// Sync runs one drain pass right away and prints its report.
func (a *App) Sync(ctx context.Context) error {
	if !a.isOnline() {
		entries, err := a.entities.Pending(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Offline: %d change(s) stay queued until the server is reachable\n", len(entries))
		return nil
	}

	report, err := a.engine.Drain(ctx)
	if report != nil {
		fmt.Fprintf(a.out, "Sent %d, acknowledged %d, retrying %d, rejected %d, deferred %d\n",
			report.Dispatched, report.Acknowledged, report.Retried, report.Rejected, report.Deferred)
	}
	return err
}

// Conflicts lists what the engine could not settle on its own: queue entries
// parked after a reconciliation conflict and records whose changes the
// server rejected.
func (a *App) Conflicts(ctx context.Context) error {
	entries, err := a.entities.Pending(ctx)
	if err != nil {
		return err
	}
	records, err := a.entities.OutOfSync(ctx)
	if err != nil {
		return err
	}

	parked := 0
	for _, en := range entries {
		if !en.Synced {
			continue
		}
		if parked == 0 {
			fmt.Fprintln(a.out, "Queue entries needing resolution (use 'discard <seq>'):")
		}
		parked++
		fmt.Fprintf(a.out, "  #%d %s %s %s, server id %d\n", en.Seq, en.Op, en.Type, en.EntityID, en.RemoteID)
	}

	if len(records) > 0 {
		fmt.Fprintln(a.out, "Records out of sync with the server:")
		for _, rec := range records {
			fmt.Fprintf(a.out, "  %s %s: %s\n", rec.Type, rec.ID, rec.SyncError)
		}
	}

	if parked == 0 && len(records) == 0 {
		fmt.Fprintln(a.out, "Nothing needs attention")
	}
	return nil
}

func (a *App) Discard(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("discard <seq>")
	}
	seq, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || seq <= 0 {
		return usage("discard <seq>")
	}
	if err := a.engine.Discard(ctx, seq); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Discarded queue entry %d\n", seq)
	return nil
}

// Status prints connectivity, the queue length, the device id and the time
// of the last completed drain.
func (a *App) Status(ctx context.Context) error {
	entries, err := a.entities.Pending(ctx)
	if err != nil {
		return err
	}
	deviceID, err := a.session.DeviceID(ctx)
	if err != nil {
		return err
	}
	last, err := a.lastDrain(ctx)
	if err != nil {
		return err
	}

	lastText := "never"
	if !last.IsZero() {
		lastText = last.Local().Format(time.DateTime)
	}

	fmt.Fprintf(a.out, "Mode:        %s\n", a.mode())
	fmt.Fprintf(a.out, "Pending:     %d\n", len(entries))
	fmt.Fprintf(a.out, "Device:      %s\n", deviceID)
	fmt.Fprintf(a.out, "Last sync:   %s\n", lastText)
	return nil
}
