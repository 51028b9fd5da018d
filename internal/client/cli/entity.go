package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/techtrack/internal/client/models"
)

var errUsage = errors.New("usage")

func usage(syntax string) error {
	return fmt.Errorf("%w: %s", errUsage, syntax)
}

// parseTarget reads "<type> <id>" from the front of args.
func parseTarget(args []string) (models.EntityType, models.ID, error) {
	t, err := models.ParseEntityType(args[0])
	if err != nil {
		return "", models.ID{}, err
	}
	id, err := models.ParseID(args[1])
	if err != nil {
		return "", models.ID{}, err
	}
	return t, id, nil
}

// Add creates a record from name=value pairs. Without pairs the fields are
// read interactively.
func (a *App) Add(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return usage("add <type> [field=value ...]")
	}
	t, err := models.ParseEntityType(args[0])
	if err != nil {
		return err
	}

	assignments := args[1:]
	if len(assignments) == 0 {
		assignments, err = GetAssignments(a.reader, models.FieldNames(t), a.out)
		if err != nil {
			return err
		}
	}

	p, err := payloadFromArgs(t, assignments)
	if err != nil {
		return err
	}
	rec, err := a.entities.Create(ctx, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created %s %s\n", rec.Type, rec.ID)
	return nil
}

func (a *App) Update(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return usage("update <type> <id> field=value ...")
	}
	t, id, err := parseTarget(args)
	if err != nil {
		return err
	}
	p, err := payloadFromArgs(t, args[2:])
	if err != nil {
		return err
	}
	rec, err := a.entities.Update(ctx, t, id, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated %s %s\n", rec.Type, rec.ID)
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("delete <type> <id>")
	}
	t, id, err := parseTarget(args)
	if err != nil {
		return err
	}
	if err := a.entities.Delete(ctx, t, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted %s %s\n", t, id)
	return nil
}

// List prints the records of a type. An optional index=value argument
// narrows the list through the store's index.
func (a *App) List(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usage("list <type> [index=value]")
	}
	t, err := models.ParseEntityType(args[0])
	if err != nil {
		return err
	}

	var records []*models.Record
	if len(args) == 2 {
		index, value, ok := strings.Cut(args[1], "=")
		if !ok {
			return usage("list <type> [index=value]")
		}
		records, err = a.entities.FindBy(ctx, t, index, value)
	} else {
		records, err = a.entities.List(ctx, t)
	}
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintf(a.out, "No %s records\n", t)
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tFIELDS")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\n", rec.ID, recordState(rec), summary(rec.Fields))
	}
	return w.Flush()
}

func (a *App) Show(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("show <type> <id>")
	}
	t, id, err := parseTarget(args)
	if err != nil {
		return err
	}
	rec, err := a.entities.Get(ctx, t, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s %s (%s)\n", rec.Type, rec.ID, recordState(rec))
	for _, k := range sortedKeys(rec.Fields) {
		fmt.Fprintf(a.out, "  %s: %v\n", k, formatValue(rec.Fields[k]))
	}
	if rec.OutOfSync && rec.SyncError != "" {
		fmt.Fprintf(a.out, "  sync error: %s\n", rec.SyncError)
	}
	return nil
}

func payloadFromArgs(t models.EntityType, args []string) (models.Payload, error) {
	fields, err := models.FieldsFromArgs(t, args)
	if err != nil {
		return nil, err
	}
	return models.DecodePayload(t, fields)
}

func recordState(rec *models.Record) string {
	switch {
	case rec.OutOfSync:
		return "out of sync"
	case rec.ID.IsLocal():
		return "local"
	default:
		return "synced"
	}
}

func summary(f models.Fields) string {
	parts := make([]string, 0, len(f))
	for _, k := range sortedKeys(f) {
		if k == "id" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, formatValue(f[k])))
	}
	return strings.Join(parts, " ")
}

// formatValue prints whole JSON numbers without an exponent.
func formatValue(v any) any {
	if n, ok := v.(float64); ok && n == float64(int64(n)) {
		return int64(n)
	}
	return v
}

func sortedKeys(f models.Fields) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
