package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/techtrack/internal/client/models"
	"github.com/dmitrijs2005/techtrack/internal/client/repositories/entities"
	"github.com/dmitrijs2005/techtrack/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/techtrack/internal/client/repositories/queue"
	"github.com/dmitrijs2005/techtrack/internal/common"
	"github.com/dmitrijs2005/techtrack/internal/dbx"
	"github.com/dmitrijs2005/techtrack/internal/logging"
)

// Scope holds the defaults of the signed-in technician.
type Scope struct {
	// City is applied to new records of types that have a city and limits
	// List to that city. Empty means no restriction.
	City string
}

// EntityService is the only writer of entities on behalf of the user.
//
// Every mutation stores the record and appends the matching queue entry in
// one transaction, so the store and the queue never disagree. Ids passed in
// may be stale local ids: they are resolved through the id map first.
type EntityService interface {
	Create(ctx context.Context, p models.Payload) (*models.Record, error)
	Update(ctx context.Context, t models.EntityType, id models.ID, p models.Payload) (*models.Record, error)
	// Delete of an absent record is a no-op.
	Delete(ctx context.Context, t models.EntityType, id models.ID) error

	Get(ctx context.Context, t models.EntityType, id models.ID) (*models.Record, error)
	List(ctx context.Context, t models.EntityType) ([]*models.Record, error)
	FindBy(ctx context.Context, t models.EntityType, index, value string) ([]*models.Record, error)
	OutOfSync(ctx context.Context) ([]*models.Record, error)
	Pending(ctx context.Context) ([]*models.QueueEntry, error)

	// ClearAll wipes records, the queue, the id map and metadata.
	ClearAll(ctx context.Context) error
}

type entityService struct {
	db     *sql.DB
	scope  Scope
	logger logging.Logger
}

func NewEntityService(db *sql.DB, scope Scope, logger logging.Logger) EntityService {
	return &entityService{db: db, scope: scope, logger: logger}
}

func (s *entityService) Create(ctx context.Context, p models.Payload) (*models.Record, error) {
	t := p.EntityType()
	schema, err := models.SchemaFor(t)
	if err != nil {
		return nil, err
	}

	fields, err := models.ToFields(p)
	if err != nil {
		return nil, err
	}
	if _, ok := fields["city"]; !ok && s.scope.City != "" && schema.HasIndex("city") {
		fields["city"] = s.scope.City
	}
	if err := models.ValidateFields(t, models.OpCreate, fields); err != nil {
		return nil, err
	}

	var rec *models.Record
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ents := entities.NewSQLiteRepository(tx)

		if err := resolveReferences(ctx, ents, schema, fields); err != nil {
			return err
		}

		id, err := ents.NextLocalID(ctx)
		if err != nil {
			return err
		}
		rec = &models.Record{Type: t, ID: id, Fields: fields.Clone()}
		if err := ents.Put(ctx, rec); err != nil {
			return err
		}

		_, err = queue.NewSQLiteRepository(tx).Enqueue(ctx, &models.QueueEntry{
			Op:       models.OpCreate,
			Type:     t,
			EntityID: id,
			Payload:  fields,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", t, err)
	}

	s.logger.Debug(ctx, "record created", "type", t, "id", rec.ID)
	return rec, nil
}

func (s *entityService) Update(ctx context.Context, t models.EntityType, id models.ID, p models.Payload) (*models.Record, error) {
	if p.EntityType() != t {
		return nil, fmt.Errorf("%w: %s payload for %s", common.ErrInvalidPayload, p.EntityType(), t)
	}
	schema, err := models.SchemaFor(t)
	if err != nil {
		return nil, err
	}

	patch, err := models.ToFields(p)
	if err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", common.ErrInvalidPayload)
	}
	if err := models.ValidateFields(t, models.OpUpdate, patch); err != nil {
		return nil, err
	}

	var rec *models.Record
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ents := entities.NewSQLiteRepository(tx)

		target, err := ents.ResolveID(ctx, t, id)
		if err != nil {
			return err
		}
		rec, err = ents.GetByID(ctx, t, target)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("%w: %s %s", common.ErrNotFound, t, id)
		}

		if err := resolveReferences(ctx, ents, schema, patch); err != nil {
			return err
		}
		rec.Fields = rec.Fields.Merge(patch)
		if err := ents.Put(ctx, rec); err != nil {
			return err
		}

		_, err = queue.NewSQLiteRepository(tx).Enqueue(ctx, &models.QueueEntry{
			Op:       models.OpUpdate,
			Type:     t,
			EntityID: target,
			Payload:  patch,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update %s %s: %w", t, id, err)
	}

	s.logger.Debug(ctx, "record updated", "type", t, "id", rec.ID)
	return rec, nil
}

func (s *entityService) Delete(ctx context.Context, t models.EntityType, id models.ID) error {
	if _, err := models.SchemaFor(t); err != nil {
		return err
	}

	deleted := false
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ents := entities.NewSQLiteRepository(tx)

		target, err := ents.ResolveID(ctx, t, id)
		if err != nil {
			return err
		}
		rec, err := ents.GetByID(ctx, t, target)
		if err != nil || rec == nil {
			return err
		}

		if err := ents.Remove(ctx, t, target); err != nil {
			return err
		}
		_, err = queue.NewSQLiteRepository(tx).Enqueue(ctx, &models.QueueEntry{
			Op:       models.OpDelete,
			Type:     t,
			EntityID: target,
		})
		deleted = err == nil
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", t, id, err)
	}

	if deleted {
		s.logger.Debug(ctx, "record deleted", "type", t, "id", id)
	}
	return nil
}

func (s *entityService) Get(ctx context.Context, t models.EntityType, id models.ID) (*models.Record, error) {
	ents := entities.NewSQLiteRepository(s.db)

	target, err := ents.ResolveID(ctx, t, id)
	if err != nil {
		return nil, err
	}
	rec, err := ents.GetByID(ctx, t, target)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s %s", common.ErrNotFound, t, id)
	}
	return rec, nil
}

func (s *entityService) List(ctx context.Context, t models.EntityType) ([]*models.Record, error) {
	schema, err := models.SchemaFor(t)
	if err != nil {
		return nil, err
	}

	ents := entities.NewSQLiteRepository(s.db)
	if s.scope.City != "" && schema.HasIndex("city") {
		return ents.FindBy(ctx, t, "city", s.scope.City)
	}
	return ents.GetAll(ctx, t)
}

func (s *entityService) FindBy(ctx context.Context, t models.EntityType, index, value string) ([]*models.Record, error) {
	return entities.NewSQLiteRepository(s.db).FindBy(ctx, t, index, value)
}

func (s *entityService) OutOfSync(ctx context.Context) ([]*models.Record, error) {
	return entities.NewSQLiteRepository(s.db).ListOutOfSync(ctx)
}

func (s *entityService) Pending(ctx context.Context) ([]*models.QueueEntry, error) {
	return queue.NewSQLiteRepository(s.db).ListPending(ctx)
}

func (s *entityService) ClearAll(ctx context.Context) error {
	return clearAll(ctx, s.db)
}

func clearAll(ctx context.Context, db *sql.DB) error {
	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := entities.NewSQLiteRepository(tx).ClearAll(ctx); err != nil {
			return err
		}
		if err := queue.NewSQLiteRepository(tx).Clear(ctx); err != nil {
			return err
		}
		return metadata.NewSQLiteRepository(tx).Clear(ctx)
	})
}

// resolveReferences replaces local ids that already have a server id, so
// new queue entries never carry a stale reference.
func resolveReferences(ctx context.Context, ents entities.Repository, schema models.Schema, fields models.Fields) error {
	for field, ref := range schema.LocalReferences(fields) {
		resolved, err := ents.ResolveID(ctx, ref.Type, ref.ID)
		if err != nil {
			return err
		}
		if resolved.IsRemote() {
			fields[field] = resolved.Int64()
		}
	}
	return nil
}
