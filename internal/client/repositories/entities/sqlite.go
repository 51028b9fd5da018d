package entities

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/techtrack/internal/client/models"
	"github.com/dmitrijs2005/techtrack/internal/common"
	"github.com/dmitrijs2005/techtrack/internal/dbx"
)

const recordColumns = `entity_type, id, body, out_of_sync, sync_error, updated_at`

type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (*models.Record, error) {
	var (
		typ       string
		id        int64
		body      string
		outOfSync int
		syncError string
		updatedAt int64
	)
	if err := s.Scan(&typ, &id, &body, &outOfSync, &syncError, &updatedAt); err != nil {
		return nil, err
	}

	rid, err := models.IDFromInt64(id)
	if err != nil {
		return nil, fmt.Errorf("stored %s record: %w", typ, err)
	}

	fields := models.Fields{}
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode %s/%d body: %w", typ, id, err)
	}

	return &models.Record{
		Type:      models.EntityType(typ),
		ID:        rid,
		Fields:    fields,
		OutOfSync: outOfSync != 0,
		SyncError: syncError,
		UpdatedAt: time.Unix(0, updatedAt).UTC(),
	}, nil
}

func queryRecords(ctx context.Context, db dbx.DBTX, query string, args ...any) ([]*models.Record, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return result, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context, t models.EntityType) ([]*models.Record, error) {
	if _, err := models.SchemaFor(t); err != nil {
		return nil, err
	}
	return queryRecords(ctx, r.db, `SELECT `+recordColumns+` FROM entities WHERE entity_type = ? ORDER BY id`, string(t))
}

func (r *SQLiteRepository) GetByID(ctx context.Context, t models.EntityType, id models.ID) (*models.Record, error) {
	if _, err := models.SchemaFor(t); err != nil {
		return nil, err
	}
	return getByID(ctx, r.db, t, id)
}

func getByID(ctx context.Context, db dbx.DBTX, t models.EntityType, id models.ID) (*models.Record, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("%w: zero id", common.ErrInvalidID)
	}
	row := db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM entities WHERE entity_type = ? AND id = ?`, string(t), id.Int64())
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", t, id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) FindBy(ctx context.Context, t models.EntityType, index, value string) ([]*models.Record, error) {
	schema, err := models.SchemaFor(t)
	if err != nil {
		return nil, err
	}
	if !schema.HasIndex(index) {
		return nil, fmt.Errorf("%w: %s has no index %q", common.ErrUnknownIndex, t, index)
	}

	query := `
		SELECT e.entity_type, e.id, e.body, e.out_of_sync, e.sync_error, e.updated_at
		FROM entities e
		JOIN entity_index i ON i.entity_type = e.entity_type AND i.entity_id = e.id
		WHERE i.entity_type = ? AND i.index_name = ? AND i.value = ?
		ORDER BY e.id
	`
	return queryRecords(ctx, r.db, query, string(t), index, value)
}

func (r *SQLiteRepository) Put(ctx context.Context, rec *models.Record) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", common.ErrInvalidPayload)
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	return dbx.InTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		return r.put(ctx, tx, rec)
	})
}

func (r *SQLiteRepository) put(ctx context.Context, tx dbx.DBTX, rec *models.Record) error {
	schema, err := models.SchemaFor(rec.Type)
	if err != nil {
		return err
	}
	if rec.Fields == nil {
		rec.Fields = models.Fields{}
	}

	entries := schema.IndexEntries(rec.Fields)
	for _, e := range entries {
		if !e.Unique {
			continue
		}
		var other int64
		err := tx.QueryRowContext(ctx, `
			SELECT entity_id FROM entity_index
			WHERE entity_type = ? AND index_name = ? AND value = ? AND is_unique = 1 AND entity_id <> ?
			LIMIT 1
		`, string(rec.Type), e.Name, e.Value, rec.ID.Int64()).Scan(&other)
		if err == nil {
			return fmt.Errorf("%w: %s %s=%q already used by %d", common.ErrConflict, rec.Type, e.Name, e.Value, other)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check unique index %s: %w", e.Name, err)
		}
	}

	body, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
	}

	rec.UpdatedAt = r.now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, id) DO UPDATE SET
			body = excluded.body,
			out_of_sync = excluded.out_of_sync,
			sync_error = excluded.sync_error,
			updated_at = excluded.updated_at
	`, string(rec.Type), rec.ID.Int64(), string(body), boolToInt(rec.OutOfSync), rec.SyncError, rec.UpdatedAt.UnixNano())
	if err != nil {
		return dbx.StorageError("failed to upsert record", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_index WHERE entity_type = ? AND entity_id = ?`,
		string(rec.Type), rec.ID.Int64()); err != nil {
		return dbx.StorageError("failed to reset index rows", err)
	}

	for _, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entity_index (entity_type, index_name, value, entity_id, is_unique)
			VALUES (?, ?, ?, ?, ?)
		`, string(rec.Type), e.Name, e.Value, rec.ID.Int64(), boolToInt(e.Unique))
		if err != nil {
			return dbx.StorageError("failed to insert index row", err)
		}
	}

	return nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, t models.EntityType, id models.ID) error {
	if _, err := models.SchemaFor(t); err != nil {
		return err
	}
	return dbx.InTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE entity_type = ? AND id = ?`, string(t), id.Int64()); err != nil {
			return dbx.StorageError("failed to delete record", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM entity_index WHERE entity_type = ? AND entity_id = ?`, string(t), id.Int64()); err != nil {
			return dbx.StorageError("failed to delete index rows", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) RewriteID(ctx context.Context, t models.EntityType, oldID, newID models.ID) error {
	if _, err := models.SchemaFor(t); err != nil {
		return err
	}
	if !oldID.IsLocal() || !newID.IsRemote() {
		return fmt.Errorf("%w: rewrite %s -> %s must go from local to remote", common.ErrInvalidID, oldID, newID)
	}

	return dbx.InTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		current, err := getByID(ctx, tx, t, oldID)
		if err != nil {
			return err
		}

		if current != nil {
			existing, err := getByID(ctx, tx, t, newID)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("%w: %s %s already exists", common.ErrConflict, t, newID)
			}

			if _, err := tx.ExecContext(ctx, `UPDATE entities SET id = ? WHERE entity_type = ? AND id = ?`,
				newID.Int64(), string(t), oldID.Int64()); err != nil {
				return dbx.StorageError("failed to rewrite record id", err)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE entity_index SET entity_id = ? WHERE entity_type = ? AND entity_id = ?`,
				newID.Int64(), string(t), oldID.Int64()); err != nil {
				return dbx.StorageError("failed to rewrite index rows", err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO id_map (entity_type, local_id, remote_id) VALUES (?, ?, ?)
			ON CONFLICT(entity_type, local_id) DO UPDATE SET remote_id = excluded.remote_id
		`, string(t), oldID.Int64(), newID.Int64())
		if err != nil {
			return dbx.StorageError("failed to record id mapping", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) RewriteReferences(ctx context.Context, refType models.EntityType, oldID, newID models.ID) (int, error) {
	if _, err := models.SchemaFor(refType); err != nil {
		return 0, err
	}

	var changed int
	err := dbx.InTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		for typ, fields := range models.ReferencingFields(refType) {
			for _, field := range fields {
				recs, err := queryRecords(ctx, tx,
					`SELECT `+recordColumns+` FROM entities WHERE entity_type = ? AND json_extract(body, ?) = ?`,
					string(typ), "$."+field, oldID.Int64())
				if err != nil {
					return err
				}
				for _, rec := range recs {
					rec.Fields[field] = newID.Int64()
					if err := r.put(ctx, tx, rec); err != nil {
						return err
					}
					changed++
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

func (r *SQLiteRepository) ResolveID(ctx context.Context, t models.EntityType, id models.ID) (models.ID, error) {
	if !id.IsLocal() {
		return id, nil
	}

	var remote int64
	err := r.db.QueryRowContext(ctx, `SELECT remote_id FROM id_map WHERE entity_type = ? AND local_id = ?`,
		string(t), id.Int64()).Scan(&remote)
	if errors.Is(err, sql.ErrNoRows) {
		return id, nil
	}
	if err != nil {
		return models.ID{}, fmt.Errorf("failed to resolve %s/%s: %w", t, id, err)
	}
	return models.RemoteID(remote)
}

func (r *SQLiteRepository) MarkOutOfSync(ctx context.Context, t models.EntityType, id models.ID, reason string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE entities SET out_of_sync = 1, sync_error = ? WHERE entity_type = ? AND id = ?`,
		reason, string(t), id.Int64())
	if err != nil {
		return dbx.StorageError("failed to mark record out of sync", err)
	}
	return nil
}

func (r *SQLiteRepository) ClearOutOfSync(ctx context.Context, t models.EntityType, id models.ID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE entities SET out_of_sync = 0, sync_error = '' WHERE entity_type = ? AND id = ?`,
		string(t), id.Int64())
	if err != nil {
		return dbx.StorageError("failed to clear out of sync flag", err)
	}
	return nil
}

func (r *SQLiteRepository) ListOutOfSync(ctx context.Context) ([]*models.Record, error) {
	return queryRecords(ctx, r.db, `SELECT `+recordColumns+` FROM entities WHERE out_of_sync = 1 ORDER BY entity_type, id`)
}

func (r *SQLiteRepository) NextLocalID(ctx context.Context) (models.ID, error) {
	var id models.ID
	err := dbx.InTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO local_ids (created_at) VALUES (?)`, r.now().UnixNano())
		if err != nil {
			return dbx.StorageError("failed to allocate local id", err)
		}
		n, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read allocated local id: %w", err)
		}
		// sqlite_sequence keeps the high-water mark, older rows are not needed
		if _, err := tx.ExecContext(ctx, `DELETE FROM local_ids WHERE seq < ?`, n); err != nil {
			return dbx.StorageError("failed to compact local ids", err)
		}
		id, err = models.LocalID(-n)
		return err
	})
	return id, err
}

func (r *SQLiteRepository) Clear(ctx context.Context, t models.EntityType) error {
	if _, err := models.SchemaFor(t); err != nil {
		return err
	}
	return dbx.InTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		for _, q := range []string{
			`DELETE FROM entities WHERE entity_type = ?`,
			`DELETE FROM entity_index WHERE entity_type = ?`,
			`DELETE FROM id_map WHERE entity_type = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, string(t)); err != nil {
				return dbx.StorageError("failed to clear "+string(t), err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) ClearAll(ctx context.Context) error {
	return dbx.InTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		for _, q := range []string{
			`DELETE FROM entities`,
			`DELETE FROM entity_index`,
			`DELETE FROM id_map`,
			`DELETE FROM local_ids`,
		} {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return dbx.StorageError("failed to clear store", err)
			}
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
