package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/techtrack/internal/client/models"
	"github.com/dmitrijs2005/techtrack/internal/dbx"
	"github.com/google/uuid"
)

const entryColumns = `seq, op, entity_type, entity_id, origin_id, payload, idempotency_key,
	attempts, next_attempt_at, last_error, synced, remote_id, created_at`

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

func scanEntry(s rowScanner) (*models.QueueEntry, error) {
	var (
		e             models.QueueEntry
		op, typ       string
		entityID      int64
		originID      int64
		payload       sql.NullString
		nextAttemptAt int64
		synced        int
		createdAt     int64
	)
	err := s.Scan(&e.Seq, &op, &typ, &entityID, &originID, &payload, &e.IdempotencyKey,
		&e.Attempts, &nextAttemptAt, &e.LastError, &synced, &e.RemoteID, &createdAt)
	if err != nil {
		return nil, err
	}

	e.Op = models.Op(op)
	e.Type = models.EntityType(typ)
	if e.EntityID, err = models.IDFromInt64(entityID); err != nil {
		return nil, fmt.Errorf("queue entry %d target: %w", e.Seq, err)
	}
	if e.OriginID, err = models.IDFromInt64(originID); err != nil {
		return nil, fmt.Errorf("queue entry %d origin: %w", e.Seq, err)
	}
	if payload.Valid {
		e.Payload = models.Fields{}
		if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode queue entry %d payload: %w", e.Seq, err)
		}
	}
	if nextAttemptAt != 0 {
		e.NextAttemptAt = time.Unix(0, nextAttemptAt).UTC()
	}
	e.Synced = synced != 0
	e.CreatedAt = time.Unix(0, createdAt).UTC()

	return &e, nil
}

func queryEntries(ctx context.Context, db dbx.DBTX, query string, args ...any) ([]*models.QueueEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select queue entries: %w", err)
	}
	defer rows.Close()

	var result []*models.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue entries: %w", err)
	}
	return result, nil
}

func encodePayload(f models.Fields) (sql.NullString, error) {
	if f == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, e *models.QueueEntry) (int64, error) {
	if e == nil {
		return 0, errors.New("nil queue entry")
	}
	if err := e.Validate(); err != nil {
		return 0, err
	}

	if e.IdempotencyKey == "" {
		e.IdempotencyKey = uuid.NewString()
	}
	e.OriginID = e.EntityID
	e.CreatedAt = r.now().UTC()

	payload, err := encodePayload(e.Payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode payload: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_queue (op, entity_type, entity_id, origin_id, payload, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(e.Op), string(e.Type), e.EntityID.Int64(), e.OriginID.Int64(), payload, e.IdempotencyKey, e.CreatedAt.UnixNano())
	if err != nil {
		return 0, dbx.StorageError("failed to enqueue", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue sequence: %w", err)
	}
	e.Seq = seq
	return seq, nil
}

func (r *SQLiteRepository) ListPending(ctx context.Context) ([]*models.QueueEntry, error) {
	return queryEntries(ctx, r.db, `SELECT `+entryColumns+` FROM sync_queue ORDER BY seq`)
}

func (r *SQLiteRepository) Get(ctx context.Context, seq int64) (*models.QueueEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM sync_queue WHERE seq = ?`, seq)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry %d: %w", seq, err)
	}
	return e, nil
}

func (r *SQLiteRepository) FindCreate(ctx context.Context, t models.EntityType, id models.ID) (*models.QueueEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM sync_queue
		WHERE op = 'create' AND entity_type = ? AND entity_id = ?
		ORDER BY seq LIMIT 1
	`, string(t), id.Int64())
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find create for %s/%s: %w", t, id, err)
	}
	return e, nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, seq int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE seq = ?`, seq); err != nil {
		return dbx.StorageError("failed to remove queue entry", err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue`); err != nil {
		return dbx.StorageError("failed to clear queue", err)
	}
	return nil
}

func (r *SQLiteRepository) Len(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) RecordAttempt(ctx context.Context, seq int64, attempts int, nextAttemptAt time.Time, lastErr string) error {
	var next int64
	if !nextAttemptAt.IsZero() {
		next = nextAttemptAt.UnixNano()
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET attempts = ?, next_attempt_at = ?, last_error = ? WHERE seq = ?
	`, attempts, next, lastErr, seq)
	if err != nil {
		return dbx.StorageError("failed to record attempt", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, seq int64, remoteID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sync_queue SET synced = 1, remote_id = ? WHERE seq = ?`, remoteID, seq)
	if err != nil {
		return dbx.StorageError("failed to mark entry synced", err)
	}
	return nil
}

func (r *SQLiteRepository) Retarget(ctx context.Context, t models.EntityType, oldID, newID models.ID) (int, error) {
	var changed int
	err := dbx.InTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, `UPDATE sync_queue SET entity_id = ? WHERE entity_type = ? AND entity_id = ?`,
			newID.Int64(), string(t), oldID.Int64())
		if err != nil {
			return dbx.StorageError("failed to retarget queue entries", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		changed += int(n)

		for typ, fields := range models.ReferencingFields(t) {
			for _, field := range fields {
				entries, err := queryEntries(ctx, tx, `
					SELECT `+entryColumns+` FROM sync_queue
					WHERE entity_type = ? AND payload IS NOT NULL AND json_extract(payload, ?) = ?
				`, string(typ), "$."+field, oldID.Int64())
				if err != nil {
					return err
				}
				for _, e := range entries {
					e.Payload[field] = newID.Int64()
					payload, err := encodePayload(e.Payload)
					if err != nil {
						return fmt.Errorf("failed to encode payload: %w", err)
					}
					if _, err := tx.ExecContext(ctx, `UPDATE sync_queue SET payload = ? WHERE seq = ?`, payload, e.Seq); err != nil {
						return dbx.StorageError("failed to rewrite payload reference", err)
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
