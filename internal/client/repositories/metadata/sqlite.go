package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/techtrack/internal/dbx"
)

const (
	selectValueSQL = `SELECT value FROM metadata WHERE key = ?`
	selectAllSQL   = `SELECT key, value FROM metadata`
	upsertSQL      = `INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	deleteKeySQL = `DELETE FROM metadata WHERE key = ?`
	deleteAllSQL = `DELETE FROM metadata`
)

// SQLiteRepository keeps the session and sync bookkeeping (KeyToken,
// KeyDeviceID, KeyLastDrainAt) in the local database. It works on either
// the pool or a transaction, so a logout can clear it together with the
// entity tables.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns nil without an error when the key was never written, which is
// how a fresh install reports "no token yet".
func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	switch err := r.db.QueryRowContext(ctx, selectValueSQL, key).Scan(&value); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("read metadata %q: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	if _, err := r.db.ExecContext(ctx, upsertSQL, key, value); err != nil {
		return dbx.StorageError(fmt.Sprintf("write metadata %q", key), err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, deleteKeySQL, key); err != nil {
		return dbx.StorageError(fmt.Sprintf("remove metadata %q", key), err)
	}
	return nil
}

// Clear drops the token, the device id and the drain timestamp alike.
func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, deleteAllSQL); err != nil {
		return dbx.StorageError("clear metadata", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) (map[string][]byte, error) {
	rows, err := r.db.QueryContext(ctx, selectAllSQL)
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	defer rows.Close()

	all := map[string][]byte{}
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("list metadata: scan: %w", err)
		}
		all[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	return all, nil
}

// GetString returns "" for a missing key.
func (r *SQLiteRepository) GetString(ctx context.Context, key string) (string, error) {
	v, err := r.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// GetTime returns the zero time for a missing key, e.g. KeyLastDrainAt
// before the first successful drain.
func (r *SQLiteRepository) GetTime(ctx context.Context, key string) (time.Time, error) {
	v, err := r.Get(ctx, key)
	if err != nil || v == nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, string(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("metadata %q is not a timestamp: %w", key, err)
	}
	return t, nil
}

// SetTime stores t in UTC.
func (r *SQLiteRepository) SetTime(ctx context.Context, key string, t time.Time) error {
	return r.Set(ctx, key, []byte(t.UTC().Format(time.RFC3339Nano)))
}
