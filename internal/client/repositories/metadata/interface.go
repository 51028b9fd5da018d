// Package metadata stores client bookkeeping in a small key/value table:
// the bearer token, the device id and the time of the last completed drain.
package metadata

import (
	"context"
	"time"
)

const (
	KeyToken       = "token"
	KeyDeviceID    = "device_id"
	KeyLastDrainAt = "last_drain_at"
)

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error

	GetString(ctx context.Context, key string) (string, error)
	GetTime(ctx context.Context, key string) (time.Time, error)
	SetTime(ctx context.Context, key string, t time.Time) error
}
