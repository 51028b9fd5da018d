package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/dmitrijs2005/techtrack/internal/common"
)

// EntityType names one logical collection of the local store.
type EntityType string

const (
	EntityTask        EntityType = "task"
	EntityEquipment   EntityType = "equipment"
	EntityPart        EntityType = "part"
	EntityReport      EntityType = "report"
	EntityTrip        EntityType = "trip"
	EntityUserSetting EntityType = "user-setting"
)

var entityTypes = []EntityType{EntityTask, EntityEquipment, EntityPart, EntityReport, EntityTrip, EntityUserSetting}

// EntityTypes lists every known entity type in a stable order.
func EntityTypes() []EntityType {
	out := make([]EntityType, len(entityTypes))
	copy(out, entityTypes)
	return out
}

func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", common.ErrUnknownEntityType, s)
	}
	return t, nil
}

func (t EntityType) Valid() bool {
	_, ok := schemas[t]
	return ok
}

// Op is the kind of mutation recorded in the sync queue.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

func (o Op) Valid() bool {
	return o == OpCreate || o == OpUpdate || o == OpDelete
}

// Fields is the JSON object body of an entity. Numbers decoded from storage
// or the wire are float64, as encoding/json produces them.
type Fields map[string]any

// Clone returns a shallow copy; nil stays nil.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	return maps.Clone(f)
}

// Merge returns a copy of f with patch applied on top (last writer wins per
// field).
func (f Fields) Merge(patch Fields) Fields {
	out := make(Fields, len(f)+len(patch))
	maps.Copy(out, f)
	maps.Copy(out, patch)
	return out
}

// Int64 reads a whole number field.
func (f Fields) Int64(name string) (int64, bool) {
	return asInt64(f[name])
}

// Record is one stored entity.
type Record struct {
	Type      EntityType
	ID        ID
	Fields    Fields
	OutOfSync bool
	SyncError string
	UpdatedAt time.Time
}

// Clone copies the record and its top-level fields.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Fields = r.Fields.Clone()
	return &c
}

// Validate checks the record can be stored.
func (r *Record) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %q", common.ErrUnknownEntityType, r.Type)
	}
	if r.ID.IsZero() {
		return fmt.Errorf("%w: record without id", common.ErrInvalidID)
	}
	return nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// indexValue renders a scalar field as the string stored in an index.
// Nested values and nulls are not indexed.
func indexValue(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case int:
		return strconv.Itoa(x), true
	case bool:
		return strconv.FormatBool(x), true
	case json.Number:
		return x.String(), true
	default:
		return "", false
	}
}
