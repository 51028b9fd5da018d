package models

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/techtrack/internal/common"
)

// IDKind tells where an identifier was allocated.
type IDKind uint8

const (
	KindInvalid IDKind = iota
	KindLocal
	KindRemote
)

func (k IDKind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	default:
		return "invalid"
	}
}

// ID identifies an entity within its type. Local ids are negative and exist
// only on this device until the backend acknowledges the create; remote ids
// are positive and assigned by the backend. The zero ID is invalid.
type ID struct {
	kind  IDKind
	value int64
}

// LocalID builds a local id; v must be negative.
func LocalID(v int64) (ID, error) {
	if v >= 0 {
		return ID{}, fmt.Errorf("%w: local id must be negative, got %d", common.ErrInvalidID, v)
	}
	return ID{kind: KindLocal, value: v}, nil
}

// RemoteID builds a remote id; v must be positive.
func RemoteID(v int64) (ID, error) {
	if v <= 0 {
		return ID{}, fmt.Errorf("%w: remote id must be positive, got %d", common.ErrInvalidID, v)
	}
	return ID{kind: KindRemote, value: v}, nil
}

// IDFromInt64 restores an id from its stored integer form.
func IDFromInt64(v int64) (ID, error) {
	switch {
	case v < 0:
		return LocalID(v)
	case v > 0:
		return RemoteID(v)
	default:
		return ID{}, fmt.Errorf("%w: zero", common.ErrInvalidID)
	}
}

// ParseID parses the decimal form printed by ID.String.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q", common.ErrInvalidID, s)
	}
	return IDFromInt64(v)
}

// MustParseID is ParseID for literals; it panics on malformed input.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) Kind() IDKind { return id.kind }
func (id ID) IsLocal() bool { return id.kind == KindLocal }
func (id ID) IsRemote() bool { return id.kind == KindRemote }
func (id ID) IsZero() bool { return id.kind == KindInvalid }
func (id ID) Int64() int64 { return id.value }
func (id ID) String() string { return strconv.FormatInt(id.value, 10) }

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

func (id *ID) UnmarshalJSON(b []byte) error {
	var v int64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidID, err)
	}
	parsed, err := IDFromInt64(v)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
