package models

import (
	"fmt"

	"github.com/dmitrijs2005/techtrack/internal/common"
)

type IndexDef struct {
	Name   string
	Unique bool
}

// Schema describes how records of one type are indexed, referenced and
// addressed on the backend.
type Schema struct {
	Type       EntityType
	Collection string
	Indexes    []IndexDef
	// References maps a field name to the entity type whose id it holds.
	References map[string]EntityType
}

var schemas = map[EntityType]Schema{
	EntityTask: {
		Type:       EntityTask,
		Collection: "tasks",
		Indexes:    []IndexDef{{Name: "city"}, {Name: "status"}, {Name: "priority"}},
		References: map[string]EntityType{"equipment_id": EntityEquipment, "trip_id": EntityTrip},
	},
	EntityEquipment: {
		Type:       EntityEquipment,
		Collection: "equipment",
		Indexes:    []IndexDef{{Name: "city"}, {Name: "status"}, {Name: "serial_number", Unique: true}},
	},
	EntityPart: {
		Type:       EntityPart,
		Collection: "parts",
		Indexes:    []IndexDef{{Name: "status"}, {Name: "equipment_type"}},
		References: map[string]EntityType{"equipment_id": EntityEquipment},
	},
	EntityReport: {
		Type:       EntityReport,
		Collection: "reports",
		Indexes:    []IndexDef{{Name: "type"}, {Name: "created_at"}},
		References: map[string]EntityType{"task_id": EntityTask, "equipment_id": EntityEquipment},
	},
	EntityTrip: {
		Type:       EntityTrip,
		Collection: "trips",
		Indexes:    []IndexDef{{Name: "city"}, {Name: "status"}},
	},
	EntityUserSetting: {
		Type:       EntityUserSetting,
		Collection: "settings",
		Indexes:    []IndexDef{{Name: "key", Unique: true}},
	},
}

func SchemaFor(t EntityType) (Schema, error) {
	s, ok := schemas[t]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", common.ErrUnknownEntityType, t)
	}
	return s, nil
}

func (s Schema) Index(name string) (IndexDef, bool) {
	for _, idx := range s.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexDef{}, false
}

func (s Schema) HasIndex(name string) bool {
	_, ok := s.Index(name)
	return ok
}

// IndexEntry is one derived secondary index row.
type IndexEntry struct {
	Name   string
	Value  string
	Unique bool
}

// IndexEntries derives the index rows for a record body. Fields that are
// missing or not scalar produce no row.
func (s Schema) IndexEntries(f Fields) []IndexEntry {
	out := make([]IndexEntry, 0, len(s.Indexes))
	for _, idx := range s.Indexes {
		v, ok := indexValue(f[idx.Name])
		if !ok {
			continue
		}
		out = append(out, IndexEntry{Name: idx.Name, Value: v, Unique: idx.Unique})
	}
	return out
}

// LocalReferences returns the referenced local ids found in f, keyed by
// field name.
func (s Schema) LocalReferences(f Fields) map[string]Reference {
	var out map[string]Reference
	for field, target := range s.References {
		v, ok := asInt64(f[field])
		if !ok || v >= 0 {
			continue
		}
		id, _ := LocalID(v)
		if out == nil {
			out = make(map[string]Reference)
		}
		out[field] = Reference{Type: target, ID: id}
	}
	return out
}

// Reference points at another entity.
type Reference struct {
	Type EntityType
	ID   ID
}

// ReferencingFields lists, for every type, the fields that hold ids of
// target.
func ReferencingFields(target EntityType) map[EntityType][]string {
	out := make(map[EntityType][]string)
	for _, t := range entityTypes {
		for field, ref := range schemas[t].References {
			if ref == target {
				out[t] = append(out[t], field)
			}
		}
	}
	return out
}
