package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/techtrack/internal/common"
)

// Payload is the typed body of a create or update. Fields are pointers so an
// update carries only what changed.
type Payload interface {
	EntityType() EntityType
	Validate(op Op) error
}

var (
	TaskPriorities    = []string{"low", "medium", "high"}
	TaskStatuses      = []string{"new", "assigned", "in progress", "completed", "cancelled"}
	TaskDateTypes     = []string{"fixed", "nextService"}
	EquipmentStatuses = []string{"Operational", "Service due", "In repair"}
	PartStatuses      = []string{"In stock", "Ordered", "Required"}
	ReportTypes       = []string{"Work completion certificate", "Maintenance certificate", "Breakdown report", "Monthly report"}
	TripStatuses      = []string{"Planned", "In progress", "Completed", "Cancelled"}
)

type TaskPayload struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	City         *string `json:"city,omitempty"`
	Location     *string `json:"location,omitempty"`
	Priority     *string `json:"priority,omitempty"`
	Status       *string `json:"status,omitempty"`
	DateType     *string `json:"date_type,omitempty"`
	DueDate      *string `json:"due_date,omitempty"`
	EquipmentID  *int64  `json:"equipment_id,omitempty"`
	AssignedToID *int64  `json:"assigned_to_id,omitempty"`
	TripID       *int64  `json:"trip_id,omitempty"`
}

func (p *TaskPayload) EntityType() EntityType { return EntityTask }

func (p *TaskPayload) Validate(op Op) error {
	var v validator
	if op == OpCreate {
		v.required("title", p.Title)
		v.required("city", p.City)
	}
	v.oneOf("priority", p.Priority, TaskPriorities)
	v.oneOf("status", p.Status, TaskStatuses)
	v.oneOf("date_type", p.DateType, TaskDateTypes)
	return v.err()
}

type EquipmentPayload struct {
	Name           *string  `json:"name,omitempty"`
	Model          *string  `json:"model,omitempty"`
	SerialNumber   *string  `json:"serial_number,omitempty"`
	Manufacturer   *string  `json:"manufacturer,omitempty"`
	Year           *int64   `json:"year,omitempty"`
	City           *string  `json:"city,omitempty"`
	Location       *string  `json:"location,omitempty"`
	Organization   *string  `json:"organization,omitempty"`
	Address        *string  `json:"address,omitempty"`
	ContactPerson  *string  `json:"contact_person,omitempty"`
	ContactPhone   *string  `json:"contact_phone,omitempty"`
	ContactEmail   *string  `json:"contact_email,omitempty"`
	Status         *string  `json:"status,omitempty"`
	WorkingHours   *float64 `json:"working_hours,omitempty"`
	MaxEnergy      *string  `json:"max_energy,omitempty"`
	WarrantyExpiry *string  `json:"warranty_expiry,omitempty"`
	Notes          *string  `json:"notes,omitempty"`
	InstalledAt    *string  `json:"installed_at,omitempty"`
	LastService    *string  `json:"last_service,omitempty"`
}

func (p *EquipmentPayload) EntityType() EntityType { return EntityEquipment }

func (p *EquipmentPayload) Validate(op Op) error {
	var v validator
	if op == OpCreate {
		v.required("name", p.Name)
		v.required("serial_number", p.SerialNumber)
		v.required("city", p.City)
	}
	v.oneOf("status", p.Status, EquipmentStatuses)
	if p.WorkingHours != nil && *p.WorkingHours < 0 {
		v.add("working_hours must not be negative")
	}
	return v.err()
}

type PartPayload struct {
	Name            *string `json:"name,omitempty"`
	ArticleNumber   *string `json:"article_number,omitempty"`
	EquipmentType   *string `json:"equipment_type,omitempty"`
	CompatibleYears *string `json:"compatible_years,omitempty"`
	Quantity        *int64  `json:"quantity,omitempty"`
	Status          *string `json:"status,omitempty"`
	EquipmentID     *int64  `json:"equipment_id,omitempty"`
}

func (p *PartPayload) EntityType() EntityType { return EntityPart }

func (p *PartPayload) Validate(op Op) error {
	var v validator
	if op == OpCreate {
		v.required("name", p.Name)
		v.required("article_number", p.ArticleNumber)
	}
	v.oneOf("status", p.Status, PartStatuses)
	if p.Quantity != nil && *p.Quantity < 0 {
		v.add("quantity must not be negative")
	}
	return v.err()
}

type ReportPayload struct {
	Title       *string `json:"title,omitempty"`
	Content     *string `json:"content,omitempty"`
	Type        *string `json:"type,omitempty"`
	CreatedAt   *string `json:"created_at,omitempty"`
	TaskID      *int64  `json:"task_id,omitempty"`
	EquipmentID *int64  `json:"equipment_id,omitempty"`
	FileURL     *string `json:"file_url,omitempty"`
}

func (p *ReportPayload) EntityType() EntityType { return EntityReport }

func (p *ReportPayload) Validate(op Op) error {
	var v validator
	if op == OpCreate {
		v.required("title", p.Title)
		v.required("type", p.Type)
	}
	v.oneOf("type", p.Type, ReportTypes)
	return v.err()
}

type TripPayload struct {
	Title       *string `json:"title,omitempty"`
	StartDate   *string `json:"start_date,omitempty"`
	EndDate     *string `json:"end_date,omitempty"`
	City        *string `json:"city,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
}

func (p *TripPayload) EntityType() EntityType { return EntityTrip }

func (p *TripPayload) Validate(op Op) error {
	var v validator
	if op == OpCreate {
		v.required("title", p.Title)
		v.required("city", p.City)
		v.required("start_date", p.StartDate)
		v.required("end_date", p.EndDate)
	}
	v.oneOf("status", p.Status, TripStatuses)
	return v.err()
}

type UserSettingPayload struct {
	Key   *string `json:"key,omitempty"`
	Value *string `json:"value,omitempty"`
}

func (p *UserSettingPayload) EntityType() EntityType { return EntityUserSetting }

func (p *UserSettingPayload) Validate(op Op) error {
	var v validator
	if op == OpCreate {
		v.required("key", p.Key)
		v.required("value", p.Value)
	}
	return v.err()
}

// NewPayload returns an empty payload of the variant that belongs to t.
func NewPayload(t EntityType) (Payload, error) {
	switch t {
	case EntityTask:
		return &TaskPayload{}, nil
	case EntityEquipment:
		return &EquipmentPayload{}, nil
	case EntityPart:
		return &PartPayload{}, nil
	case EntityReport:
		return &ReportPayload{}, nil
	case EntityTrip:
		return &TripPayload{}, nil
	case EntityUserSetting:
		return &UserSettingPayload{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownEntityType, t)
	}
}

// DecodePayload converts a loose body into the typed variant for t.
// Unknown fields and mistyped values are rejected.
func DecodePayload(t EntityType, f Fields) (Payload, error) {
	p, err := NewPayload(t)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrInvalidPayload, t, err)
	}
	return p, nil
}

// ToFields flattens a payload into the loose body stored locally and sent to
// the backend. Unset fields are omitted.
func ToFields(p Payload) (Fields, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
	}
	f := Fields{}
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
	}
	return f, nil
}

// ValidateFields decodes f as the payload of t and validates it for op.
func ValidateFields(t EntityType, op Op, f Fields) error {
	p, err := DecodePayload(t, f)
	if err != nil {
		return err
	}
	return p.Validate(op)
}

type validator struct {
	problems []string
}

func (v *validator) add(msg string) {
	v.problems = append(v.problems, msg)
}

func (v *validator) required(name string, s *string) {
	if s == nil || *s == "" {
		v.add(name + " is required")
	}
}

func (v *validator) oneOf(name string, s *string, allowed []string) {
	if s == nil {
		return
	}
	if !slices.Contains(allowed, *s) {
		v.add(fmt.Sprintf("%s %q is not one of %q", name, *s, allowed))
	}
}

func (v *validator) err() error {
	if len(v.problems) == 0 {
		return nil
	}
	errs := make([]error, len(v.problems))
	for i, p := range v.problems {
		errs[i] = errors.New(p)
	}
	return fmt.Errorf("%w: %w", common.ErrInvalidPayload, errors.Join(errs...))
}
