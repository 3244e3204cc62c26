// Package domain defines the person record model, the forest reconstructed
// from a flat record set, sibling order key allocation, and the write intents
// and rule evaluation primitives used by familytree.
package domain

import (
	"encoding/json"
	"math"
)

// Wire field names of a persisted person record.
const (
	FieldName        = "name"
	FieldSurname     = "surname"
	FieldParentID    = "parentId"
	FieldOrderID     = "orderId"
	FieldDateStart   = "dateStart"
	FieldDateEnd     = "dateEnd"
	FieldDescription = "description"
)

// RawRecord is a single record as delivered by the record store: field name to
// JSON-typed value.
type RawRecord map[string]any

// RawSnapshot is one complete emission of a collection from the record store,
// keyed by record identifier.
type RawSnapshot map[string]RawRecord

// Clone returns a deep copy of the record.
func (r RawRecord) Clone() RawRecord {
	if r == nil {
		return nil
	}
	out := make(RawRecord, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// Clone returns a deep copy of the snapshot.
func (s RawSnapshot) Clone() RawSnapshot {
	if s == nil {
		return nil
	}
	out := make(RawSnapshot, len(s))
	for id, rec := range s {
		out[id] = rec.Clone()
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = cloneValue(inner)
		}
		return out
	case RawRecord:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return v
	}
}

// Person is the typed view of a person record. Children holds the identifiers
// of the resolved children in sibling order and is only populated on people
// obtained from a Forest.
type Person struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Surname     string   `json:"surname"`
	ParentID    string   `json:"parentId,omitempty"`
	OrderKey    float64  `json:"orderId"`
	DateStart   string   `json:"dateStart,omitempty"`
	DateEnd     string   `json:"dateEnd,omitempty"`
	Description string   `json:"description,omitempty"`
	Children    []string `json:"children,omitempty"`
}

// HasParent reports whether the record declares a parent. The declared parent
// may still be absent from a snapshot.
func (p Person) HasParent() bool { return p.ParentID != "" }

// ParsePerson converts a raw record into a Person. It never fails: absent or
// ill-typed optional fields fall back to their zero defaults, and a non-finite
// order key is treated as 0.
func ParsePerson(id string, raw RawRecord) Person {
	return Person{
		ID:          id,
		Name:        stringField(raw, FieldName),
		Surname:     stringField(raw, FieldSurname),
		ParentID:    stringField(raw, FieldParentID),
		OrderKey:    numberField(raw, FieldOrderID),
		DateStart:   stringField(raw, FieldDateStart),
		DateEnd:     stringField(raw, FieldDateEnd),
		Description: stringField(raw, FieldDescription),
	}
}

// Record renders the person in its persisted wire shape. A root is written
// with an explicit null parent.
func (p Person) Record() RawRecord {
	rec := RawRecord{
		FieldName:        p.Name,
		FieldSurname:     p.Surname,
		FieldOrderID:     p.OrderKey,
		FieldDateStart:   p.DateStart,
		FieldDateEnd:     p.DateEnd,
		FieldDescription: p.Description,
	}
	if p.ParentID != "" {
		rec[FieldParentID] = p.ParentID
	} else {
		rec[FieldParentID] = nil
	}
	return rec
}

func stringField(raw RawRecord, key string) string {
	if s, ok := raw[key].(string); ok {
		return s
	}
	return ""
}

func numberField(raw RawRecord, key string) float64 {
	var f float64
	switch v := raw[key].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
