package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingName is returned when a person is submitted without a name.
	ErrMissingName = errors.New("name is required")
	// ErrMissingSurname is returned when a person is submitted without a surname.
	ErrMissingSurname = errors.New("surname is required")
	// ErrHasParent is returned when adding a parent to a person that already has one.
	ErrHasParent = errors.New("person already has a parent")
)

// PersonFields are the user-editable attributes of a person.
type PersonFields struct {
	Name        string
	Surname     string
	DateStart   string
	DateEnd     string
	Description string
}

// FieldsOf extracts the editable attributes of p.
func FieldsOf(p Person) PersonFields {
	return PersonFields{
		Name:        p.Name,
		Surname:     p.Surname,
		DateStart:   p.DateStart,
		DateEnd:     p.DateEnd,
		Description: p.Description,
	}
}

// Validate rejects blank required fields.
func (p PersonFields) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ErrMissingName)
	}
	if strings.TrimSpace(p.Surname) == "" {
		errs = append(errs, ErrMissingSurname)
	}
	return errors.Join(errs...)
}

func (p PersonFields) person(id, parentID string, key float64) Person {
	return Person{
		ID:          id,
		Name:        strings.TrimSpace(p.Name),
		Surname:     strings.TrimSpace(p.Surname),
		ParentID:    parentID,
		OrderKey:    key,
		DateStart:   strings.TrimSpace(p.DateStart),
		DateEnd:     strings.TrimSpace(p.DateEnd),
		Description: strings.TrimSpace(p.Description),
	}
}

// IntentKind distinguishes point writes from patch writes.
type IntentKind string

const (
	// IntentSet is a point write of a record or field.
	IntentSet IntentKind = "set"
	// IntentUpdate is an atomic multi-key patch.
	IntentUpdate IntentKind = "update"
)

// Intent is a write to be sent to the record store. Intents are computed
// against a forest and never mutate it.
type Intent struct {
	Kind     IntentKind
	Path     string
	Value    any
	Patch    map[string]any
	RecordID string
}

// Apply sends the intent to store.
func (i Intent) Apply(ctx context.Context, store RecordStore) error {
	switch i.Kind {
	case IntentSet:
		return store.Set(ctx, i.Path, i.Value)
	case IntentUpdate:
		return store.Update(ctx, i.Path, i.Patch)
	default:
		return fmt.Errorf("unknown intent kind %q", i.Kind)
	}
}

// AddRootIntent creates a person without a parent, appended after the
// existing roots.
func AddRootIntent(f *Forest, fields PersonFields, id string) (Intent, error) {
	if err := fields.Validate(); err != nil {
		return Intent{}, err
	}
	p := fields.person(id, "", NewRootKey(f))
	return Intent{Kind: IntentSet, Path: RecordPath(id), Value: p.Record(), RecordID: id}, nil
}

// AddChildIntent creates a person appended as the last child of parentID.
func AddChildIntent(f *Forest, parentID string, fields PersonFields, id string) (Intent, error) {
	if !f.Has(parentID) {
		return Intent{}, fmt.Errorf("add child to %s: %w", parentID, ErrUnknownPerson)
	}
	if err := fields.Validate(); err != nil {
		return Intent{}, err
	}
	p := fields.person(id, parentID, NewChildKey(f, parentID))
	return Intent{Kind: IntentSet, Path: RecordPath(id), Value: p.Record(), RecordID: id}, nil
}

// AddParentIntent creates a new root person and re-parents childID under it
// in one atomic patch. The new parent takes over the child's order key so
// the tree keeps its position among the roots.
func AddParentIntent(f *Forest, childID string, fields PersonFields, id string) (Intent, error) {
	child, ok := f.Person(childID)
	if !ok {
		return Intent{}, fmt.Errorf("add parent to %s: %w", childID, ErrUnknownPerson)
	}
	if _, has := f.Parent(childID); has {
		return Intent{}, fmt.Errorf("add parent to %s: %w", childID, ErrHasParent)
	}
	if err := fields.Validate(); err != nil {
		return Intent{}, err
	}
	parent := fields.person(id, "", child.OrderKey)
	patch := map[string]any{id: parent.Record()}
	patch[JoinPath(childID, FieldParentID)] = id
	return Intent{Kind: IntentUpdate, Path: PeoplePath, Patch: patch, RecordID: id}, nil
}

// EditIntent replaces the editable fields of id, leaving its parent and
// order key untouched.
func EditIntent(f *Forest, id string, fields PersonFields) (Intent, error) {
	if !f.Has(id) {
		return Intent{}, fmt.Errorf("edit %s: %w", id, ErrUnknownPerson)
	}
	if err := fields.Validate(); err != nil {
		return Intent{}, err
	}
	p := fields.person(id, "", 0)
	return Intent{
		Kind: IntentUpdate,
		Path: PeoplePath,
		Patch: map[string]any{
			JoinPath(id, FieldName):        p.Name,
			JoinPath(id, FieldSurname):     p.Surname,
			JoinPath(id, FieldDateStart):   p.DateStart,
			JoinPath(id, FieldDateEnd):     p.DateEnd,
			JoinPath(id, FieldDescription): p.Description,
		},
		RecordID: id,
	}, nil
}

// MoveIntent writes the single order key that moves id one step in dir. When
// the gap between the target neighbours can no longer be split, the whole
// sibling set is respread in one patch instead.
func MoveIntent(f *Forest, id string, dir Direction) (Intent, error) {
	key, err := MoveKey(f, id, dir)
	if err == nil {
		return Intent{Kind: IntentSet, Path: FieldPath(id, FieldOrderID), Value: key, RecordID: id}, nil
	}
	if !errors.Is(err, ErrKeySpaceExhausted) {
		return Intent{}, err
	}
	keys, err := RespreadMove(f, id, dir)
	if err != nil {
		return Intent{}, err
	}
	intent := RespreadIntent(keys)
	intent.RecordID = id
	return intent, nil
}

// RespreadIntent writes every key of keys as one atomic patch.
func RespreadIntent(keys map[string]float64) Intent {
	patch := make(map[string]any, len(keys))
	for id, key := range keys {
		patch[JoinPath(id, FieldOrderID)] = key
	}
	return Intent{Kind: IntentUpdate, Path: PeoplePath, Patch: patch}
}

// RespreadChildrenIntent renumbers the children of parentID (the roots when
// parentID is empty) with wide gaps, keeping their current order.
func RespreadChildrenIntent(f *Forest, parentID string) (Intent, error) {
	var siblings []string
	if parentID == "" {
		siblings = f.Roots()
	} else {
		if !f.Has(parentID) {
			return Intent{}, fmt.Errorf("respread %s: %w", parentID, ErrUnknownPerson)
		}
		siblings = f.Children(parentID)
	}
	intent := RespreadIntent(RespreadKeys(siblings))
	intent.RecordID = parentID
	return intent, nil
}
