package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"familytree/pkg/domain"
)

var (
	// ErrInvalidPath is returned for write paths that do not address a record
	// or a record field.
	ErrInvalidPath = errors.New("invalid record path")
	// ErrDeleteUnsupported is returned when a whole record is set to nil.
	ErrDeleteUnsupported = errors.New("deleting records is not supported")
)

type recordKey struct {
	collection string
	id         string
}

// Transaction is a mutation set applied to a private copy of the store state.
type Transaction struct {
	state   Snapshot
	before  map[recordKey]domain.RawRecord
	seen    map[recordKey]bool
	order   []recordKey
	touched map[string]struct{}
}

func newTransaction(state Snapshot) *Transaction {
	return &Transaction{
		state:   state,
		before:  make(map[recordKey]domain.RawRecord),
		seen:    make(map[recordKey]bool),
		touched: make(map[string]struct{}),
	}
}

// Record returns a copy of a record as seen inside the transaction.
func (tx *Transaction) Record(collection, id string) (domain.RawRecord, bool) {
	rec, ok := tx.state[collection][id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// SetRecord replaces a whole record.
func (tx *Transaction) SetRecord(collection, id string, rec domain.RawRecord) error {
	return tx.apply([]string{collection, id}, rec)
}

// SetField writes one field of a record, creating the record if needed.
func (tx *Transaction) SetField(collection, id, field string, value any) error {
	return tx.apply([]string{collection, id, field}, value)
}

// Changes lists touched records in first-touch order.
func (tx *Transaction) Changes() []domain.Change {
	changes := make([]domain.Change, 0, len(tx.order))
	for _, key := range tx.order {
		before := tx.before[key]
		action := domain.ActionUpdate
		if before == nil {
			action = domain.ActionCreate
		}
		changes = append(changes, domain.Change{
			Collection: key.collection,
			ID:         key.id,
			Action:     action,
			Before:     before,
			After:      tx.state[key.collection][key.id].Clone(),
		})
	}
	return changes
}

func (tx *Transaction) apply(segments []string, value any) error {
	if len(segments) != 2 && len(segments) != 3 {
		return fmt.Errorf("%w: %q", ErrInvalidPath, domain.JoinPath(segments...))
	}
	collection, id := segments[0], segments[1]
	normalised, err := normalise(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", domain.JoinPath(segments...), err)
	}
	tx.track(collection, id)
	records := tx.state[collection]
	if records == nil {
		records = domain.RawSnapshot{}
		tx.state[collection] = records
	}

	if len(segments) == 2 {
		if normalised == nil {
			return ErrDeleteUnsupported
		}
		obj, ok := normalised.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: record %s must be an object", ErrInvalidPath, id)
		}
		records[id] = domain.RawRecord(obj)
		return nil
	}

	field := segments[2]
	rec := records[id]
	if rec == nil {
		rec = domain.RawRecord{}
		records[id] = rec
	}
	if normalised == nil {
		delete(rec, field)
		return nil
	}
	rec[field] = normalised
	return nil
}

func (tx *Transaction) track(collection, id string) {
	key := recordKey{collection: collection, id: id}
	tx.touched[collection] = struct{}{}
	if tx.seen[key] {
		return
	}
	tx.seen[key] = true
	tx.order = append(tx.order, key)
	if rec, ok := tx.state[collection][id]; ok {
		tx.before[key] = rec.Clone()
	}
}

// normalise round-trips a value through JSON so stored state only holds
// JSON-typed values, as a remote store would return them.
func normalise(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
