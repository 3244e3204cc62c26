// Package memory provides an in-memory implementation of the record store
// used for tests and ephemeral environments, and the transactional core the
// SQL-backed stores build upon.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"familytree/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain store interface.
var _ domain.RecordStore = (*Store)(nil)

// Snapshot is the serialisable state of the store: collection name to records.
type Snapshot map[string]domain.RawSnapshot

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for name, records := range s {
		out[name] = records.Clone()
	}
	return out
}

// PersistFunc durably writes a committed state. A persist error aborts the
// commit.
type PersistFunc func(ctx context.Context, state Snapshot) error

// ViolationHandler receives non-blocking rule results of committed writes.
type ViolationHandler func(ctx context.Context, res domain.Result)

// Option configures a Store.
type Option func(*Store)

// WithViolationHandler installs a callback for warnings raised by rules on
// committed writes.
func WithViolationHandler(fn ViolationHandler) Option {
	return func(s *Store) { s.onViolation = fn }
}

// WithClock overrides the time source used to stamp commits.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("record store closed")

// Store is an in-memory, transactional, push-based record store.
type Store struct {
	mu          sync.RWMutex
	state       Snapshot
	engine      *domain.RulesEngine
	persist     PersistFunc
	onViolation ViolationHandler
	nowFn       func() time.Time
	committedAt time.Time
	subs        map[uint64]*subscription
	nextSub     uint64
	closed      bool
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  Snapshot{},
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		subs:   make(map[uint64]*subscription),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPersister installs the hook durable backends use to write each commit.
func (s *Store) SetPersister(fn PersistFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist = fn
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// ImportState replaces the store state with the provided snapshot. Existing
// subscribers receive the new state of their collection.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.state
	s.state = snapshot.Clone()
	touched := make(map[string]struct{}, len(previous)+len(s.state))
	for name := range previous {
		touched[name] = struct{}{}
	}
	for name := range s.state {
		touched[name] = struct{}{}
	}
	s.broadcastLocked(touched)
}

// RulesEngine exposes the configured engine.
func (s *Store) RulesEngine() *domain.RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// CommittedAt returns the time of the last committed write.
func (s *Store) CommittedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committedAt
}

// Collection returns a copy of the named collection.
func (s *Store) Collection(name string) domain.RawSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state[name].Clone()
}

// RunInTransaction applies fn to a copy of the state, evaluates the rules
// engine over the result and commits only if no blocking violation is
// reported and the persister (if any) succeeds. Subscribers of every touched
// collection then receive one snapshot.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx *Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Result{}, ErrClosed
	}

	tx := newTransaction(s.state.Clone())
	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}
	changes := tx.Changes()
	if len(changes) == 0 {
		return domain.Result{}, nil
	}

	var result domain.Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, transactionView{state: tx.state}, changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.persist != nil {
		if err := s.persist(ctx, tx.state); err != nil {
			return result, fmt.Errorf("persist: %w", err)
		}
	}

	s.state = tx.state
	s.committedAt = s.nowFn()
	s.broadcastLocked(tx.touched)
	if len(result.Violations) > 0 && s.onViolation != nil {
		s.onViolation(ctx, result)
	}
	return result, nil
}

// Set writes a whole record ("<collection>/<id>") or a single field
// ("<collection>/<id>/<field>"). A nil field value removes the field.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	segments := domain.SplitPath(path)
	_, err := s.RunInTransaction(ctx, func(tx *Transaction) error {
		return tx.apply(segments, value)
	})
	return err
}

// Update applies every patch entry, keyed by a path relative to path, as a
// single transaction.
func (s *Store) Update(ctx context.Context, path string, patch map[string]any) error {
	base := domain.SplitPath(path)
	keys := sortedKeys(patch)
	_, err := s.RunInTransaction(ctx, func(tx *Transaction) error {
		for _, key := range keys {
			segments := append(append([]string{}, base...), domain.SplitPath(key)...)
			if err := tx.apply(segments, patch[key]); err != nil {
				return fmt.Errorf("update %s: %w", domain.JoinPath(path, key), err)
			}
		}
		return nil
	})
	return err
}

// Close ends every subscription. Later writes fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for id, sub := range s.subs {
		close(sub.ch)
		close(sub.done)
		delete(s.subs, id)
	}
	return nil
}

// transactionView exposes the transactional state to rules. Returned
// snapshots are shared and must not be modified.
type transactionView struct {
	state Snapshot
}

func (v transactionView) Collection(name string) domain.RawSnapshot {
	return v.state[name]
}

func (v transactionView) FindRecord(collection, id string) (domain.RawRecord, bool) {
	rec, ok := v.state[collection][id]
	return rec, ok
}
