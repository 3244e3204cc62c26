package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"familytree/pkg/domain"
)

// Operation names reported to loggers, metrics, tracers and audit sinks.
const (
	OpAddRoot    = "add_root"
	OpAddChild   = "add_child"
	OpAddParent  = "add_parent"
	OpEditPerson = "edit_person"
	OpMoveLeft   = "move_left"
	OpMoveRight  = "move_right"
	OpRespread   = "respread"
	OpArchive    = "archive"
	OpRestore    = "restore"
)

var operationActions = map[string]domain.Action{
	OpAddRoot:    domain.ActionCreate,
	OpAddChild:   domain.ActionCreate,
	OpAddParent:  domain.ActionCreate,
	OpEditPerson: domain.ActionUpdate,
	OpMoveLeft:   domain.ActionUpdate,
	OpMoveRight:  domain.ActionUpdate,
	OpRespread:   domain.ActionUpdate,
	OpRestore:    domain.ActionUpdate,
}

// ErrNotReady is returned by writes issued before the first snapshot arrived.
var ErrNotReady = errors.New("forest not loaded yet")

// view is one published rebuild: the forest and the raw records it came from.
type view struct {
	forest     *domain.Forest
	raw        domain.RawSnapshot
	generation uint64
	builtAt    time.Time
}

// Service keeps an immutable forest in sync with a record store and turns
// user operations into store writes. Reads never block on writes; every
// rebuild is published whole.
type Service struct {
	store    domain.RecordStore
	current  atomic.Pointer[view]
	ready    chan struct{}
	once     sync.Once
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	audit    AuditRecorder
	observer ForestObserver
	clock    Clock
	newID    IDGenerator
}

// NewService constructs a service over store. Call Run to start following
// the store.
func NewService(store domain.RecordStore, opts ...Option) *Service {
	s := &Service{
		store:    store,
		ready:    make(chan struct{}),
		logger:   noopLogger{},
		metrics:  noopMetricsRecorder{},
		tracer:   noopTracer{},
		audit:    noopAuditRecorder{},
		observer: noopForestObserver{},
		clock:    ClockFunc(nil),
		newID:    DefaultIDGenerator,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(&view{forest: domain.BuildForest(nil), raw: domain.RawSnapshot{}})
	return s
}

// Store returns the underlying record store.
func (s *Service) Store() domain.RecordStore { return s.store }

// Run subscribes to the people collection and rebuilds the forest for every
// snapshot, in arrival order. It returns when ctx is done or the store ends
// the subscription.
func (s *Service) Run(ctx context.Context) error {
	ch, err := s.store.Subscribe(ctx, domain.PeoplePath)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", domain.PeoplePath, err)
	}
	s.logger.Info("following record store", "path", domain.PeoplePath)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-ch:
			if !ok {
				s.logger.Info("record store subscription ended")
				return nil
			}
			s.Apply(snap)
		}
	}
}

// Apply rebuilds the forest from snap and publishes it.
func (s *Service) Apply(snap domain.RawSnapshot) *domain.Forest {
	started := time.Now()
	f := domain.BuildForest(snap)
	elapsed := time.Since(started)

	raw := snap.Clone()
	if raw == nil {
		raw = domain.RawSnapshot{}
	}
	prev := s.current.Load()
	next := &view{forest: f, raw: raw, generation: prev.generation + 1, builtAt: s.clock.Now()}
	s.current.Store(next)
	s.once.Do(func() { close(s.ready) })

	s.observer.ObserveForest(f, elapsed)
	s.logger.Debug("forest rebuilt", "generation", next.generation, "people", f.Len(), "roots", len(f.Roots()), "duration", elapsed)
	if demotions := f.Demotions(); len(demotions) > 0 {
		s.logger.Warn("records promoted to roots", "count", len(demotions), "first", demotions[0].ID, "reason", string(demotions[0].Reason))
	}
	return f
}

// WaitReady blocks until the first snapshot has been applied.
func (s *Service) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether a snapshot has been applied.
func (s *Service) Ready() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// Forest returns the most recently published forest.
func (s *Service) Forest() *domain.Forest { return s.current.Load().forest }

// Generation counts applied snapshots.
func (s *Service) Generation() uint64 { return s.current.Load().generation }

// BuiltAt is the time the current forest was published.
func (s *Service) BuiltAt() time.Time { return s.current.Load().builtAt }

// Records returns a copy of the raw records behind the current forest.
func (s *Service) Records() domain.RawSnapshot { return s.current.Load().raw.Clone() }

// TreeView returns the renderer-facing view of the current forest.
func (s *Service) TreeView() domain.TreeView { return domain.BuildTreeView(s.Forest()) }

// Person looks up a person in the current forest.
func (s *Service) Person(id string) (domain.Person, bool) { return s.Forest().Person(id) }

// CanMove reports whether id has a sibling on the dir side.
func (s *Service) CanMove(id string, dir domain.Direction) bool {
	return domain.CanMove(s.Forest(), id, dir)
}

// AddRoot creates a person without a parent and returns its identifier.
func (s *Service) AddRoot(ctx context.Context, fields domain.PersonFields) (string, error) {
	id := s.newID("root", s.clock.Now())
	return s.write(ctx, OpAddRoot, id, func(f *domain.Forest) (domain.Intent, error) {
		return domain.AddRootIntent(f, fields, id)
	})
}

// AddChild creates a person as the last child of parentID.
func (s *Service) AddChild(ctx context.Context, parentID string, fields domain.PersonFields) (string, error) {
	id := s.newID("child", s.clock.Now())
	return s.write(ctx, OpAddChild, id, func(f *domain.Forest) (domain.Intent, error) {
		return domain.AddChildIntent(f, parentID, fields, id)
	})
}

// AddParent creates a person and makes it the parent of the root childID.
func (s *Service) AddParent(ctx context.Context, childID string, fields domain.PersonFields) (string, error) {
	id := s.newID("parent", s.clock.Now())
	return s.write(ctx, OpAddParent, id, func(f *domain.Forest) (domain.Intent, error) {
		return domain.AddParentIntent(f, childID, fields, id)
	})
}

// EditPerson replaces the editable fields of id.
func (s *Service) EditPerson(ctx context.Context, id string, fields domain.PersonFields) error {
	_, err := s.write(ctx, OpEditPerson, id, func(f *domain.Forest) (domain.Intent, error) {
		return domain.EditIntent(f, id, fields)
	})
	return err
}

// MoveLeft swaps id with its left sibling.
func (s *Service) MoveLeft(ctx context.Context, id string) error {
	return s.Move(ctx, id, domain.MoveLeft)
}

// MoveRight swaps id with its right sibling.
func (s *Service) MoveRight(ctx context.Context, id string) error {
	return s.Move(ctx, id, domain.MoveRight)
}

// Move shifts id one position among its siblings.
func (s *Service) Move(ctx context.Context, id string, dir domain.Direction) error {
	op := OpMoveLeft
	switch dir {
	case domain.MoveLeft:
	case domain.MoveRight:
		op = OpMoveRight
	default:
		return fmt.Errorf("move %s: unknown direction %q", id, dir)
	}
	_, err := s.write(ctx, op, id, func(f *domain.Forest) (domain.Intent, error) {
		intent, err := domain.MoveIntent(f, id, dir)
		if err == nil && intent.Kind == domain.IntentUpdate {
			s.logger.Info("sibling keys exhausted, respreading", "person", id, "siblings", len(intent.Patch))
		}
		return intent, err
	})
	return err
}

// Respread renumbers the children of parentID, or the roots when parentID is
// empty, keeping their order.
func (s *Service) Respread(ctx context.Context, parentID string) error {
	_, err := s.write(ctx, OpRespread, parentID, func(f *domain.Forest) (domain.Intent, error) {
		return domain.RespreadChildrenIntent(f, parentID)
	})
	return err
}

// write computes an intent against the current forest and applies it to the
// store, reporting the outcome to every observability sink.
func (s *Service) write(ctx context.Context, op, subject string, build func(*domain.Forest) (domain.Intent, error)) (string, error) {
	if !s.Ready() {
		return "", ErrNotReady
	}
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()

	intent, err := build(s.Forest())
	if err == nil {
		err = intent.Apply(ctx, s.store)
	}
	if intent.RecordID != "" {
		subject = intent.RecordID
	}
	elapsed := time.Since(started)

	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	s.recordAudit(ctx, op, subject, elapsed, err)
	if err != nil {
		s.logger.Warn("write rejected", "operation", op, "person", subject, "error", err)
		return "", err
	}
	s.logger.Info("write applied", "operation", op, "person", subject, "kind", string(intent.Kind))
	return subject, nil
}

func (s *Service) recordAudit(ctx context.Context, op, subject string, elapsed time.Duration, err error) {
	action, ok := operationActions[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Action:    action,
		RecordID:  subject,
		Status:    AuditStatusSuccess,
		Duration:  elapsed,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}
