package memory

import (
	"context"
	"fmt"

	"familytree/pkg/domain"
)

type subscription struct {
	collection string
	ch         chan domain.RawSnapshot
	done       chan struct{}
}

// deliver hands snap to the subscriber without blocking. An undelivered older
// snapshot is replaced, so a slow reader skips ahead but never goes back.
// Callers hold the store lock.
func (sub *subscription) deliver(snap domain.RawSnapshot) {
	select {
	case sub.ch <- snap:
		return
	default:
	}
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- snap:
	default:
	}
}

// Subscribe streams snapshots of a collection. The current state is sent
// first; the channel is closed when ctx is done or the store is closed.
func (s *Store) Subscribe(ctx context.Context, path string) (<-chan domain.RawSnapshot, error) {
	segments := domain.SplitPath(path)
	if len(segments) != 1 {
		return nil, fmt.Errorf("%w: subscribe expects a collection, got %q", ErrInvalidPath, path)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	sub := &subscription{collection: segments[0], ch: make(chan domain.RawSnapshot, 1), done: make(chan struct{})}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	sub.deliver(s.state[sub.collection].Clone())
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.done:
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub.ch)
		}
	}()
	return sub.ch, nil
}

func (s *Store) broadcastLocked(collections map[string]struct{}) {
	for _, sub := range s.subs {
		if _, ok := collections[sub.collection]; !ok {
			continue
		}
		sub.deliver(s.state[sub.collection].Clone())
	}
}
