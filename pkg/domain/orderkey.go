package domain

import (
	"errors"
	"fmt"
	"slices"
)

// BoundaryStep is the gap left when a node is appended or moved into the
// outermost sibling slot.
const BoundaryStep = 100.0

// Direction selects a one-step sibling move.
type Direction string

const (
	// MoveLeft moves a node one position towards the start of its siblings.
	MoveLeft Direction = "left"
	// MoveRight moves a node one position towards the end of its siblings.
	MoveRight Direction = "right"
)

// ParseDirection accepts "left" or "right".
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case MoveLeft, MoveRight:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

var (
	// ErrUnknownPerson is returned when an operation names an identifier that
	// is not part of the forest.
	ErrUnknownPerson = errors.New("person not found")
	// ErrNoSibling is returned when a move has no sibling on the requested side.
	ErrNoSibling = errors.New("no sibling in requested direction")
	// ErrKeySpaceExhausted is returned when no key strictly between the target
	// neighbours is representable; the sibling set needs respreading.
	ErrKeySpaceExhausted = errors.New("order key space exhausted")
)

// MoveError describes a rejected sibling move.
type MoveError struct {
	ID        string
	Direction Direction
	Err       error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("move %s %s: %v", e.ID, e.Direction, e.Err)
}

func (e *MoveError) Unwrap() error { return e.Err }

// AppendKey returns a key that sorts after every key in siblings, or 0 when
// the sequence is empty.
func AppendKey(f *Forest, siblings []string) float64 {
	if len(siblings) == 0 {
		return 0
	}
	highest := f.OrderKey(siblings[0])
	for _, id := range siblings[1:] {
		highest = max(highest, f.OrderKey(id))
	}
	return highest + BoundaryStep
}

// NewChildKey returns the key for a child appended under parentID.
func NewChildKey(f *Forest, parentID string) float64 {
	return AppendKey(f, f.Children(parentID))
}

// NewRootKey returns the key for a new root appended after the existing roots.
func NewRootKey(f *Forest) float64 {
	return AppendKey(f, f.Roots())
}

// CanMove reports whether id has a sibling on the dir side.
func CanMove(f *Forest, id string, dir Direction) bool {
	siblings := f.Siblings(id)
	i := slices.Index(siblings, id)
	if i < 0 {
		return false
	}
	switch dir {
	case MoveLeft:
		return i > 0
	case MoveRight:
		return i < len(siblings)-1
	default:
		return false
	}
}

// MoveKey computes the new order key that moves id one step in dir. Moving
// into the outermost slot offsets the boundary sibling by BoundaryStep;
// any other move takes the midpoint of the two keys around the target slot.
func MoveKey(f *Forest, id string, dir Direction) (float64, error) {
	if !f.Has(id) {
		return 0, &MoveError{ID: id, Direction: dir, Err: ErrUnknownPerson}
	}
	siblings := f.Siblings(id)
	i := slices.Index(siblings, id)
	n := len(siblings)
	key := func(at int) float64 { return f.OrderKey(siblings[at]) }

	var lo, hi, next float64
	switch dir {
	case MoveLeft:
		if i == 0 {
			return 0, &MoveError{ID: id, Direction: dir, Err: ErrNoSibling}
		}
		if i == 1 {
			hi = key(0)
			next = hi - BoundaryStep
			if next < hi {
				return next, nil
			}
			return 0, &MoveError{ID: id, Direction: dir, Err: ErrKeySpaceExhausted}
		}
		lo, hi = key(i-2), key(i-1)
	case MoveRight:
		if i == n-1 {
			return 0, &MoveError{ID: id, Direction: dir, Err: ErrNoSibling}
		}
		if i == n-2 {
			lo = key(n - 1)
			next = lo + BoundaryStep
			if next > lo {
				return next, nil
			}
			return 0, &MoveError{ID: id, Direction: dir, Err: ErrKeySpaceExhausted}
		}
		lo, hi = key(i+1), key(i+2)
	default:
		return 0, &MoveError{ID: id, Direction: dir, Err: fmt.Errorf("unknown direction %q", dir)}
	}

	next = lo + (hi-lo)/2
	if lo < next && next < hi {
		return next, nil
	}
	return 0, &MoveError{ID: id, Direction: dir, Err: ErrKeySpaceExhausted}
}

// RespreadKeys assigns evenly spaced keys to ids in their given order.
func RespreadKeys(ids []string) map[string]float64 {
	keys := make(map[string]float64, len(ids))
	for i, id := range ids {
		keys[id] = float64(i+1) * BoundaryStep
	}
	return keys
}

// RespreadMove renumbers the whole sibling set of id with id swapped one step
// in dir. It is the fallback when MoveKey reports ErrKeySpaceExhausted.
func RespreadMove(f *Forest, id string, dir Direction) (map[string]float64, error) {
	if !f.Has(id) {
		return nil, &MoveError{ID: id, Direction: dir, Err: ErrUnknownPerson}
	}
	siblings := f.Siblings(id)
	i := slices.Index(siblings, id)
	switch {
	case dir == MoveLeft && i > 0:
		siblings[i-1], siblings[i] = siblings[i], siblings[i-1]
	case dir == MoveRight && i < len(siblings)-1:
		siblings[i+1], siblings[i] = siblings[i], siblings[i+1]
	default:
		return nil, &MoveError{ID: id, Direction: dir, Err: ErrNoSibling}
	}
	return RespreadKeys(siblings), nil
}
