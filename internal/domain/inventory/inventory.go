package inventory

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Zhima-Mochi/gameshop/internal/domain/catalog"
)

// Capacity is the number of slots in the player's bag.
const Capacity = 14

var (
	ErrInvalidCapacity = errors.New("inventory: capacity must be greater than zero")
	ErrInventoryFull   = errors.New("inventory: full")
	ErrSlotOccupied    = errors.New("inventory: slot occupied")
	ErrSlotOutOfRange  = errors.New("inventory: slot out of range")
	ErrNilItem         = errors.New("inventory: item is required")
)

// SlotRef identifies a slot by its index in [0, capacity).
type SlotRef int

func (r SlotRef) Index() int { return int(r) }

// Slot is a snapshot of one inventory position.
type Slot struct {
	Index    int
	Occupant *catalog.Item
}

func (s Slot) Occupied() bool { return s.Occupant != nil }

// Store owns a fixed sequence of slots. Occupancy only changes through Place and Allocate.
type Store struct {
	mu       sync.RWMutex
	slots    []*catalog.Item
	occupied atomic.Int32
}

func NewStore(capacity int) (*Store, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Store{slots: make([]*catalog.Item, capacity)}, nil
}

func (s *Store) Capacity() int { return len(s.slots) }

func (s *Store) OccupiedCount() int { return int(s.occupied.Load()) }

func (s *Store) IsFull() bool { return s.OccupiedCount() == len(s.slots) }

// FindFreeSlot returns the lowest-index empty slot.
func (s *Store) FindFreeSlot() (SlotRef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findFreeLocked()
}

func (s *Store) Place(ref SlotRef, item *catalog.Item) error {
	if item == nil {
		return ErrNilItem
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.placeLocked(ref, item)
}

// Allocate finds the next free slot and places item there without releasing the lock
// in between.
func (s *Store) Allocate(item *catalog.Item) (SlotRef, error) {
	if item == nil {
		return 0, ErrNilItem
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.findFreeLocked()
	if !ok {
		return 0, ErrInventoryFull
	}
	if err := s.placeLocked(ref, item); err != nil {
		return 0, err
	}
	return ref, nil
}

func (s *Store) Slots() []Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Slot, len(s.slots))
	for i, it := range s.slots {
		out[i] = Slot{Index: i, Occupant: it}
	}
	return out
}

// Occupied returns only the filled slots, in index order.
func (s *Store) Occupied() []Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Slot, 0, s.occupied.Load())
	for i, it := range s.slots {
		if it != nil {
			out = append(out, Slot{Index: i, Occupant: it})
		}
	}
	return out
}

func (s *Store) findFreeLocked() (SlotRef, bool) {
	for i, it := range s.slots {
		if it == nil {
			return SlotRef(i), true
		}
	}
	return 0, false
}

func (s *Store) placeLocked(ref SlotRef, item *catalog.Item) error {
	i := ref.Index()
	if i < 0 || i >= len(s.slots) {
		return fmt.Errorf("%w: %d", ErrSlotOutOfRange, i)
	}
	if s.slots[i] != nil {
		return fmt.Errorf("%w: %d", ErrSlotOccupied, i)
	}
	s.slots[i] = item
	s.occupied.Add(1)
	return nil
}
