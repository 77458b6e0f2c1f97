package inventory_test

import (
	"sync"
	"testing"

	"github.com/Zhima-Mochi/gameshop/internal/domain/catalog"
	"github.com/Zhima-Mochi/gameshop/internal/domain/inventory"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var spear = &catalog.Item{Key: "spear", Name: "Spear", Price: 120, Category: catalog.CategoryWeapon, AssetRef: "Spear1H_Epic"}

func newStore(t *testing.T) *inventory.Store {
	t.Helper()
	s, err := inventory.NewStore(inventory.Capacity)
	require.NoError(t, err)
	return s
}

func TestNewStoreRejectsZeroCapacity(t *testing.T) {
	_, err := inventory.NewStore(0)
	require.ErrorIs(t, err, inventory.ErrInvalidCapacity)
}

func TestAllocateFillsLowestIndexFirst(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Place(0, spear))
	require.NoError(t, s.Place(2, spear))

	ref, err := s.Allocate(spear)
	require.NoError(t, err)
	assert.Equal(t, 1, ref.Index())

	ref, err = s.Allocate(spear)
	require.NoError(t, err)
	assert.Equal(t, 3, ref.Index())
	assert.Equal(t, 4, s.OccupiedCount())
}

func TestAllocateUntilFull(t *testing.T) {
	s := newStore(t)

	for i := range inventory.Capacity {
		assert.False(t, s.IsFull())
		ref, err := s.Allocate(spear)
		require.NoError(t, err)
		assert.Equal(t, i, ref.Index())
	}

	assert.True(t, s.IsFull())
	_, ok := s.FindFreeSlot()
	assert.False(t, ok)

	_, err := s.Allocate(spear)
	require.ErrorIs(t, err, inventory.ErrInventoryFull)
	assert.Equal(t, inventory.Capacity, s.OccupiedCount())
}

func TestPlaceRejectsOccupiedSlot(t *testing.T) {
	s := newStore(t)

	ref, ok := s.FindFreeSlot()
	require.True(t, ok)
	require.NoError(t, s.Place(ref, spear))

	require.ErrorIs(t, s.Place(ref, spear), inventory.ErrSlotOccupied)
	assert.Equal(t, 1, s.OccupiedCount())
}

func TestPlaceValidation(t *testing.T) {
	s := newStore(t)

	require.ErrorIs(t, s.Place(-1, spear), inventory.ErrSlotOutOfRange)
	require.ErrorIs(t, s.Place(inventory.Capacity, spear), inventory.ErrSlotOutOfRange)
	require.ErrorIs(t, s.Place(0, nil), inventory.ErrNilItem)
	_, err := s.Allocate(nil)
	require.ErrorIs(t, err, inventory.ErrNilItem)
}

func TestSlotsSnapshot(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Place(5, spear))

	slots := s.Slots()
	require.Len(t, slots, inventory.Capacity)
	assert.True(t, slots[5].Occupied())
	assert.False(t, slots[4].Occupied())

	occ := s.Occupied()
	require.Len(t, occ, 1)
	assert.Equal(t, 5, occ[0].Index)
	assert.Same(t, spear, occ[0].Occupant)
}

func TestConcurrentAllocateRespectsCapacity(t *testing.T) {
	s := newStore(t)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		seen  = map[int]bool{}
		fails int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref, err := s.Allocate(spear)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fails++
				return
			}
			seen[ref.Index()] = true
		}()
	}
	wg.Wait()

	assert.Len(t, seen, inventory.Capacity)
	assert.Equal(t, 50-inventory.Capacity, fails)
	assert.True(t, s.IsFull())
}

func TestOccupiedCountWithinCapacity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("0 <= occupied <= capacity and full iff occupied == capacity", prop.ForAll(
		func(capacity int, places []int) bool {
			s, err := inventory.NewStore(capacity)
			if err != nil {
				return false
			}
			for _, p := range places {
				// negative entries allocate, others place directly
				if p < 0 {
					_, _ = s.Allocate(spear)
				} else {
					_ = s.Place(inventory.SlotRef(p), spear)
				}
				n := s.OccupiedCount()
				if n < 0 || n > capacity {
					return false
				}
				if s.IsFull() != (n == capacity) {
					return false
				}
				if len(s.Occupied()) != n {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 20),
		gen.SliceOf(gen.IntRange(-5, 25)),
	))

	properties.TestingRun(t)
}
