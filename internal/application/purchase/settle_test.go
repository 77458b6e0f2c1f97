package purchase

import (
	"errors"
	"testing"

	"github.com/Zhima-Mochi/gameshop/internal/domain/catalog"
	"github.com/Zhima-Mochi/gameshop/internal/domain/inventory"
	"github.com/Zhima-Mochi/gameshop/internal/domain/ledger"
	dompurchase "github.com/Zhima-Mochi/gameshop/internal/domain/purchase"
	"github.com/Zhima-Mochi/gameshop/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWallet struct {
	balance   int64
	creditErr error
	credits   int
}

func (w *stubWallet) Debit(amount int64) error {
	if amount > w.balance {
		return ledger.ErrInsufficientFunds
	}
	w.balance -= amount
	return nil
}

func (w *stubWallet) Credit(amount int64) error {
	w.credits++
	if w.creditErr != nil {
		return w.creditErr
	}
	w.balance += amount
	return nil
}

func (w *stubWallet) Balance() int64 { return w.balance }

type stubBag struct {
	ref inventory.SlotRef
	err error
}

func (b stubBag) Allocate(*catalog.Item) (inventory.SlotRef, error) { return b.ref, b.err }

func TestSettle(t *testing.T) {
	c := NewCoordinator(nil, nil, nil, nil, nil, nil, nil)
	item := catalog.Item{Key: "sword", Price: 80}
	log := observability.NopLogger()

	t.Run("debits and allocates", func(t *testing.T) {
		w := &stubWallet{balance: 100}
		ref, reason, err := c.settle(log, w, stubBag{ref: 3}, item, 80)
		require.NoError(t, err)
		assert.Equal(t, 3, ref.Index())
		assert.Equal(t, dompurchase.ReasonNone, reason)
		assert.Equal(t, int64(20), w.balance)
	})

	t.Run("debit failure skips allocation", func(t *testing.T) {
		w := &stubWallet{balance: 50}
		_, reason, err := c.settle(log, w, stubBag{err: errors.New("must not be called")}, item, 80)
		require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		assert.Equal(t, dompurchase.ReasonInsufficientFunds, reason)
		assert.Equal(t, int64(50), w.balance)
		assert.Zero(t, w.credits)
	})

	t.Run("allocation failure refunds", func(t *testing.T) {
		w := &stubWallet{balance: 100}
		_, reason, err := c.settle(log, w, stubBag{err: inventory.ErrSlotOccupied}, item, 80)
		require.ErrorIs(t, err, inventory.ErrSlotOccupied)
		assert.NotErrorIs(t, err, errRefundFailed)
		assert.Equal(t, dompurchase.ReasonSlotOccupied, reason)
		assert.Equal(t, int64(100), w.balance)
	})

	t.Run("failed refund reports both errors", func(t *testing.T) {
		w := &stubWallet{balance: 100, creditErr: ledger.ErrBalanceOverflow}
		_, reason, err := c.settle(log, w, stubBag{err: inventory.ErrInventoryFull}, item, 80)
		require.ErrorIs(t, err, inventory.ErrInventoryFull)
		require.ErrorIs(t, err, errRefundFailed)
		require.ErrorIs(t, err, ledger.ErrBalanceOverflow)
		assert.Equal(t, dompurchase.ReasonInventoryFull, reason)
		assert.Equal(t, int64(20), w.balance)
		assert.Equal(t, 1, w.credits)
	})
}
