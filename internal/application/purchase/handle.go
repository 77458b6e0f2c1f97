package purchase

import (
	"context"

	dompurchase "github.com/Zhima-Mochi/gameshop/internal/domain/purchase"
)

// Handle lets the caller follow a transaction it started.
type Handle struct {
	TransactionID string
	// Snapshot is the transaction as it stood when RequestPurchase returned.
	Snapshot *dompurchase.Transaction

	f *flight
}

// Done is closed once the transaction is terminal and its notification has been sent.
func (h *Handle) Done() <-chan struct{} { return h.f.done }

// Wait blocks until the transaction is terminal or ctx ends.
func (h *Handle) Wait(ctx context.Context) (dompurchase.Outcome, error) {
	select {
	case <-h.f.done:
		return h.f.outcome, nil
	case <-ctx.Done():
		return dompurchase.Outcome{}, ctx.Err()
	}
}

// Outcome returns the terminal outcome, or false while the transaction is still running.
func (h *Handle) Outcome() (dompurchase.Outcome, bool) {
	select {
	case <-h.f.done:
		return h.f.outcome, true
	default:
		return dompurchase.Outcome{}, false
	}
}
