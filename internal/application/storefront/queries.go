package storefront

import (
	"context"
	"fmt"

	"github.com/Zhima-Mochi/gameshop/internal/domain/catalog"
	"github.com/Zhima-Mochi/gameshop/internal/domain/player"
	"github.com/Zhima-Mochi/gameshop/internal/observability"
	"github.com/Zhima-Mochi/gameshop/internal/observability/logctx"
)

const storefrontService = "storefront"

// Queries are the read-only views the shop UI polls: prices, gold and the bag. Results
// are point-in-time and may already be stale when returned.
type Queries struct {
	catalog  *catalog.Catalog
	sessions player.Repository
	log      observability.Logger
}

func NewQueries(cat *catalog.Catalog, sessions player.Repository, tel observability.Observability) *Queries {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Queries{
		catalog:  cat,
		sessions: sessions,
		log:      tel.Logger().With(observability.F("service", storefrontService)),
	}
}

// CatalogEntry is an item as displayed in a shop slot.
type CatalogEntry struct {
	catalog.Item
	Tooltip string
}

func (q *Queries) Catalog() []CatalogEntry {
	items := q.catalog.Items()
	out := make([]CatalogEntry, 0, len(items))
	for _, it := range items {
		out = append(out, CatalogEntry{Item: it, Tooltip: it.Tooltip()})
	}
	return out
}

type Wallet struct {
	PlayerID string
	Balance  int64
}

func (q *Queries) Balance(ctx context.Context, playerID string) (Wallet, error) {
	s, err := q.load(ctx, playerID)
	if err != nil {
		return Wallet{}, err
	}
	return Wallet{PlayerID: playerID, Balance: s.Ledger.Balance()}, nil
}

// CanAfford drives the buy button state. A negative price yields ledger.ErrInvalidArgument.
func (q *Queries) CanAfford(ctx context.Context, playerID string, price int64) (bool, error) {
	s, err := q.load(ctx, playerID)
	if err != nil {
		return false, err
	}
	return s.Ledger.CanAfford(price)
}

type SlotView struct {
	Index    int
	ItemKey  string
	ItemName string
	AssetRef string
}

type InventoryView struct {
	PlayerID string
	Capacity int
	Occupied int
	Full     bool
	// Slots lists occupied slots only, in index order.
	Slots []SlotView
}

func (q *Queries) Inventory(ctx context.Context, playerID string) (InventoryView, error) {
	s, err := q.load(ctx, playerID)
	if err != nil {
		return InventoryView{}, err
	}
	occupied := s.Inventory.Occupied()
	view := InventoryView{
		PlayerID: playerID,
		Capacity: s.Inventory.Capacity(),
		Occupied: len(occupied),
		Full:     len(occupied) == s.Inventory.Capacity(),
		Slots:    make([]SlotView, 0, len(occupied)),
	}
	for _, slot := range occupied {
		view.Slots = append(view.Slots, SlotView{
			Index:    slot.Index,
			ItemKey:  slot.Occupant.Key,
			ItemName: slot.Occupant.Name,
			AssetRef: slot.Occupant.AssetRef,
		})
	}
	return view, nil
}

func (q *Queries) load(ctx context.Context, playerID string) (*player.Session, error) {
	s, err := q.sessions.Load(ctx, playerID)
	if err != nil {
		logctx.FromOr(ctx, q.log).Debug("session_load_failed",
			observability.F("player_id", playerID),
			observability.F("error", err.Error()),
		)
		return nil, fmt.Errorf("storefront: %w", err)
	}
	return s, nil
}
