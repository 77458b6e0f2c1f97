package materialize

import "context"

// Placement identifies one visual to put in an inventory slot. AssetRef comes straight
// from the catalog item and is not interpreted here.
type Placement struct {
	PlayerID  string
	SlotIndex int
	ItemKey   string
	AssetRef  string
}

// AssetMaterializer is the outbound port to whatever renders inventory items.
type AssetMaterializer interface {
	// Materialize places a newly purchased item.
	Materialize(ctx context.Context, p Placement) error
	// Refresh re-creates the visual of an item that is already in the slot.
	Refresh(ctx context.Context, p Placement) error
}
