package asset

import (
	"context"
	"sync"

	"github.com/Zhima-Mochi/gameshop/internal/application/materialize"
	"github.com/Zhima-Mochi/gameshop/internal/observability"
	"github.com/Zhima-Mochi/gameshop/internal/observability/logctx"
)

const componentAsset = "asset_materializer"

// LogMaterializer stands in for a renderer: it logs every placement and remembers the
// latest one per player and slot.
type LogMaterializer struct {
	mu     sync.RWMutex
	placed map[string]map[int]materialize.Placement
	log    observability.Logger
}

func NewLogMaterializer(logger observability.Logger) *LogMaterializer {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogMaterializer{
		placed: make(map[string]map[int]materialize.Placement),
		log:    logger.With(observability.F("component", componentAsset)),
	}
}

func (m *LogMaterializer) Materialize(ctx context.Context, p materialize.Placement) error {
	m.store(p)
	logctx.FromOr(ctx, m.log).Info("asset_materialized", placementFields(p)...)
	return nil
}

func (m *LogMaterializer) Refresh(ctx context.Context, p materialize.Placement) error {
	m.store(p)
	logctx.FromOr(ctx, m.log).Info("asset_refreshed", placementFields(p)...)
	return nil
}

// Placements returns the visuals currently shown for the player, keyed by slot index.
func (m *LogMaterializer) Placements(playerID string) map[int]materialize.Placement {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int]materialize.Placement, len(m.placed[playerID]))
	for k, v := range m.placed[playerID] {
		out[k] = v
	}
	return out
}

func (m *LogMaterializer) store(p materialize.Placement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slots, ok := m.placed[p.PlayerID]
	if !ok {
		slots = make(map[int]materialize.Placement)
		m.placed[p.PlayerID] = slots
	}
	slots[p.SlotIndex] = p
}

func placementFields(p materialize.Placement) []observability.Field {
	return []observability.Field{
		observability.F("player_id", p.PlayerID),
		observability.F("slot", p.SlotIndex),
		observability.F("item_key", p.ItemKey),
		observability.F("asset_ref", p.AssetRef),
	}
}
