package player

import (
	"context"
	"errors"
	"sync"

	"github.com/Zhima-Mochi/gameshop/internal/domain/inventory"
	"github.com/Zhima-Mochi/gameshop/internal/domain/ledger"
)

var ErrPlayerIDRequired = errors.New("player: id is required")

// Session bundles the state owned by one running game session: the player's gold and
// their bag. Sessions are constructed explicitly and handed to whoever runs purchases.
type Session struct {
	PlayerID  string
	Ledger    *ledger.Ledger
	Inventory *inventory.Store

	commitMu sync.Mutex
}

func NewSession(playerID string, startingGold int64, capacity int) (*Session, error) {
	if playerID == "" {
		return nil, ErrPlayerIDRequired
	}
	l, err := ledger.New(startingGold)
	if err != nil {
		return nil, err
	}
	inv, err := inventory.NewStore(capacity)
	if err != nil {
		return nil, err
	}
	return &Session{PlayerID: playerID, Ledger: l, Inventory: inv}, nil
}

// Commit runs fn while holding the session's commit lock, so ledger and inventory
// mutations of one purchase are never interleaved with another's.
func (s *Session) Commit(fn func(l *ledger.Ledger, inv *inventory.Store) error) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	return fn(s.Ledger, s.Inventory)
}

type Repository interface {
	// Load returns the player's session, creating it on first use.
	Load(ctx context.Context, playerID string) (*Session, error)
}
