package memory

import (
	"context"
	"sync"

	"github.com/Zhima-Mochi/gameshop/internal/domain/player"
)

// SessionRepository keeps one live session per player. Sessions are shared, not
// cloned: their ledger and inventory guard themselves.
type SessionRepository struct {
	mu           sync.RWMutex
	sessions     map[string]*player.Session
	startingGold int64
	capacity     int
}

func NewSessionRepository(startingGold int64, capacity int) *SessionRepository {
	return &SessionRepository{
		sessions:     make(map[string]*player.Session),
		startingGold: startingGold,
		capacity:     capacity,
	}
}

func (r *SessionRepository) Load(ctx context.Context, playerID string) (*player.Session, error) {
	_ = ctx
	if playerID == "" {
		return nil, player.ErrPlayerIDRequired
	}

	r.mu.RLock()
	s, ok := r.sessions[playerID]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[playerID]; ok {
		return s, nil
	}
	s, err := player.NewSession(playerID, r.startingGold, r.capacity)
	if err != nil {
		return nil, err
	}
	r.sessions[playerID] = s
	return s, nil
}

// Put installs a prepared session, replacing any existing one.
func (r *SessionRepository) Put(s *player.Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.PlayerID] = s
}
