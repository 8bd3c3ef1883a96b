package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/leverplay/game-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	saves  map[string][]byte // playerID → serialized GameState
	scores map[string]model.LeaderboardEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		saves:  make(map[string][]byte),
		scores: make(map[string]model.LeaderboardEntry),
	}
}

func (s *MemoryStore) SaveGame(_ context.Context, playerID string, state *model.GameState) error {
	// Serialize so callers can't mutate the stored copy.
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode game state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves[playerID] = data
	return nil
}

func (s *MemoryStore) LoadGame(_ context.Context, playerID string) (*model.GameState, error) {
	s.mu.RLock()
	data, ok := s.saves[playerID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: save for player %s", ErrNotFound, playerID)
	}

	var state model.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode game state: %w", err)
	}
	return &state, nil
}

func (s *MemoryStore) UpsertScore(_ context.Context, entry *model.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[entry.PlayerID] = *entry
	return nil
}

func (s *MemoryStore) TopScores(_ context.Context, limit int) ([]model.LeaderboardEntry, error) {
	s.mu.RLock()
	entries := make([]model.LeaderboardEntry, 0, len(s.scores))
	for _, e := range s.scores {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Balance.GreaterThan(entries[j].Balance)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
