package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leverplay/game-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and refresh or invalidate the
// cache; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Game saves ---

func (s *CachedStore) SaveGame(ctx context.Context, playerID string, state *model.GameState) error {
	if err := s.primary.SaveGame(ctx, playerID, state); err != nil {
		return err
	}
	s.cacheSave(ctx, playerID, state)
	return nil
}

func (s *CachedStore) LoadGame(ctx context.Context, playerID string) (*model.GameState, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, saveKey(playerID)).Bytes()
	if err == nil {
		var state model.GameState
		if json.Unmarshal(data, &state) == nil {
			return &state, nil
		}
	}

	// Cache miss: read from primary.
	state, err := s.primary.LoadGame(ctx, playerID)
	if err != nil {
		return nil, err
	}

	s.cacheSave(ctx, playerID, state)
	return state, nil
}

// --- Leaderboard ---

func (s *CachedStore) UpsertScore(ctx context.Context, entry *model.LeaderboardEntry) error {
	if err := s.primary.UpsertScore(ctx, entry); err != nil {
		return err
	}
	// Invalidate the cached board; next read re-populates.
	s.rdb.Del(ctx, leaderboardKey())
	return nil
}

func (s *CachedStore) TopScores(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	data, err := s.rdb.Get(ctx, leaderboardKey()).Bytes()
	if err == nil {
		var entries []model.LeaderboardEntry
		if json.Unmarshal(data, &entries) == nil && len(entries) >= limit {
			return entries[:limit], nil
		}
	}

	entries, err := s.primary.TopScores(ctx, limit)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(entries); err == nil {
		s.rdb.Set(ctx, leaderboardKey(), data, s.ttl)
	}
	return entries, nil
}

// --- Cache helpers ---

func (s *CachedStore) cacheSave(ctx context.Context, playerID string, state *model.GameState) {
	if data, err := json.Marshal(state); err == nil {
		s.rdb.Set(ctx, saveKey(playerID), data, s.ttl)
	}
}

func saveKey(playerID string) string { return fmt.Sprintf("save:%s", playerID) }
func leaderboardKey() string         { return "leaderboard:top" }
