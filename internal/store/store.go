// Package store defines the persistence interface for the game engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
//
// The core treats a saved game as an opaque structured snapshot; the store
// never interprets it beyond (de)serialization.
package store

import (
	"context"
	"errors"

	"github.com/leverplay/game-engine/internal/model"
)

// ErrNotFound is returned when no saved game exists for a player.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Game saves ---

	// SaveGame persists the full game state for a player, replacing any
	// previous save.
	SaveGame(ctx context.Context, playerID string, state *model.GameState) error

	// LoadGame retrieves a player's saved game. Returns ErrNotFound if
	// the player has never saved.
	LoadGame(ctx context.Context, playerID string) (*model.GameState, error)

	// --- Leaderboard ---

	// UpsertScore inserts or updates a player's leaderboard row.
	UpsertScore(ctx context.Context, entry *model.LeaderboardEntry) error

	// TopScores returns up to limit rows ordered by balance descending.
	TopScores(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
}
