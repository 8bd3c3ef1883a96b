package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/leverplay/game-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Game states are stored as JSONB; leaderboard balances as NUMERIC for
// exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SaveGame(ctx context.Context, playerID string, state *model.GameState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode game state: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO game_saves (player_id, state, saved_at)
		 VALUES ($1, $2::JSONB, $3)
		 ON CONFLICT (player_id) DO UPDATE SET state = $2::JSONB, saved_at = $3`,
		playerID, data, state.SavedAt,
	)
	return err
}

func (s *PostgresStore) LoadGame(ctx context.Context, playerID string) (*model.GameState, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM game_saves WHERE player_id = $1`, playerID).
		Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: save for player %s", ErrNotFound, playerID)
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", playerID, err)
	}

	var state model.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode game state: %w", err)
	}
	return &state, nil
}

func (s *PostgresStore) UpsertScore(ctx context.Context, e *model.LeaderboardEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO leaderboard (player_id, name, balance, updated_at)
		 VALUES ($1, $2, $3::NUMERIC, $4)
		 ON CONFLICT (player_id) DO UPDATE SET name = $2, balance = $3::NUMERIC, updated_at = $4`,
		e.PlayerID, e.Name, e.Balance.String(), e.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) TopScores(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT player_id, name, balance::TEXT, updated_at
		 FROM leaderboard ORDER BY balance DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		var balance string
		if err := rows.Scan(&e.PlayerID, &e.Name, &balance, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Balance, _ = decimal.NewFromString(balance)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
