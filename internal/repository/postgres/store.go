package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/freeeve/backstab/internal/model"
	"github.com/freeeve/backstab/pkg/diplomacy"
)

// Store is the PostgreSQL snapshot backend, selected when DATABASE_URL is
// configured. It implements the same repository interfaces as the file
// store: whole-game and whole-user-database snapshots, overwritten in place.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveGame upserts one game snapshot.
func (s *Store) SaveGame(ctx context.Context, g *diplomacy.Game) error {
	snapshot, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal game %s: %w", g.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO game_snapshots (game_id, phase, snapshot, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (game_id)
		 DO UPDATE SET phase = $2, snapshot = $3, updated_at = now()`,
		g.ID, g.Phase, snapshot,
	)
	if err != nil {
		return fmt.Errorf("save game %s: %w", g.ID, err)
	}
	return nil
}

// LoadGames loads every stored game snapshot.
func (s *Store) LoadGames(ctx context.Context) ([]*diplomacy.Game, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT snapshot FROM game_snapshots ORDER BY game_id`)
	if err != nil {
		return nil, fmt.Errorf("load games: %w", err)
	}
	defer rows.Close()

	var games []*diplomacy.Game
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan game snapshot: %w", err)
		}
		var g diplomacy.Game
		if err := json.Unmarshal(raw, &g); err != nil {
			return nil, fmt.Errorf("parse game snapshot: %w", err)
		}
		games = append(games, &g)
	}
	return games, rows.Err()
}

// DeleteGame removes a game snapshot.
func (s *Store) DeleteGame(ctx context.Context, gameID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM game_snapshots WHERE game_id = $1`, gameID); err != nil {
		return fmt.Errorf("delete game %s: %w", gameID, err)
	}
	return nil
}

// SaveUsers overwrites the user database snapshot.
func (s *Store) SaveUsers(ctx context.Context, users []model.User) error {
	snapshot, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("marshal users: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_snapshots (id, snapshot, updated_at)
		 VALUES (1, $1, now())
		 ON CONFLICT (id) DO UPDATE SET snapshot = $1, updated_at = now()`,
		snapshot,
	)
	if err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	return nil
}

// LoadUsers loads the user database snapshot, empty when none exists.
func (s *Store) LoadUsers(ctx context.Context) ([]model.User, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM user_snapshots WHERE id = 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	var users []model.User
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("parse users: %w", err)
	}
	return users, nil
}
