// Package filestore persists users and games as JSON snapshots on disk:
// one users.json plus one games/<game_id>.json per game. Every snapshot is
// written to a temporary file and renamed into place, so readers only ever
// see a complete snapshot.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/backstab/internal/model"
	"github.com/freeeve/backstab/pkg/diplomacy"
)

// Store is a directory-backed snapshot store.
type Store struct {
	dir      string
	gamesDir string
}

// Open prepares the data directory, creating it if needed.
func Open(dir string) (*Store, error) {
	gamesDir := filepath.Join(dir, "games")
	if err := os.MkdirAll(gamesDir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create %s: %w", gamesDir, err)
	}
	return &Store{dir: dir, gamesDir: gamesDir}, nil
}

func (s *Store) usersPath() string { return filepath.Join(s.dir, "users.json") }

func (s *Store) gamePath(gameID string) string {
	return filepath.Join(s.gamesDir, gameID+".json")
}

// writeAtomic writes data to path via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("filestore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("filestore: write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("filestore: sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: rename %s: %w", path, err)
	}
	return nil
}

// SaveGame snapshots one game.
func (s *Store) SaveGame(_ context.Context, g *diplomacy.Game) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: marshal game %s: %w", g.ID, err)
	}
	return writeAtomic(s.gamePath(g.ID), data)
}

// LoadGames loads every game snapshot in the directory. Unreadable
// snapshots are skipped with a warning rather than failing the boot.
func (s *Store) LoadGames(_ context.Context) ([]*diplomacy.Game, error) {
	entries, err := os.ReadDir(s.gamesDir)
	if err != nil {
		return nil, fmt.Errorf("filestore: read %s: %w", s.gamesDir, err)
	}

	var games []*diplomacy.Game
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.gamesDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable game snapshot")
			continue
		}
		var g diplomacy.Game
		if err := json.Unmarshal(data, &g); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping corrupt game snapshot")
			continue
		}
		games = append(games, &g)
	}
	return games, nil
}

// DeleteGame removes a game snapshot. Missing snapshots are not an error.
func (s *Store) DeleteGame(_ context.Context, gameID string) error {
	if err := os.Remove(s.gamePath(gameID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("filestore: delete game %s: %w", gameID, err)
	}
	return nil
}

// SaveUsers snapshots the whole user database.
func (s *Store) SaveUsers(_ context.Context, users []model.User) error {
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: marshal users: %w", err)
	}
	return writeAtomic(s.usersPath(), data)
}

// LoadUsers loads the user database. A missing users.json yields an empty
// database.
func (s *Store) LoadUsers(_ context.Context) ([]model.User, error) {
	data, err := os.ReadFile(s.usersPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read users: %w", err)
	}
	var users []model.User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("filestore: parse users: %w", err)
	}
	return users, nil
}
