package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/freeeve/backstab/internal/model"
	"github.com/freeeve/backstab/pkg/diplomacy"
)

// GameStore persists full game snapshots. Durability is "last successful
// snapshot": a failed save demotes the snapshot attempt but never aborts
// the mutation that triggered it.
type GameStore interface {
	SaveGame(ctx context.Context, g *diplomacy.Game) error
	LoadGames(ctx context.Context) ([]*diplomacy.Game, error)
	DeleteGame(ctx context.Context, gameID string) error
}

// UserStore persists the user database as one snapshot.
type UserStore interface {
	SaveUsers(ctx context.Context, users []model.User) error
	LoadUsers(ctx context.Context) ([]model.User, error)
}

// Store combines the two snapshot stores behind one backend.
type Store interface {
	GameStore
	UserStore
}

// LiveCache mirrors live game state for crash recovery and operational
// visibility. All methods are best-effort from the server's perspective;
// the in-memory registry remains the source of truth.
type LiveCache interface {
	SetGameState(ctx context.Context, gameID string, state json.RawMessage) error
	SetTimer(ctx context.Context, gameID string, deadline time.Time) error
	ClearTimer(ctx context.Context, gameID string) error
	AddDrawVote(ctx context.Context, gameID, power string) error
	RemoveDrawVote(ctx context.Context, gameID, power string) error
	DrawVotePowers(ctx context.Context, gameID string) ([]string, error)
	DeleteGameData(ctx context.Context, gameID string) error
}
