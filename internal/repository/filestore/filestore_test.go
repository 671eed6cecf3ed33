package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/backstab/internal/model"
	"github.com/freeeve/backstab/pkg/diplomacy"
)

func TestGameSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)
	ctx := context.Background()

	g := diplomacy.NewGame("g1", diplomacy.NewRuleSet(diplomacy.RuleNoCheck))
	for _, p := range diplomacy.AllPowers() {
		require.NoError(t, g.AssignPower(p, "u"))
	}
	require.NoError(t, g.Start(diplomacy.StandardMap()))
	g.Deadline = time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	require.NoError(t, store.SaveGame(ctx, g))

	// The snapshot lands at games/<id>.json.
	if _, err := os.Stat(filepath.Join(dir, "games", "g1.json")); err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}

	games, err := store.LoadGames(ctx)
	require.NoError(t, err)
	require.Len(t, games, 1)
	back := games[0]
	assert.Equal(t, g.ID, back.ID)
	assert.Equal(t, g.Phase, back.Phase)
	assert.True(t, back.Rules.Has(diplomacy.RuleNoCheck))
	assert.Equal(t, len(g.State.Units), len(back.State.Units))
	assert.True(t, g.Deadline.Equal(back.Deadline))
}

func TestSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)
	ctx := context.Background()

	g := diplomacy.NewGame("g1", diplomacy.NewRuleSet())
	require.NoError(t, store.SaveGame(ctx, g))

	for _, p := range diplomacy.AllPowers() {
		require.NoError(t, g.AssignPower(p, "u"))
	}
	require.NoError(t, g.Start(diplomacy.StandardMap()))
	require.NoError(t, store.SaveGame(ctx, g))

	games, err := store.LoadGames(ctx)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "S1901M", games[0].Phase)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(dir, "games"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDeleteGame(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	g := diplomacy.NewGame("g1", diplomacy.NewRuleSet())
	require.NoError(t, store.SaveGame(ctx, g))
	require.NoError(t, store.DeleteGame(ctx, "g1"))
	require.NoError(t, store.DeleteGame(ctx, "g1"), "deleting a missing snapshot is not an error")

	games, err := store.LoadGames(ctx)
	require.NoError(t, err)
	assert.Empty(t, games)
}

func TestUsersSnapshotRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	// Missing users.json yields an empty database.
	users, err := store.LoadUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	now := time.Now().UTC().Truncate(time.Second)
	in := []model.User{
		{Username: "alice", PasswordHash: "h1", Moderator: true, CreatedAt: now, UpdatedAt: now},
		{Username: "bob", PasswordHash: "h2", CreatedAt: now, UpdatedAt: now},
	}
	require.NoError(t, store.SaveUsers(ctx, in))

	out, err := store.LoadUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCorruptSnapshotSkippedOnLoad(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)
	ctx := context.Background()

	g := diplomacy.NewGame("good", diplomacy.NewRuleSet())
	require.NoError(t, store.SaveGame(ctx, g))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "games", "bad.json"), []byte("{oops"), 0o644))

	games, err := store.LoadGames(ctx)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "good", games[0].ID)
}
