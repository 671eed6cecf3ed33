package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key patterns for mirrored game state.
func stateKey(gameID string) string    { return "game:" + gameID + ":state" }
func timerKey(gameID string) string    { return "game:" + gameID + ":timer" }
func drawVoteKey(gameID string) string { return "game:" + gameID + ":draw_votes" }

// SetGameState mirrors the live game state JSON.
func (c *Client) SetGameState(ctx context.Context, gameID string, state json.RawMessage) error {
	return c.rdb.Set(ctx, stateKey(gameID), []byte(state), 0).Err()
}

// GetGameState retrieves the mirrored game state JSON, nil when absent.
func (c *Client) GetGameState(ctx context.Context, gameID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, stateKey(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get game state: %w", err)
	}
	return json.RawMessage(data), nil
}

// timerGracePeriod is the extra TTL beyond the displayed deadline, so the
// mirror key outlives the in-process scheduler's pop by a few seconds.
const timerGracePeriod = 5 * time.Second

// SetTimer mirrors the phase deadline as a key with a TTL.
func (c *Client) SetTimer(ctx context.Context, gameID string, deadline time.Time) error {
	ttl := time.Until(deadline) + timerGracePeriod
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.rdb.Set(ctx, timerKey(gameID), deadline.Unix(), ttl).Err()
}

// ClearTimer removes the mirrored deadline for a game.
func (c *Client) ClearTimer(ctx context.Context, gameID string) error {
	return c.rdb.Del(ctx, timerKey(gameID)).Err()
}

// AddDrawVote adds a power to the draw vote set.
func (c *Client) AddDrawVote(ctx context.Context, gameID, power string) error {
	return c.rdb.SAdd(ctx, drawVoteKey(gameID), power).Err()
}

// RemoveDrawVote removes a power from the draw vote set.
func (c *Client) RemoveDrawVote(ctx context.Context, gameID, power string) error {
	return c.rdb.SRem(ctx, drawVoteKey(gameID), power).Err()
}

// DrawVotePowers returns the set of powers that have voted for a draw.
func (c *Client) DrawVotePowers(ctx context.Context, gameID string) ([]string, error) {
	return c.rdb.SMembers(ctx, drawVoteKey(gameID)).Result()
}

// DeleteGameData removes all mirrored data for a game.
func (c *Client) DeleteGameData(ctx context.Context, gameID string) error {
	return c.rdb.Del(ctx, stateKey(gameID), timerKey(gameID), drawVoteKey(gameID)).Err()
}
