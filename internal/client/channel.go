package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/freeeve/backstab/internal/protocol"
)

// Channel wraps one token's view of the server. A channel can hold several
// instances of the same game under different roles (observer plus a power),
// so instances are kept in per-game sets.
type Channel struct {
	conn  *Connection
	token string

	mu    sync.Mutex
	games map[string]*GameInstanceSet // game id -> instances
}

func newChannel(conn *Connection, token string) *Channel {
	return &Channel{
		conn:  conn,
		token: token,
		games: make(map[string]*GameInstanceSet),
	}
}

// Token returns the channel's opaque token.
func (ch *Channel) Token() string { return ch.token }

// header builds a request header bound to this channel.
func (ch *Channel) header(name string) protocol.Header {
	return protocol.Header{Name: name, Token: ch.token}
}

// CreateGame creates a game on the server.
func (ch *Channel) CreateGame(ctx context.Context, req protocol.CreateGame) error {
	_, err := ch.conn.Do(ctx, ch.header(protocol.ReqCreateGame), req, nil)
	return err
}

// ListGames fetches game summaries.
func (ch *Channel) ListGames(ctx context.Context) (json.RawMessage, error) {
	resp, err := ch.conn.Do(ctx, ch.header(protocol.ReqListGames), nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// JoinGame joins a game under a role and registers the instance locally.
func (ch *Channel) JoinGame(ctx context.Context, gameID string, req protocol.JoinGame) (*NetworkGame, error) {
	h := ch.header(protocol.ReqJoinGame)
	h.GameID = gameID
	resp, err := ch.conn.Do(ctx, h, req, nil)
	if err != nil {
		return nil, err
	}

	var view struct {
		Role       string `json:"role"`
		Phase      string `json:"phase"`
		PhaseIndex int    `json:"phase_index"`
	}
	if err := json.Unmarshal(resp.Data, &view); err != nil {
		return nil, fmt.Errorf("client: join_game response: %w", err)
	}

	game := newNetworkGame(ch, gameID, view.Role)
	game.setPhase(view.Phase, view.PhaseIndex)

	ch.mu.Lock()
	set, ok := ch.games[gameID]
	if !ok {
		set = newGameInstanceSet(gameID)
		ch.games[gameID] = set
	}
	set.Add(game)
	ch.mu.Unlock()

	return game, nil
}

// SignOut revokes the channel's token.
func (ch *Channel) SignOut(ctx context.Context) error {
	_, err := ch.conn.Do(ctx, ch.header(protocol.ReqSignOut), nil, nil)
	return err
}

// Games returns every game instance of the channel.
func (ch *Channel) Games() []*NetworkGame {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	var out []*NetworkGame
	for _, set := range ch.games {
		out = append(out, set.Games()...)
	}
	return out
}

// applyNotification routes a game notification to the instances of the
// addressed game.
func (ch *Channel) applyNotification(n *protocol.Notification) {
	ch.mu.Lock()
	set := ch.games[n.GameID]
	ch.mu.Unlock()
	if set == nil {
		return
	}
	for _, game := range set.Games() {
		game.applyNotification(n)
	}
}

// GameInstanceSet holds the instances of one game joined on a channel;
// one per role, since a channel may hold both an observer view and a
// power view of the same game.
type GameInstanceSet struct {
	gameID string

	mu        sync.Mutex
	instances map[string]*NetworkGame // role -> instance
}

func newGameInstanceSet(gameID string) *GameInstanceSet {
	return &GameInstanceSet{gameID: gameID, instances: make(map[string]*NetworkGame)}
}

// Add registers an instance under its role, replacing a previous one.
func (s *GameInstanceSet) Add(g *NetworkGame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[g.Role()] = g
}

// Games lists the instances.
func (s *GameInstanceSet) Games() []*NetworkGame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*NetworkGame, 0, len(s.instances))
	for _, g := range s.instances {
		out = append(out, g)
	}
	return out
}
