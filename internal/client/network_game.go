package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/freeeve/backstab/internal/protocol"
	"github.com/freeeve/backstab/pkg/diplomacy"
)

// NetworkGame is one joined game instance: a (game id, role) view backed
// by the server's truth. It tracks the phase string and history cursor
// used for synchronisation.
type NetworkGame struct {
	channel *Channel
	gameID  string
	role    string

	mu         sync.Mutex
	phase      string
	phaseIndex int
	state      *diplomacy.GameState
}

func newNetworkGame(ch *Channel, gameID, role string) *NetworkGame {
	return &NetworkGame{channel: ch, gameID: gameID, role: role}
}

// GameID returns the game id.
func (g *NetworkGame) GameID() string { return g.gameID }

// Role returns the joined role (observer, omniscient, or power name).
func (g *NetworkGame) Role() string { return g.role }

// Phase returns the last known phase string.
func (g *NetworkGame) Phase() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// PhaseIndex returns the last known history cursor.
func (g *NetworkGame) PhaseIndex() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phaseIndex
}

// State returns the last known board state.
func (g *NetworkGame) State() *diplomacy.GameState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *NetworkGame) setPhase(phase string, index int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.phase = phase
	g.phaseIndex = index
}

// header builds a game request header with the client's phase view.
func (g *NetworkGame) header(name string, phaseDependent bool) protocol.Header {
	h := protocol.Header{
		Name:           name,
		Token:          g.channel.token,
		GameID:         g.gameID,
		GameRole:       g.role,
		PhaseDependent: phaseDependent,
	}
	if phaseDependent {
		h.Phase = g.Phase()
	}
	return h
}

// SetOrders submits order text for the instance's power.
func (g *NetworkGame) SetOrders(ctx context.Context, orders []string) error {
	_, err := g.channel.conn.Do(ctx, g.header(protocol.ReqSetOrders, true),
		protocol.SetOrders{Power: g.role, Orders: orders}, g)
	return err
}

// ClearOrders drops the power's buffered orders.
func (g *NetworkGame) ClearOrders(ctx context.Context) error {
	_, err := g.channel.conn.Do(ctx, g.header(protocol.ReqClearOrders, true),
		protocol.ClearOrders{Power: g.role}, g)
	return err
}

// Vote sets or clears the power's draw vote.
func (g *NetworkGame) Vote(ctx context.Context, vote bool) error {
	_, err := g.channel.conn.Do(ctx, g.header(protocol.ReqVote, true),
		protocol.Vote{Power: g.role, Vote: vote}, g)
	return err
}

// SendMessage sends press to another power ("" broadcasts).
func (g *NetworkGame) SendMessage(ctx context.Context, recipient, body string) error {
	_, err := g.channel.conn.Do(ctx, g.header(protocol.ReqSendGameMessage, true),
		protocol.SendGameMessage{Sender: g.role, Recipient: recipient, Body: body}, g)
	return err
}

// SyncResult is the server's answer to a Synchronize request.
type SyncResult struct {
	CurrentPhase string                `json:"current_phase"`
	PhaseIndex   int                   `json:"phase_index"`
	Phases       []diplomacy.PhaseData `json:"phases"`
	State        *diplomacy.GameState  `json:"state"`
}

// Synchronize asks the server for every phase after the local cursor and
// adopts the returned truth.
func (g *NetworkGame) Synchronize(ctx context.Context) (*SyncResult, error) {
	rc, err := g.SendSynchronize()
	if err != nil {
		return nil, err
	}
	resp, err := rc.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return g.AdoptSync(resp)
}

// SendSynchronize issues the sync request without waiting.
func (g *NetworkGame) SendSynchronize() (*RequestContext, error) {
	return g.channel.conn.Send(g.header(protocol.ReqSynchronize, false),
		protocol.Synchronize{PhaseIndex: g.PhaseIndex()}, g)
}

// AdoptSync applies a sync response to the local view.
func (g *NetworkGame) AdoptSync(resp *protocol.Response) (*SyncResult, error) {
	var result SyncResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return nil, fmt.Errorf("client: synchronize response: %w", err)
	}
	g.mu.Lock()
	g.phase = result.CurrentPhase
	g.phaseIndex = result.PhaseIndex
	if result.State != nil {
		g.state = result.State
	}
	g.mu.Unlock()
	return &result, nil
}

// applyNotification keeps the local phase view current.
func (g *NetworkGame) applyNotification(n *protocol.Notification) {
	switch n.Name {
	case protocol.NotifPhaseUpdate:
		var payload protocol.PhaseUpdate
		if err := json.Unmarshal(n.Data, &payload); err != nil {
			return
		}
		g.mu.Lock()
		g.phase = payload.Phase
		if payload.State != nil {
			g.state = payload.State
		}
		g.mu.Unlock()

	case protocol.NotifGameProcessed:
		var payload protocol.GameProcessed
		if err := json.Unmarshal(n.Data, &payload); err != nil {
			return
		}
		g.mu.Lock()
		g.phase = payload.CurrentPhase
		g.phaseIndex = payload.PhaseIndex
		g.mu.Unlock()
	}
}
