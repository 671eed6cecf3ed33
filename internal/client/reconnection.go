package client

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/backstab/internal/protocol"
)

// reconnectionState models the reconnection routine as a small state
// machine with explicit completion events from each sync reply.
type reconnectionState int

const (
	reconDraining reconnectionState = iota
	reconSyncing
	reconCommitting
	reconDone
)

// Reconnection performs the resynchronisation work after a connection is
// re-established:
//
//  1. DRAINING: in-flight Synchronize requests are invalidated (they
//     pertain to the dead epoch); every other pending request is marked
//     re-sent and collected.
//  2. SYNCING: every joined game issues a Synchronize; per-game failures
//     are logged and do not block the other games.
//  3. COMMITTING: once all syncs complete, phase-dependent requests whose
//     phase no longer matches the server's current phase fail with
//     OBSOLETE; survivors are re-sent.
//  4. DONE: the connection signals "reconnected". Sync replies arriving
//     after this point belong to no live reconnection and are rejected.
type Reconnection struct {
	conn  *Connection
	epoch int

	mu             sync.Mutex
	state          reconnectionState
	gamesPhases    map[string]map[string]string // game id -> role -> server phase
	nExpected      int
	nSynchronized  int
	requestsToSend map[string]*RequestContext
}

func newReconnection(conn *Connection, epoch int) *Reconnection {
	return &Reconnection{
		conn:           conn,
		epoch:          epoch,
		state:          reconDraining,
		gamesPhases:    make(map[string]map[string]string),
		requestsToSend: make(map[string]*RequestContext),
	}
}

// reconnect performs the concrete reconnection work.
func (r *Reconnection) reconnect() {
	pending := r.conn.takePending()
	log.Debug().Int("pending", len(pending)).Msg("Reconnection draining pending requests")

	// Drop stale Synchronize requests, mark the rest as re-sent.
	for _, rc := range pending {
		if rc.Header.Name == protocol.ReqSynchronize {
			rc.complete(nil, protocol.Errorf(protocol.ErrObsolete,
				"sync request invalidated for game %s", rc.Header.GameID))
			continue
		}
		rc.Header.ReSent = true
		r.requestsToSend[rc.Header.RequestID] = rc
	}

	// Count the games to synchronize.
	var games []*NetworkGame
	for _, ch := range r.conn.allChannels() {
		games = append(games, ch.Games()...)
	}
	for _, g := range games {
		if r.gamesPhases[g.GameID()] == nil {
			r.gamesPhases[g.GameID()] = make(map[string]string)
		}
		r.gamesPhases[g.GameID()][g.Role()] = ""
		r.nExpected++
	}

	if r.nExpected == 0 {
		r.syncDone()
		return
	}

	r.mu.Lock()
	r.state = reconSyncing
	r.mu.Unlock()

	for _, g := range games {
		game := g
		rc, err := game.SendSynchronize()
		if err != nil {
			log.Error().Err(err).Str("gameId", game.GameID()).Msg("Reconnection sync send failed")
			r.syncCompleted(game, "", false)
			continue
		}
		go func() {
			<-rc.done
			if rc.err != nil || (rc.response != nil && rc.response.Error != nil) {
				log.Error().Str("gameId", game.GameID()).Msg("Reconnection sync failed")
				r.syncCompleted(game, "", false)
				return
			}
			result, err := game.AdoptSync(rc.response)
			if err != nil {
				log.Error().Err(err).Str("gameId", game.GameID()).Msg("Reconnection sync reply unusable")
				r.syncCompleted(game, "", false)
				return
			}
			r.syncCompleted(game, result.CurrentPhase, true)
		}()
	}
}

// syncCompleted records one sync completion event. A reply arriving after
// the routine has declared done is rejected.
func (r *Reconnection) syncCompleted(game *NetworkGame, serverPhase string, ok bool) {
	r.mu.Lock()
	if r.state == reconDone || r.state == reconCommitting {
		r.mu.Unlock()
		log.Debug().Str("gameId", game.GameID()).Msg("Late sync reply rejected")
		return
	}
	if ok {
		r.gamesPhases[game.GameID()][game.Role()] = serverPhase
	}
	r.nSynchronized++
	finished := r.nSynchronized == r.nExpected
	r.mu.Unlock()

	if finished {
		r.syncDone()
	}
}

// syncDone is the final reconnection work: drop obsolete game requests and
// re-send the remainder.
func (r *Reconnection) syncDone() {
	r.mu.Lock()
	r.state = reconCommitting
	r.mu.Unlock()

	kept := make([]*RequestContext, 0, len(r.requestsToSend))
	for _, rc := range r.requestsToSend {
		if r.isObsolete(rc) {
			rc.complete(nil, protocol.Errorf(protocol.ErrObsolete,
				"game %s: request %s: phase %s no longer current",
				rc.Header.GameID, rc.Header.Name, rc.Header.Phase))
			continue
		}
		kept = append(kept, rc)
	}

	log.Debug().Int("kept", len(kept)).Int("drained", len(r.requestsToSend)).
		Msg("Reconnection re-sending surviving requests")

	for _, rc := range kept {
		r.conn.restorePending(rc)
		if err := r.conn.writeRequest(rc); err != nil {
			log.Error().Err(err).Str("request", rc.Header.Name).Msg("Reconnection re-send failed")
		}
	}

	r.mu.Lock()
	r.state = reconDone
	r.mu.Unlock()

	r.conn.signalReconnected()
	log.Info().Msg("Reconnection complete")
}

// isObsolete reports whether a re-sent request died with the old phase: a
// phase-dependent game request whose carried phase differs from the
// server's current phase for that game and role.
func (r *Reconnection) isObsolete(rc *RequestContext) bool {
	if !rc.Header.PhaseDependent || rc.Header.GameID == "" {
		return false
	}
	roles, ok := r.gamesPhases[rc.Header.GameID]
	if !ok {
		return false
	}
	role := rc.Header.GameRole
	serverPhase, ok := roles[role]
	if !ok || serverPhase == "" {
		// The game failed to sync; keep the request and let the server
		// decide with PHASE_MISMATCH.
		return false
	}
	return rc.Header.Phase != serverPhase
}
