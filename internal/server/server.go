package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/backstab/internal/config"
	"github.com/freeeve/backstab/internal/model"
	"github.com/freeeve/backstab/internal/protocol"
	"github.com/freeeve/backstab/internal/repository"
	"github.com/freeeve/backstab/pkg/diplomacy"
)

// Join roles. A power seat's role is the power name itself.
const (
	RoleObserver   = "observer"
	RoleOmniscient = "omniscient"
)

// Server owns the three process-wide registries — users, games, tokens —
// and the session/join bookkeeping. Each game serialises independently;
// the user registry has its own lock; the server lock guards only the
// registries below.
type Server struct {
	cfg   *config.Config
	store repository.Store
	cache repository.LiveCache // nil when no mirror is configured
	m     *diplomacy.Map

	users    *UserRegistry
	sched    *Scheduler
	notifier *Notifier

	mu            sync.RWMutex
	games         map[string]*ServerGame
	sessions      map[string]Session
	sessionTokens map[string]map[string]bool            // session -> tokens signed in on it
	tokenSessions map[string]map[string]bool            // token -> sessions
	joins         map[string]map[string]map[string]bool // game -> token -> roles
}

// New builds a server around a snapshot store and an optional live cache.
func New(cfg *config.Config, store repository.Store, cache repository.LiveCache) *Server {
	s := &Server{
		cfg:           cfg,
		store:         store,
		cache:         cache,
		m:             diplomacy.StandardMap(),
		users:         NewUserRegistry(),
		games:         make(map[string]*ServerGame),
		sessions:      make(map[string]Session),
		sessionTokens: make(map[string]map[string]bool),
		tokenSessions: make(map[string]map[string]bool),
		joins:         make(map[string]map[string]map[string]bool),
	}
	s.notifier = newNotifier(s)
	s.sched = NewScheduler(s.onDeadline)
	return s
}

// Map exposes the board map shared by every game.
func (s *Server) Map() *diplomacy.Map { return s.m }

// Users exposes the user registry.
func (s *Server) Users() *UserRegistry { return s.users }

// Boot loads all snapshots and primes the scheduler from their deadlines.
func (s *Server) Boot(ctx context.Context) error {
	users, err := s.store.LoadUsers(ctx)
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	s.users.Load(users)

	games, err := s.store.LoadGames(ctx)
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	now := time.Now()
	for _, g := range games {
		sg := newServerGame(g)
		s.mu.Lock()
		s.games[g.ID] = sg
		s.mu.Unlock()

		if g.Status() == diplomacy.StatusActive && !g.Deadline.IsZero() {
			at := g.Deadline
			if at.Before(now) {
				// Overdue while the server was down: process promptly.
				at = now
				g.Deadline = at
			}
			s.sched.Schedule(g.ID, at)
		}
		s.mirrorGame(g)
	}

	log.Info().Int("users", len(users)).Int("games", len(games)).Msg("Server state loaded")
	return nil
}

// Shutdown snapshots everything and stops the scheduler and game owners.
// A snapshot failure is reported so the process can exit with the
// persistence failure code.
func (s *Server) Shutdown(ctx context.Context) error {
	s.sched.Stop()

	var firstErr error
	if err := s.store.SaveUsers(ctx, s.users.Snapshot()); err != nil {
		firstErr = err
		log.Error().Err(err).Msg("Failed to snapshot users")
	}

	s.mu.RLock()
	sgs := make([]*ServerGame, 0, len(s.games))
	for _, sg := range s.games {
		sgs = append(sgs, sg)
	}
	s.mu.RUnlock()

	for _, sg := range sgs {
		err := sg.Do(ctx, func(g *diplomacy.Game) error {
			return s.store.SaveGame(ctx, g)
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			log.Error().Err(err).Str("gameId", sg.id).Msg("Failed to snapshot game")
		}
		sg.Close()
	}
	return firstErr
}

// --- Session bookkeeping ---

// AttachSession registers a connected transport session.
func (s *Server) AttachSession(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID()] = sess
	s.sessionTokens[sess.ID()] = make(map[string]bool)
}

// DetachSession drops a session. Its tokens stay valid for reconnection;
// pending notification writes to it are abandoned by the hub.
func (s *Server) DetachSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token := range s.sessionTokens[sessionID] {
		delete(s.tokenSessions[token], sessionID)
		if len(s.tokenSessions[token]) == 0 {
			delete(s.tokenSessions, token)
		}
	}
	delete(s.sessionTokens, sessionID)
	delete(s.sessions, sessionID)
}

// bindToken associates a signed-in token with the session it arrived on.
func (s *Server) bindToken(sessionID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionTokens[sessionID] == nil {
		s.sessionTokens[sessionID] = make(map[string]bool)
	}
	s.sessionTokens[sessionID][token] = true
	if s.tokenSessions[token] == nil {
		s.tokenSessions[token] = make(map[string]bool)
	}
	s.tokenSessions[token][sessionID] = true
}

// unbindToken removes a revoked token from the session maps.
func (s *Server) unbindToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sessionID := range s.tokenSessions[token] {
		delete(s.sessionTokens[sessionID], token)
	}
	delete(s.tokenSessions, token)
}

// sessionsForToken returns the live sessions a token is bound to.
func (s *Server) sessionsForToken(token string) []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.tokenSessions[token]))
	for id := range s.tokenSessions[token] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Session, 0, len(ids))
	for _, id := range ids {
		if sess, ok := s.sessions[id]; ok {
			out = append(out, sess)
		}
	}
	return out
}

// --- Game registry ---

var errGameExists = errors.New("game already exists")

// game looks up a running game.
func (s *Server) game(gameID string) (*ServerGame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sg, ok := s.games[gameID]
	if !ok {
		return nil, protocol.Errorf(protocol.ErrNotFound, "unknown game %s", gameID)
	}
	return sg, nil
}

// registerGame adds a freshly created game.
func (s *Server) registerGame(g *diplomacy.Game) (*ServerGame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.games[g.ID]; exists {
		return nil, errGameExists
	}
	sg := newServerGame(g)
	s.games[g.ID] = sg
	return sg, nil
}

// dropGame removes a game from the registry and its persistence.
func (s *Server) dropGame(gameID string) {
	s.mu.Lock()
	sg, ok := s.games[gameID]
	delete(s.games, gameID)
	delete(s.joins, gameID)
	s.mu.Unlock()
	if ok {
		sg.Close()
	}
	if err := s.store.DeleteGame(context.Background(), gameID); err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Failed to delete game snapshot")
	}
	if s.cache != nil {
		if err := s.cache.DeleteGameData(context.Background(), gameID); err != nil {
			log.Debug().Err(err).Str("gameId", gameID).Msg("Failed to clear game mirror")
		}
	}
}

// listGames snapshots summaries of every registered game.
func (s *Server) listGames() []model.GameSummary {
	s.mu.RLock()
	sgs := make([]*ServerGame, 0, len(s.games))
	for _, sg := range s.games {
		sgs = append(sgs, sg)
	}
	s.mu.RUnlock()
	sort.Slice(sgs, func(i, j int) bool { return sgs[i].id < sgs[j].id })

	out := make([]model.GameSummary, 0, len(sgs))
	for _, sg := range sgs {
		var sum model.GameSummary
		err := sg.Do(context.Background(), func(g *diplomacy.Game) error {
			sum = summarize(g)
			return nil
		})
		if err == nil {
			out = append(out, sum)
		}
	}
	return out
}

func summarize(g *diplomacy.Game) model.GameSummary {
	var rules []string
	for r := range g.Rules {
		rules = append(rules, string(r))
	}
	sort.Strings(rules)
	var free []string
	for _, p := range g.FreePowers() {
		free = append(free, string(p))
	}
	return model.GameSummary{
		ID:            g.ID,
		Phase:         g.Phase,
		Status:        string(g.Status()),
		Rules:         rules,
		FreePowers:    free,
		Deadline:      g.Deadline,
		HasPassword:   g.RegistrationPassword != "",
		ObserverLevel: string(g.ObserverLevel),
	}
}

// --- Join bookkeeping ---

// addJoin records that a token observes a game under a role.
func (s *Server) addJoin(gameID, token, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.joins[gameID] == nil {
		s.joins[gameID] = make(map[string]map[string]bool)
	}
	if s.joins[gameID][token] == nil {
		s.joins[gameID][token] = make(map[string]bool)
	}
	s.joins[gameID][token][role] = true
}

// removeJoin drops one role of a token in a game and reports the roles left.
func (s *Server) removeJoin(gameID, token, role string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	roles := s.joins[gameID][token]
	delete(roles, role)
	if len(roles) == 0 {
		delete(s.joins[gameID], token)
	}
	var left []string
	for r := range roles {
		left = append(left, r)
	}
	sort.Strings(left)
	return left
}

// tokenHasRole checks a token's role in a game.
func (s *Server) tokenHasRole(gameID, token, role string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.joins[gameID][token][role]
}

// --- Deadlines and processing ---

// phaseDeadline returns the configured duration for a game's current phase.
func (s *Server) phaseDeadline(g *diplomacy.Game) time.Duration {
	if g.DeadlineSeconds > 0 {
		return time.Duration(g.DeadlineSeconds) * time.Second
	}
	switch g.PhaseTypeNow() {
	case diplomacy.PhaseRetreat:
		return s.cfg.RetreatDeadline
	case diplomacy.PhaseAdjustment:
		return s.cfg.AdjustmentDeadline
	default:
		return s.cfg.MovementDeadline
	}
}

// onDeadline is the scheduler callback. The popped entry acts only when the
// game's current deadline still equals the popped value; anything else is a
// stale entry surviving lazy cancellation.
func (s *Server) onDeadline(gameID string, at time.Time) {
	sg, err := s.game(gameID)
	if err != nil {
		return
	}
	ob := &Outbox{}
	err = sg.Do(context.Background(), func(g *diplomacy.Game) error {
		if g.Status() != diplomacy.StatusActive {
			return nil
		}
		if !g.Deadline.Equal(at) {
			log.Debug().Str("gameId", gameID).Time("popped", at).
				Time("current", g.Deadline).Msg("Stale deadline entry discarded")
			return nil
		}
		return s.processLocked(g, ob)
	})
	if err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Scheduled processing failed")
	}
	s.notifier.Flush(ob)
}

// processLocked adjudicates the current phase. Must run inside the game's
// serial task. It records history, fans out notifications, arms the next
// deadline, and persists the snapshot.
func (s *Server) processLocked(g *diplomacy.Game, ob *Outbox) error {
	centersBefore := make(map[diplomacy.Power]int)
	for _, p := range diplomacy.AllPowers() {
		centersBefore[p] = g.State.SupplyCenterCount(p)
	}

	pd, err := g.Process(s.m)
	if err != nil {
		return protocol.AsError(err)
	}

	s.notifier.GameProcessed(ob, g, pd)

	for _, p := range diplomacy.AllPowers() {
		if centersBefore[p] > 0 && g.State.SupplyCenterCount(p) == 0 {
			s.notifier.ClearedCenters(ob, g, p)
		}
	}

	if g.Status() == diplomacy.StatusCompleted {
		g.Deadline = time.Time{}
		s.notifier.GameStatusUpdate(ob, g)
		if s.cache != nil {
			if err := s.cache.ClearTimer(context.Background(), g.ID); err != nil {
				log.Debug().Err(err).Str("gameId", g.ID).Msg("Failed to clear timer mirror")
			}
		}
	} else {
		s.armDeadline(g)
		s.notifier.PhaseUpdate(ob, g)
	}

	s.persistGame(g)
	log.Info().Str("gameId", g.ID).Str("processed", pd.Phase).
		Str("current", g.Phase).Msg("Game processed")
	return nil
}

// armDeadline computes and schedules the next phase deadline.
func (s *Server) armDeadline(g *diplomacy.Game) {
	g.Deadline = time.Now().Add(s.phaseDeadline(g))
	s.sched.Schedule(g.ID, g.Deadline)
}

// persistGame snapshots a game and refreshes the live mirror. Persistence
// errors demote the snapshot attempt but never abort a mutation.
func (s *Server) persistGame(g *diplomacy.Game) {
	if err := s.store.SaveGame(context.Background(), g); err != nil {
		log.Error().Err(err).Str("gameId", g.ID).Msg("Snapshot failed (state kept in memory)")
	}
	s.mirrorGame(g)
}

// mirrorGame pushes the live state into the optional cache.
func (s *Server) mirrorGame(g *diplomacy.Game) {
	if s.cache == nil || g.State == nil {
		return
	}
	ctx := context.Background()
	if raw, err := json.Marshal(g.State); err == nil {
		if err := s.cache.SetGameState(ctx, g.ID, raw); err != nil {
			log.Debug().Err(err).Str("gameId", g.ID).Msg("Failed to mirror game state")
		}
	}
	if !g.Deadline.IsZero() {
		if err := s.cache.SetTimer(ctx, g.ID, g.Deadline); err != nil {
			log.Debug().Err(err).Str("gameId", g.ID).Msg("Failed to mirror timer")
		}
	}
}
