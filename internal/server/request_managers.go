package server

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/backstab/internal/protocol"
	"github.com/freeeve/backstab/pkg/diplomacy"
)

// reqCtx carries everything a handler needs for one request.
type reqCtx struct {
	s        *Server
	sess     Session
	header   protocol.Header
	raw      []byte
	username string // resolved from the token for channel/game requests
	game     *diplomacy.Game
	outbox   *Outbox
}

func (c *reqCtx) decode(v any) error {
	if err := json.Unmarshal(c.raw, v); err != nil {
		return protocol.Errorf(protocol.ErrOrderInvalid, "malformed request: %v", err)
	}
	return nil
}

// handlerFunc processes one request and returns the response data.
type handlerFunc func(c *reqCtx) (any, error)

// handlers is the dispatch table keyed by request name. Levels, auth, and
// the phase-dependence check are applied by Dispatch before the handler
// runs; game handlers execute inside the game's serial task.
var handlers = map[string]handlerFunc{
	protocol.ReqSignIn:          handleSignIn,
	protocol.ReqSignOut:         handleSignOut,
	protocol.ReqListGames:       handleListGames,
	protocol.ReqCreateGame:      handleCreateGame,
	protocol.ReqJoinGame:        handleJoinGame,
	protocol.ReqDeleteAccount:   handleDeleteAccount,
	protocol.ReqLeaveGame:       handleLeaveGame,
	protocol.ReqDeleteGame:      handleDeleteGame,
	protocol.ReqStartGame:       handleStartGame,
	protocol.ReqProcessGame:     handleProcessGame,
	protocol.ReqSetOrders:       handleSetOrders,
	protocol.ReqClearOrders:     handleClearOrders,
	protocol.ReqVote:            handleVote,
	protocol.ReqSetDummy:        handleSetDummy,
	protocol.ReqSendGameMessage: handleSendGameMessage,
	protocol.ReqSynchronize:      handleSynchronize,
	protocol.ReqPhaseHistory:     handlePhaseHistory,
	protocol.ReqSetObserverLevel: handleSetObserverLevel,
}

// Dispatch parses, authenticates, and runs one request frame, writes the
// response to the session, and only then flushes any notifications the
// mutation generated.
func (s *Server) Dispatch(sess Session, raw []byte) {
	header, err := protocol.DecodeHeader(raw)
	if err != nil {
		s.writeResponse(sess, protocol.ErrResponse("", "", protocol.NewError(protocol.ErrOrderInvalid, err.Error())))
		return
	}

	c := &reqCtx{s: s, sess: sess, header: header, raw: raw, outbox: &Outbox{}}
	data, herr := s.route(c)

	var resp *protocol.Response
	if herr != nil {
		resp = protocol.ErrResponse(header.RequestID, header.Name, protocol.AsError(herr))
	} else {
		resp, err = protocol.OKResponse(header.RequestID, header.Name, data)
		if err != nil {
			resp = protocol.ErrResponse(header.RequestID, header.Name, protocol.AsError(err))
		}
	}
	s.writeResponse(sess, resp)
	s.notifier.Flush(c.outbox)
}

func (s *Server) writeResponse(sess Session, resp *protocol.Response) {
	frame, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		return
	}
	if err := sess.Write(frame); err != nil {
		log.Debug().Err(err).Str("session", sess.ID()).Msg("Failed to write response")
	}
}

// route applies level checks and runs the handler, inside the game's
// serial task for game-level requests.
func (s *Server) route(c *reqCtx) (any, error) {
	meta, ok := protocol.Requests[c.header.Name]
	if !ok {
		return nil, protocol.Errorf(protocol.ErrNotFound, "unknown request %q", c.header.Name)
	}
	h := handlers[c.header.Name]

	if meta.Level == protocol.LevelConnection {
		return h(c)
	}

	username, err := s.users.Authenticate(c.header.Token)
	if err != nil {
		return nil, err
	}
	c.username = username

	if meta.Level == protocol.LevelChannel {
		return h(c)
	}

	// Game level: run under the game's serial queue. The phase-dependence
	// check happens inside the task so it cannot race a phase transition.
	sg, err := s.game(c.header.GameID)
	if err != nil {
		return nil, err
	}

	var data any
	err = sg.Do(context.Background(), func(g *diplomacy.Game) error {
		if meta.PhaseDependent && c.header.Phase != g.Phase {
			return protocol.Errorf(protocol.ErrPhaseMismatch,
				"request phase %s does not match current phase %s", c.header.Phase, g.Phase)
		}
		c.game = g
		var herr error
		data, herr = h(c)
		return herr
	})
	return data, err
}

// --- Connection level ---

func handleSignIn(c *reqCtx) (any, error) {
	var req protocol.SignIn
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	token, err := c.s.users.SignIn(req.Username, req.Password)
	if err != nil {
		return nil, err
	}
	c.s.bindToken(c.sess.ID(), token)
	log.Info().Str("username", req.Username).Msg("User signed in")
	return map[string]string{"token": token}, nil
}

// --- Channel level ---

func handleSignOut(c *reqCtx) (any, error) {
	c.s.users.RevokeToken(c.header.Token)
	c.s.unbindToken(c.header.Token)
	return nil, nil
}

func handleListGames(c *reqCtx) (any, error) {
	return map[string]any{"games": c.s.listGames()}, nil
}

func handleCreateGame(c *reqCtx) (any, error) {
	var req protocol.CreateGame
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	if req.NewGameID == "" {
		return nil, protocol.NewError(protocol.ErrConflict, "game id required")
	}

	var rules []diplomacy.Rule
	for _, r := range req.Rules {
		switch diplomacy.Rule(r) {
		case diplomacy.RuleNoCheck, diplomacy.RulePowerChoice, diplomacy.RuleBuildAny, diplomacy.RuleSolitaire:
			rules = append(rules, diplomacy.Rule(r))
		default:
			return nil, protocol.Errorf(protocol.ErrConflict, "unknown rule %q", r)
		}
	}

	g := diplomacy.NewGame(req.NewGameID, diplomacy.NewRuleSet(rules...))
	g.RegistrationPassword = req.RegistrationPassword
	g.DeadlineSeconds = req.DeadlineSeconds

	if _, err := c.s.registerGame(g); err != nil {
		return nil, protocol.Errorf(protocol.ErrConflict, "game %s already exists", g.ID)
	}
	c.s.persistGame(g)
	log.Info().Str("gameId", g.ID).Str("creator", c.username).Msg("Game created")

	if req.Power != "" {
		// Creator takes a seat immediately.
		c.header.GameID = g.ID
		join := protocol.JoinGame{Role: req.Power, RegistrationPassword: req.RegistrationPassword}
		sg, err := c.s.game(g.ID)
		if err != nil {
			return nil, err
		}
		var data any
		err = sg.Do(context.Background(), func(gg *diplomacy.Game) error {
			c.game = gg
			var herr error
			data, herr = joinGameAs(c, join)
			return herr
		})
		return data, err
	}

	return summarize(g), nil
}

func handleDeleteAccount(c *reqCtx) (any, error) {
	tokens := c.s.users.DeleteUser(c.username)
	c.s.notifier.AccountDeleted(c.outbox, tokens)
	for _, t := range tokens {
		c.s.unbindToken(t)
	}
	// Powers controlled by the account fall into civil disorder.
	c.s.mu.RLock()
	sgs := make([]*ServerGame, 0, len(c.s.games))
	for _, sg := range c.s.games {
		sgs = append(sgs, sg)
	}
	c.s.mu.RUnlock()
	for _, sg := range sgs {
		_ = sg.Do(context.Background(), func(g *diplomacy.Game) error {
			for _, p := range g.ControlledBy(c.username) {
				g.ReleasePower(p)
			}
			return nil
		})
	}
	log.Info().Str("username", c.username).Msg("Account deleted")
	return nil, nil
}

func handleJoinGame(c *reqCtx) (any, error) {
	var req protocol.JoinGame
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	sg, err := c.s.game(c.header.GameID)
	if err != nil {
		return nil, err
	}
	var data any
	err = sg.Do(context.Background(), func(g *diplomacy.Game) error {
		c.game = g
		var herr error
		data, herr = joinGameAs(c, req)
		return herr
	})
	return data, err
}

// joinGameAs seats a session in a game as observer, omniscient, or a
// power. The registration password gates power seats only.
func joinGameAs(c *reqCtx, req protocol.JoinGame) (any, error) {
	g := c.game
	role := req.Role
	if role == "" {
		role = RoleObserver
	}

	if role == "power" {
		// Generic seat request (DAIDE NME): take the first free power.
		free := g.FreePowers()
		if len(free) == 0 {
			return nil, protocol.NewError(protocol.ErrConflict, "no free powers")
		}
		role = string(free[0])
	}

	switch role {
	case RoleObserver:
		// Observers join freely.
	case RoleOmniscient:
		if !c.s.users.IsModerator(c.username) {
			return nil, protocol.NewError(protocol.ErrAuth, "omniscient requires moderator rights")
		}
	default:
		power := diplomacy.Power(role)
		ps, ok := g.Powers[power]
		if !ok {
			return nil, protocol.Errorf(protocol.ErrNotFound, "unknown power %q", role)
		}
		if g.RegistrationPassword != "" && g.RegistrationPassword != req.RegistrationPassword {
			return nil, protocol.NewError(protocol.ErrAuth, "wrong registration password")
		}
		if ps.Controller != "" && ps.Controller != c.username {
			return nil, protocol.Errorf(protocol.ErrConflict, "power %s already controlled", role)
		}
		if ps.Controller == "" && g.Status() == diplomacy.StatusForming &&
			!g.Rules.Has(diplomacy.RulePowerChoice) && req.Role != "" {
			// Without POWER_CHOICE, seats are assigned in map order.
			free := g.FreePowers()
			if len(free) == 0 {
				return nil, protocol.NewError(protocol.ErrConflict, "no free powers")
			}
			power = free[0]
			role = string(power)
		}
		if err := g.AssignPower(power, c.username); err != nil {
			return nil, protocol.NewError(protocol.ErrConflict, err.Error())
		}
		c.s.persistGame(g)
	}

	c.s.addJoin(g.ID, c.header.Token, role)
	log.Info().Str("gameId", g.ID).Str("username", c.username).Str("role", role).Msg("Joined game")

	return gameView(g, role), nil
}

// gameView is the join/synchronize response: the game as seen by a role.
func gameView(g *diplomacy.Game, role string) map[string]any {
	view := map[string]any{
		"game_id":        g.ID,
		"phase":          g.Phase,
		"role":           role,
		"phase_index":    g.PhaseIndex(),
		"rules":          summarize(g).Rules,
		"observer_level": string(g.ObserverLevel),
	}
	if g.State != nil {
		// The response marshals after the game task returns; hand out a
		// snapshot, not the live state.
		view["state"] = g.State.Clone()
	}
	if !g.Deadline.IsZero() {
		view["deadline_unix"] = g.Deadline.Unix()
	}
	return view
}

// --- Game level ---

// requireActive rejects mutations on completed or forming games.
func requireActive(g *diplomacy.Game) error {
	switch g.Status() {
	case diplomacy.StatusCompleted:
		return protocol.Errorf(protocol.ErrGameFinished, "game %s is completed", g.ID)
	case diplomacy.StatusForming:
		return protocol.Errorf(protocol.ErrConflict, "game %s has not started", g.ID)
	}
	return nil
}

// requirePowerRole checks that the session joined the game as the power or
// as an omniscient observer.
func requirePowerRole(c *reqCtx, power string) error {
	if c.s.tokenHasRole(c.game.ID, c.header.Token, power) {
		return nil
	}
	if c.s.tokenHasRole(c.game.ID, c.header.Token, RoleOmniscient) {
		return nil
	}
	return protocol.Errorf(protocol.ErrAuth, "not joined as %s", power)
}

func handleLeaveGame(c *reqCtx) (any, error) {
	var powers []string
	c.s.mu.RLock()
	for role := range c.s.joins[c.game.ID][c.header.Token] {
		if role != RoleObserver && role != RoleOmniscient {
			powers = append(powers, role)
		}
	}
	c.s.mu.RUnlock()
	sort.Strings(powers)

	for _, p := range powers {
		c.game.ReleasePower(diplomacy.Power(p))
		c.s.removeJoin(c.game.ID, c.header.Token, p)
	}
	c.s.removeJoin(c.game.ID, c.header.Token, RoleObserver)
	c.s.removeJoin(c.game.ID, c.header.Token, RoleOmniscient)
	c.s.persistGame(c.game)
	return nil, nil
}

func handleDeleteGame(c *reqCtx) (any, error) {
	if !c.s.users.IsModerator(c.username) {
		return nil, protocol.NewError(protocol.ErrAuth, "delete requires moderator rights")
	}
	g := c.game
	for _, rcpt := range c.s.notifier.gameRecipients(g.ID) {
		c.s.notifier.queue(c.outbox, rcpt.token, protocol.NotifGameStatusUpdate, g.ID,
			protocol.GameStatusUpdate{Status: "deleted"})
	}
	// Registry removal happens after the serial task completes.
	gameID := g.ID
	go c.s.dropGame(gameID)
	log.Info().Str("gameId", gameID).Str("username", c.username).Msg("Game deleted")
	return nil, nil
}

func handleStartGame(c *reqCtx) (any, error) {
	g := c.game
	if g.Status() == diplomacy.StatusCompleted {
		return nil, protocol.Errorf(protocol.ErrGameFinished, "game %s is completed", g.ID)
	}
	if g.Status() != diplomacy.StatusForming {
		return nil, protocol.Errorf(protocol.ErrConflict, "game %s already started", g.ID)
	}
	joined := len(g.ControlledBy(c.username)) > 0
	if !joined && !c.s.users.IsModerator(c.username) {
		return nil, protocol.NewError(protocol.ErrAuth, "start requires a seat or moderator rights")
	}

	if err := g.Start(c.s.m); err != nil {
		return nil, protocol.NewError(protocol.ErrConflict, err.Error())
	}
	c.s.armDeadline(g)
	c.s.notifier.GameStatusUpdate(c.outbox, g)
	c.s.notifier.PhaseUpdate(c.outbox, g)
	c.s.persistGame(g)
	log.Info().Str("gameId", g.ID).Str("phase", g.Phase).Msg("Game started")
	return gameView(g, ""), nil
}

func handleProcessGame(c *reqCtx) (any, error) {
	if err := requireActive(c.game); err != nil {
		return nil, err
	}
	if !c.s.users.IsModerator(c.username) &&
		!c.s.tokenHasRole(c.game.ID, c.header.Token, RoleOmniscient) {
		return nil, protocol.NewError(protocol.ErrAuth, "force processing requires moderator rights")
	}
	if err := c.s.processLocked(c.game, c.outbox); err != nil {
		return nil, err
	}
	return map[string]any{"phase": c.game.Phase}, nil
}

func handleSetOrders(c *reqCtx) (any, error) {
	var req protocol.SetOrders
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	if err := requireActive(c.game); err != nil {
		return nil, err
	}
	if err := requirePowerRole(c, req.Power); err != nil {
		return nil, err
	}

	var orders []diplomacy.DSONOrder
	for _, text := range req.Orders {
		parsed, err := diplomacy.ParseDSON(text, c.s.m)
		if err != nil {
			return nil, protocol.NewError(protocol.ErrOrderInvalid, err.Error())
		}
		orders = append(orders, parsed...)
	}

	if err := c.game.SetOrders(diplomacy.Power(req.Power), orders, c.s.m); err != nil {
		return nil, protocol.NewError(protocol.ErrOrderInvalid, err.Error())
	}

	var texts []string
	for _, d := range c.game.OrdersOf(diplomacy.Power(req.Power)) {
		texts = append(texts, diplomacy.FormatDSON([]diplomacy.DSONOrder{d}))
	}
	c.s.notifier.PowerOrdersUpdate(c.outbox, c.game, diplomacy.Power(req.Power), texts)
	c.s.persistGame(c.game)
	return map[string]any{"orders": texts}, nil
}

func handleClearOrders(c *reqCtx) (any, error) {
	var req protocol.ClearOrders
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	if err := requireActive(c.game); err != nil {
		return nil, err
	}
	if err := requirePowerRole(c, req.Power); err != nil {
		return nil, err
	}
	c.game.ClearOrders(diplomacy.Power(req.Power))
	c.s.notifier.PowerOrdersUpdate(c.outbox, c.game, diplomacy.Power(req.Power), nil)
	c.s.persistGame(c.game)
	return nil, nil
}

func handleVote(c *reqCtx) (any, error) {
	var req protocol.Vote
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	if err := requireActive(c.game); err != nil {
		return nil, err
	}
	if err := requirePowerRole(c, req.Power); err != nil {
		return nil, err
	}

	if err := c.game.VoteDraw(diplomacy.Power(req.Power), req.Vote); err != nil {
		return nil, protocol.NewError(protocol.ErrConflict, err.Error())
	}

	if c.s.cache != nil {
		var cerr error
		if req.Vote {
			cerr = c.s.cache.AddDrawVote(context.Background(), c.game.ID, req.Power)
		} else {
			cerr = c.s.cache.RemoveDrawVote(context.Background(), c.game.ID, req.Power)
		}
		if cerr != nil {
			log.Debug().Err(cerr).Str("gameId", c.game.ID).Msg("Failed to mirror draw vote")
		}
	}

	c.s.notifier.PowerVoteUpdate(c.outbox, c.game, diplomacy.Power(req.Power), req.Vote)
	if c.game.Status() == diplomacy.StatusCompleted {
		c.game.Deadline = time.Time{}
		c.s.notifier.GameStatusUpdate(c.outbox, c.game)
	}
	c.s.persistGame(c.game)
	return nil, nil
}

func handleSetDummy(c *reqCtx) (any, error) {
	var req protocol.SetDummy
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	if err := requireActive(c.game); err != nil {
		return nil, err
	}
	if !c.s.users.IsModerator(c.username) {
		if err := requirePowerRole(c, req.Power); err != nil {
			return nil, err
		}
	}
	c.game.SetCivilDisorder(diplomacy.Power(req.Power), req.Dummy)
	c.s.persistGame(c.game)
	return nil, nil
}

func handleSendGameMessage(c *reqCtx) (any, error) {
	var req protocol.SendGameMessage
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	if err := requireActive(c.game); err != nil {
		return nil, err
	}
	if err := requirePowerRole(c, req.Sender); err != nil {
		return nil, err
	}
	msg := protocol.GameMessage{
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Body:      req.Body,
		Phase:     c.game.Phase,
	}
	c.s.notifier.GameMessage(c.outbox, c.game, msg)
	return nil, nil
}

func handleSetObserverLevel(c *reqCtx) (any, error) {
	var req protocol.SetObserverLevel
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	if !c.s.users.IsModerator(c.username) {
		return nil, protocol.NewError(protocol.ErrAuth, "observer level requires moderator rights")
	}
	switch diplomacy.ObserverLevel(req.ObserverLevel) {
	case diplomacy.ObserverAll, diplomacy.ObserverHistory:
	default:
		return nil, protocol.Errorf(protocol.ErrConflict, "unknown observer level %q", req.ObserverLevel)
	}
	c.game.ObserverLevel = diplomacy.ObserverLevel(req.ObserverLevel)
	c.s.notifier.OmniscientUpdated(c.outbox, c.game)
	c.s.persistGame(c.game)
	return nil, nil
}

func handleSynchronize(c *reqCtx) (any, error) {
	var req protocol.Synchronize
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	g := c.game
	var state *diplomacy.GameState
	if g.State != nil {
		state = g.State.Clone()
	}
	return map[string]any{
		"game_id":       g.ID,
		"current_phase": g.Phase,
		"phase_index":   g.PhaseIndex(),
		"phases":        g.HistorySince(req.PhaseIndex),
		"state":         state,
		"deadline_unix": deadlineUnix(g),
	}, nil
}

func handlePhaseHistory(c *reqCtx) (any, error) {
	var req protocol.PhaseHistory
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	return map[string]any{
		"phases":      c.game.HistorySince(req.FromIndex),
		"phase_index": c.game.PhaseIndex(),
	}, nil
}

func deadlineUnix(g *diplomacy.Game) int64 {
	if g.Deadline.IsZero() {
		return 0
	}
	return g.Deadline.Unix()
}
