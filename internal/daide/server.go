package daide

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/backstab/internal/logger"
	"github.com/freeeve/backstab/internal/protocol"
	"github.com/freeeve/backstab/internal/server"
	"github.com/freeeve/backstab/pkg/diplomacy"
)

// Server accepts DAIDE bot connections on a TCP port and bridges them onto
// the request dispatcher. Each port hosts one game; messages have the same
// semantics as the JSON dialect.
type Server struct {
	srv    *server.Server
	gameID string

	mu sync.Mutex
	ln net.Listener
}

// NewServer creates a DAIDE bridge for one game.
func NewServer(srv *server.Server, gameID string) *Server {
	return &Server{srv: srv, gameID: gameID}
}

// ListenAndServe accepts connections until Close.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("daide: listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	log.Info().Str("addr", addr).Str("gameId", s.gameID).Msg("DAIDE listener started")
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops the listener.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

// daideConn is one bot session. It implements server.Session: frames the
// dispatcher writes are translated back into DAIDE messages.
type daideConn struct {
	id     string
	srv    *server.Server
	gameID string
	conn   net.Conn

	writeMu sync.Mutex

	stateMu      sync.Mutex
	token        string
	power        diplomacy.Power
	currentPhase string
	reqSeq       int
	pending      map[string]string // request id -> request name
}

func (s *Server) handleConn(conn net.Conn) {
	c := &daideConn{
		id:      "daide-" + logger.NewRequestID(),
		srv:     s.srv,
		gameID:  s.gameID,
		conn:    conn,
		pending: make(map[string]string),
	}
	defer func() {
		s.srv.DetachSession(c.id)
		conn.Close()
		log.Info().Str("session", c.id).Msg("DAIDE client disconnected")
	}()

	// Handshake: initial message, then the representation answer. An empty
	// representation payload means the standard dictionary.
	first, err := ReadMessage(conn)
	if err != nil || first.Type != MsgInitial {
		c.sendError()
		return
	}
	if err := c.send(Message{Type: MsgRepresentation}); err != nil {
		return
	}

	s.srv.AttachSession(c)
	log.Info().Str("session", c.id).Msg("DAIDE client connected")

	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			return
		}
		switch msg.Type {
		case MsgDiplomacy:
			c.handleLanguage(msg.Tokens)
		case MsgFinal:
			return
		default:
			c.sendError()
		}
	}
}

func (c *daideConn) ID() string { return c.id }

func (c *daideConn) send(m Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteMessage(c.conn, m)
}

func (c *daideConn) sendError() {
	_ = c.send(Message{Type: MsgError})
}

func (c *daideConn) yes(echo ...Token) {
	tokens := append([]Token{YES}, group(echo...)...)
	_ = c.send(Diplomacy(tokens...))
}

func (c *daideConn) rej(echo ...Token) {
	tokens := append([]Token{REJ}, group(echo...)...)
	_ = c.send(Diplomacy(tokens...))
}

// dispatch builds a JSON request frame and runs it through the dispatcher.
func (c *daideConn) dispatch(name string, payload any, phaseDependent bool) {
	c.stateMu.Lock()
	c.reqSeq++
	reqID := fmt.Sprintf("%s-%d", c.id, c.reqSeq)
	h := protocol.Header{
		RequestID:      reqID,
		Name:           name,
		Token:          c.token,
		PhaseDependent: phaseDependent,
	}
	if meta, ok := protocol.Requests[name]; ok && meta.Level == protocol.LevelGame {
		h.GameID = c.gameID
	}
	if phaseDependent {
		h.Phase = c.currentPhase
	}
	c.pending[reqID] = name
	c.stateMu.Unlock()

	frame, err := protocol.EncodeFrame(h, payload)
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("DAIDE frame encode failed")
		return
	}
	c.srv.Dispatch(c, frame)
}

// handleLanguage processes one diplomacy-language message from the bot.
func (c *daideConn) handleLanguage(tokens []Token) {
	if len(tokens) == 0 {
		c.sendError()
		return
	}
	switch tokens[0] {
	case NME:
		// Name + version text; sign in then take a seat.
		name := c.textArg(tokens[1:])
		if name == "" {
			c.rej(NME)
			return
		}
		c.dispatch(protocol.ReqSignIn, protocol.SignIn{Username: "daide:" + name, Password: name}, false)

	case OBS:
		if c.tokenValue() == "" {
			c.dispatch(protocol.ReqSignIn, protocol.SignIn{Username: "daide:" + c.id, Password: c.id}, false)
			c.stateMu.Lock()
			c.pending["join-as"] = server.RoleObserver
			c.stateMu.Unlock()
		} else {
			c.dispatch(protocol.ReqJoinGame, protocol.JoinGame{Role: server.RoleObserver}, false)
		}
		c.yes(OBS)

	case SUB:
		c.handleSub(tokens[1:])

	case NOW, SCO, HST:
		c.dispatch(protocol.ReqSynchronize, protocol.Synchronize{PhaseIndex: 0}, false)

	case DRW:
		power := c.powerValue()
		if power == "" {
			c.rej(DRW)
			return
		}
		c.dispatch(protocol.ReqVote, protocol.Vote{Power: power, Vote: true}, true)
		c.yes(DRW)

	case NOT:
		// NOT (DRW) retracts a draw vote.
		groups, err := splitGroups(tokens[1:])
		if err == nil && len(groups) == 1 && len(groups[0]) == 1 && groups[0][0] == DRW {
			if power := c.powerValue(); power != "" {
				c.dispatch(protocol.ReqVote, protocol.Vote{Power: power, Vote: false}, true)
				c.yes(NOT, DRW)
				return
			}
		}
		c.rej(NOT)

	case GOF:
		c.yes(GOF)

	case SND:
		press, err := ParseSnd(tokens)
		if err != nil {
			c.rej(SND)
			return
		}
		sender := c.powerValue()
		if sender == "" {
			c.rej(SND)
			return
		}
		for _, to := range press.To {
			c.dispatch(protocol.ReqSendGameMessage, protocol.SendGameMessage{
				Sender:    sender,
				Recipient: string(to),
				Body:      press.Body,
			}, true)
		}
		c.yes(SND)

	default:
		tokens = append([]Token{HUH}, tokens...)
		_ = c.send(Diplomacy(tokens...))
	}
}

// handleSub decodes SUB order clauses and submits them.
func (c *daideConn) handleSub(tokens []Token) {
	groups, err := splitGroups(tokens)
	if err != nil {
		c.rej(SUB)
		return
	}
	var texts []string
	power := ""
	for _, clause := range groups {
		p, d, err := DecodeOrder(clause)
		if err != nil {
			c.rej(SUB)
			return
		}
		if power == "" {
			power = string(p)
		}
		texts = append(texts, diplomacy.FormatDSON([]diplomacy.DSONOrder{d}))
	}
	if power == "" {
		power = c.powerValue()
	}
	if power == "" {
		c.rej(SUB)
		return
	}
	c.dispatch(protocol.ReqSetOrders, protocol.SetOrders{Power: power, Orders: texts}, true)
	c.yes(SUB)
}

// textArg extracts the first text group of a message.
func (c *daideConn) textArg(tokens []Token) string {
	groups, err := splitGroups(tokens)
	if err != nil {
		return ""
	}
	for _, g := range groups {
		if s := textOf(g); s != "" {
			return s
		}
	}
	return ""
}

func (c *daideConn) tokenValue() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.token
}

func (c *daideConn) powerValue() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return string(c.power)
}

// Write receives dispatcher frames (responses and notifications) and
// translates them into DAIDE messages.
func (c *daideConn) Write(frame []byte) error {
	switch protocol.ClassifyFrame(frame) {
	case protocol.FrameResponse:
		return c.handleResponse(frame)
	case protocol.FrameNotification:
		return c.handleNotification(frame)
	default:
		return nil
	}
}

func (c *daideConn) handleResponse(frame []byte) error {
	var resp protocol.Response
	if err := json.Unmarshal(frame, &resp); err != nil {
		return err
	}

	c.stateMu.Lock()
	name := c.pending[resp.RequestID]
	delete(c.pending, resp.RequestID)
	joinRole, wantJoin := c.pending["join-as"]
	c.stateMu.Unlock()

	if resp.Error != nil {
		log.Debug().Str("request", name).Str("code", string(resp.Error.Code)).
			Msg("DAIDE bridged request failed")
		if name == protocol.ReqSetOrders {
			c.rej(SUB)
		}
		return nil
	}

	switch name {
	case protocol.ReqSignIn:
		var data struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return err
		}
		c.stateMu.Lock()
		c.token = data.Token
		delete(c.pending, "join-as")
		c.stateMu.Unlock()
		role := "power"
		if wantJoin {
			role = joinRole
		}
		c.dispatch(protocol.ReqJoinGame, protocol.JoinGame{Role: role}, false)

	case protocol.ReqJoinGame:
		var view struct {
			Role  string `json:"role"`
			Phase string `json:"phase"`
		}
		if err := json.Unmarshal(resp.Data, &view); err != nil {
			return err
		}
		c.stateMu.Lock()
		c.currentPhase = view.Phase
		if view.Role != server.RoleObserver && view.Role != server.RoleOmniscient {
			c.power = diplomacy.Power(view.Role)
		}
		power := c.power
		c.stateMu.Unlock()
		if power != "" {
			// HLO (power) (passcode) (variant options)
			pt, _ := PowerToken(power)
			tokens := []Token{HLO}
			tokens = append(tokens, group(pt)...)
			tokens = append(tokens, group(IntToken(0))...)
			tokens = append(tokens, group()...)
			_ = c.send(Diplomacy(tokens...))
		}

	case protocol.ReqSynchronize:
		var data struct {
			CurrentPhase string               `json:"current_phase"`
			State        *diplomacy.GameState `json:"state"`
		}
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return err
		}
		c.stateMu.Lock()
		c.currentPhase = data.CurrentPhase
		c.stateMu.Unlock()
		if data.State != nil {
			if now, err := NowMessage(data.CurrentPhase, data.State); err == nil {
				_ = c.send(now)
			}
			if sco, err := ScoMessage(data.State, c.srv.Map()); err == nil {
				_ = c.send(sco)
			}
		}
	}
	return nil
}

func (c *daideConn) handleNotification(frame []byte) error {
	notif, err := protocol.DecodeNotificationHeader(frame)
	if err != nil {
		return err
	}

	switch notif.Name {
	case protocol.NotifPhaseUpdate:
		var payload protocol.PhaseUpdate
		if err := json.Unmarshal(notif.Data, &payload); err != nil {
			return err
		}
		c.stateMu.Lock()
		c.currentPhase = payload.Phase
		c.stateMu.Unlock()
		if payload.State != nil && payload.Phase != diplomacy.PhaseCompleted {
			if now, err := NowMessage(payload.Phase, payload.State); err == nil {
				_ = c.send(now)
			}
		}

	case protocol.NotifGameProcessed:
		var payload protocol.GameProcessed
		if err := json.Unmarshal(notif.Data, &payload); err != nil {
			return err
		}
		c.stateMu.Lock()
		c.currentPhase = payload.CurrentPhase
		c.stateMu.Unlock()
		if payload.PhaseData != nil {
			if msgs, err := OrdMessages(payload.PhaseData); err == nil {
				for _, m := range msgs {
					_ = c.send(m)
				}
			}
		}

	case protocol.NotifGameMessage:
		var payload protocol.GameMessage
		if err := json.Unmarshal(notif.Data, &payload); err != nil {
			return err
		}
		frm, err := FrmMessage(Press{
			From: diplomacy.Power(payload.Sender),
			To:   []diplomacy.Power{diplomacy.Power(payload.Recipient)},
			Body: payload.Body,
		})
		if err == nil {
			_ = c.send(frm)
		}

	case protocol.NotifGameStatusUpdate:
		var payload protocol.GameStatusUpdate
		if err := json.Unmarshal(notif.Data, &payload); err != nil {
			return err
		}
		if payload.Status == string(diplomacy.StatusCompleted) {
			switch {
			case payload.Draw:
				_ = c.send(Diplomacy(DRW))
			case payload.Winner != "":
				if pt, ok := PowerToken(diplomacy.Power(payload.Winner)); ok {
					tokens := []Token{SLO}
					tokens = append(tokens, group(pt)...)
					_ = c.send(Diplomacy(tokens...))
				}
			default:
				_ = c.send(Diplomacy(OFF))
			}
		}
	}
	return nil
}
