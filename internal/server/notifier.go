package server

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/backstab/internal/protocol"
	"github.com/freeeve/backstab/pkg/diplomacy"
)

// Session is one connected transport endpoint. Write must deliver frames
// in call order (FIFO per session); the hub's per-connection send queue
// provides that.
type Session interface {
	ID() string
	Write(frame []byte) error
}

// Outbox accumulates notification frames produced by one mutation. The
// dispatcher flushes it after the response is written, so a session always
// sees its response before the notifications the request generated.
type Outbox struct {
	frames []outFrame
}

type outFrame struct {
	token string
	frame []byte
}

// Notifier computes recipient sets for typed notifications and addresses
// frames to tokens. Per-recipient ordering follows the commit order of the
// generating mutations because frames are built inside the game's serial
// task and flushed in order.
type Notifier struct {
	s   *Server
	seq atomic.Uint64
}

func newNotifier(s *Server) *Notifier {
	return &Notifier{s: s}
}

func (n *Notifier) nextID() string {
	return fmt.Sprintf("n%012d", n.seq.Add(1))
}

// queue builds one notification frame for a token.
func (n *Notifier) queue(ob *Outbox, token, name, gameID string, payload any) {
	notif, err := protocol.NewNotification(n.nextID(), name, token, gameID, payload)
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("Failed to build notification")
		return
	}
	frame, err := protocol.EncodeNotificationFrame(notif)
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("Failed to encode notification")
		return
	}
	ob.frames = append(ob.frames, outFrame{token: token, frame: frame})
}

// gameRecipients returns the tokens observing a game with their role sets,
// in deterministic token order.
func (n *Notifier) gameRecipients(gameID string) []recipient {
	n.s.mu.RLock()
	defer n.s.mu.RUnlock()
	joins := n.s.joins[gameID]
	out := make([]recipient, 0, len(joins))
	for token, roles := range joins {
		rs := make([]string, 0, len(roles))
		for role := range roles {
			rs = append(rs, role)
		}
		sort.Strings(rs)
		out = append(out, recipient{token: token, roles: rs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].token < out[j].token })
	return out
}

type recipient struct {
	token string
	roles []string
}

func (r recipient) has(role string) bool {
	for _, x := range r.roles {
		if x == role {
			return true
		}
	}
	return false
}

func (r recipient) omniscient() bool { return r.has(RoleOmniscient) }

// GameProcessed fans out a processed phase to every observer of the game.
func (n *Notifier) GameProcessed(ob *Outbox, g *diplomacy.Game, pd *diplomacy.PhaseData) {
	payload := protocol.GameProcessed{
		PhaseData:    pd,
		PhaseIndex:   g.PhaseIndex(),
		CurrentPhase: g.Phase,
	}
	for _, rcpt := range n.gameRecipients(g.ID) {
		n.queue(ob, rcpt.token, protocol.NotifGameProcessed, g.ID, payload)
	}
}

// PhaseUpdate announces the new current phase and deadline.
func (n *Notifier) PhaseUpdate(ob *Outbox, g *diplomacy.Game) {
	payload := protocol.PhaseUpdate{Phase: g.Phase, State: g.State}
	if !g.Deadline.IsZero() {
		payload.Deadline = g.Deadline.Unix()
	}
	for _, rcpt := range n.gameRecipients(g.ID) {
		n.queue(ob, rcpt.token, protocol.NotifPhaseUpdate, g.ID, payload)
	}
}

// PowerOrdersUpdate announces an order submission. During an active phase
// only the submitting power's sessions and omniscient observers see the
// order text; under ObserverAll plain observers see it too.
func (n *Notifier) PowerOrdersUpdate(ob *Outbox, g *diplomacy.Game, power diplomacy.Power, orders []string) {
	payload := protocol.PowerOrdersUpdate{Power: string(power), Orders: orders}
	masked := protocol.PowerOrdersUpdate{Power: string(power)}
	for _, rcpt := range n.gameRecipients(g.ID) {
		switch {
		case rcpt.has(string(power)) || rcpt.omniscient():
			n.queue(ob, rcpt.token, protocol.NotifPowerOrdersUpdate, g.ID, payload)
		case g.ObserverLevel == diplomacy.ObserverAll:
			n.queue(ob, rcpt.token, protocol.NotifPowerOrdersUpdate, g.ID, payload)
		default:
			// Observers still learn that the power acted.
			n.queue(ob, rcpt.token, protocol.NotifPowerOrdersUpdate, g.ID, masked)
		}
	}
}

// PowerVoteUpdate announces a draw-vote change to omniscient observers and
// the voting power itself.
func (n *Notifier) PowerVoteUpdate(ob *Outbox, g *diplomacy.Game, power diplomacy.Power, vote bool) {
	payload := protocol.PowerVoteUpdate{Power: string(power), Vote: vote}
	for _, rcpt := range n.gameRecipients(g.ID) {
		if rcpt.has(string(power)) || rcpt.omniscient() {
			n.queue(ob, rcpt.token, protocol.NotifPowerVoteUpdate, g.ID, payload)
		}
	}
}

// GameStatusUpdate announces start, completion, or deletion.
func (n *Notifier) GameStatusUpdate(ob *Outbox, g *diplomacy.Game) {
	payload := protocol.GameStatusUpdate{
		Status: string(g.Status()),
		Winner: string(g.Winner),
		Draw:   g.Draw,
	}
	for _, rcpt := range n.gameRecipients(g.ID) {
		n.queue(ob, rcpt.token, protocol.NotifGameStatusUpdate, g.ID, payload)
	}
}

// ClearedCenters announces that a power lost its centers.
func (n *Notifier) ClearedCenters(ob *Outbox, g *diplomacy.Game, power diplomacy.Power) {
	payload := protocol.ClearedCenters{Power: string(power)}
	for _, rcpt := range n.gameRecipients(g.ID) {
		n.queue(ob, rcpt.token, protocol.NotifClearedCenters, g.ID, payload)
	}
}

// OmniscientUpdated announces an observer-level change.
func (n *Notifier) OmniscientUpdated(ob *Outbox, g *diplomacy.Game) {
	payload := protocol.OmniscientUpdated{ObserverLevel: string(g.ObserverLevel)}
	for _, rcpt := range n.gameRecipients(g.ID) {
		n.queue(ob, rcpt.token, protocol.NotifOmniscientUpdated, g.ID, payload)
	}
}

// GameMessage routes press: broadcast to everyone, private to the sender,
// recipient, and omniscient observers. Content is opaque to the server.
func (n *Notifier) GameMessage(ob *Outbox, g *diplomacy.Game, msg protocol.GameMessage) {
	for _, rcpt := range n.gameRecipients(g.ID) {
		if msg.Recipient != "" {
			if !rcpt.has(msg.Recipient) && !rcpt.has(msg.Sender) && !rcpt.omniscient() {
				continue
			}
		}
		n.queue(ob, rcpt.token, protocol.NotifGameMessage, g.ID, msg)
	}
}

// AccountDeleted tells every session of a deleted account to drop it.
func (n *Notifier) AccountDeleted(ob *Outbox, tokens []string) {
	for _, token := range tokens {
		n.queue(ob, token, protocol.NotifAccountDeleted, "", nil)
	}
}

// Flush writes queued frames to every session holding each addressed
// token. Write failures drop the frame for that session only.
func (n *Notifier) Flush(ob *Outbox) {
	for _, f := range ob.frames {
		for _, sess := range n.s.sessionsForToken(f.token) {
			if err := sess.Write(f.frame); err != nil {
				log.Debug().Err(err).Str("session", sess.ID()).Msg("Dropping notification for dead session")
			}
		}
	}
	ob.frames = nil
}
