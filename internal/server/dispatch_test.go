package server

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/backstab/internal/config"
	"github.com/freeeve/backstab/internal/protocol"
	"github.com/freeeve/backstab/internal/repository/filestore"
	"github.com/freeeve/backstab/pkg/diplomacy"
)

// fakeSession records frames in write order.
type fakeSession struct {
	id string

	mu     sync.Mutex
	frames [][]byte
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Write(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeSession) all() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

// lastResponse returns the most recent response frame.
func (f *fakeSession) lastResponse(t *testing.T) *protocol.Response {
	t.Helper()
	frames := f.all()
	for i := len(frames) - 1; i >= 0; i-- {
		if protocol.ClassifyFrame(frames[i]) == protocol.FrameResponse {
			var resp protocol.Response
			require.NoError(t, json.Unmarshal(frames[i], &resp))
			return &resp
		}
	}
	t.Fatal("no response frame seen")
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := filestore.Open(t.TempDir())
	require.NoError(t, err)
	cfg := &config.Config{
		MovementDeadline:   time.Hour,
		RetreatDeadline:    time.Hour,
		AdjustmentDeadline: time.Hour,
	}
	s := New(cfg, store, nil)
	t.Cleanup(func() { s.sched.Stop() })
	return s
}

func dispatch(t *testing.T, s *Server, sess *fakeSession, h protocol.Header, payload any) *protocol.Response {
	t.Helper()
	frame, err := protocol.EncodeFrame(h, payload)
	require.NoError(t, err)
	s.Dispatch(sess, frame)
	return sess.lastResponse(t)
}

func signIn(t *testing.T, s *Server, sess *fakeSession, username string) string {
	t.Helper()
	resp := dispatch(t, s, sess, protocol.Header{RequestID: "r-signin-" + username, Name: protocol.ReqSignIn},
		protocol.SignIn{Username: username, Password: "pw-" + username})
	require.Nil(t, resp.Error)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.Len(t, data.Token, 32, "tokens are 128-bit hex")
	return data.Token
}

func TestDispatchSignInCreateJoinOrderFlow(t *testing.T) {
	s := newTestServer(t)
	sess := &fakeSession{id: "s1"}
	s.AttachSession(sess)

	token := signIn(t, s, sess, "alice")

	// Create a game with power choice so alice can take france.
	resp := dispatch(t, s, sess, protocol.Header{RequestID: "r2", Name: protocol.ReqCreateGame, Token: token},
		protocol.CreateGame{NewGameID: "g1", Rules: []string{"POWER_CHOICE"}})
	require.Nil(t, resp.Error)

	// Duplicate id conflicts.
	resp = dispatch(t, s, sess, protocol.Header{RequestID: "r3", Name: protocol.ReqCreateGame, Token: token},
		protocol.CreateGame{NewGameID: "g1"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ErrConflict, resp.Error.Code)

	// Join as france.
	resp = dispatch(t, s, sess, protocol.Header{RequestID: "r4", Name: protocol.ReqJoinGame, Token: token, GameID: "g1"},
		protocol.JoinGame{Role: "france"})
	require.Nil(t, resp.Error)

	// Start.
	resp = dispatch(t, s, sess, protocol.Header{RequestID: "r5", Name: protocol.ReqStartGame, Token: token, GameID: "g1"}, nil)
	require.Nil(t, resp.Error)
	var view struct {
		Phase string `json:"phase"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	assert.Equal(t, "S1901M", view.Phase)

	// Submit orders with the current phase.
	resp = dispatch(t, s, sess, protocol.Header{
		RequestID: "r6", Name: protocol.ReqSetOrders, Token: token, GameID: "g1",
		Phase: "S1901M", PhaseDependent: true,
	}, protocol.SetOrders{Power: "france", Orders: []string{"A par - bur"}})
	require.Nil(t, resp.Error)

	// Stale phase fails with PHASE_MISMATCH.
	resp = dispatch(t, s, sess, protocol.Header{
		RequestID: "r7", Name: protocol.ReqSetOrders, Token: token, GameID: "g1",
		Phase: "F1899M", PhaseDependent: true,
	}, protocol.SetOrders{Power: "france", Orders: []string{"A par - pic"}})
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ErrPhaseMismatch, resp.Error.Code)
}

func TestDispatchAuthFailures(t *testing.T) {
	s := newTestServer(t)
	sess := &fakeSession{id: "s1"}
	s.AttachSession(sess)

	// Channel request with unknown token.
	resp := dispatch(t, s, sess, protocol.Header{RequestID: "r1", Name: protocol.ReqListGames, Token: "bogus"}, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ErrAuth, resp.Error.Code)

	// Unknown request name.
	token := signIn(t, s, sess, "bob")
	resp = dispatch(t, s, sess, protocol.Header{RequestID: "r2", Name: "no_such_request", Token: token}, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ErrNotFound, resp.Error.Code)

	// Unknown game id.
	resp = dispatch(t, s, sess, protocol.Header{RequestID: "r3", Name: protocol.ReqSynchronize, Token: token, GameID: "nope"},
		protocol.Synchronize{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ErrNotFound, resp.Error.Code)

	// Wrong password on an existing account.
	resp = dispatch(t, s, sess, protocol.Header{RequestID: "r4", Name: protocol.ReqSignIn},
		protocol.SignIn{Username: "bob", Password: "wrong"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ErrAuth, resp.Error.Code)
}

func TestDispatchPowerConflict(t *testing.T) {
	s := newTestServer(t)
	alice := &fakeSession{id: "s1"}
	bob := &fakeSession{id: "s2"}
	s.AttachSession(alice)
	s.AttachSession(bob)

	aliceTok := signIn(t, s, alice, "alice")
	bobTok := signIn(t, s, bob, "bob")

	resp := dispatch(t, s, alice, protocol.Header{RequestID: "r1", Name: protocol.ReqCreateGame, Token: aliceTok},
		protocol.CreateGame{NewGameID: "g1", Rules: []string{"POWER_CHOICE"}, Power: "france"})
	require.Nil(t, resp.Error)

	resp = dispatch(t, s, bob, protocol.Header{RequestID: "r2", Name: protocol.ReqJoinGame, Token: bobTok, GameID: "g1"},
		protocol.JoinGame{Role: "france"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ErrConflict, resp.Error.Code)
}

// Notifications for a session arrive after the response that caused them
// and in commit order.
func TestNotificationOrderingPerSession(t *testing.T) {
	s := newTestServer(t)
	sess := &fakeSession{id: "s1"}
	s.AttachSession(sess)

	token := signIn(t, s, sess, "alice")
	resp := dispatch(t, s, sess, protocol.Header{RequestID: "r1", Name: protocol.ReqCreateGame, Token: token},
		protocol.CreateGame{NewGameID: "g1", Rules: []string{"POWER_CHOICE"}, Power: "france"})
	require.Nil(t, resp.Error)
	resp = dispatch(t, s, sess, protocol.Header{RequestID: "r2", Name: protocol.ReqStartGame, Token: token, GameID: "g1"}, nil)
	require.Nil(t, resp.Error)

	// Submit orders twice; each mutation notifies the power's sessions.
	for i, text := range []string{"A par - bur", "A par - pic"} {
		resp = dispatch(t, s, sess, protocol.Header{
			RequestID: "o" + string(rune('0'+i)), Name: protocol.ReqSetOrders, Token: token,
			GameID: "g1", Phase: "S1901M", PhaseDependent: true,
		}, protocol.SetOrders{Power: "france", Orders: []string{text}})
		require.Nil(t, resp.Error)
	}

	// Scan the frame log: every notification generated by request N must
	// appear after request N's response and before request N+1's response.
	frames := sess.all()
	sawSecondResponse := false
	var orderNotifs []string
	for _, frame := range frames {
		switch protocol.ClassifyFrame(frame) {
		case protocol.FrameResponse:
			var resp protocol.Response
			require.NoError(t, json.Unmarshal(frame, &resp))
			if resp.RequestID == "o1" {
				sawSecondResponse = true
			}
		case protocol.FrameNotification:
			n, err := protocol.DecodeNotificationHeader(frame)
			require.NoError(t, err)
			if n.Name == protocol.NotifPowerOrdersUpdate {
				var payload protocol.PowerOrdersUpdate
				require.NoError(t, json.Unmarshal(n.Data, &payload))
				if len(payload.Orders) > 0 {
					if !sawSecondResponse {
						orderNotifs = append(orderNotifs, "first:"+payload.Orders[0])
					} else {
						orderNotifs = append(orderNotifs, "second:"+payload.Orders[0])
					}
				}
			}
		}
	}
	require.Len(t, orderNotifs, 2)
	assert.Equal(t, "first:A par - bur", orderNotifs[0])
	assert.Equal(t, "second:A par - pic", orderNotifs[1])
}

func TestUserRegistryTokens(t *testing.T) {
	r := NewUserRegistry()
	tok1, err := r.SignIn("alice", "pw")
	require.NoError(t, err)
	tok2, err := r.SignIn("alice", "pw")
	require.NoError(t, err)
	assert.NotEqual(t, tok1, tok2)

	u, err := r.Authenticate(tok1)
	require.NoError(t, err)
	assert.Equal(t, "alice", u)

	assert.ElementsMatch(t, []string{tok1, tok2}, r.TokensOf("alice"))

	r.RevokeToken(tok1)
	_, err = r.Authenticate(tok1)
	assert.Error(t, err)
	_, err = r.Authenticate(tok2)
	assert.NoError(t, err)

	revoked := r.DeleteUser("alice")
	assert.Equal(t, []string{tok2}, revoked)
	assert.False(t, r.Exists("alice"))
}

func TestGameViewAfterProcess(t *testing.T) {
	s := newTestServer(t)
	sess := &fakeSession{id: "s1"}
	s.AttachSession(sess)

	token := signIn(t, s, sess, "alice")
	dispatch(t, s, sess, protocol.Header{RequestID: "r1", Name: protocol.ReqCreateGame, Token: token},
		protocol.CreateGame{NewGameID: "g1"})
	dispatch(t, s, sess, protocol.Header{RequestID: "r2", Name: protocol.ReqJoinGame, Token: token, GameID: "g1"},
		protocol.JoinGame{Role: "observer"})

	// Start requires a seat or moderator rights; grant moderator.
	s.users.SetModerator("alice", true)
	resp := dispatch(t, s, sess, protocol.Header{RequestID: "r3", Name: protocol.ReqStartGame, Token: token, GameID: "g1"}, nil)
	require.Nil(t, resp.Error)

	// Force-process and synchronize.
	resp = dispatch(t, s, sess, protocol.Header{RequestID: "r4", Name: protocol.ReqProcessGame, Token: token, GameID: "g1"}, nil)
	require.Nil(t, resp.Error)

	resp = dispatch(t, s, sess, protocol.Header{RequestID: "r5", Name: protocol.ReqSynchronize, Token: token, GameID: "g1"},
		protocol.Synchronize{PhaseIndex: 0})
	require.Nil(t, resp.Error)
	var sync struct {
		CurrentPhase string                `json:"current_phase"`
		PhaseIndex   int                   `json:"phase_index"`
		Phases       []diplomacy.PhaseData `json:"phases"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &sync))
	assert.Equal(t, "F1901M", sync.CurrentPhase)
	assert.Equal(t, 1, sync.PhaseIndex)
	require.Len(t, sync.Phases, 1)
	assert.Equal(t, "S1901M", sync.Phases[0].Phase)
}
