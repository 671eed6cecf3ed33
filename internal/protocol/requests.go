package protocol

import (
	"encoding/json"
	"fmt"
)

// Level classifies a request by what it addresses.
type Level string

const (
	LevelConnection Level = "connection"
	LevelChannel    Level = "channel"
	LevelGame       Level = "game"
)

// Request names. The dispatch table is keyed by these.
const (
	ReqSignIn          = "sign_in"
	ReqSignOut         = "sign_out"
	ReqListGames       = "list_games"
	ReqCreateGame      = "create_game"
	ReqJoinGame        = "join_game"
	ReqLeaveGame       = "leave_game"
	ReqDeleteGame      = "delete_game"
	ReqDeleteAccount   = "delete_account"
	ReqStartGame       = "start_game"
	ReqProcessGame     = "process_game"
	ReqSetOrders       = "set_orders"
	ReqClearOrders     = "clear_orders"
	ReqVote            = "vote"
	ReqSetDummy        = "set_dummy"
	ReqSendGameMessage = "send_game_message"
	ReqSynchronize       = "synchronize"
	ReqPhaseHistory      = "get_phase_history"
	ReqSetObserverLevel  = "set_observer_level"
)

// RequestMeta describes the static properties of a request kind.
type RequestMeta struct {
	Level          Level
	PhaseDependent bool
}

// Requests is the table of every known request kind. Phase-dependent
// requests carry the client's view of the game phase and fail with
// PHASE_MISMATCH when it is stale.
var Requests = map[string]RequestMeta{
	ReqSignIn:          {LevelConnection, false},
	ReqSignOut:         {LevelChannel, false},
	ReqListGames:       {LevelChannel, false},
	ReqCreateGame:      {LevelChannel, false},
	ReqJoinGame:        {LevelChannel, false},
	ReqDeleteAccount:   {LevelChannel, false},
	ReqLeaveGame:       {LevelGame, false},
	ReqDeleteGame:      {LevelGame, false},
	ReqStartGame:       {LevelGame, false},
	ReqProcessGame:     {LevelGame, false},
	ReqSetOrders:       {LevelGame, true},
	ReqClearOrders:     {LevelGame, true},
	ReqVote:            {LevelGame, true},
	ReqSendGameMessage: {LevelGame, true},
	ReqSetDummy:         {LevelGame, false},
	ReqSynchronize:      {LevelGame, false},
	ReqPhaseHistory:     {LevelGame, false},
	ReqSetObserverLevel: {LevelGame, false},
}

// Header carries the request fields shared by every request kind. Payload
// fields sit inline in the same JSON object.
type Header struct {
	RequestID      string `json:"request_id"`
	Name           string `json:"name"`
	Token          string `json:"token,omitempty"`
	GameID         string `json:"game_id,omitempty"`
	GameRole       string `json:"game_role,omitempty"`
	Phase          string `json:"phase,omitempty"`
	PhaseDependent bool   `json:"phase_dependent"`
	ReSent         bool   `json:"re_sent,omitempty"`
}

// Request payloads. Each request frame is the Header fields plus the
// payload fields of its kind, flattened into one JSON object.

type SignIn struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateGame struct {
	NewGameID            string   `json:"new_game_id"`
	Rules                []string `json:"rules,omitempty"`
	RegistrationPassword string   `json:"registration_password,omitempty"`
	DeadlineSeconds      int      `json:"deadline_seconds,omitempty"`
	Power                string   `json:"power,omitempty"`
}

type JoinGame struct {
	Role                 string `json:"role"` // "observer", "omniscient", or a power name
	RegistrationPassword string `json:"registration_password,omitempty"`
}

type SetOrders struct {
	Power  string   `json:"power"`
	Orders []string `json:"orders"` // DSON order strings
}

type ClearOrders struct {
	Power string `json:"power"`
}

type Vote struct {
	Power string `json:"power"`
	Vote  bool   `json:"vote"`
}

type SetDummy struct {
	Power string `json:"power"`
	Dummy bool   `json:"dummy"`
}

type SendGameMessage struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient,omitempty"` // "" = broadcast
	Body      string `json:"body"`
}

type SetObserverLevel struct {
	ObserverLevel string `json:"observer_level"` // "all" or "history"
}

type Synchronize struct {
	PhaseIndex int `json:"phase_index"` // last phase index the client knows
}

type PhaseHistory struct {
	FromIndex int `json:"from_index"`
}

// Response is one response frame: the echoed request id and name, plus
// either data or an error.
type Response struct {
	RequestID string          `json:"request_id"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *Error          `json:"error,omitempty"`
}

// OKResponse builds a success response, marshalling data in place.
func OKResponse(requestID, name string, data any) (*Response, error) {
	resp := &Response{RequestID: requestID, Name: name}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal response data: %w", err)
		}
		resp.Data = raw
	}
	return resp, nil
}

// ErrResponse builds an error response.
func ErrResponse(requestID, name string, werr *Error) *Response {
	return &Response{RequestID: requestID, Name: name, Error: werr}
}

// EncodeFrame flattens a header and a payload into a single JSON object.
// Payload fields must not collide with header fields.
func EncodeFrame(h Header, payload any) ([]byte, error) {
	merged := make(map[string]json.RawMessage)
	hraw, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(hraw, &merged); err != nil {
		return nil, err
	}
	if payload != nil {
		praw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		fields := make(map[string]json.RawMessage)
		if err := json.Unmarshal(praw, &fields); err != nil {
			return nil, err
		}
		for k, v := range fields {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// DecodeHeader extracts the request header from a raw frame.
func DecodeHeader(raw []byte) (Header, error) {
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return h, fmt.Errorf("decode request header: %w", err)
	}
	if h.Name == "" {
		return h, fmt.Errorf("decode request header: missing name")
	}
	return h, nil
}
