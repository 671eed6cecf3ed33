package protocol

import (
	"encoding/json"

	"github.com/freeeve/backstab/pkg/diplomacy"
)

// Notification names.
const (
	NotifPhaseUpdate       = "phase_update"
	NotifGameProcessed     = "game_processed"
	NotifPowerOrdersUpdate = "power_orders_update"
	NotifPowerVoteUpdate   = "power_vote_update"
	NotifGameStatusUpdate  = "game_status_update"
	NotifClearedCenters    = "cleared_centers"
	NotifAccountDeleted    = "account_deleted"
	NotifOmniscientUpdated = "omniscient_updated"
	NotifGameMessage       = "game_message_received"
)

// Notification is one notification frame. Token identifies the recipient
// session; ordering is guaranteed per recipient only.
type Notification struct {
	NotificationID string          `json:"notification_id"`
	Name           string          `json:"name"`
	Token          string          `json:"token"`
	GameID         string          `json:"game_id,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// Notification payloads.

type PhaseUpdate struct {
	Phase    string               `json:"phase"`
	Deadline int64                `json:"deadline_unix,omitempty"`
	State    *diplomacy.GameState `json:"state,omitempty"`
}

type GameProcessed struct {
	PhaseData    *diplomacy.PhaseData `json:"phase_data"`
	PhaseIndex   int                  `json:"phase_index"`
	CurrentPhase string               `json:"current_phase"`
}

type PowerOrdersUpdate struct {
	Power  string   `json:"power"`
	Orders []string `json:"orders"`
}

type PowerVoteUpdate struct {
	Power string `json:"power"`
	Vote  bool   `json:"vote"`
}

type GameStatusUpdate struct {
	Status string `json:"status"`
	Winner string `json:"winner,omitempty"`
	Draw   bool   `json:"draw,omitempty"`
}

type ClearedCenters struct {
	Power string `json:"power"`
}

type OmniscientUpdated struct {
	ObserverLevel string `json:"observer_level"`
}

type GameMessage struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient,omitempty"`
	Body      string `json:"body"`
	Phase     string `json:"phase,omitempty"`
}

// NewNotification builds a notification frame, marshalling the payload.
func NewNotification(id, name, token, gameID string, payload any) (*Notification, error) {
	n := &Notification{NotificationID: id, Name: name, Token: token, GameID: gameID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		n.Data = raw
	}
	return n, nil
}

// EncodeNotificationFrame flattens a notification into a single JSON
// object: the header fields plus the payload fields inline.
func EncodeNotificationFrame(n *Notification) ([]byte, error) {
	merged := make(map[string]json.RawMessage)
	if n.Data != nil {
		if err := json.Unmarshal(n.Data, &merged); err != nil {
			return nil, err
		}
	}
	id, _ := json.Marshal(n.NotificationID)
	name, _ := json.Marshal(n.Name)
	token, _ := json.Marshal(n.Token)
	merged["notification_id"] = id
	merged["name"] = name
	merged["token"] = token
	if n.GameID != "" {
		gid, _ := json.Marshal(n.GameID)
		merged["game_id"] = gid
	}
	return json.Marshal(merged)
}

// DecodeNotificationHeader extracts the notification header from a raw
// frame; the payload stays in the raw bytes.
func DecodeNotificationHeader(raw []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return n, err
	}
	n.Data = json.RawMessage(raw)
	return n, nil
}

// FrameKind distinguishes the three frame shapes on the wire.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameResponse
	FrameNotification
)

// ClassifyFrame inspects a raw frame received by a client and reports
// whether it is a response (has request_id) or a notification.
func ClassifyFrame(raw []byte) FrameKind {
	var probe struct {
		RequestID      string `json:"request_id"`
		NotificationID string `json:"notification_id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return FrameUnknown
	}
	switch {
	case probe.NotificationID != "":
		return FrameNotification
	case probe.RequestID != "":
		return FrameResponse
	default:
		return FrameUnknown
	}
}
